package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for wabulk
type Metrics struct {
	// Campaign counters
	RecipientsTotal      *prometheus.CounterVec
	PrecheckLookupsTotal *prometheus.CounterVec
	CooldownsTotal       prometheus.Counter
	CampaignsTotal       *prometheus.CounterVec

	// Campaign gauges
	CampaignActive   prometheus.Gauge
	CampaignProgress *prometheus.GaugeVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// Send quota
	RateLimitExceededTotal *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RecipientsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabulk_recipients_total",
				Help: "Total number of processed campaign recipients by outcome",
			},
			[]string{"outcome"},
		),
		PrecheckLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabulk_precheck_lookups_total",
				Help: "Total number of gateway existence lookups by result",
			},
			[]string{"result"},
		),
		CooldownsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wabulk_cooldowns_total",
				Help: "Total number of completed cooldown windows",
			},
		),
		CampaignsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabulk_campaigns_total",
				Help: "Total number of finished campaigns by final status",
			},
			[]string{"status"},
		),

		CampaignActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wabulk_campaign_active",
				Help: "1 while a campaign is running",
			},
		),
		CampaignProgress: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wabulk_campaign_progress",
				Help: "Progress counters of the current or last campaign",
			},
			[]string{"field"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabulk_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wabulk_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabulk_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		RateLimitExceededTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabulk_ratelimit_exceeded_total",
				Help: "Total number of sends denied by the send quota",
			},
			[]string{"window"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wabulk_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wabulk_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wabulk_storage_used_bytes",
				Help: "BoltDB file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.RecipientsTotal,
		m.PrecheckLookupsTotal,
		m.CooldownsTotal,
		m.CampaignsTotal,
		m.CampaignActive,
		m.CampaignProgress,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.RateLimitExceededTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncRecipientOutcome counts a processed recipient (sent, failed, unresolvable)
func IncRecipientOutcome(outcome string) {
	if m := Global(); m != nil {
		m.RecipientsTotal.WithLabelValues(outcome).Inc()
	}
}

// IncPrecheckLookup counts an existence lookup (found, not_found, error)
func IncPrecheckLookup(result string) {
	if m := Global(); m != nil {
		m.PrecheckLookupsTotal.WithLabelValues(result).Inc()
	}
}

// IncCooldowns counts a completed cooldown window
func IncCooldowns() {
	if m := Global(); m != nil {
		m.CooldownsTotal.Inc()
	}
}

// IncCampaigns counts a finished campaign by final status
func IncCampaigns(status string) {
	if m := Global(); m != nil {
		m.CampaignsTotal.WithLabelValues(status).Inc()
	}
}

// IncRateLimitExceeded increments rate limit exceeded counter
func IncRateLimitExceeded(window string) {
	if m := Global(); m != nil {
		m.RateLimitExceededTotal.WithLabelValues(window).Inc()
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	if m := Global(); m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
