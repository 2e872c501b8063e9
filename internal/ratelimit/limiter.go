// Package ratelimit enforces hourly and daily send quotas across campaigns.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRateLimits = []byte("rate_limits")

// Scope is what a quota counter is kept for
type Scope string

const (
	ScopeGlobal    Scope = "global"
	ScopeRecipient Scope = "recipient"
)

// Window names the period a quota was exceeded in
type Window string

const (
	WindowHourly Window = "hourly"
	WindowDaily  Window = "daily"
)

// Config contains quota configuration
type Config struct {
	// Global caps all outgoing messages
	Global *LimitConfig `yaml:"global,omitempty"`

	// Recipient caps messages to any single recipient
	Recipient *LimitConfig `yaml:"recipient,omitempty"`

	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`
}

// LimitConfig contains quota values, 0 means unlimited
type LimitConfig struct {
	MessagesPerHour int `yaml:"messages_per_hour" json:"messages_per_hour"`
	MessagesPerDay  int `yaml:"messages_per_day" json:"messages_per_day"`
}

// Counter tracks usage within the current windows
type Counter struct {
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// Result is the outcome of a quota check
type Result struct {
	Allowed    bool
	DeniedBy   Scope
	Window     Window
	RetryAfter time.Duration
}

// Stats is the current usage of one counter
type Stats struct {
	Scope       Scope     `json:"scope"`
	Key         string    `json:"key"`
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start,omitzero"`
	DayStart    time.Time `json:"day_start,omitzero"`
}

// Limiter keeps quota counters in memory and flushes them to BoltDB
type Limiter struct {
	db       *bolt.DB
	config   *Config
	counters map[string]*Counter
	mu       sync.RWMutex
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewLimiter creates a limiter and loads persisted counters
func NewLimiter(db *bolt.DB, cfg *Config) (*Limiter, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRateLimits)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limits bucket: %w", err)
	}

	l := &Limiter{
		db:       db,
		config:   cfg,
		counters: make(map[string]*Counter),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}

	if err := l.loadCounters(); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}

	l.wg.Add(1)
	go l.persistLoop()

	return l, nil
}

// Allow checks the quotas for one message to recipient and consumes them
// when allowed
func (l *Limiter) Allow(ctx context.Context, recipient string) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	checks := l.checks(recipient)

	for _, check := range checks {
		counter := l.getOrCreateCounter(check.key, now)
		resetExpired(counter, now)
		if res := evaluate(check, counter.HourlyCount, counter.DailyCount, counter, now); res != nil {
			return res, nil
		}
	}

	for _, check := range checks {
		counter := l.counters[check.key]
		counter.HourlyCount++
		counter.DailyCount++
	}

	return &Result{Allowed: true}, nil
}

// Check reports whether a message to recipient would be allowed without
// consuming quota
func (l *Limiter) Check(ctx context.Context, recipient string) (*Result, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()
	for _, check := range l.checks(recipient) {
		counter, exists := l.counters[check.key]
		if !exists {
			continue
		}
		hourly, daily := currentCounts(counter, now)
		if res := evaluate(check, hourly, daily, counter, now); res != nil {
			return res, nil
		}
	}

	return &Result{Allowed: true}, nil
}

// GetStats returns the usage of one counter
func (l *Limiter) GetStats(ctx context.Context, scope Scope, key string) (*Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := &Stats{Scope: scope, Key: key}
	counter, exists := l.counters[makeKey(scope, key)]
	if !exists {
		return stats, nil
	}

	stats.HourlyCount, stats.DailyCount = currentCounts(counter, l.now())
	stats.HourStart = counter.HourStart
	stats.DayStart = counter.DayStart
	return stats, nil
}

// Stop stops background persistence and flushes counters
func (l *Limiter) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
	return l.persistCounters()
}

type limitCheck struct {
	scope Scope
	key   string
	limit *LimitConfig
}

func (l *Limiter) checks(recipient string) []limitCheck {
	var checks []limitCheck

	if l.config.Global != nil {
		checks = append(checks, limitCheck{
			scope: ScopeGlobal,
			key:   makeKey(ScopeGlobal, "global"),
			limit: l.config.Global,
		})
	}

	if recipient != "" && l.config.Recipient != nil {
		checks = append(checks, limitCheck{
			scope: ScopeRecipient,
			key:   makeKey(ScopeRecipient, recipient),
			limit: l.config.Recipient,
		})
	}

	return checks
}

func evaluate(check limitCheck, hourly, daily int, counter *Counter, now time.Time) *Result {
	if check.limit.MessagesPerHour > 0 && hourly >= check.limit.MessagesPerHour {
		return &Result{
			DeniedBy:   check.scope,
			Window:     WindowHourly,
			RetryAfter: counter.HourStart.Add(time.Hour).Sub(now),
		}
	}
	if check.limit.MessagesPerDay > 0 && daily >= check.limit.MessagesPerDay {
		return &Result{
			DeniedBy:   check.scope,
			Window:     WindowDaily,
			RetryAfter: counter.DayStart.Add(24 * time.Hour).Sub(now),
		}
	}
	return nil
}

func currentCounts(counter *Counter, now time.Time) (hourly, daily int) {
	hourly, daily = counter.HourlyCount, counter.DailyCount
	if now.Sub(counter.HourStart) >= time.Hour {
		hourly = 0
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		daily = 0
	}
	return hourly, daily
}

func (l *Limiter) getOrCreateCounter(key string, now time.Time) *Counter {
	counter, exists := l.counters[key]
	if !exists {
		counter = &Counter{HourStart: now, DayStart: now}
		l.counters[key] = counter
	}
	return counter
}

func resetExpired(counter *Counter, now time.Time) {
	if now.Sub(counter.HourStart) >= time.Hour {
		counter.HourlyCount = 0
		counter.HourStart = now
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		counter.DailyCount = 0
		counter.DayStart = now
	}
}

func (l *Limiter) loadCounters() error {
	return l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRateLimits).ForEach(func(k, v []byte) error {
			var counter Counter
			if err := json.Unmarshal(v, &counter); err != nil {
				return nil
			}
			l.counters[string(k)] = &counter
			return nil
		})
	})
}

func (l *Limiter) persistCounters() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		for key, counter := range l.counters {
			data, err := json.Marshal(counter)
			if err != nil {
				continue
			}
			if err := bucket.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Limiter) persistLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.persistCounters()
		}
	}
}

func makeKey(scope Scope, key string) string {
	return string(scope) + ":" + key
}
