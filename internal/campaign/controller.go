package campaign

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/foxzi/wabulk/internal/gateway"
	"github.com/foxzi/wabulk/internal/metrics"
	"github.com/foxzi/wabulk/internal/precheck"
	"github.com/foxzi/wabulk/internal/recipient"
)

const (
	// DefaultPausePollInterval bounds how long a paused loop waits between checks
	DefaultPausePollInterval = 500 * time.Millisecond

	// DefaultCooldownCheckInterval bounds how long a cooldown waits between checks
	DefaultCooldownCheckInterval = time.Second
)

// FinishHook receives the frozen report of every finished campaign
type FinishHook func(report Report, progress Progress)

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the controller logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPollIntervals overrides the pause and cooldown check intervals
func WithPollIntervals(pause, cooldown time.Duration) Option {
	return func(c *Controller) {
		if pause > 0 {
			c.pausePoll = pause
		}
		if cooldown > 0 {
			c.cooldownCheck = cooldown
		}
	}
}

// WithRand sets the random source used for shuffling and pacing
func WithRand(r *rand.Rand) Option {
	return func(c *Controller) {
		c.rng = r
	}
}

// WithFinishHook registers a hook called after each campaign finishes
func WithFinishHook(h FinishHook) Option {
	return func(c *Controller) {
		if h != nil {
			c.hooks = append(c.hooks, h)
		}
	}
}

// Controller owns the state of the single campaign that may run at a time.
// The dispatch loop is its only writer of progress; control operations only
// flip flags and wake the loop.
type Controller struct {
	gw         gateway.Gateway
	prechecker *precheck.Prechecker
	logger     *slog.Logger

	pausePoll     time.Duration
	cooldownCheck time.Duration
	rng           *rand.Rand
	hooks         []FinishHook

	mu         sync.Mutex
	state      RunState
	progress   Progress
	rows       []ReportRow
	last       Report
	inCooldown bool
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	lastID     int64

	wake chan struct{}
}

// New creates a controller sending through gw. A nil prechecker is replaced
// by one with default settings.
func New(gw gateway.Gateway, prechecker *precheck.Prechecker, opts ...Option) *Controller {
	c := &Controller{
		gw:            gw,
		prechecker:    prechecker,
		logger:        slog.New(slog.DiscardHandler),
		pausePoll:     DefaultPausePollInterval,
		cooldownCheck: DefaultCooldownCheckInterval,
		progress:      Progress{Status: StatusIdle},
		last:          Report{Rows: []ReportRow{}},
		wake:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.prechecker == nil {
		c.prechecker = precheck.New(gw, precheck.Config{}, c.logger)
	}
	return c
}

// Start validates cfg and launches a campaign over recipients in the
// background. It returns the initial progress.
func (c *Controller) Start(cfg Config, recipients []recipient.Recipient) (Progress, error) {
	if err := cfg.Validate(); err != nil {
		return Progress{}, err
	}
	list := recipient.Normalize(recipients)
	if len(list) == 0 {
		return Progress{}, ErrNoRecipients
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return Progress{}, ErrCampaignActive
	}

	now := time.Now()
	id := now.UnixMilli()
	if id <= c.lastID {
		id = c.lastID + 1
	}
	c.lastID = id

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.state = RunState{}
	c.progress = Progress{
		Total:       len(list),
		ReportID:    strconv.FormatInt(id, 10),
		Status:      StatusPreparing,
		StartedAtMs: now.UnixMilli(),
	}
	c.rows = make([]ReportRow, 0, len(list))
	c.inCooldown = false
	c.running = true
	c.cancel = cancel
	c.done = done
	snapshot := c.progress
	c.mu.Unlock()

	// drain a wake left over from the previous run
	select {
	case <-c.wake:
	default:
	}

	c.logger.Info("campaign started",
		"report_id", snapshot.ReportID,
		"recipients", len(list),
		"min_delay", cfg.MinDelay,
		"max_delay", cfg.MaxDelay,
		"random_order", cfg.RandomOrder,
		"sleep_after", cfg.SleepAfterCount,
		"sleep_duration", cfg.SleepDuration,
		"media", cfg.Media != nil,
	)

	go c.dispatch(ctx, cfg, list, done, now)

	return snapshot, nil
}

// Pause suspends a sending or sleeping campaign before its next recipient
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state.Stopped:
		return ErrAlreadyStopped
	case c.progress.Done:
		return ErrAlreadyDone
	case c.state.Paused:
		return ErrAlreadyPaused
	case c.progress.Status != StatusSending && c.progress.Status != StatusSleeping:
		return ErrNotActive
	}

	c.state.Paused = true
	c.progress.Status = StatusPaused
	c.signal()
	c.logger.Info("campaign paused", "report_id", c.progress.ReportID, "processed", c.progress.Processed())
	return nil
}

// Resume continues a paused campaign where it left off
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state.Stopped:
		return ErrAlreadyStopped
	case c.progress.Done:
		return ErrAlreadyDone
	case !c.running:
		return ErrNotActive
	case !c.state.Paused:
		return ErrNotPaused
	}

	c.state.Paused = false
	if c.inCooldown {
		c.progress.Status = StatusSleeping
	} else {
		c.progress.Status = StatusSending
	}
	c.signal()
	c.logger.Info("campaign resumed", "report_id", c.progress.ReportID, "status", c.progress.Status)
	return nil
}

// Stop ends the campaign. A send in flight completes; the loop exits before
// the next recipient. Recipients already processed keep their outcome.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state.Stopped:
		return ErrAlreadyStopped
	case c.progress.Done:
		return ErrAlreadyDone
	case !c.running || !c.progress.Status.Active():
		return ErrNotActive
	}

	c.state.Stopped = true
	c.state.Paused = false
	c.progress.Status = StatusStopped
	if c.cancel != nil {
		c.cancel()
	}
	c.signal()
	c.logger.Info("campaign stopped", "report_id", c.progress.ReportID, "processed", c.progress.Processed())
	return nil
}

// Snapshot returns a copy of the current progress
func (c *Controller) Snapshot() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// State returns a copy of the control flags
func (c *Controller) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Report returns the report of the last finished campaign. Its ID is empty
// when no campaign has finished yet.
func (c *Controller) Report() Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last.clone()
}

// Restore installs a previously persisted report as the last report. It is a
// no-op once a campaign has been started.
func (c *Controller) Restore(r Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.progress.Status != StatusIdle {
		return
	}
	if r.Rows == nil {
		r.Rows = []ReportRow{}
	}
	c.last = r.clone()
	if id, err := strconv.ParseInt(r.ID, 10, 64); err == nil && id > c.lastID {
		c.lastID = id
	}
}

// Running reports whether a dispatch loop is alive
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Wait blocks until the current campaign, if any, has finished
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops an active campaign and waits for its loop to exit
func (c *Controller) Close(ctx context.Context) error {
	if err := c.Stop(); err == nil {
		c.logger.Info("stopped active campaign on shutdown")
	}
	return c.Wait(ctx)
}

// ProgressStats implements metrics.ProgressProvider
func (c *Controller) ProgressStats() metrics.ProgressStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return metrics.ProgressStats{
		Active: c.running,
		Total:  c.progress.Total,
		Sent:   c.progress.Sent,
		Failed: c.progress.Failed,
	}
}

// signal wakes the loop if it is waiting. Caller holds c.mu.
func (c *Controller) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
