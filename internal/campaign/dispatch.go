package campaign

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/foxzi/wabulk/internal/metrics"
	"github.com/foxzi/wabulk/internal/recipient"
	"github.com/foxzi/wabulk/internal/template"
)

// dispatch is the single writer of progress for one campaign
func (c *Controller) dispatch(ctx context.Context, cfg Config, list []recipient.Recipient, done chan struct{}, started time.Time) {
	defer close(done)
	defer c.finish(started)

	resolved := c.prechecker.Resolve(ctx, list)
	if cfg.RandomOrder {
		c.shuffle(resolved)
	}

	c.mu.Lock()
	c.setStatusLocked(StatusSending)
	c.mu.Unlock()

	// sends outlive Stop; only the waits between them are cancelled
	sendCtx := context.WithoutCancel(ctx)

	total := len(resolved)
	for i, rcpt := range resolved {
		if c.stopped() {
			break
		}
		if !c.waitWhilePaused(ctx) {
			break
		}

		c.beginRecipient(rcpt.Address, i, total, started)

		outcome, err := c.deliver(sendCtx, cfg, rcpt)
		c.record(i+1, rcpt.Address, outcome, err)

		if outcome == OutcomeUnresolvable {
			continue
		}

		if !c.pace(ctx, c.delay(cfg)) {
			break
		}

		since := c.countSend()
		if cfg.SleepAfterCount > 0 && since >= cfg.SleepAfterCount && i < total-1 {
			if !c.cooldown(ctx, cfg.SleepDuration) {
				break
			}
		}
	}
}

func (c *Controller) stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Stopped
}

// setStatusLocked moves the loop to s unless a control operation owns the
// status. Caller holds c.mu.
func (c *Controller) setStatusLocked(s Status) {
	if c.state.Stopped || c.state.Paused {
		return
	}
	c.progress.Status = s
}

// waitWhilePaused blocks while the campaign is paused. It returns false
// when the campaign was stopped.
func (c *Controller) waitWhilePaused(ctx context.Context) bool {
	for {
		c.mu.Lock()
		state := c.state
		c.mu.Unlock()

		if state.Stopped {
			return false
		}
		if !state.Paused {
			return true
		}
		if !c.waitSignal(ctx, c.pausePoll) {
			return false
		}
	}
}

// waitSignal waits up to d for a control signal. It returns false when ctx
// is done.
func (c *Controller) waitSignal(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.wake:
		return true
	case <-timer.C:
		return true
	}
}

func (c *Controller) beginRecipient(address string, index, total int, started time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setStatusLocked(StatusSending)
	c.progress.CurrentAddress = address

	processed := c.progress.Processed()
	if processed == 0 {
		return
	}
	elapsed := time.Since(started)
	perRecipient := elapsed / time.Duration(processed)
	c.progress.EstimatedSecondsRemaining = int64(math.Round((perRecipient * time.Duration(total-index)).Seconds()))
	if minutes := elapsed.Minutes(); minutes > 0 {
		c.progress.SendsPerMinute = math.Round(float64(processed)/minutes*100) / 100
	}
}

// deliver sends one recipient its message. A panic in the gateway is
// reported as a failed delivery.
func (c *Controller) deliver(ctx context.Context, cfg Config, rcpt recipient.Resolved) (outcome Outcome, err error) {
	if !rcpt.Reachable() {
		return OutcomeUnresolvable, nil
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeFailed
			err = fmt.Errorf("panic during send: %v", r)
		}
	}()

	text := template.Fill(cfg.Template, rcpt.Variables)
	if cfg.Media != nil {
		caption := template.Fill(cfg.CaptionTemplate, rcpt.Variables)
		if err := c.gw.SendMedia(ctx, rcpt.ResolvedID, cfg.Media, caption); err != nil {
			return OutcomeFailed, fmt.Errorf("send media: %w", err)
		}
	}
	if text != "" {
		if err := c.gw.SendText(ctx, rcpt.ResolvedID, text); err != nil {
			return OutcomeFailed, fmt.Errorf("send text: %w", err)
		}
	}
	return OutcomeSent, nil
}

func (c *Controller) record(seq int, address string, outcome Outcome, err error) {
	row := ReportRow{Sequence: seq, Address: address, Outcome: outcome}
	if err != nil {
		row.Error = err.Error()
	}

	c.mu.Lock()
	if outcome == OutcomeSent {
		c.progress.Sent++
	} else {
		c.progress.Failed++
	}
	c.rows = append(c.rows, row)
	reportID := c.progress.ReportID
	c.mu.Unlock()

	metrics.IncRecipientOutcome(string(outcome))
	if err != nil {
		c.logger.Warn("delivery failed", "report_id", reportID, "address", address, "outcome", outcome, "error", err)
	} else {
		c.logger.Debug("recipient processed", "report_id", reportID, "address", address, "outcome", outcome)
	}
}

func (c *Controller) delay(cfg Config) time.Duration {
	if cfg.MaxDelay <= cfg.MinDelay {
		return cfg.MinDelay
	}
	return cfg.MinDelay + time.Duration(c.int64N(int64(cfg.MaxDelay-cfg.MinDelay)+1))
}

// pace sleeps d between sends. Only stop interrupts it.
func (c *Controller) pace(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Controller) countSend() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress.SendsSinceLastCooldown++
	return c.progress.SendsSinceLastCooldown
}

// cooldown holds the loop in sleeping for d. Time spent paused is not
// counted. It returns false when the campaign was stopped.
func (c *Controller) cooldown(ctx context.Context, d time.Duration) bool {
	c.mu.Lock()
	c.inCooldown = true
	c.setStatusLocked(StatusSleeping)
	c.progress.CurrentAddress = ""
	c.progress.CooldownRemainingSeconds = ceilSeconds(d)
	reportID := c.progress.ReportID
	c.mu.Unlock()

	c.logger.Info("cooldown started", "report_id", reportID, "duration", d)

	remaining := d
	for remaining > 0 {
		c.mu.Lock()
		state := c.state
		c.mu.Unlock()

		if state.Stopped {
			c.endCooldown(false)
			return false
		}
		if state.Paused {
			if !c.waitWhilePaused(ctx) {
				c.endCooldown(false)
				return false
			}
			c.mu.Lock()
			c.setStatusLocked(StatusSleeping)
			c.mu.Unlock()
			continue
		}

		start := time.Now()
		if !c.waitSignal(ctx, min(remaining, c.cooldownCheck)) {
			c.endCooldown(false)
			return false
		}
		remaining -= time.Since(start)

		c.mu.Lock()
		c.progress.CooldownRemainingSeconds = ceilSeconds(max(remaining, 0))
		c.mu.Unlock()
	}

	c.endCooldown(true)
	metrics.IncCooldowns()
	c.logger.Info("cooldown finished", "report_id", reportID)
	return true
}

func (c *Controller) endCooldown(completed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inCooldown = false
	c.progress.CooldownRemainingSeconds = 0
	if completed {
		c.progress.SendsSinceLastCooldown = 0
		c.progress.Cooldowns++
		c.setStatusLocked(StatusSending)
	}
}

// finish freezes the report and marks the campaign done
func (c *Controller) finish(started time.Time) {
	if r := recover(); r != nil {
		c.logger.Error("dispatch loop panicked", "panic", r)
	}

	c.mu.Lock()
	if c.state.Stopped {
		c.progress.Status = StatusStopped
	} else {
		c.progress.Status = StatusCompleted
	}
	c.state.Paused = false
	c.progress.Done = true
	c.progress.CurrentAddress = ""
	c.progress.EstimatedSecondsRemaining = 0
	c.progress.CooldownRemainingSeconds = 0
	c.inCooldown = false

	report := Report{
		ID:         c.progress.ReportID,
		Status:     c.progress.Status,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Rows:       c.rows,
	}
	c.last = report.clone()
	c.rows = nil
	c.running = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	progress := c.progress
	hooks := c.hooks
	c.mu.Unlock()

	metrics.IncCampaigns(string(progress.Status))
	c.logger.Info("campaign finished",
		"report_id", progress.ReportID,
		"status", progress.Status,
		"sent", progress.Sent,
		"failed", progress.Failed,
		"total", progress.Total,
		"cooldowns", progress.Cooldowns,
		"duration", report.FinishedAt.Sub(started),
	)

	for _, h := range hooks {
		c.runHook(h, report.clone(), progress)
	}
}

func (c *Controller) runHook(h FinishHook, report Report, progress Progress) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("finish hook panicked", "report_id", report.ID, "panic", r)
		}
	}()
	h(report, progress)
}

func (c *Controller) shuffle(list []recipient.Resolved) {
	swap := func(i, j int) { list[i], list[j] = list[j], list[i] }
	if c.rng != nil {
		c.rng.Shuffle(len(list), swap)
		return
	}
	rand.Shuffle(len(list), swap)
}

func (c *Controller) int64N(n int64) int64 {
	if c.rng != nil {
		return c.rng.Int64N(n)
	}
	return rand.Int64N(n)
}

func ceilSeconds(d time.Duration) int64 {
	return int64(math.Ceil(d.Seconds()))
}
