// Package campaign runs bulk message campaigns: one paced, controllable send
// over a prepared recipient list at a time.
package campaign

import (
	"fmt"
	"time"

	"github.com/foxzi/wabulk/internal/gateway"
)

// Status is the lifecycle state of a campaign
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPreparing Status = "preparing"
	StatusSending   Status = "sending"
	StatusPaused    Status = "paused"
	StatusSleeping  Status = "sleeping"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
)

// Active reports whether a campaign in this status can still be stopped
func (s Status) Active() bool {
	switch s {
	case StatusPreparing, StatusSending, StatusPaused, StatusSleeping:
		return true
	}
	return false
}

// Terminal reports whether the status ends a campaign
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusStopped
}

// Outcome is the per-recipient result recorded in a report
type Outcome string

const (
	OutcomeSent         Outcome = "sent"
	OutcomeFailed       Outcome = "failed"
	OutcomeUnresolvable Outcome = "unresolvable"
)

// Config describes how a campaign sends
type Config struct {
	Template        string
	CaptionTemplate string
	MinDelay        time.Duration
	MaxDelay        time.Duration
	RandomOrder     bool
	// SleepAfterCount is the number of sends between cooldowns, 0 disables them
	SleepAfterCount int
	SleepDuration   time.Duration
	Media           *gateway.Media
}

// Validate checks the configuration. Ranges are never swapped.
func (c Config) Validate() error {
	if c.MinDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	}
	if c.MaxDelay < c.MinDelay {
		return fmt.Errorf("%w: max delay %s is below min delay %s", ErrInvalidConfig, c.MaxDelay, c.MinDelay)
	}
	if c.SleepAfterCount < 0 {
		return fmt.Errorf("%w: sleep after count must not be negative", ErrInvalidConfig)
	}
	if c.SleepDuration < 0 {
		return fmt.Errorf("%w: sleep duration must not be negative", ErrInvalidConfig)
	}
	if c.Template == "" && c.Media == nil {
		return fmt.Errorf("%w: template is empty and no media is attached", ErrInvalidConfig)
	}
	return nil
}

// RunState holds the control flags of the current campaign
type RunState struct {
	Paused  bool `json:"paused"`
	Stopped bool `json:"stopped"`
}

// Progress is a point-in-time view of the current or last campaign
type Progress struct {
	Total                     int     `json:"total"`
	Sent                      int     `json:"sent"`
	Failed                    int     `json:"failed"`
	Done                      bool    `json:"done"`
	ReportID                  string  `json:"reportId"`
	CurrentAddress            string  `json:"currentNumber"`
	Status                    Status  `json:"status"`
	StartedAtMs               int64   `json:"startTime,omitempty"`
	EstimatedSecondsRemaining int64   `json:"estimatedTimeRemaining"`
	SendsPerMinute            float64 `json:"messagesPerMinute"`
	SendsSinceLastCooldown    int     `json:"messagesSinceLastSleep"`
	Cooldowns                 int     `json:"cooldowns"`
	CooldownRemainingSeconds  int64   `json:"cooldownRemainingSeconds"`
}

// Processed is the number of recipients with a recorded outcome
func (p Progress) Processed() int {
	return p.Sent + p.Failed
}

// ReportRow is the outcome for one recipient
type ReportRow struct {
	Sequence int     `json:"sequence"`
	Address  string  `json:"number"`
	Outcome  Outcome `json:"outcome"`
	Error    string  `json:"error,omitempty"`
}

// Report is the ordered outcome ledger of one campaign
type Report struct {
	ID         string      `json:"id"`
	Status     Status      `json:"status,omitempty"`
	StartedAt  time.Time   `json:"startedAt,omitzero"`
	FinishedAt time.Time   `json:"finishedAt,omitzero"`
	Rows       []ReportRow `json:"rows"`
}

// Counts tallies the rows of the report by outcome
func (r Report) Counts() map[Outcome]int {
	counts := make(map[Outcome]int, 3)
	for _, row := range r.Rows {
		counts[row.Outcome]++
	}
	return counts
}

func (r Report) clone() Report {
	out := r
	out.Rows = make([]ReportRow, len(r.Rows))
	copy(out.Rows, r.Rows)
	return out
}
