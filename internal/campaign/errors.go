package campaign

import "errors"

var (
	// ErrCampaignActive is returned by Start while another campaign is running
	ErrCampaignActive = errors.New("a campaign is already running")

	// ErrInvalidConfig is returned by Start for an unusable configuration
	ErrInvalidConfig = errors.New("invalid campaign configuration")

	// ErrNoRecipients is returned by Start for an empty recipient list
	ErrNoRecipients = errors.New("no recipients")

	// ErrNotActive is returned by control operations when nothing is sending
	ErrNotActive = errors.New("no active campaign")

	// ErrAlreadyPaused is returned by Pause on a paused campaign
	ErrAlreadyPaused = errors.New("campaign is already paused")

	// ErrNotPaused is returned by Resume on a campaign that is not paused
	ErrNotPaused = errors.New("campaign is not paused")

	// ErrAlreadyStopped is returned by control operations on a stopped campaign
	ErrAlreadyStopped = errors.New("campaign is already stopped")

	// ErrAlreadyDone is returned by control operations on a completed campaign
	ErrAlreadyDone = errors.New("campaign has already completed")
)
