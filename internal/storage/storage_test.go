package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/foxzi/wabulk/internal/campaign"
)

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "wabulk.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %s, want %s", db.Path(), path)
	}
}

func TestReportStore(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	store, err := NewReportStore(db)
	if err != nil {
		t.Fatalf("NewReportStore() error: %v", err)
	}
	ctx := context.Background()

	got, err := store.LastReport(ctx)
	if err != nil {
		t.Fatalf("LastReport() error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no report, got %+v", got)
	}

	first := campaign.Report{
		ID:         "1700000000000",
		Status:     campaign.StatusCompleted,
		StartedAt:  time.Now().Add(-time.Minute).Truncate(time.Millisecond),
		FinishedAt: time.Now().Truncate(time.Millisecond),
		Rows: []campaign.ReportRow{
			{Sequence: 1, Address: "79001112233", Outcome: campaign.OutcomeSent},
			{Sequence: 2, Address: "79004445566", Outcome: campaign.OutcomeFailed, Error: "send text: rejected"},
		},
	}
	if err := store.SaveReport(ctx, first); err != nil {
		t.Fatalf("SaveReport() error: %v", err)
	}

	second := campaign.Report{ID: "1700000000001", Status: campaign.StatusStopped, Rows: []campaign.ReportRow{}}
	if err := store.SaveReport(ctx, second); err != nil {
		t.Fatalf("SaveReport() error: %v", err)
	}

	got, err = store.LastReport(ctx)
	if err != nil {
		t.Fatalf("LastReport() error: %v", err)
	}
	if got.ID != second.ID || got.Status != campaign.StatusStopped || len(got.Rows) != 0 {
		t.Errorf("LastReport() = %+v, want the second report", got)
	}
}

func TestReportStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	store, err := NewReportStore(db)
	if err != nil {
		t.Fatalf("NewReportStore() error: %v", err)
	}
	report := campaign.Report{
		ID:   "42",
		Rows: []campaign.ReportRow{{Sequence: 1, Address: "1", Outcome: campaign.OutcomeUnresolvable}},
	}
	if err := store.SaveReport(ctx, report); err != nil {
		t.Fatalf("SaveReport() error: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer db.Close()
	store, err = NewReportStore(db)
	if err != nil {
		t.Fatalf("NewReportStore() error: %v", err)
	}

	got, err := store.LastReport(ctx)
	if err != nil {
		t.Fatalf("LastReport() error: %v", err)
	}
	if got == nil || got.ID != "42" || got.Rows[0].Outcome != campaign.OutcomeUnresolvable {
		t.Errorf("LastReport() = %+v", got)
	}
}
