package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type staticProgress struct {
	stats ProgressStats
}

func (s staticProgress) ProgressStats() ProgressStats {
	return s.stats
}

func TestCollectorCollect(t *testing.T) {
	m := New()

	path := filepath.Join(t.TempDir(), "wabulk.db")
	if err := os.WriteFile(path, make([]byte, 1024), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := NewCollector(m, staticProgress{ProgressStats{Active: true, Total: 10, Sent: 4, Failed: 1}}, path, time.Minute)
	c.Collect()

	if v := gaugeValue(t, m.CampaignActive); v != 1 {
		t.Errorf("Expected active 1, got %f", v)
	}
	if v := gaugeValue(t, m.CampaignProgress.WithLabelValues("sent")); v != 4 {
		t.Errorf("Expected sent 4, got %f", v)
	}
	if v := gaugeValue(t, m.CampaignProgress.WithLabelValues("total")); v != 10 {
		t.Errorf("Expected total 10, got %f", v)
	}
	if v := gaugeValue(t, m.StorageUsedBytes); v != 1024 {
		t.Errorf("Expected storage 1024, got %f", v)
	}
	if v := gaugeValue(t, m.Goroutines); v < 1 {
		t.Errorf("Expected goroutines >= 1, got %f", v)
	}
}

func TestCollectorNoProgress(t *testing.T) {
	m := New()
	c := NewCollector(m, nil, "", 0)
	c.Collect()

	if v := gaugeValue(t, m.CampaignActive); v != 0 {
		t.Errorf("Expected active 0, got %f", v)
	}
}

func TestCollectorStartStop(t *testing.T) {
	m := New()
	c := NewCollector(m, nil, "", 10*time.Millisecond)

	c.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	c.Stop()
	c.Stop()

	if v := gaugeValue(t, m.UptimeSeconds); v <= 0 {
		t.Errorf("Expected positive uptime, got %f", v)
	}
}
