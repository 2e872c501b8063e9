package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	storage, err := NewStorage(db)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return storage
}

func TestStorageList(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := range 5 {
		kind := KindText
		if i%2 == 1 {
			kind = KindMedia
		}
		msg := &Message{
			ID:         fmt.Sprintf("msg-%d", i),
			To:         fmt.Sprintf("7900%d@sandbox", i%2),
			Kind:       kind,
			CapturedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := storage.Save(ctx, msg); err != nil {
			t.Fatalf("failed to save message: %v", err)
		}
	}

	all, err := storage.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(all))
	}
	if all[0].ID != "msg-4" {
		t.Errorf("expected newest first, got %s", all[0].ID)
	}

	media, _ := storage.List(ctx, ListFilter{Kind: KindMedia})
	if len(media) != 2 {
		t.Errorf("expected 2 media messages, got %d", len(media))
	}

	to, _ := storage.List(ctx, ListFilter{To: "79000@sandbox"})
	if len(to) != 3 {
		t.Errorf("expected 3 messages to 79000, got %d", len(to))
	}

	page, _ := storage.List(ctx, ListFilter{Limit: 2, Offset: 1})
	if len(page) != 2 || page[0].ID != "msg-3" {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestStorageListEmpty(t *testing.T) {
	storage := newTestStorage(t)

	msgs, err := storage.List(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", msgs)
	}
}

func TestStorageClear(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	old := &Message{ID: "old", Kind: KindText, CapturedAt: time.Now().Add(-2 * time.Hour)}
	fresh := &Message{ID: "fresh", Kind: KindText, CapturedAt: time.Now()}
	for _, m := range []*Message{old, fresh} {
		if err := storage.Save(ctx, m); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
	}

	n, err := storage.Clear(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 cleared, got %d", n)
	}

	n, err = storage.Clear(ctx, 0)
	if err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 cleared, got %d", n)
	}

	msgs, _ := storage.List(ctx, ListFilter{})
	if len(msgs) != 0 {
		t.Errorf("expected empty sandbox, got %d", len(msgs))
	}
}

func TestStorageStats(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	now := time.Now()
	msgs := []*Message{
		{ID: "1", Kind: KindText, CapturedAt: now.Add(-time.Minute)},
		{ID: "2", Kind: KindMedia, CapturedAt: now},
		{ID: "3", Kind: KindText, CapturedAt: now.Add(time.Minute), SimulatedErr: "rate limited by server"},
	}
	for _, m := range msgs {
		if err := storage.Save(ctx, m); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
	}

	stats, err := storage.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.Total != 3 || stats.ByKind[KindText] != 2 || stats.Failed != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.TotalSize == 0 {
		t.Error("expected non-zero total size")
	}
	if !stats.NewestAt.After(stats.OldestAt) {
		t.Errorf("oldest %v newest %v", stats.OldestAt, stats.NewestAt)
	}
}
