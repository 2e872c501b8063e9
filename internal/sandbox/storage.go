// Package sandbox captures campaign messages instead of delivering them.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSandbox = []byte("sandbox")

// Message kinds
const (
	KindText  = "text"
	KindMedia = "media"
)

// Message is a send captured by the sandbox gateway
type Message struct {
	ID           string    `json:"id"`
	To           string    `json:"to"`
	Kind         string    `json:"kind"`
	Text         string    `json:"text,omitempty"`
	Caption      string    `json:"caption,omitempty"`
	Filename     string    `json:"filename,omitempty"`
	MimeType     string    `json:"mime_type,omitempty"`
	Size         int       `json:"size,omitempty"`
	CapturedAt   time.Time `json:"captured_at"`
	SimulatedErr string    `json:"simulated_error,omitempty"`
}

// Storage keeps captured messages in BoltDB ordered by capture time
type Storage struct {
	db *bolt.DB
}

// NewStorage creates a new sandbox storage using the provided BoltDB instance
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSandbox)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox bucket: %w", err)
	}

	return &Storage{db: db}, nil
}

// Save stores a captured message
func (s *Storage) Save(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSandbox).Put(makeIndexKey(msg.CapturedAt, msg.ID), data)
	})
}

// ListFilter narrows List results
type ListFilter struct {
	To     string
	Kind   string
	Limit  int
	Offset int
}

// List returns captured messages, newest first
func (s *Storage) List(ctx context.Context, filter ListFilter) ([]*Message, error) {
	messages := []*Message{}

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSandbox).Cursor()

		skipped := 0
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				continue
			}
			if filter.To != "" && msg.To != filter.To {
				continue
			}
			if filter.Kind != "" && msg.Kind != filter.Kind {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}

			messages = append(messages, &msg)
			if filter.Limit > 0 && len(messages) >= filter.Limit {
				break
			}
		}
		return nil
	})

	return messages, err
}

// Clear removes captured messages older than olderThan, or all when it is 0
func (s *Storage) Clear(ctx context.Context, olderThan time.Duration) (int, error) {
	var count int
	cutoff := time.Now().Add(-olderThan)

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSandbox)
		c := bucket.Cursor()

		var keysToDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if olderThan > 0 {
				var msg Message
				if err := json.Unmarshal(v, &msg); err == nil && msg.CapturedAt.After(cutoff) {
					continue
				}
			}
			keysToDelete = append(keysToDelete, k)
		}

		for _, k := range keysToDelete {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			count++
		}
		return nil
	})

	return count, err
}

// Stats summarizes captured messages
type Stats struct {
	Total     int64            `json:"total"`
	ByKind    map[string]int64 `json:"by_kind"`
	Failed    int64            `json:"failed"`
	OldestAt  time.Time        `json:"oldest_at,omitzero"`
	NewestAt  time.Time        `json:"newest_at,omitzero"`
	TotalSize int64            `json:"total_size"`
}

// Stats returns sandbox statistics
func (s *Storage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByKind: make(map[string]int64)}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSandbox).ForEach(func(k, v []byte) error {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return nil
			}

			stats.Total++
			stats.TotalSize += int64(len(v))
			stats.ByKind[msg.Kind]++
			if msg.SimulatedErr != "" {
				stats.Failed++
			}
			if stats.OldestAt.IsZero() || msg.CapturedAt.Before(stats.OldestAt) {
				stats.OldestAt = msg.CapturedAt
			}
			if msg.CapturedAt.After(stats.NewestAt) {
				stats.NewestAt = msg.CapturedAt
			}
			return nil
		})
	})

	return stats, err
}

func makeIndexKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format("2006-01-02T15:04:05.000000000Z") + ":" + id)
}
