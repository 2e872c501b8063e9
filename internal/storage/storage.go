// Package storage opens the service database and keeps the last campaign
// report in it.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/wabulk/internal/campaign"
)

var (
	bucketReports = []byte("reports")
	keyLastReport = []byte("last")
)

// Open opens (creating if needed) the BoltDB file at path
func Open(path string) (*bolt.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// ReportStore persists the single last-report slot
type ReportStore struct {
	db *bolt.DB
}

// NewReportStore creates a report store on db
func NewReportStore(db *bolt.DB) (*ReportStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketReports)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reports bucket: %w", err)
	}
	return &ReportStore{db: db}, nil
}

// SaveReport replaces the stored last report
func (s *ReportStore) SaveReport(ctx context.Context, report campaign.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReports).Put(keyLastReport, data)
	})
}

// LastReport returns the stored report, or nil if none was saved
func (s *ReportStore) LastReport(ctx context.Context) (*campaign.Report, error) {
	var report *campaign.Report
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketReports).Get(keyLastReport)
		if data == nil {
			return nil
		}
		report = &campaign.Report{}
		return json.Unmarshal(data, report)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load last report: %w", err)
	}
	return report, nil
}
