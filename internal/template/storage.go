package template

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketTemplates = []byte("bulk_templates")

// Storage persists saved templates keyed by name
type Storage struct {
	db *bolt.DB
}

// NewStorage creates a new template storage on an open BoltDB
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTemplates)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create template bucket: %w", err)
	}
	return &Storage{db: db}, nil
}

// Save creates or replaces the template with the same name
func (s *Storage) Save(ctx context.Context, tmpl *Template) error {
	tmpl.Name = strings.TrimSpace(tmpl.Name)
	if tmpl.Name == "" {
		return fmt.Errorf("template name is required")
	}
	tmpl.UpdatedAt = time.Now()

	data, err := json.Marshal(tmpl)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTemplates).Put([]byte(tmpl.Name), data)
	})
}

// Get returns the template with the given name, or nil if it does not exist
func (s *Storage) Get(ctx context.Context, name string) (*Template, error) {
	var tmpl *Template

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTemplates).Get([]byte(name))
		if data == nil {
			return nil
		}
		tmpl = &Template{}
		return json.Unmarshal(data, tmpl)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read template %q: %w", name, err)
	}

	return tmpl, nil
}

// List returns all templates ordered by name
func (s *Storage) List(ctx context.Context) ([]*Template, error) {
	templates := []*Template{}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTemplates).ForEach(func(k, v []byte) error {
			var tmpl Template
			if err := json.Unmarshal(v, &tmpl); err != nil {
				// skip corrupted entries
				return nil
			}
			templates = append(templates, &tmpl)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return templates, nil
}

// Delete removes a template by name. Deleting a missing template is not an error.
func (s *Storage) Delete(ctx context.Context, name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTemplates).Delete([]byte(name))
	})
}
