// Package store persists named session configurations and the history of
// pipeline runs in a bbolt database.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"neutronct/pkg/config"
)

const (
	bucketConfigs = "configs" // key: name -> config.Config JSON
	bucketRuns    = "runs"    // key: run ID -> Run JSON
)

// ErrNotFound is returned for unknown config names and run IDs
var ErrNotFound = errors.New("not found")

// Run statuses
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run records one pipeline execution
type Run struct {
	ID         string    `json:"id"`
	Profile    string    `json:"profile,omitempty"`
	Name       string    `json:"name"`
	IPTS       string    `json:"ipts"`
	Status     string    `json:"status"`
	OutputDir  string    `json:"output_dir,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// NewRun starts a run record for cfg
func NewRun(profile string, cfg *config.Config) *Run {
	return &Run{
		ID:        uuid.New().String(),
		Profile:   profile,
		Name:      cfg.Name,
		IPTS:      cfg.IPTS,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
}

// Finish marks the run done with the outcome of the pipeline
func (r *Run) Finish(outputDir string, err error) {
	r.FinishedAt = time.Now()
	if err != nil {
		r.Status = StatusFailed
		r.Error = err.Error()

		return
	}

	r.Status = StatusSucceeded
	r.OutputDir = outputDir
}

// Duration returns how long a finished run took
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}

	return r.FinishedAt.Sub(r.StartedAt)
}

// Bolt is a bbolt backed store
type Bolt struct {
	storage *bbolt.DB
}

// DefaultPath returns the database location in the user config directory
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, "neutronct", "neutronct.bolt"), nil
}

// Open opens or creates the database at path
func Open(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("error creating store directory: %w", err)
	}

	instance, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	if err := instance.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketConfigs, bucketRuns} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}

		return nil
	}); err != nil {
		_ = instance.Close()

		return nil, err
	}

	return &Bolt{storage: instance}, nil
}

// Close closes the database.
func (b *Bolt) Close() error {
	return b.storage.Close()
}

// SaveConfig saves or replaces the configuration stored under name
func (b *Bolt) SaveConfig(name string, cfg *config.Config) error {
	if name == "" {
		return errors.New("config name is required")
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	return b.storage.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketConfigs)).Put([]byte(name), data)
	})
}

// LoadConfig retrieves a configuration by name. Fields missing from the
// stored record keep their defaults.
func (b *Bolt) LoadConfig(name string) (*config.Config, error) {
	var cfg *config.Config

	err := b.storage.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(bucketConfigs)).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("config %q: %w", name, ErrNotFound)
		}

		c := config.DefaultConfig()
		if err := json.Unmarshal(v, c); err != nil {
			return err
		}

		cfg = c

		return nil
	})

	return cfg, err
}

// ListConfigs returns the stored configuration names in sorted order
func (b *Bolt) ListConfigs() ([]string, error) {
	var names []string

	err := b.storage.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketConfigs)).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))

			return nil
		})
	})

	return names, err
}

// DeleteConfig removes a configuration by name
func (b *Bolt) DeleteConfig(name string) error {
	return b.storage.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketConfigs))
		if bucket.Get([]byte(name)) == nil {
			return fmt.Errorf("config %q: %w", name, ErrNotFound)
		}

		return bucket.Delete([]byte(name))
	})
}

// RecordRun saves or updates a run record
func (b *Bolt) RecordRun(run *Run) error {
	if run == nil || run.ID == "" {
		return errors.New("run id is required")
	}

	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	return b.storage.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketRuns)).Put([]byte(run.ID), data)
	})
}

// GetRun retrieves a run by ID
func (b *Bolt) GetRun(id string) (*Run, error) {
	var run *Run

	err := b.storage.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(bucketRuns)).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("run %q: %w", id, ErrNotFound)
		}

		var r Run
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}

		run = &r

		return nil
	})

	return run, err
}

// ListRuns returns every run, newest first
func (b *Bolt) ListRuns() ([]Run, error) {
	var runs []Run

	err := b.storage.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketRuns)).ForEach(func(_, v []byte) error {
			var r Run
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}

			runs = append(runs, r)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs, nil
}
