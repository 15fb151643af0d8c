package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

type fileState struct {
	Snapshots map[models.ASIN][]models.Snapshot       `json:"snapshots"`
	Attempts  map[models.ASIN][]models.PurchaseAttempt `json:"attempts"`
}

// FileStore persists the full state as one JSON document, rewritten
// atomically (temp file then rename) on every mutation. Existing data
// is loaded on construction.
type FileStore struct {
	mu       sync.RWMutex
	state    fileState
	filename string
}

func NewFileStore(filename string) (*FileStore, error) {
	fs := &FileStore{
		state: fileState{
			Snapshots: make(map[models.ASIN][]models.Snapshot),
			Attempts:  make(map[models.ASIN][]models.PurchaseAttempt),
		},
		filename: filename,
	}

	if err := fs.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load store file: %w", err)
	}

	return fs, nil
}

func (fs *FileStore) Append(_ context.Context, snap models.Snapshot) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	series := fs.state.Snapshots[snap.ASIN]
	if n := len(series); n > 0 && snap.ObservedAt.Before(series[n-1].ObservedAt) {
		return ErrOutOfOrder
	}

	fs.state.Snapshots[snap.ASIN] = append(series, snap)
	return fs.save()
}

func (fs *FileStore) Latest(_ context.Context, asin models.ASIN) (*models.Snapshot, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	series := fs.state.Snapshots[asin]
	if len(series) == 0 {
		return nil, nil
	}

	snap := series[len(series)-1]
	return &snap, nil
}

func (fs *FileStore) History(_ context.Context, asin models.ASIN, since time.Time) ([]models.Snapshot, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var out []models.Snapshot
	for _, snap := range fs.state.Snapshots[asin] {
		if !snap.ObservedAt.Before(since) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (fs *FileStore) Record(_ context.Context, attempt models.PurchaseAttempt) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.state.Attempts[attempt.ASIN] = append(fs.state.Attempts[attempt.ASIN], attempt)
	return fs.save()
}

func (fs *FileStore) List(_ context.Context, asin models.ASIN) ([]models.PurchaseAttempt, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	recorded := fs.state.Attempts[asin]
	out := make([]models.PurchaseAttempt, len(recorded))
	for i, attempt := range recorded {
		out[len(recorded)-1-i] = attempt
	}
	return out, nil
}

func (fs *FileStore) save() error {
	data, err := json.MarshalIndent(fs.state, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first for atomicity
	tmpFile := fs.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpFile, fs.filename)
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filename)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &fs.state); err != nil {
		return err
	}
	if fs.state.Snapshots == nil {
		fs.state.Snapshots = make(map[models.ASIN][]models.Snapshot)
	}
	if fs.state.Attempts == nil {
		fs.state.Attempts = make(map[models.ASIN][]models.PurchaseAttempt)
	}
	return nil
}
