// Package run persists conversion-run bookkeeping records through a storage
// adapter, so the HTTP surface can report on runs across process restarts.
package run

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/mvoss-dev/narrationcast/internal/storage"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// Repository handles conversion-run metadata persistence
type Repository interface {
	// SaveRun stores a run's metadata record
	SaveRun(ctx context.Context, record *types.ConversionRun) error

	// GetRun retrieves a run record by ID
	GetRun(ctx context.Context, runID string) (*types.ConversionRun, error)

	// ListRuns returns all persisted run records, newest first
	ListRuns(ctx context.Context) ([]*types.ConversionRun, error)

	// DeleteRun removes a run record
	DeleteRun(ctx context.Context, runID string) error
}

// StorageRepository implements Repository using a storage adapter
type StorageRepository struct {
	storage storage.Adapter
}

// NewRepository creates a new run repository
func NewRepository(storageAdapter storage.Adapter) Repository {
	return &StorageRepository{storage: storageAdapter}
}

func metadataPath(runID string) string {
	return filepath.Join("runs", runID, "metadata.json")
}

// SaveRun stores a run's metadata record
func (r *StorageRepository) SaveRun(ctx context.Context, record *types.ConversionRun) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}
	return r.storage.Put(ctx, metadataPath(record.ID), bytes.NewReader(data))
}

// GetRun retrieves a run record by ID
func (r *StorageRepository) GetRun(ctx context.Context, runID string) (*types.ConversionRun, error) {
	reader, err := r.storage.Get(ctx, metadataPath(runID))
	if err != nil {
		return nil, fmt.Errorf("failed to get run record: %w", err)
	}
	defer reader.Close()

	var record types.ConversionRun
	if err := json.NewDecoder(reader).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode run record: %w", err)
	}
	return &record, nil
}

// ListRuns returns all persisted run records, newest first
func (r *StorageRepository) ListRuns(ctx context.Context) ([]*types.ConversionRun, error) {
	paths, err := r.storage.List(ctx, "runs/")
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	records := make([]*types.ConversionRun, 0)
	for _, path := range paths {
		if filepath.Base(path) != "metadata.json" {
			continue
		}

		reader, err := r.storage.Get(ctx, path)
		if err != nil {
			continue // Skip runs that can't be read
		}

		var record types.ConversionRun
		if err := json.NewDecoder(reader).Decode(&record); err != nil {
			reader.Close()
			continue
		}
		reader.Close()

		records = append(records, &record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	return records, nil
}

// DeleteRun removes a run record
func (r *StorageRepository) DeleteRun(ctx context.Context, runID string) error {
	return r.storage.Delete(ctx, metadataPath(runID))
}
