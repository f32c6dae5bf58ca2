package run

import (
	"context"
	"testing"
	"time"

	"github.com/mvoss-dev/narrationcast/internal/storage"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

func TestRunRepository(t *testing.T) {
	tempDir := t.TempDir()
	storageAdapter, err := storage.NewLocalAdapter(tempDir)
	if err != nil {
		t.Fatalf("Failed to create storage adapter: %v", err)
	}
	defer storageAdapter.Close()

	repo := NewRepository(storageAdapter)
	ctx := context.Background()

	t.Run("SaveAndGetRun", func(t *testing.T) {
		record := &types.ConversionRun{
			ID:        "run_123",
			BookTitle: "Test Book",
			Status:    types.RunRunning,
			StartedAt: time.Now(),
		}

		if err := repo.SaveRun(ctx, record); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}

		retrieved, err := repo.GetRun(ctx, "run_123")
		if err != nil {
			t.Fatalf("Failed to get run: %v", err)
		}
		if retrieved.ID != record.ID {
			t.Errorf("Run ID mismatch: got %s, want %s", retrieved.ID, record.ID)
		}
		if retrieved.Status != types.RunRunning {
			t.Errorf("Run status mismatch: got %s, want %s", retrieved.Status, types.RunRunning)
		}
	})

	t.Run("SaveOverwritesExistingRecord", func(t *testing.T) {
		record := &types.ConversionRun{
			ID:        "run_456",
			BookTitle: "Test Book",
			Status:    types.RunRunning,
			StartedAt: time.Now(),
		}
		if err := repo.SaveRun(ctx, record); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}

		finished := time.Now()
		record.Status = types.RunCompleted
		record.FinishedAt = &finished
		if err := repo.SaveRun(ctx, record); err != nil {
			t.Fatalf("Failed to update run: %v", err)
		}

		retrieved, err := repo.GetRun(ctx, "run_456")
		if err != nil {
			t.Fatalf("Failed to get run: %v", err)
		}
		if retrieved.Status != types.RunCompleted {
			t.Errorf("Run status mismatch: got %s, want %s", retrieved.Status, types.RunCompleted)
		}
		if retrieved.FinishedAt == nil {
			t.Error("Expected FinishedAt to survive the round trip")
		}
	})

	t.Run("ListRunsNewestFirst", func(t *testing.T) {
		older := &types.ConversionRun{
			ID:        "run_older",
			Status:    types.RunCompleted,
			StartedAt: time.Now().Add(-time.Hour),
		}
		newer := &types.ConversionRun{
			ID:        "run_newer",
			Status:    types.RunRunning,
			StartedAt: time.Now(),
		}
		if err := repo.SaveRun(ctx, older); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}
		if err := repo.SaveRun(ctx, newer); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}

		records, err := repo.ListRuns(ctx)
		if err != nil {
			t.Fatalf("Failed to list runs: %v", err)
		}
		if len(records) < 2 {
			t.Fatalf("Expected at least 2 runs, got %d", len(records))
		}
		for i := 1; i < len(records); i++ {
			if records[i].StartedAt.After(records[i-1].StartedAt) {
				t.Errorf("Runs not ordered newest first at index %d", i)
			}
		}
	})

	t.Run("GetMissingRunFails", func(t *testing.T) {
		if _, err := repo.GetRun(ctx, "no-such-run"); err == nil {
			t.Error("Expected error for missing run")
		}
	})

	t.Run("DeleteRun", func(t *testing.T) {
		record := &types.ConversionRun{
			ID:        "run_789",
			Status:    types.RunCompleted,
			StartedAt: time.Now(),
		}
		if err := repo.SaveRun(ctx, record); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}
		if err := repo.DeleteRun(ctx, "run_789"); err != nil {
			t.Fatalf("Failed to delete run: %v", err)
		}
		if _, err := repo.GetRun(ctx, "run_789"); err == nil {
			t.Error("Expected error getting deleted run")
		}
	})
}
