package orchestrator

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mvoss-dev/narrationcast/internal/provider"
	runrepo "github.com/mvoss-dev/narrationcast/internal/run"
	"github.com/mvoss-dev/narrationcast/internal/storage"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStorage() *memStorage { return &memStorage{files: make(map[string][]byte)} }

func (m *memStorage) Put(ctx context.Context, path string, data io.Reader) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = b
	return nil
}
func (m *memStorage) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return io.NopCloser(bytes.NewReader(m.files[path])), nil
}
func (m *memStorage) Delete(ctx context.Context, path string) error { return nil }
func (m *memStorage) Exists(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok, nil
}
func (m *memStorage) List(ctx context.Context, prefix string) ([]string, error) { return nil, nil }
func (m *memStorage) Close() error                                              { return nil }

func fakeCatalog() []types.Voice {
	return []types.Voice{
		{FullValue: "en-US-narrator", Gender: types.GenderUnknown},
		{FullValue: "en-US-m1", Gender: types.GenderMale},
		{FullValue: "en-US-m2", Gender: types.GenderMale},
		{FullValue: "en-US-f1", Gender: types.GenderFemale},
		{FullValue: "en-US-f2", Gender: types.GenderFemale},
	}
}

func newRegistry(t *testing.T) *provider.Registry {
	t.Helper()
	reg := provider.NewRegistry()
	if err := reg.RegisterLLM(provider.NewStubLLMClient(types.LLMProviderConfig{Name: "stub-llm"})); err != nil {
		t.Fatalf("register llm: %v", err)
	}
	factory := provider.TTSConnectionFactory(func() (provider.TTSConnection, error) {
		return provider.NewStubTTSConnection(types.TTSProviderConfig{}), nil
	})
	if err := reg.RegisterTTS("stub-tts", factory); err != nil {
		t.Fatalf("register tts: %v", err)
	}
	return reg
}

func baseRequest(t *testing.T) RunRequest {
	return RunRequest{
		BookTitle:       "Test Book",
		Text:            "Someone spoke softly. The room was quiet.",
		Pipeline:        types.PipelineConfig{LLMThreads: 2, TTSThreads: 2, ExtractBudget: 16000, AssignBudget: 8000},
		Voices:          types.VoiceConfig{NarratorVoice: "en-US-narrator", EnabledVoices: []string{"en-US-narrator", "en-US-m1", "en-US-m2", "en-US-f1", "en-US-f2"}, OutputFormat: "mp3"},
		VoiceCatalog:    fakeCatalog(),
		LLMProviderName: "stub-llm",
		TTSProviderName: "stub-tts",
		Providers:       newRegistry(t),
		Storage:         newMemStorage(),
	}
}

func waitForTerminal(t *testing.T, o *Orchestrator, id string) types.ConversionRun {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := o.Status(id)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if rec.Status == types.RunCompleted || rec.Status == types.RunFailed || rec.Status == types.RunCancelled {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run did not reach a terminal state in time")
	return types.ConversionRun{}
}

func TestStartRunsToCompletion(t *testing.T) {
	o := New(nil)
	id, err := o.Start(context.Background(), baseRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := waitForTerminal(t, o, id)
	if rec.Status != types.RunCompleted {
		t.Fatalf("expected completed, got %s (%s)", rec.Status, rec.Error)
	}
	if rec.FinishedAt == nil {
		t.Fatal("expected FinishedAt to be set")
	}
}

func TestStartRejectsEmptyText(t *testing.T) {
	o := New(nil)
	req := baseRequest(t)
	req.Text = ""
	_, err := o.Start(context.Background(), req)
	ce, ok := err.(*types.ConversionError)
	if !ok || ce.Kind != types.ErrConversionNoContent {
		t.Fatalf("expected CONVERSION_NO_CONTENT, got %v", err)
	}
}

func TestStartRejectsMissingStorage(t *testing.T) {
	o := New(nil)
	req := baseRequest(t)
	req.Storage = nil
	_, err := o.Start(context.Background(), req)
	ce, ok := err.(*types.ConversionError)
	if !ok || ce.Kind != types.ErrFileSystemError {
		t.Fatalf("expected FILE_SYSTEM_ERROR, got %v", err)
	}
}

func TestStartRejectsUnknownLLMProvider(t *testing.T) {
	o := New(nil)
	req := baseRequest(t)
	req.LLMProviderName = "does-not-exist"
	_, err := o.Start(context.Background(), req)
	if err == nil {
		t.Fatal("expected error for unknown LLM provider")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	o := New(nil)
	id, err := o.Start(context.Background(), baseRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := o.Cancel(id); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if err := o.Cancel(id); err != nil {
		t.Fatalf("second cancel should be a no-op, got: %v", err)
	}

	rec := waitForTerminal(t, o, id)
	if rec.Status != types.RunCancelled && rec.Status != types.RunCompleted {
		t.Fatalf("expected cancelled or a completion that raced ahead of cancellation, got %s", rec.Status)
	}
}

func TestCancelUnknownRunReturnsError(t *testing.T) {
	o := New(nil)
	if err := o.Cancel("no-such-run"); err == nil {
		t.Fatal("expected error cancelling an unknown run")
	}
}

func TestVoiceMapAndSwapVoice(t *testing.T) {
	o := New(nil)
	id, err := o.Start(context.Background(), baseRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := waitForTerminal(t, o, id)
	if rec.Status != types.RunCompleted {
		t.Fatalf("expected completed, got %s (%s)", rec.Status, rec.Error)
	}

	assignments, err := o.VoiceMap(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assignments[types.ReservedNarrator] != "en-US-narrator" {
		t.Fatalf("expected Narrator assigned en-US-narrator, got %+v", assignments)
	}

	swapped, err := o.SwapVoice(id, types.ReservedNarrator, "en-US-m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if swapped[types.ReservedNarrator] != "en-US-m1" {
		t.Fatalf("expected Narrator swapped to en-US-m1, got %+v", swapped)
	}
}

func TestVoiceMapUnknownRunReturnsError(t *testing.T) {
	o := New(nil)
	if _, err := o.VoiceMap("no-such-run"); err == nil {
		t.Fatal("expected error for unknown run")
	}
	if _, err := o.SwapVoice("no-such-run", "Narrator", "en-US-m1"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestProgressEventsReplaysFromCursor(t *testing.T) {
	o := New(nil)
	id, err := o.Start(context.Background(), baseRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitForTerminal(t, o, id)

	all, err := o.ProgressEvents(id, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) == 0 {
		t.Fatal("expected at least one recorded progress event")
	}

	rest, err := o.ProgressEvents(id, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rest) != len(all)-1 {
		t.Fatalf("expected cursor 1 to skip exactly one event, got %d of %d", len(rest), len(all))
	}

	none, err := o.ProgressEvents(id, len(all))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no events past the end, got %d", len(none))
	}
}

func TestStartPersistsRunRecordThroughRepository(t *testing.T) {
	store, err := storage.NewLocalAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("storage adapter: %v", err)
	}
	repo := runrepo.NewRepository(store)

	o := New(repo)
	req := baseRequest(t)
	id, err := o.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitForTerminal(t, o, id)

	persisted, err := repo.GetRun(context.Background(), id)
	if err != nil {
		t.Fatalf("expected run record persisted, got: %v", err)
	}
	if persisted.Status != types.RunCompleted {
		t.Fatalf("expected persisted status completed, got %s", persisted.Status)
	}
	if persisted.BookTitle != "Test Book" {
		t.Fatalf("expected persisted book title, got %q", persisted.BookTitle)
	}
}

func TestStatusFallsBackToPersistedRecord(t *testing.T) {
	store, err := storage.NewLocalAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("storage adapter: %v", err)
	}
	repo := runrepo.NewRepository(store)

	record := types.ConversionRun{ID: "earlier-process-run", Status: types.RunCompleted, StartedAt: time.Now()}
	if err := repo.SaveRun(context.Background(), &record); err != nil {
		t.Fatalf("save run: %v", err)
	}

	o := New(repo)
	rec, err := o.Status("earlier-process-run")
	if err != nil {
		t.Fatalf("expected status from persisted record, got: %v", err)
	}
	if rec.Status != types.RunCompleted {
		t.Fatalf("expected completed, got %s", rec.Status)
	}
}

func TestListRunsMergesMemoryAndPersisted(t *testing.T) {
	store, err := storage.NewLocalAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("storage adapter: %v", err)
	}
	repo := runrepo.NewRepository(store)

	stale := types.ConversionRun{ID: "stale-run", Status: types.RunFailed, StartedAt: time.Now().Add(-time.Hour)}
	if err := repo.SaveRun(context.Background(), &stale); err != nil {
		t.Fatalf("save run: %v", err)
	}

	o := New(repo)
	id, err := o.Start(context.Background(), baseRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitForTerminal(t, o, id)

	records, err := o.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	byID := make(map[string]types.RunStatus, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec.Status
	}
	if byID["stale-run"] != types.RunFailed {
		t.Fatalf("expected persisted stale-run in listing, got %+v", byID)
	}
	if byID[id] != types.RunCompleted {
		t.Fatalf("expected in-memory run in listing, got %+v", byID)
	}
}
