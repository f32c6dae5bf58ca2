// Package orchestrator is the composition root for conversions: it
// validates preconditions, wires a pipeline.Runner with concrete
// dependencies, owns the single cancellation token for a run, and releases
// resources on every terminal outcome.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mvoss-dev/narrationcast/internal/audiomerge"
	"github.com/mvoss-dev/narrationcast/internal/metrics"
	"github.com/mvoss-dev/narrationcast/internal/pipeline"
	"github.com/mvoss-dev/narrationcast/internal/provider"
	runrepo "github.com/mvoss-dev/narrationcast/internal/run"
	"github.com/mvoss-dev/narrationcast/internal/storage"
	"github.com/mvoss-dev/narrationcast/internal/voiceassign"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// RunRequest carries everything the orchestrator needs to start one
// conversion: the source text, optional chapter file names, and the
// concrete collaborators the pipeline runner will use.
type RunRequest struct {
	BookTitle    string
	Text         string
	FileNames    []string
	Pipeline     types.PipelineConfig
	Voices       types.VoiceConfig
	VoiceCatalog []types.Voice

	LLMProviderName string
	TTSProviderName string
	Providers       *provider.Registry

	Storage      storage.Adapter
	AudioBackend audiomerge.AudioBackend

	Progress func(types.ProgressEvent)
}

// run tracks one in-flight or completed conversion.
type run struct {
	record     types.ConversionRun
	cancelFunc context.CancelFunc
	cancelOnce sync.Once
	mu         sync.Mutex

	// rc is the pipeline's mutable state bus, kept around after Start
	// returns so HTTP handlers can read/swap its VoiceMap (guarded by
	// rc.VoiceMapMu) and so progress history can be replayed for streaming.
	rc *pipeline.RunContext

	progressMu  sync.Mutex
	progressLog []types.ProgressEvent
}

// Orchestrator is the composition root owning every in-flight run. A single
// Orchestrator is shared across concurrent requests; each run gets its own
// cancellation token.
type Orchestrator struct {
	mu   sync.RWMutex
	runs map[string]*run
	repo runrepo.Repository
}

// New builds an empty Orchestrator. repo may be nil, in which case run
// records live only in memory and are lost on process exit.
func New(repo runrepo.Repository) *Orchestrator {
	return &Orchestrator{runs: make(map[string]*run), repo: repo}
}

// Start validates preconditions, constructs the pipeline runner, and begins
// executing it in a background goroutine. It returns the run id immediately;
// call Status or wait on req.Progress for completion, and Cancel to abort.
func (o *Orchestrator) Start(ctx context.Context, req RunRequest) (string, error) {
	if err := validatePreconditions(req); err != nil {
		return "", err
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		record: types.ConversionRun{
			ID:        id,
			BookTitle: req.BookTitle,
			Status:    types.RunPending,
			StartedAt: time.Now(),
		},
		cancelFunc: cancel,
	}

	o.mu.Lock()
	o.runs[id] = r
	o.mu.Unlock()

	llmClient, err := req.Providers.GetLLM(req.LLMProviderName)
	if err != nil {
		cancel()
		return "", types.NewConversionError(types.ErrLLMNotConfigured, "llm provider not found: "+req.LLMProviderName, err)
	}
	ttsFactory, err := req.Providers.GetTTSFactory(req.TTSProviderName)
	if err != nil {
		cancel()
		return "", types.NewConversionError(types.ErrTTSWebsocketFailed, "tts provider not found: "+req.TTSProviderName, err)
	}

	rc := &pipeline.RunContext{
		Text:         req.Text,
		FileNames:    req.FileNames,
		Pipeline:     req.Pipeline,
		Voices:       req.Voices,
		VoiceCatalog: req.VoiceCatalog,
		LLM:          llmClient,
		TTSFactory:   ttsFactory,
		Storage:      req.Storage,
		AudioBackend: req.AudioBackend,
		Progress: func(event types.ProgressEvent) {
			r.mu.Lock()
			r.record.CurrentStep = event.Step
			r.mu.Unlock()
			r.progressMu.Lock()
			r.progressLog = append(r.progressLog, event)
			r.progressMu.Unlock()
			if req.Progress != nil {
				req.Progress(event)
			}
		},
	}
	r.rc = rc

	o.persistRecord(r)
	go o.run(runCtx, r, rc)

	return id, nil
}

// persistRecord writes a run's current record through the repository when
// one is configured. Persistence failures are logged, never fatal: the run
// itself proceeds on the in-memory record.
func (o *Orchestrator) persistRecord(r *run) {
	if o.repo == nil {
		return
	}
	r.mu.Lock()
	record := r.record
	r.mu.Unlock()
	if err := o.repo.SaveRun(context.Background(), &record); err != nil {
		log.Printf("orchestrator: failed to persist run %s: %v", record.ID, err)
	}
}

// run executes the pipeline for one run to a terminal outcome, updating its
// record and releasing resources regardless of how it ends.
func (o *Orchestrator) run(ctx context.Context, r *run, rc *pipeline.RunContext) {
	r.mu.Lock()
	r.record.Status = types.RunRunning
	r.mu.Unlock()
	o.persistRecord(r)
	metrics.RunsActive.Inc()
	defer metrics.RunsActive.Dec()

	err := pipeline.NewRunner().Run(ctx, rc)

	finishedAt := time.Now()
	r.mu.Lock()
	r.record.FinishedAt = &finishedAt
	switch {
	case err == nil:
		r.record.Status = types.RunCompleted
	case types.IsCancelled(err):
		r.record.Status = types.RunCancelled
		r.record.Error = err.Error()
	default:
		r.record.Status = types.RunFailed
		r.record.Error = err.Error()
	}
	terminal := r.record.Status
	r.mu.Unlock()
	o.persistRecord(r)
	metrics.RunsTotal.WithLabelValues(string(terminal)).Inc()

	o.releaseResources(rc, err)
}

// releaseResources closes anything the pipeline opened that outlives the
// run itself. TTS connections are closed by their owning workers as part of
// ttspool's shutdown; this hook exists for storage adapters and any future
// host-level wake/screen locks held for the run's duration.
func (o *Orchestrator) releaseResources(rc *pipeline.RunContext, runErr error) {
	if rc.Storage == nil {
		return
	}
	if err := rc.Storage.Close(); err != nil {
		log.Printf("orchestrator: failed to close storage adapter: %v", err)
	}
	_ = runErr
}

// Cancel requests cooperative cancellation of a run. Idempotent: a second
// call is a no-op, guarded by sync.Once per run.
func (o *Orchestrator) Cancel(runID string) error {
	o.mu.RLock()
	r, ok := o.runs[runID]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no such run: %s", runID)
	}
	r.cancelOnce.Do(r.cancelFunc)
	return nil
}

// Status returns a snapshot of a run's current bookkeeping record, falling
// back to the persisted record for runs started by an earlier process.
func (o *Orchestrator) Status(runID string) (types.ConversionRun, error) {
	o.mu.RLock()
	r, ok := o.runs[runID]
	o.mu.RUnlock()
	if !ok {
		if o.repo != nil {
			if record, err := o.repo.GetRun(context.Background(), runID); err == nil {
				return *record, nil
			}
		}
		return types.ConversionRun{}, fmt.Errorf("no such run: %s", runID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record, nil
}

// ListRuns returns every known run record: the in-memory runs of this
// process, supplemented by persisted records from earlier processes when a
// repository is configured.
func (o *Orchestrator) ListRuns(ctx context.Context) ([]types.ConversionRun, error) {
	o.mu.RLock()
	records := make([]types.ConversionRun, 0, len(o.runs))
	seen := make(map[string]bool, len(o.runs))
	for id, r := range o.runs {
		r.mu.Lock()
		records = append(records, r.record)
		r.mu.Unlock()
		seen[id] = true
	}
	o.mu.RUnlock()

	if o.repo != nil {
		persisted, err := o.repo.ListRuns(ctx)
		if err != nil {
			return nil, err
		}
		for _, record := range persisted {
			if !seen[record.ID] {
				records = append(records, *record)
			}
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	return records, nil
}

// VoiceMap returns a snapshot of a run's character-to-voice assignments for
// the voice review surface. It errors until voice assignment has completed.
func (o *Orchestrator) VoiceMap(runID string) (map[string]string, error) {
	r, err := o.findRun(runID)
	if err != nil {
		return nil, err
	}

	r.rc.VoiceMapMu.RLock()
	defer r.rc.VoiceMapMu.RUnlock()
	if r.rc.VoiceMap == nil {
		return nil, fmt.Errorf("voice map not yet available for run: %s", runID)
	}
	return copyVoiceMap(r.rc.VoiceMap.Assignments), nil
}

// SwapVoice applies voiceassign.Swap to a run's VoiceMap under its lock and
// returns the resulting assignments. Safe to call at any point of the run.
// Speaker assignment resolves voice ids from the map once its LLM pass
// finishes, so only a swap made before then reaches the synthesized audio;
// a later swap (e.g. during TTS conversion) changes the stored map only.
func (o *Orchestrator) SwapVoice(runID, characterName, newVoiceID string) (map[string]string, error) {
	r, err := o.findRun(runID)
	if err != nil {
		return nil, err
	}

	r.rc.VoiceMapMu.Lock()
	defer r.rc.VoiceMapMu.Unlock()
	if r.rc.VoiceMap == nil {
		return nil, fmt.Errorf("voice map not yet available for run: %s", runID)
	}
	voiceassign.Swap(r.rc.VoiceMap, characterName, newVoiceID)
	return copyVoiceMap(r.rc.VoiceMap.Assignments), nil
}

// ProgressEvents replays the progress events recorded for a run so far,
// skipping the first `after` of them. The cursor is a plain event count,
// since ProgressEvent carries no id of its own.
func (o *Orchestrator) ProgressEvents(runID string, after int) ([]types.ProgressEvent, error) {
	r, err := o.findRun(runID)
	if err != nil {
		return nil, err
	}

	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	if after < 0 || after >= len(r.progressLog) {
		return nil, nil
	}
	out := make([]types.ProgressEvent, len(r.progressLog)-after)
	copy(out, r.progressLog[after:])
	return out, nil
}

func copyVoiceMap(assignments map[string]string) map[string]string {
	out := make(map[string]string, len(assignments))
	for k, v := range assignments {
		out[k] = v
	}
	return out
}

func (o *Orchestrator) findRun(runID string) (*run, error) {
	o.mu.RLock()
	r, ok := o.runs[runID]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no such run: %s", runID)
	}
	return r, nil
}

// validatePreconditions checks the preconditions a run must satisfy before
// it is allowed to start: non-empty text, an LLM provider name, and a
// directory capability to write into.
func validatePreconditions(req RunRequest) error {
	if req.Text == "" {
		return types.NewConversionError(types.ErrConversionNoContent, "input text is empty", nil)
	}
	if req.Providers == nil || req.LLMProviderName == "" {
		return types.NewConversionError(types.ErrLLMNotConfigured, "no LLM provider configured for this run", nil)
	}
	if req.Storage == nil {
		return types.NewConversionError(types.ErrFileSystemError, "no directory capability granted for this run", nil)
	}
	return nil
}
