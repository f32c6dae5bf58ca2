// Package ttspool implements the TTS worker pool: N long-lived streaming
// connections dispatching synthesis tasks from a bounded queue, with
// per-worker health recovery driven by the infinite retry strategy.
package ttspool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mvoss-dev/narrationcast/internal/metrics"
	"github.com/mvoss-dev/narrationcast/internal/provider"
	"github.com/mvoss-dev/narrationcast/internal/retry"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// DefaultWorkers and MaxWorkers bound the pool size to the ttsThreads range
// (1..30), defaulting to 15.
const (
	DefaultWorkers = 15
	MaxWorkers     = 30
)

// ProgressFunc receives pool-level progress and warning events.
type ProgressFunc func(event types.ProgressEvent)

// Pool owns N long-lived TTS connections and dispatches SynthesisTasks to
// them in queue order. Completion order is unconstrained; callers reorder
// by PartIndex.
type Pool struct {
	factory  provider.TTSConnectionFactory
	workers  int
	progress ProgressFunc
}

// New builds a pool. workers is clamped to [1, MaxWorkers] and further
// clamped to pendingTasks (N = min(ttsThreads, pending_tasks)) when
// pendingTasks > 0, so a short run never opens more connections than it
// has work for.
func New(factory provider.TTSConnectionFactory, workers, pendingTasks int, progress ProgressFunc) *Pool {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	if pendingTasks > 0 && workers > pendingTasks {
		workers = pendingTasks
	}
	return &Pool{factory: factory, workers: workers, progress: progress}
}

// Run dispatches every task, in order, across the worker pool and blocks
// until all tasks have produced a fragment, a non-retriable error occurs, or
// ctx is cancelled. On cancellation, pending queue entries are discarded and
// in-flight sends are aborted; already-collected fragments are returned
// alongside the cancellation error so a caller can inspect partial progress.
func (p *Pool) Run(ctx context.Context, tasks []types.SynthesisTask) (map[int]types.AudioFragment, error) {
	results := make(map[int]types.AudioFragment, len(tasks))
	if len(tasks) == 0 {
		return results, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan types.SynthesisTask, p.workers*4)
	fragments := make(chan types.AudioFragment, len(tasks))
	fatalErr := make(chan error, 1)

	workers := make([]*worker, p.workers)
	for i := 0; i < p.workers; i++ {
		conn, err := p.factory()
		if err != nil {
			cancel()
			for _, w := range workers[:i] {
				w.conn.Close()
			}
			return results, types.NewConversionError(types.ErrTTSWebsocketFailed, "failed to construct tts connection", err)
		}
		workers[i] = newWorker(i, conn)
	}

	// Workers are fully constructed before any goroutine starts so the
	// plateau check below can safely range over the whole slice from the
	// first worker's very first reconnect attempt.
	onPlateau := p.onAllReconnectingAtPlateau(workers)
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			w.run(runCtx, queue, fragments, fatalErr, onPlateau)
		}(w)
	}

	go func() {
		defer close(queue)
		for _, task := range tasks {
			select {
			case queue <- task:
			case <-runCtx.Done():
				return
			}
		}
	}()

	var finalErr error
collect:
	for len(results) < len(tasks) {
		select {
		case frag := <-fragments:
			results[frag.PartIndex] = frag
			metrics.TTSFragmentsTotal.Inc()
		case err := <-fatalErr:
			finalErr = err
			cancel()
			break collect
		case <-ctx.Done():
			finalErr = types.NewConversionError(types.ErrConversionCancelled, "tts pool cancelled", ctx.Err())
			cancel()
			break collect
		}
	}

	cancel()
	wg.Wait()

	// Drain any fragments that landed after the collect loop exited (the
	// in-flight tasks that were allowed to finish before workers saw
	// cancellation) so callers get every fragment actually produced.
	for {
		select {
		case frag := <-fragments:
			results[frag.PartIndex] = frag
			metrics.TTSFragmentsTotal.Inc()
			continue
		default:
		}
		break
	}

	return results, finalErr
}

// onAllReconnectingAtPlateau returns a callback a worker invokes whenever
// its own reconnect delay reaches the infinite strategy's 10-minute cap; if
// every worker is simultaneously at that plateau, it emits a single warning
// progress event so the caller can surface a health-recovery signal.
func (p *Pool) onAllReconnectingAtPlateau(workers []*worker) func() {
	var warned int32
	return func() {
		if p.progress == nil {
			return
		}
		for _, w := range workers {
			if w.State() != types.WorkerReconnecting {
				return
			}
		}
		if atomic.CompareAndSwapInt32(&warned, 0, 1) {
			metrics.TTSPlateauWarnings.Inc()
			p.progress(types.ProgressEvent{
				Step:    types.StepTTSConversion,
				Message: "all tts workers are reconnecting and have reached the maximum backoff plateau; continuing to retry",
			})
		}
	}
}

// infiniteStrategy is shared read-only across workers; Infinite carries no
// mutable state, so one instance is safe to reuse. Tests may substitute a
// zero-delay retry.Strategy to avoid sleeping through the real schedule.
var infiniteStrategy retry.Strategy = retry.NewTTSInfinite()

// ttsPlateau is the delay at which the infinite TTS schedule caps out;
// reconnect delays at or above this are reported as the plateau for the
// all-workers-reconnecting health-recovery warning.
const ttsPlateau = 10 * time.Minute
