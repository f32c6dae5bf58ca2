package ttspool

import (
	"context"
	"sync"
	"time"

	"github.com/mvoss-dev/narrationcast/internal/metrics"
	"github.com/mvoss-dev/narrationcast/internal/provider"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// worker is one long-lived connection wrapper, implementing the
// idle -> working -> {idle, reconnecting, terminated} state machine.
type worker struct {
	id   int
	conn provider.TTSConnection

	mu              sync.Mutex
	state           types.WorkerState
	currentPart     int
	hasCurrentPart  bool
	attempts        int
}

func newWorker(id int, conn provider.TTSConnection) *worker {
	metrics.TTSWorkersByState.WithLabelValues(string(types.WorkerIdle)).Inc()
	return &worker{id: id, conn: conn, state: types.WorkerIdle}
}

func (w *worker) State() types.WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// setState transitions the worker's state and keeps the pool-wide
// per-state gauge in sync: decrement the old state's count, increment the
// new one's. Called only from goroutines owning this worker, so the two
// gauge updates never race against a concurrent transition of the same
// worker (they may race harmlessly against other workers' updates).
func (w *worker) setState(s types.WorkerState) {
	w.mu.Lock()
	prev := w.state
	w.state = s
	w.mu.Unlock()
	if prev == s {
		return
	}
	metrics.TTSWorkersByState.WithLabelValues(string(prev)).Dec()
	metrics.TTSWorkersByState.WithLabelValues(string(s)).Inc()
	if s == types.WorkerReconnecting {
		metrics.TTSReconnectsTotal.Inc()
	}
}

// run drains queue until it closes or ctx is cancelled, emitting exactly one
// fragment per completed task onto fragments, and at most one fatal error
// (for a non-retriable failure) onto fatalErr before returning.
func (w *worker) run(ctx context.Context, queue <-chan types.SynthesisTask, fragments chan<- types.AudioFragment, fatalErr chan<- error, onPlateau func()) {
	defer func() {
		w.setState(types.WorkerTerminated)
		w.conn.Close()
	}()

	if err := w.conn.Open(ctx); err != nil {
		w.setState(types.WorkerReconnecting)
	}

	for {
		var task types.SynthesisTask
		var ok bool
		select {
		case <-ctx.Done():
			return
		case task, ok = <-queue:
			if !ok {
				return
			}
		}

		if !w.processTask(ctx, task, fragments, fatalErr, onPlateau) {
			return
		}
	}
}

// processTask drives one task through send/retry/reconnect until it
// succeeds, fatally fails, or ctx is cancelled. Returns false when the
// worker should stop entirely (cancellation or fatal error).
func (w *worker) processTask(ctx context.Context, task types.SynthesisTask, fragments chan<- types.AudioFragment, fatalErr chan<- error, onPlateau func()) bool {
	w.setState(types.WorkerWorking)
	w.mu.Lock()
	w.currentPart = task.PartIndex
	w.hasCurrentPart = true
	w.attempts = 0
	w.mu.Unlock()

	attempt := 0
	for {
		frag, err := w.conn.Send(ctx, task)
		if err == nil {
			w.setState(types.WorkerIdle)
			w.mu.Lock()
			w.hasCurrentPart = false
			w.mu.Unlock()
			select {
			case fragments <- *frag:
			case <-ctx.Done():
				return false
			}
			return true
		}

		if types.IsCancelled(err) {
			w.setState(types.WorkerTerminated)
			return false
		}

		if ce, ok := err.(*types.ConversionError); ok && !types.Retriable(ce.Kind) {
			// Non-retriable failures (invalid voice id, malformed task) are
			// programmer errors: fail the whole pipeline immediately rather
			// than retrying forever.
			select {
			case fatalErr <- err:
			default:
			}
			return false
		}

		w.setState(types.WorkerReconnecting)
		delay := infiniteStrategy.DelayFor(attempt)
		if delay >= ttsPlateau && onPlateau != nil {
			onPlateau()
		}
		if !w.sleepCancellable(ctx, delay) {
			w.setState(types.WorkerTerminated)
			return false
		}

		w.conn.Close()
		if openErr := w.conn.Open(ctx); openErr != nil {
			// Still down; loop back into the same backoff schedule rather
			// than giving up, per the infinite-retry contract.
			attempt++
			w.mu.Lock()
			w.attempts = attempt
			w.mu.Unlock()
			continue
		}

		w.setState(types.WorkerWorking)
		attempt++
		w.mu.Lock()
		w.attempts = attempt
		w.mu.Unlock()
		// Loop back and retry the SAME task on the freshly-opened connection.
	}
}

// sleepCancellable sleeps for d or returns false immediately if ctx is
// cancelled first.
func (w *worker) sleepCancellable(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
