package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/mvoss-dev/narrationcast/internal/metrics"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// step is one named entry in the fixed pipeline sequence. Weight is relative
// progress share; the runner does not normalize it, callers may use it to
// compute an overall percentage across steps.
type step struct {
	name   types.StepName
	weight int
	run    func(ctx context.Context, rc *RunContext) error
}

// Runner executes the fixed, strictly-ordered sequence of pipeline steps.
type Runner struct {
	steps []step
}

// NewRunner builds a Runner with the fixed eight-step conversion sequence.
func NewRunner() *Runner {
	return &Runner{steps: []step{
		{name: types.StepCharacterExtraction, weight: 20, run: runCharacterExtraction},
		{name: types.StepVoiceAssignment, weight: 5, run: runVoiceAssignment},
		{name: types.StepSpeakerAssignment, weight: 20, run: runSpeakerAssignment},
		{name: types.StepTextSanitization, weight: 5, run: runTextSanitization},
		{name: types.StepDictionaryProcessing, weight: 5, run: runDictionaryProcessing},
		{name: types.StepTTSConversion, weight: 35, run: runTTSConversion},
		{name: types.StepAudioMerge, weight: 8, run: runAudioMerge},
		{name: types.StepSave, weight: 2, run: runSave},
	}}
}

// Run executes every step in order, checking cancellation at each step
// boundary. It short-circuits on the first failure: no later step runs.
func (r *Runner) Run(ctx context.Context, rc *RunContext) error {
	if rc.Text == "" {
		return types.NewConversionError(types.ErrConversionNoContent, "input text is empty", nil)
	}

	for _, s := range r.steps {
		if err := ctx.Err(); err != nil {
			return types.NewConversionError(types.ErrConversionCancelled, "pipeline cancelled before step "+string(s.name), err)
		}
		started := time.Now()
		err := s.run(ctx, rc)
		metrics.StepDuration.WithLabelValues(string(s.name)).Observe(time.Since(started).Seconds())
		if err != nil {
			translated := translateStepError(s.name, err)
			metrics.StepErrors.WithLabelValues(string(s.name), string(errorKind(translated))).Inc()
			return translated
		}
	}
	return nil
}

// errorKind extracts the taxonomy kind from a translated step error for
// metrics labeling; translateStepError guarantees err is always a
// *types.ConversionError by this point.
func errorKind(err error) types.ErrorKind {
	if ce, ok := err.(*types.ConversionError); ok {
		return ce.Kind
	}
	return types.ErrUnknown
}

// translateStepError ensures every error leaving the runner is a
// *types.ConversionError, tagging anything else as UNKNOWN_ERROR.
func translateStepError(stepName types.StepName, err error) error {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*types.ConversionError); ok {
		if ce.Context == nil {
			ce.Context = map[string]any{}
		}
		ce.Context["step"] = string(stepName)
		return ce
	}
	return types.NewConversionError(types.ErrUnknown, fmt.Sprintf("step %s failed", stepName), err)
}
