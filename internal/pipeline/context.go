// Package pipeline implements the conversion pipeline runner: a fixed,
// cancellable, progress-reporting sequence of eight named steps that turns
// raw text into merged audio files, each step owning a clear boundary for
// cancellation checks and progress reporting.
package pipeline

import (
	"sync"

	"github.com/mvoss-dev/narrationcast/internal/audiomerge"
	"github.com/mvoss-dev/narrationcast/internal/provider"
	"github.com/mvoss-dev/narrationcast/internal/storage"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// RunContext is the single mutable state bus threaded through every step.
// Steps read what earlier steps wrote and write what later steps need;
// nothing outside the runner mutates it concurrently.
type RunContext struct {
	// Inputs, set before Run.
	Text         string
	FileNames    []string // optional chapter boundary names, one per output file
	Pipeline     types.PipelineConfig
	Voices       types.VoiceConfig
	VoiceCatalog []types.Voice

	LLM          provider.LLMClient
	TTSFactory   provider.TTSConnectionFactory
	Storage      storage.Adapter
	AudioBackend audiomerge.AudioBackend

	Progress func(types.ProgressEvent)

	// Derived state, populated as steps run.
	Sentences     []types.Sentence
	Chapters      []chapterSpan
	ExtractBlocks []types.TextBlock
	AssignBlocks  []types.TextBlock
	Cast          []types.Character
	VoiceMap      *types.VoiceMap
	// VoiceMapMu guards VoiceMap.Assignments against the review/swap HTTP
	// handler mutating it concurrently with runSpeakerAssignment's read; the
	// orchestrator exposes swap through this same lock.
	VoiceMapMu  sync.RWMutex
	Assignments []types.SpeakerAssignment
	Tasks       []types.SynthesisTask
	Fragments   map[int]types.AudioFragment
	FileGroups  []types.FileGroup
	MergedFiles []string
}

// chapterSpan is one input chapter's sentence index range, used to derive
// FileGroups once part_index assignment is known.
type chapterSpan struct {
	filename        string
	sentenceStart   int
	sentenceEndIncl int
}

func (rc *RunContext) emit(step types.StepName, completed, total int, message string) {
	if rc.Progress == nil {
		return
	}
	rc.Progress(types.ProgressEvent{Step: step, Completed: completed, Total: total, Message: message})
}
