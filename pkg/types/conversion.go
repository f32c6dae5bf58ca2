package types

import "time"

// Sentence is a pronounceable text unit with a stable index within a conversion.
// Immutable once produced by the block splitter.
type Sentence struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// TextBlock is an ordered group of contiguous sentences submitted together
// to an LLM call. Blocks partition the sentence sequence.
type TextBlock struct {
	BlockIndex         int        `json:"block_index"`
	SentenceStartIndex int        `json:"sentence_start_index"`
	Sentences          []Sentence `json:"sentences"`
}

// Gender is the constrained vocabulary used by Character and Voice.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// ReservedNarrator and ReservedSystem are canonical names that are always
// present in a cast, injected by the character aggregator if absent.
const (
	ReservedNarrator = "Narrator"
	ReservedSystem   = "System"
)

// Character is one cast member as produced by the character aggregator.
type Character struct {
	CanonicalName string   `json:"canonical_name"`
	Variations    []string `json:"variations"`
	Gender        Gender   `json:"gender"`
}

// Voice is one TTS voice available for assignment.
type Voice struct {
	FullValue string `json:"full_value"` // wire identifier
	Locale    string `json:"locale"`
	Gender    Gender `json:"gender"` // GenderUnknown for multilingual/wildcard voices
	Name      string `json:"name"`
}

// VoiceMap is a total function from canonical character name to voice
// full_value. Built once before TTS; after that only the review/swap
// operation changes it, under the run's VoiceMapMu.
type VoiceMap struct {
	Assignments map[string]string `json:"assignments"`
}

// SpeakerAssignment pairs a sentence with its resolved speaker and voice.
type SpeakerAssignment struct {
	SentenceIndex        int    `json:"sentence_index"`
	SpeakerCanonicalName string `json:"speaker_canonical_name"`
	VoiceID              string `json:"voice_id"`
}

// SynthesisTask is one unit of TTS work, created by the pipeline runner from
// a SpeakerAssignment and enqueued into the TTS worker pool.
type SynthesisTask struct {
	PartIndex int    `json:"part_index"`
	Text      string `json:"text"`
	VoiceID   string `json:"voice_id"`
	Rate      int    `json:"rate"`
	Pitch     int    `json:"pitch"`
}

// AudioFragment is the resolved output of one SynthesisTask.
type AudioFragment struct {
	PartIndex int    `json:"part_index"`
	Bytes     []byte `json:"-"`
	Filename  string `json:"filename"`
}

// WorkerState is the state machine position of one TTS worker.
type WorkerState string

const (
	WorkerIdle         WorkerState = "idle"
	WorkerWorking      WorkerState = "working"
	WorkerReconnecting WorkerState = "reconnecting"
	WorkerTerminated   WorkerState = "terminated"
)

// FileGroup is a contiguous range of part_index values sharing a destination
// filename, derived from input chapter boundaries.
type FileGroup struct {
	Filename       string `json:"filename"`
	PartIndexStart int    `json:"part_index_start"`
	PartIndexEnd   int    `json:"part_index_end"` // inclusive
}

// StepName identifies one of the eight fixed pipeline runner steps.
type StepName string

const (
	StepCharacterExtraction StepName = "character_extraction"
	StepVoiceAssignment     StepName = "voice_assignment"
	StepSpeakerAssignment   StepName = "speaker_assignment"
	StepTextSanitization    StepName = "text_sanitization"
	StepDictionaryProcessing StepName = "dictionary_processing"
	StepTTSConversion       StepName = "tts_conversion"
	StepAudioMerge          StepName = "audio_merge"
	StepSave                StepName = "save"
)

// PipelineSteps is the fixed, strictly-ordered sequence executed by the
// pipeline runner.
var PipelineSteps = []StepName{
	StepCharacterExtraction,
	StepVoiceAssignment,
	StepSpeakerAssignment,
	StepTextSanitization,
	StepDictionaryProcessing,
	StepTTSConversion,
	StepAudioMerge,
	StepSave,
}

// ProgressEvent is emitted through the injected progress callback as a
// pipeline step advances.
type ProgressEvent struct {
	Step      StepName `json:"step"`
	Completed int      `json:"completed"`
	Total     int      `json:"total"`
	Message   string   `json:"message,omitempty"`
}

// RunStatus is the lifecycle state of a ConversionRun.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCancelled RunStatus = "cancelled"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ConversionRun is the persisted bookkeeping record for one run() invocation.
type ConversionRun struct {
	ID          string     `json:"id"`
	BookTitle   string     `json:"book_title"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	CurrentStep StepName   `json:"current_step,omitempty"`
}
