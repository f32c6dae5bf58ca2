package pipeline

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/mvoss-dev/narrationcast/internal/audiomerge"
	"github.com/mvoss-dev/narrationcast/internal/character"
	"github.com/mvoss-dev/narrationcast/internal/llmpass"
	"github.com/mvoss-dev/narrationcast/internal/splitter"
	"github.com/mvoss-dev/narrationcast/internal/storage"
	"github.com/mvoss-dev/narrationcast/internal/ttspool"
	"github.com/mvoss-dev/narrationcast/internal/voiceassign"
	"github.com/mvoss-dev/narrationcast/internal/voicepool"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// ChapterDelimiter separates chapters in the input text passed to the
// runner. Callers that parse source files into discrete chapters (see
// internal/parser) join them with this delimiter before starting a run.
const ChapterDelimiter = "\f"

const chapterDelimiter = ChapterDelimiter

const (
	defaultExtractBudget = 16000
	defaultAssignBudget  = 8000
)

// runCharacterExtraction splits the input into chapters and sentences,
// packs extraction blocks, runs the LLM extract pass over every block and
// aggregates the results into the canonical cast.
func runCharacterExtraction(ctx context.Context, rc *RunContext) error {
	rc.Chapters = splitChapters(rc.Text, rc.FileNames, rc.Voices.OutputFormat)

	var allSentences []types.Sentence
	for i := range rc.Chapters {
		chapterSentences := splitter.Split(chapterText(rc.Text, rc.FileNames, i))
		start := len(allSentences)
		for _, s := range chapterSentences {
			allSentences = append(allSentences, types.Sentence{Index: len(allSentences), Text: s.Text})
		}
		rc.Chapters[i].sentenceStart = start
		rc.Chapters[i].sentenceEndIncl = len(allSentences) - 1
	}
	rc.Sentences = allSentences

	budget := rc.Pipeline.ExtractBudget
	if budget <= 0 {
		budget = defaultExtractBudget
	}
	rc.ExtractBlocks = splitter.PackBlocks(rc.Sentences, budget)

	if rc.LLM == nil {
		return types.NewConversionError(types.ErrLLMNotConfigured, "no LLM client configured for character extraction", nil)
	}

	runner := llmpass.New(rc.LLM, rc.Pipeline.LLMThreads)
	perBlock, err := runner.Extract(ctx, rc.ExtractBlocks, nil, func(completed, total int) {
		rc.emit(types.StepCharacterExtraction, completed, total, "")
	})
	if err != nil {
		return err
	}

	rc.Cast = character.Aggregate(perBlock)
	return nil
}

// runVoiceAssignment builds the voice pool from the enabled catalog and
// assigns one voice to every cast member.
func runVoiceAssignment(ctx context.Context, rc *RunContext) error {
	pool := voicepool.New(rc.VoiceCatalog, rc.Voices.EnabledVoices)
	voiceMap, err := voiceassign.Assign(rc.Cast, rc.Voices.NarratorVoice, pool)
	if err != nil {
		return err
	}
	rc.VoiceMap = voiceMap
	rc.emit(types.StepVoiceAssignment, 1, 1, fmt.Sprintf("assigned voices for %d characters", len(rc.Cast)))
	return nil
}

// runSpeakerAssignment packs assignment blocks against the resolved cast
// and runs the LLM assign pass to resolve a speaker for every sentence.
func runSpeakerAssignment(ctx context.Context, rc *RunContext) error {
	budget := rc.Pipeline.AssignBudget
	if budget <= 0 {
		budget = defaultAssignBudget
	}
	rc.AssignBlocks = splitter.PackBlocks(rc.Sentences, budget)

	runner := llmpass.New(rc.LLM, rc.Pipeline.LLMThreads)
	assignments, err := runner.Assign(ctx, rc.AssignBlocks, rc.Cast, func(completed, total int) {
		rc.emit(types.StepSpeakerAssignment, completed, total, "")
	})
	if err != nil {
		return err
	}

	sort.Slice(assignments, func(i, j int) bool { return assignments[i].SentenceIndex < assignments[j].SentenceIndex })
	rc.VoiceMapMu.RLock()
	for i := range assignments {
		voiceID, ok := rc.VoiceMap.Assignments[assignments[i].SpeakerCanonicalName]
		if !ok {
			rc.VoiceMapMu.RUnlock()
			return types.NewConversionError(types.ErrInsufficientVoices, "no voice mapped for speaker "+assignments[i].SpeakerCanonicalName, nil)
		}
		assignments[i].VoiceID = voiceID
	}
	rc.VoiceMapMu.RUnlock()
	rc.Assignments = assignments
	return nil
}

var controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
var multiSpace = regexp.MustCompile(`[ \t]+`)

// runTextSanitization strips control characters and collapses whitespace
// runs in every sentence about to be synthesized, leaving sentence_index
// and ordering untouched.
func runTextSanitization(ctx context.Context, rc *RunContext) error {
	for i, s := range rc.Sentences {
		if err := ctx.Err(); err != nil {
			return types.NewConversionError(types.ErrConversionCancelled, "sanitization cancelled", err)
		}
		clean := controlChars.ReplaceAllString(s.Text, "")
		clean = multiSpace.ReplaceAllString(clean, " ")
		rc.Sentences[i].Text = strings.TrimSpace(clean)
	}
	return nil
}

// runDictionaryProcessing applies configured pronunciation substitutions
// (case-sensitive substring replacement, not limited to whole words) before
// synthesis. With no dictionary configured this is a no-op pass-through.
func runDictionaryProcessing(ctx context.Context, rc *RunContext) error {
	dict := rc.Pipeline.PronunciationDictionary
	if len(dict) == 0 {
		return nil
	}
	for i, s := range rc.Sentences {
		text := s.Text
		for from, to := range dict {
			text = strings.ReplaceAll(text, from, to)
		}
		rc.Sentences[i].Text = text
	}
	return nil
}

// runTTSConversion builds one SynthesisTask per speaker assignment, in
// sentence_index order (part_index is this dense ordering), dispatches them
// through the TTS worker pool, and stores the resulting fragments.
func runTTSConversion(ctx context.Context, rc *RunContext) error {
	textBySentence := make(map[int]string, len(rc.Sentences))
	for _, s := range rc.Sentences {
		textBySentence[s.Index] = s.Text
	}

	tasks := make([]types.SynthesisTask, 0, len(rc.Assignments))
	for i, a := range rc.Assignments {
		tasks = append(tasks, types.SynthesisTask{
			PartIndex: i,
			Text:      textBySentence[a.SentenceIndex],
			VoiceID:   a.VoiceID,
			Rate:      rc.Voices.Rate,
			Pitch:     rc.Voices.Pitch,
		})
	}
	rc.Tasks = tasks

	if rc.TTSFactory == nil {
		return types.NewConversionError(types.ErrTTSWebsocketFailed, "no TTS connection factory configured", nil)
	}

	workers := rc.Pipeline.TTSThreads
	pool := ttspool.New(rc.TTSFactory, workers, len(tasks), func(event types.ProgressEvent) {
		rc.emit(types.StepTTSConversion, 0, len(tasks), event.Message)
	})

	fragments, err := pool.Run(ctx, tasks)
	rc.Fragments = fragments
	if err != nil {
		return err
	}
	rc.emit(types.StepTTSConversion, len(fragments), len(tasks), "")
	return nil
}

// runAudioMerge derives file groups from the chapter spans discovered
// during extraction (now translated into a part_index range via the
// sentence-index-to-part_index identity established by runTTSConversion)
// and hands off to the audiomerge package; the actual grouping/writing
// happens in runSave once a storage adapter and backend are known, so this
// step only computes FileGroups.
func runAudioMerge(ctx context.Context, rc *RunContext) error {
	groups := make([]types.FileGroup, 0, len(rc.Chapters))
	for _, ch := range rc.Chapters {
		groups = append(groups, types.FileGroup{
			Filename:       ch.filename,
			PartIndexStart: ch.sentenceStart,
			PartIndexEnd:   ch.sentenceEndIncl,
		})
	}
	rc.FileGroups = groups
	rc.emit(types.StepAudioMerge, 0, len(groups), fmt.Sprintf("grouped into %d output files", len(groups)))
	return nil
}

// runSave writes the merged files through the directory capability via the
// audiomerge package, which owns both concatenation and the backend hook.
func runSave(ctx context.Context, rc *RunContext) error {
	merger := audiomerge.New(rc.AudioBackend, rc.Storage, audiomerge.ProcessOptions{
		SilenceRemoval: rc.Voices.SilenceRemoval,
		Normalization:  rc.Voices.Normalization,
	})
	written, err := merger.MergeAll(ctx, rc.Fragments, rc.FileGroups)
	rc.MergedFiles = written
	if err != nil {
		return err
	}
	for i, name := range written {
		rc.emit(types.StepSave, i+1, len(written), "wrote "+name+mergedDurationSuffix(ctx, rc.Storage, name))
	}
	return nil
}

// mergedDurationSuffix re-reads the just-written file and annotates the
// progress message with its duration when it decodes as WAV; any other
// output format (mp3/opus) or read failure yields no suffix.
func mergedDurationSuffix(ctx context.Context, store storage.Adapter, name string) string {
	if store == nil {
		return ""
	}
	reader, err := store.Get(ctx, name)
	if err != nil {
		return ""
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return ""
	}

	duration, err := audiomerge.WAVDuration(data)
	if err != nil || duration <= 0 {
		return ""
	}
	return fmt.Sprintf(" (%.1fs)", duration)
}

// splitChapters derives chapter boundaries from the chapterDelimiter
// character. When fileNames doesn't match the delimiter-implied chapter
// count, the whole text is treated as a single output file (see DESIGN.md
// for the reasoning behind that fallback).
func splitChapters(text string, fileNames []string, outputFormat string) []chapterSpan {
	parts := strings.Split(text, chapterDelimiter)
	if len(fileNames) == 0 || len(fileNames) != len(parts) {
		format := outputFormat
		if format == "" {
			format = "mp3"
		}
		name := "output." + format
		if len(fileNames) == 1 {
			name = fileNames[0]
		}
		return []chapterSpan{{filename: name}}
	}
	spans := make([]chapterSpan, len(fileNames))
	for i, name := range fileNames {
		spans[i] = chapterSpan{filename: name}
	}
	return spans
}

// chapterText returns the i'th chapter's raw text, consistent with
// splitChapters' decision about whether the text was actually split.
func chapterText(text string, fileNames []string, i int) string {
	parts := strings.Split(text, chapterDelimiter)
	if len(fileNames) == 0 || len(fileNames) != len(parts) {
		return text
	}
	return parts[i]
}
