// Package audiomerge groups completed synthesis fragments by destination
// filename, concatenates them in ascending part_index order (splicing PCM
// sample data when every fragment in a group is WAV), applies an optional
// post-merge audio-backend hook, and writes the result through the
// directory capability.
package audiomerge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/mvoss-dev/narrationcast/internal/metrics"
	"github.com/mvoss-dev/narrationcast/internal/storage"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// AudioBackend is the external audio-processing contract: optional silence
// trimming and loudness normalization over the raw concatenated bytes.
type AudioBackend interface {
	// Load reports whether the backend is available; Process is only
	// called when Load returns true.
	Load(ctx context.Context) (bool, error)
	Process(ctx context.Context, chunks []byte, opts ProcessOptions) ([]byte, error)
}

// ProcessOptions carries the two post-merge hooks exposed through voice
// configuration.
type ProcessOptions struct {
	SilenceRemoval bool
	Normalization  bool
}

// Merger concatenates fragments per file group and writes the merged
// containers through a directory capability.
type Merger struct {
	backend AudioBackend
	dir     storage.Adapter
	opts    ProcessOptions
}

// New builds a Merger. backend may be nil, in which case the post-merge hook
// is skipped entirely (silence removal / normalization become no-ops).
func New(backend AudioBackend, dir storage.Adapter, opts ProcessOptions) *Merger {
	return &Merger{backend: backend, dir: dir, opts: opts}
}

// MergeAll groups fragments by file group, orders each group ascending by
// part_index, concatenates, optionally runs the audio backend hook, and
// writes each merged file. It returns the filenames written, in group order.
func (m *Merger) MergeAll(ctx context.Context, fragments map[int]types.AudioFragment, groups []types.FileGroup) ([]string, error) {
	written := make([]string, 0, len(groups))
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return written, types.NewConversionError(types.ErrConversionCancelled, "audio merge cancelled", err)
		}

		merged, err := m.mergeGroup(fragments, group)
		if err != nil {
			return written, err
		}

		processed, err := m.applyBackend(ctx, merged)
		if err != nil {
			return written, err
		}

		if err := m.dir.Put(ctx, group.Filename, bytes.NewReader(processed)); err != nil {
			return written, types.NewConversionError(types.ErrFileSystemError, "failed to write merged file "+group.Filename, err)
		}
		written = append(written, group.Filename)
		metrics.MergedFilesTotal.Inc()
	}
	return written, nil
}

// mergeGroup merges every fragment whose part_index falls in
// [PartIndexStart, PartIndexEnd], in ascending part_index order. When every
// fragment in the group decodes as a WAV container on a shared sample rate
// and channel count, it splices their PCM samples into one re-encoded WAV so
// the result is a single valid container rather than concatenated headers.
// Any fragment that isn't WAV, or a format mismatch between fragments, falls
// back to plain byte concatenation (the shape non-WAV output formats, e.g.
// mp3/opus TTS output, need anyway).
func (m *Merger) mergeGroup(fragments map[int]types.AudioFragment, group types.FileGroup) ([]byte, error) {
	var indices []int
	for idx := group.PartIndexStart; idx <= group.PartIndexEnd; idx++ {
		if _, ok := fragments[idx]; ok {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)

	chunks := make([][]byte, 0, len(indices))
	for _, idx := range indices {
		chunks = append(chunks, fragments[idx].Bytes)
	}

	if spliced, ok := spliceWAVFragments(chunks); ok {
		return spliced, nil
	}

	var buf bytes.Buffer
	for _, c := range chunks {
		buf.Write(c)
	}
	return buf.Bytes(), nil
}

// spliceWAVFragments decodes every fragment as WAV via go-audio/wav, checks
// they share one audio.Format, concatenates their PCM sample data with
// go-audio/audio's IntBuffer, and re-encodes the result as a single WAV file.
// The second return value is false whenever any fragment isn't a valid WAV
// container or the formats disagree, signaling the caller to fall back to
// raw concatenation instead.
func spliceWAVFragments(chunks [][]byte) ([]byte, bool) {
	if len(chunks) == 0 {
		return nil, false
	}

	var format *audio.Format
	var bitDepth int
	var samples []int

	for _, raw := range chunks {
		decoder := wav.NewDecoder(bytes.NewReader(raw))
		if !decoder.IsValidFile() {
			return nil, false
		}
		buf, err := decoder.FullPCMBuffer()
		if err != nil || buf == nil || buf.Format == nil {
			return nil, false
		}
		if format == nil {
			format = buf.Format
			bitDepth = int(decoder.BitDepth)
		} else if buf.Format.NumChannels != format.NumChannels || buf.Format.SampleRate != format.SampleRate {
			return nil, false
		}
		samples = append(samples, buf.Data...)
	}

	out := &memWriteSeeker{}
	encoder := wav.NewEncoder(out, format.SampleRate, bitDepth, format.NumChannels, 1)
	merged := &audio.IntBuffer{Format: format, Data: samples, SourceBitDepth: bitDepth}
	if err := encoder.Write(merged); err != nil {
		return nil, false
	}
	if err := encoder.Close(); err != nil {
		return nil, false
	}
	return out.buf, true
}

// memWriteSeeker is a minimal in-memory io.WriteSeeker, needed because
// wav.Encoder rewrites its header on Close and therefore requires seek
// support rather than a plain io.Writer.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = int64(m.pos) + offset
	case io.SeekEnd:
		newPos = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("memWriteSeeker: invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("memWriteSeeker: negative seek position")
	}
	m.pos = int(newPos)
	return newPos, nil
}

// applyBackend runs the optional post-merge hook when a backend is
// configured, enabled, and at least one of the two processing flags is set.
func (m *Merger) applyBackend(ctx context.Context, merged []byte) ([]byte, error) {
	if m.backend == nil || (!m.opts.SilenceRemoval && !m.opts.Normalization) {
		return merged, nil
	}

	available, err := m.backend.Load(ctx)
	if err != nil {
		return nil, types.NewConversionError(types.ErrAudioLoadFailed, "audio backend failed to load", err)
	}
	if !available {
		return merged, nil
	}

	processed, err := m.backend.Process(ctx, merged, m.opts)
	if err != nil {
		return nil, types.NewConversionError(types.ErrAudioProcessError, "audio backend processing failed", err)
	}
	return processed, nil
}

// WAVDuration reports the duration in seconds of a WAV container, used by
// the pipeline runner to annotate merged-file progress messages. It returns
// 0, nil for non-WAV containers rather than failing the merge.
func WAVDuration(data []byte) (float64, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return 0, nil
	}
	dur, err := decoder.Duration()
	if err != nil {
		return 0, err
	}
	return dur.Seconds(), nil
}
