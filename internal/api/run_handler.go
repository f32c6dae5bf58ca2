package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/mvoss-dev/narrationcast/internal/audiomerge"
	"github.com/mvoss-dev/narrationcast/internal/orchestrator"
	"github.com/mvoss-dev/narrationcast/internal/parser"
	"github.com/mvoss-dev/narrationcast/internal/pipeline"
	"github.com/mvoss-dev/narrationcast/internal/provider"
	"github.com/mvoss-dev/narrationcast/internal/storage"
	"github.com/mvoss-dev/narrationcast/internal/util"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// RunHandler exposes the conversion orchestrator over HTTP: start a
// run, poll its status, and request cancellation.
type RunHandler struct {
	orch         *orchestrator.Orchestrator
	parsers      parser.Factory
	providers    *provider.Registry
	storage      storage.Adapter
	audioBackend audiomerge.AudioBackend
	voiceCatalog []types.Voice
	pipelineCfg  types.PipelineConfig
}

// NewRunHandler builds a handler bound to one orchestrator and its shared
// collaborators. voiceCatalog and pipelineCfg seed per-run defaults that a
// request body may override.
func NewRunHandler(
	orch *orchestrator.Orchestrator,
	parsers parser.Factory,
	providers *provider.Registry,
	storageAdapter storage.Adapter,
	audioBackend audiomerge.AudioBackend,
	voiceCatalog []types.Voice,
	pipelineCfg types.PipelineConfig,
) *RunHandler {
	return &RunHandler{
		orch:         orch,
		parsers:      parsers,
		providers:    providers,
		storage:      storageAdapter,
		audioBackend: audioBackend,
		voiceCatalog: voiceCatalog,
		pipelineCfg:  pipelineCfg,
	}
}

// startRunRequest is the JSON body accepted by POST /api/v1/conversions.
type startRunRequest struct {
	BookTitle       string            `json:"book_title"`
	Text            string            `json:"text"`
	FileNames       []string          `json:"file_names,omitempty"`
	LLMProvider     string            `json:"llm_provider"`
	TTSProvider     string            `json:"tts_provider"`
	NarratorVoice   string            `json:"narrator_voice"`
	EnabledVoices   []string          `json:"enabled_voices"`
	OutputFormat    string            `json:"output_format,omitempty"`
	SilenceRemoval  bool              `json:"silence_removal,omitempty"`
	Normalization   bool              `json:"normalization,omitempty"`
	Dictionary      map[string]string `json:"pronunciation_dictionary,omitempty"`
}

type startRunResponse struct {
	RunID string `json:"run_id"`
}

// Conversions dispatches the /api/v1/conversions collection endpoint:
// POST starts a run, GET lists known runs.
func (h *RunHandler) Conversions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.StartConversion(w, r)
	case http.MethodGet:
		h.ListConversions(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ListConversions handles GET /api/v1/conversions: every known run record,
// in-memory and persisted, newest first.
func (h *RunHandler) ListConversions(w http.ResponseWriter, r *http.Request) {
	records, err := h.orch.ListRuns(r.Context())
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"runs":  records,
		"count": len(records),
	})
}

// StartConversion handles POST /api/v1/conversions.
func (h *RunHandler) StartConversion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	pipelineCfg := h.pipelineCfg
	pipelineCfg.PronunciationDictionary = req.Dictionary

	voices := types.VoiceConfig{
		NarratorVoice:  req.NarratorVoice,
		EnabledVoices:  req.EnabledVoices,
		OutputFormat:   req.OutputFormat,
		SilenceRemoval: req.SilenceRemoval,
		Normalization:  req.Normalization,
	}
	if voices.OutputFormat == "" {
		voices.OutputFormat = "mp3"
	}

	runReq := orchestrator.RunRequest{
		BookTitle:       req.BookTitle,
		Text:            req.Text,
		FileNames:       req.FileNames,
		Pipeline:        pipelineCfg,
		Voices:          voices,
		VoiceCatalog:    h.voiceCatalog,
		LLMProviderName: req.LLMProvider,
		TTSProviderName: req.TTSProvider,
		Providers:       h.providers,
		Storage:         h.storage,
		AudioBackend:    h.audioBackend,
	}

	id, err := h.orch.Start(r.Context(), runReq)
	if err != nil {
		if ce, ok := err.(*types.ConversionError); ok {
			respondError(w, ce.Message, http.StatusBadRequest)
			return
		}
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(startRunResponse{RunID: id})
}

// UploadAndConvert handles POST /api/v1/uploads?format=txt&book_title=...
// &llm_provider=...&tts_provider=... with the raw source document as the
// request body. It parses the document into chapters, joins them with the
// runner's chapter delimiter, and starts a conversion.
func (h *RunHandler) UploadAndConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format := r.URL.Query().Get("format")
	p, err := h.parsers.GetParser(format)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, "failed to read upload body: "+err.Error(), http.StatusBadRequest)
		return
	}

	chapters, err := p.Parse(r.Context(), data)
	if err != nil {
		respondError(w, "failed to parse document: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	texts := make([]string, 0, len(chapters))
	names := make([]string, 0, len(chapters))
	q := r.URL.Query()
	outputFormat := q.Get("output_format")
	if outputFormat == "" {
		outputFormat = "mp3"
	}
	for _, c := range chapters {
		texts = append(texts, strings.Join(c.Paragraphs, "\n\n"))
		names = append(names, util.OutputFilename(c.Title, outputFormat))
	}

	runReq := orchestrator.RunRequest{
		BookTitle:       q.Get("book_title"),
		Text:            strings.Join(texts, pipeline.ChapterDelimiter),
		FileNames:       names,
		Pipeline:        h.pipelineCfg,
		Voices:          types.VoiceConfig{NarratorVoice: q.Get("narrator_voice"), EnabledVoices: h.defaultVoiceNames(), OutputFormat: outputFormat},
		VoiceCatalog:    h.voiceCatalog,
		LLMProviderName: q.Get("llm_provider"),
		TTSProviderName: q.Get("tts_provider"),
		Providers:       h.providers,
		Storage:         h.storage,
		AudioBackend:    h.audioBackend,
	}

	id, err := h.orch.Start(r.Context(), runReq)
	if err != nil {
		if ce, ok := err.(*types.ConversionError); ok {
			respondError(w, ce.Message, http.StatusBadRequest)
			return
		}
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(startRunResponse{RunID: id})
}

func (h *RunHandler) defaultVoiceNames() []string {
	names := make([]string, 0, len(h.voiceCatalog))
	for _, v := range h.voiceCatalog {
		names = append(names, v.FullValue)
	}
	return names
}

// RunStatus handles GET /api/v1/conversions/{id}.
func (h *RunHandler) RunStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := runIDFromPath(r.URL.Path, "/api/v1/conversions/")
	if id == "" {
		respondError(w, "missing run id", http.StatusBadRequest)
		return
	}

	rec, err := h.orch.Status(id)
	if err != nil {
		respondError(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(rec)
}

// CancelConversion handles POST /api/v1/conversions/{id}/cancel.
func (h *RunHandler) CancelConversion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := runIDFromPath(strings.TrimSuffix(r.URL.Path, "/cancel"), "/api/v1/conversions/")
	if id == "" {
		respondError(w, "missing run id", http.StatusBadRequest)
		return
	}

	if err := h.orch.Cancel(id); err != nil {
		respondError(w, err.Error(), http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type voiceMapResponse struct {
	Assignments map[string]string `json:"assignments"`
}

type swapVoiceRequest struct {
	CharacterName string `json:"character_name"`
	VoiceID       string `json:"voice_id"`
}

// VoiceMap handles GET /api/v1/conversions/{id}/voice-map, the review
// surface: the current character-to-voice assignments for a run.
func (h *RunHandler) VoiceMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := runIDFromPath(strings.TrimSuffix(r.URL.Path, "/voice-map"), "/api/v1/conversions/")
	if id == "" {
		respondError(w, "missing run id", http.StatusBadRequest)
		return
	}

	assignments, err := h.orch.VoiceMap(id)
	if err != nil {
		respondError(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(voiceMapResponse{Assignments: assignments})
}

// SwapVoice handles POST /api/v1/conversions/{id}/voice-map/swap:
// reassigns one character to a new voice, swapping back whoever already
// held it.
func (h *RunHandler) SwapVoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := runIDFromPath(strings.TrimSuffix(r.URL.Path, "/voice-map/swap"), "/api/v1/conversions/")
	if id == "" {
		respondError(w, "missing run id", http.StatusBadRequest)
		return
	}

	var req swapVoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.CharacterName == "" || req.VoiceID == "" {
		respondError(w, "character_name and voice_id are required", http.StatusBadRequest)
		return
	}

	assignments, err := h.orch.SwapVoice(id, req.CharacterName, req.VoiceID)
	if err != nil {
		respondError(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(voiceMapResponse{Assignments: assignments})
}

// StreamProgress handles GET /api/v1/conversions/{id}/events?after=N,
// returning the run's progress events recorded since cursor `after` as
// NDJSON, one types.ProgressEvent per line. The cursor is a plain event
// count, since ProgressEvent carries no id of its own.
func (h *RunHandler) StreamProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := runIDFromPath(strings.TrimSuffix(r.URL.Path, "/events"), "/api/v1/conversions/")
	if id == "" {
		respondError(w, "missing run id", http.StatusBadRequest)
		return
	}

	after := 0
	if v := r.URL.Query().Get("after"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			after = n
		}
	}

	events, err := h.orch.ProgressEvents(id, after)
	if err != nil {
		respondError(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func runIDFromPath(path, prefix string) string {
	trimmed := strings.TrimPrefix(path, prefix)
	return strings.Trim(trimmed, "/")
}
