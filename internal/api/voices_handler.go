package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// VoicesHandler serves the voice catalog built once at startup from
// provider.FetchVoiceCatalog (empty when no catalog could be fetched). It
// does not call out to a TTS provider per request; the catalog is read-only
// after construction.
type VoicesHandler struct {
	catalog []types.Voice
}

// NewVoicesHandler creates a handler over a fixed voice catalog.
func NewVoicesHandler(catalog []types.Voice) *VoicesHandler {
	return &VoicesHandler{catalog: catalog}
}

// VoiceResponse represents a voice in the API response.
type VoiceResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Locale string `json:"locale"`
	Gender string `json:"gender"`
}

func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ListVoices handles GET /api/v1/voices, optionally filtered by gender.
func (h *VoicesHandler) ListVoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(h.catalog) == 0 {
		respondError(w, "No voices configured", http.StatusServiceUnavailable)
		return
	}

	genderFilter := r.URL.Query().Get("gender")

	voices := make([]VoiceResponse, 0, len(h.catalog))
	for _, v := range h.catalog {
		if genderFilter != "" && string(v.Gender) != genderFilter {
			continue
		}
		voices = append(voices, VoiceResponse{
			ID:     v.FullValue,
			Name:   v.Name,
			Locale: v.Locale,
			Gender: string(v.Gender),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"voices": voices,
		"count":  len(voices),
	}); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
