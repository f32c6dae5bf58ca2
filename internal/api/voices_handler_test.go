package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

func sampleCatalog() []types.Voice {
	return []types.Voice{
		{FullValue: "en-US-m1", Name: "Marcus", Locale: "en-US", Gender: types.GenderMale},
		{FullValue: "en-US-f1", Name: "Fiona", Locale: "en-US", Gender: types.GenderFemale},
		{FullValue: "en-US-narrator", Name: "Narrator", Locale: "en-US", Gender: types.GenderUnknown},
	}
}

func TestVoicesHandlerListVoices(t *testing.T) {
	handler := NewVoicesHandler(sampleCatalog())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/voices", nil)
	w := httptest.NewRecorder()
	handler.ListVoices(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	voicesData, ok := response["voices"].([]interface{})
	if !ok {
		t.Fatal("expected 'voices' array in response")
	}
	if len(voicesData) != 3 {
		t.Errorf("expected 3 voices, got %d", len(voicesData))
	}

	count, ok := response["count"].(float64)
	if !ok || int(count) != len(voicesData) {
		t.Errorf("count mismatch: %v vs %d", response["count"], len(voicesData))
	}

	first := voicesData[0].(map[string]interface{})
	for _, field := range []string{"id", "name", "locale", "gender"} {
		if _, ok := first[field]; !ok {
			t.Errorf("voice missing %q field", field)
		}
	}
}

func TestVoicesHandlerFiltersByGender(t *testing.T) {
	handler := NewVoicesHandler(sampleCatalog())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/voices?gender=male", nil)
	w := httptest.NewRecorder()
	handler.ListVoices(w, req)

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	voicesData := response["voices"].([]interface{})
	if len(voicesData) != 1 {
		t.Fatalf("expected 1 male voice, got %d", len(voicesData))
	}
	voice := voicesData[0].(map[string]interface{})
	if voice["id"] != "en-US-m1" {
		t.Errorf("expected en-US-m1, got %v", voice["id"])
	}
}

func TestVoicesHandlerEmptyCatalog(t *testing.T) {
	handler := NewVoicesHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/voices", nil)
	w := httptest.NewRecorder()
	handler.ListVoices(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestVoicesHandlerMethodNotAllowed(t *testing.T) {
	handler := NewVoicesHandler(sampleCatalog())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/voices", nil)
	w := httptest.NewRecorder()
	handler.ListVoices(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}
