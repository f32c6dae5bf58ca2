package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// OpenAITTSConnection is a persistent, single-owner TTS synthesis
// connection used by one pool worker for its whole lifetime. It tracks the
// idle/working/reconnecting/terminated state machine directly on the
// struct so the owning worker can read State() after every Send call.
type OpenAITTSConnection struct {
	name   string
	config types.TTSProviderConfig
	dialer websocket.Dialer

	mu    sync.Mutex
	conn  *websocket.Conn
	state types.WorkerState
}

// NewOpenAITTSConnection builds a connection bound to one TTS provider
// configuration; Open must be called before the first Send.
func NewOpenAITTSConnection(config types.TTSProviderConfig) (*OpenAITTSConnection, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required for OpenAI TTS connection")
	}
	return &OpenAITTSConnection{
		name:   config.Name,
		config: config,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		state:  types.WorkerTerminated,
	}, nil
}

func (o *OpenAITTSConnection) State() types.WorkerState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Open dials the synthesis websocket. Safe to call again after Close or
// after a failed Send left the connection in WorkerReconnecting.
func (o *OpenAITTSConnection) Open(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	url := o.config.Endpoint
	header := http.Header{}
	if o.config.APIKey != "" {
		header.Set("Authorization", "Bearer "+o.config.APIKey)
	}

	conn, resp, err := o.dialer.DialContext(ctx, url, header)
	if err != nil {
		o.state = types.WorkerReconnecting
		if resp != nil {
			return fmt.Errorf("tts websocket dial (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("tts websocket dial: %w", err)
	}

	o.conn = conn
	o.state = types.WorkerIdle
	return nil
}

type ttsWSRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
	Input string `json:"input"`
	Rate  int    `json:"rate,omitempty"`
	Pitch int    `json:"pitch,omitempty"`
}

type ttsWSResponse struct {
	Type  string `json:"type"` // "chunk", "done", "error"
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Send submits one synthesis task over the already-open connection and
// blocks until the full audio is assembled or the connection fails. A
// failure transitions the connection to WorkerReconnecting and returns an
// error tagged TTS_WEBSOCKET_FAILED so the infinite retry strategy drives
// the reconnect/retry loop.
func (o *OpenAITTSConnection) Send(ctx context.Context, task types.SynthesisTask) (*types.AudioFragment, error) {
	o.mu.Lock()
	conn := o.conn
	if conn == nil {
		o.mu.Unlock()
		return nil, types.NewConversionError(types.ErrTTSWebsocketFailed, "send called before open", nil)
	}
	o.state = types.WorkerWorking
	o.mu.Unlock()

	req := ttsWSRequest{
		Model: o.config.Options["model"],
		Voice: task.VoiceID,
		Input: task.Text,
		Rate:  task.Rate,
		Pitch: task.Pitch,
	}

	if err := conn.WriteJSON(req); err != nil {
		o.markFailed()
		return nil, types.NewConversionError(types.ErrTTSWebsocketFailed, "failed to write synthesis request", err)
	}

	var audio []byte
	for {
		select {
		case <-ctx.Done():
			return nil, types.NewConversionError(types.ErrConversionCancelled, "synthesis cancelled", ctx.Err())
		default:
		}

		var resp ttsWSResponse
		if err := conn.ReadJSON(&resp); err != nil {
			o.markFailed()
			return nil, types.NewConversionError(types.ErrTTSWebsocketFailed, "failed to read synthesis response", err)
		}

		switch resp.Type {
		case "chunk":
			chunk, err := base64.StdEncoding.DecodeString(resp.Data)
			if err != nil {
				o.markFailed()
				return nil, types.NewConversionError(types.ErrTTSWebsocketFailed, "malformed audio chunk", err)
			}
			audio = append(audio, chunk...)
		case "error":
			o.markFailed()
			return nil, types.NewConversionError(types.ErrTTSWebsocketFailed, "provider reported error: "+resp.Error, nil)
		case "done":
			o.mu.Lock()
			o.state = types.WorkerIdle
			o.mu.Unlock()
			if len(audio) == 0 {
				return nil, types.NewConversionError(types.ErrTTSEmptyResponse, "synthesis returned no audio", nil)
			}
			return &types.AudioFragment{PartIndex: task.PartIndex, Bytes: audio}, nil
		}
	}
}

func (o *OpenAITTSConnection) markFailed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conn != nil {
		o.conn.Close()
		o.conn = nil
	}
	o.state = types.WorkerReconnecting
}

func (o *OpenAITTSConnection) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = types.WorkerTerminated
	if o.conn == nil {
		return nil
	}
	err := o.conn.Close()
	o.conn = nil
	return err
}

// voicesAPIResponse and voiceData mirror the REST voice-catalog listing.
// Voice catalog lookup is a plain HTTP GET since it is a one-shot call made
// once at startup, not the persistent synthesis path the worker pool
// depends on.
type voicesAPIResponse struct {
	Data []voiceData `json:"data"`
}

type voiceData struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Languages []string `json:"languages"`
	Gender    string   `json:"gender"`
	Accent    string   `json:"accent"`
}

// FetchVoiceCatalog lists the voices available from an OpenAI-compatible TTS
// REST endpoint, used once at startup to build the voice pool.
func FetchVoiceCatalog(ctx context.Context, config types.TTSProviderConfig) ([]Voice, error) {
	endpoint := config.Endpoint
	endpoint = strings.TrimSuffix(endpoint, "/") + "/voices"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build voices request: %w", err)
	}
	if config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+config.APIKey)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read voices response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voices request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp voicesAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse voices response: %w", err)
	}

	voices := make([]Voice, 0, len(apiResp.Data))
	for _, v := range apiResp.Data {
		voices = append(voices, Voice{
			ID:        v.ID,
			Name:      v.Name,
			Languages: v.Languages,
			Gender:    v.Gender,
			Accent:    v.Accent,
		})
	}
	log.Printf("[TTS] fetched %d voices from catalog endpoint", len(voices))
	return voices, nil
}
