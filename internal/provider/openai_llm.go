package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/shared"
	"github.com/tidwall/gjson"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// llmCallTimeout bounds a single chat-completion round trip. A call that
// exceeds it is classified as retriable rather than left to the caller's own
// context, so the retry engine sees a consistent LLM_TIMEOUT kind regardless
// of how generous the enclosing request context is.
const llmCallTimeout = 120 * time.Second

// OpenAILLMClient implements LLMClient against an OpenAI-compatible chat
// completions endpoint using the official SDK.
type OpenAILLMClient struct {
	name   string
	config types.LLMProviderConfig
	client oai.Client
}

// NewOpenAILLMClient creates a new OpenAI-compatible LLM client.
func NewOpenAILLMClient(config types.LLMProviderConfig) (*OpenAILLMClient, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required for OpenAI LLM client")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required for OpenAI LLM client")
	}

	reqOpts := []option.RequestOption{
		option.WithBaseURL(config.Endpoint),
	}
	if config.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(config.APIKey))
	}

	return &OpenAILLMClient{
		name:   config.Name,
		config: config,
		client: oai.NewClient(reqOpts...),
	}, nil
}

func (o *OpenAILLMClient) Name() string { return o.name }

func (o *OpenAILLMClient) Close() error { return nil }

// Extract runs the character-extraction pass: ask the model for every
// speaking character mentioned in the block, reusing known_cast names where
// they already apply.
func (o *OpenAILLMClient) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	systemPrompt := strings.Join([]string{
		"You are a narrative character extraction expert.",
		"You will be given a block of prose and a list of already-known characters.",
		"Always reuse the exact canonical name from that list when a mention matches, including mentions inside dialogue or thought.",
		"Do not invent a variant of a known name by changing spacing, casing, or adding qualifiers.",
		"Only introduce a new character when none of the known ones fit.",
		"Respond with ONLY a JSON array, no prose before or after it.",
	}, "\n")

	var sb strings.Builder
	if len(req.KnownCast) > 0 {
		sb.WriteString("Known cast (reuse exact names when applicable):\n")
		for _, name := range req.KnownCast {
			sb.WriteString("- " + name + "\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Text block:\n")
	sb.WriteString(req.BlockText)
	sb.WriteString("\n\nRespond with a JSON array where each element has the shape:\n")
	sb.WriteString(`{"canonical_name": "...", "variations": ["..."], "gender": "male|female|unknown"}`)

	content, err := o.chat(ctx, systemPrompt, sb.String())
	if err != nil {
		return nil, classifyChatError(err, "extract pass failed")
	}

	characters, err := parseCharacterArray(content)
	if err != nil {
		return nil, types.NewConversionError(types.ErrLLMValidationError, "extract pass returned invalid JSON", err)
	}
	return &ExtractResponse{Characters: characters}, nil
}

// Assign runs the speaker-assignment pass: map every sentence in the block
// to one of the cast's canonical names.
func (o *OpenAILLMClient) Assign(ctx context.Context, req AssignRequest) (*AssignResponse, error) {
	systemPrompt := strings.Join([]string{
		"You are a dialogue attribution expert.",
		"You will be given the resolved cast for a book and a block of numbered sentences.",
		"For every sentence, return the canonical_name of whoever speaks or narrates it.",
		"Use \"Narrator\" for descriptive prose and \"System\" for bracketed system or game text.",
		"Respond with ONLY a JSON array, no prose before or after it.",
	}, "\n")

	var sb strings.Builder
	sb.WriteString("Cast:\n")
	for _, c := range req.Cast {
		sb.WriteString("- " + c.CanonicalName + "\n")
	}
	sb.WriteString("\nSentences:\n")
	for _, s := range req.Sentences {
		sb.WriteString(fmt.Sprintf("[%d] %s\n", s.Index, s.Text))
	}
	sb.WriteString("\nRespond with a JSON array where each element has the shape:\n")
	sb.WriteString(`{"sentence_index": 0, "speaker_canonical_name": "..."}`)

	content, err := o.chat(ctx, systemPrompt, sb.String())
	if err != nil {
		return nil, classifyChatError(err, "assign pass failed")
	}

	assignments, err := parseAssignmentArray(content)
	if err != nil {
		return nil, types.NewConversionError(types.ErrLLMValidationError, "assign pass returned invalid JSON", err)
	}
	return &AssignResponse{Assignments: assignments}, nil
}

func (o *OpenAILLMClient) chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.config.Model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(userPrompt),
		},
	}
	if tempStr, ok := o.config.Options["temperature"]; ok {
		var temp float64
		if _, err := fmt.Sscanf(tempStr, "%f", &temp); err == nil {
			params.Temperature = param.NewOpt(temp)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, llmCallTimeout)
	defer cancel()

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		log.Printf("[LLM-%s] request failed after %v: %v", o.name, time.Since(start), err)
		if callCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("chat completion: %w", context.DeadlineExceeded)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyChatError maps a chat() failure to the retriable taxonomy kind the
// retry engine branches on: a deadline overrun becomes LLM_TIMEOUT, a 429
// response becomes LLM_RATE_LIMITED, and everything else falls back to the
// generic LLM_API_ERROR with fallbackMessage.
func classifyChatError(err error, fallbackMessage string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewConversionError(types.ErrLLMTimeout, fmt.Sprintf("llm request exceeded %s timeout", llmCallTimeout), err)
	}

	var apiErr *oai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return types.NewConversionError(types.ErrLLMRateLimited, "llm provider rate limited the request", err)
	}

	return types.NewConversionError(types.ErrLLMAPIError, fallbackMessage, err)
}

// parseCharacterArray tolerantly extracts a JSON array of character objects
// from a model response that may carry surrounding prose, using gjson rather
// than a strict json.Unmarshal so stray preamble/epilogue text doesn't fail
// the whole pass.
func parseCharacterArray(content string) ([]types.Character, error) {
	arr := extractJSONArray(content)
	if !arr.IsArray() {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var characters []types.Character
	var parseErr error
	arr.ForEach(func(_, value gjson.Result) bool {
		name := value.Get("canonical_name").String()
		if name == "" {
			return true
		}
		var variations []string
		for _, v := range value.Get("variations").Array() {
			variations = append(variations, v.String())
		}
		gender := types.Gender(value.Get("gender").String())
		switch gender {
		case types.GenderMale, types.GenderFemale:
		default:
			gender = types.GenderUnknown
		}
		characters = append(characters, types.Character{
			CanonicalName: name,
			Variations:    variations,
			Gender:        gender,
		})
		return true
	})
	return characters, parseErr
}

// parseAssignmentArray tolerantly extracts a JSON array of
// {sentence_index, speaker_canonical_name} objects.
func parseAssignmentArray(content string) ([]types.SpeakerAssignment, error) {
	arr := extractJSONArray(content)
	if !arr.IsArray() {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var assignments []types.SpeakerAssignment
	arr.ForEach(func(_, value gjson.Result) bool {
		speaker := value.Get("speaker_canonical_name").String()
		if speaker == "" {
			return true
		}
		assignments = append(assignments, types.SpeakerAssignment{
			SentenceIndex:        int(value.Get("sentence_index").Int()),
			SpeakerCanonicalName: speaker,
		})
		return true
	})
	return assignments, nil
}

// extractJSONArray finds the outermost [...] span in a response and parses
// it with gjson, tolerating any non-JSON preamble or epilogue the model adds
// despite being asked not to.
func extractJSONArray(content string) gjson.Result {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start == -1 || end == -1 || start >= end {
		return gjson.Result{}
	}
	return gjson.Parse(content[start : end+1])
}
