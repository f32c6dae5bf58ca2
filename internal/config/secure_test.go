package config

import (
	"context"
	"fmt"
	"testing"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

type memVault struct {
	secrets map[string]string
}

func (m *memVault) Load(ctx context.Context, name string) (string, error) {
	v, ok := m.secrets[name]
	if !ok {
		return "", fmt.Errorf("no secret: %s", name)
	}
	return v, nil
}

func (m *memVault) Save(ctx context.Context, name, value string) error {
	m.secrets[name] = value
	return nil
}

func (m *memVault) Clear(ctx context.Context, name string) error {
	delete(m.secrets, name)
	return nil
}

func TestApplySecretsFillsEmptyAPIKeys(t *testing.T) {
	cfg := &types.Config{
		Providers: types.ProvidersConfig{
			LLM: []types.LLMProviderConfig{{Name: "openai"}},
			TTS: []types.TTSProviderConfig{{Name: "cloudtts"}},
		},
	}
	vault := &memVault{secrets: map[string]string{
		"llm/openai/api_key":   "sk-llm",
		"tts/cloudtts/api_key": "sk-tts",
	}}

	if err := ApplySecrets(context.Background(), cfg, vault); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM[0].APIKey != "sk-llm" {
		t.Fatalf("expected LLM key from vault, got %q", cfg.Providers.LLM[0].APIKey)
	}
	if cfg.Providers.TTS[0].APIKey != "sk-tts" {
		t.Fatalf("expected TTS key from vault, got %q", cfg.Providers.TTS[0].APIKey)
	}
}

func TestApplySecretsNeverOverridesConfiguredKeys(t *testing.T) {
	cfg := &types.Config{
		Providers: types.ProvidersConfig{
			LLM: []types.LLMProviderConfig{{Name: "openai", APIKey: "from-config"}},
		},
	}
	vault := &memVault{secrets: map[string]string{"llm/openai/api_key": "from-vault"}}

	if err := ApplySecrets(context.Background(), cfg, vault); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM[0].APIKey != "from-config" {
		t.Fatalf("expected config key to win, got %q", cfg.Providers.LLM[0].APIKey)
	}
}

func TestApplySecretsToleratesMissingEntriesAndNilVault(t *testing.T) {
	cfg := &types.Config{
		Providers: types.ProvidersConfig{
			LLM: []types.LLMProviderConfig{{Name: "openai"}},
		},
	}
	if err := ApplySecrets(context.Background(), cfg, &memVault{secrets: map[string]string{}}); err != nil {
		t.Fatalf("unexpected error for missing entry: %v", err)
	}
	if cfg.Providers.LLM[0].APIKey != "" {
		t.Fatalf("expected key to stay empty, got %q", cfg.Providers.LLM[0].APIKey)
	}
	if err := ApplySecrets(context.Background(), cfg, nil); err != nil {
		t.Fatalf("unexpected error for nil vault: %v", err)
	}
}
