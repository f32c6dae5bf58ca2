package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// SecureStorage is the host-provided credential vault. The loader only ever
// reads from it; Save and Clear exist so a host settings surface can manage
// credentials through the same contract.
type SecureStorage interface {
	Load(ctx context.Context, name string) (string, error)
	Save(ctx context.Context, name, value string) error
	Clear(ctx context.Context, name string) error
}

// secretName builds the vault key for one provider's API key, e.g.
// "llm/openai/api_key".
func secretName(kind, providerName string) string {
	return fmt.Sprintf("%s/%s/api_key", kind, strings.ToLower(providerName))
}

// ApplySecrets fills in any provider API key the config file and environment
// left empty by consulting the vault. A missing vault entry is not an error;
// the provider simply stays keyless (and may fall back to a stub).
func ApplySecrets(ctx context.Context, cfg *types.Config, vault SecureStorage) error {
	if vault == nil {
		return nil
	}

	for i := range cfg.Providers.LLM {
		if cfg.Providers.LLM[i].APIKey != "" {
			continue
		}
		key, err := vault.Load(ctx, secretName("llm", cfg.Providers.LLM[i].Name))
		if err != nil {
			continue
		}
		cfg.Providers.LLM[i].APIKey = key
	}

	for i := range cfg.Providers.TTS {
		if cfg.Providers.TTS[i].APIKey != "" {
			continue
		}
		key, err := vault.Load(ctx, secretName("tts", cfg.Providers.TTS[i].Name))
		if err != nil {
			continue
		}
		cfg.Providers.TTS[i].APIKey = key
	}

	return nil
}
