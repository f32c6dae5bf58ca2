package provider

import (
	"fmt"
	"sync"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// Registry holds the configured LLM clients and TTS connection factories,
// keyed by provider name from the configuration file.
type Registry struct {
	llmClients   map[string]LLMClient
	ttsFactories map[string]TTSConnectionFactory
	mu           sync.RWMutex
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		llmClients:   make(map[string]LLMClient),
		ttsFactories: make(map[string]TTSConnectionFactory),
	}
}

// RegisterLLM registers an LLM client under its own Name().
func (r *Registry) RegisterLLM(client LLMClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := client.Name()
	if _, exists := r.llmClients[name]; exists {
		return fmt.Errorf("LLM client already registered: %s", name)
	}
	r.llmClients[name] = client
	return nil
}

// RegisterTTS registers a TTS connection factory under a provider name. The
// factory is invoked once per worker in the TTS pool, never shared.
func (r *Registry) RegisterTTS(name string, factory TTSConnectionFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ttsFactories[name]; exists {
		return fmt.Errorf("TTS factory already registered: %s", name)
	}
	r.ttsFactories[name] = factory
	return nil
}

// GetLLM retrieves an LLM client by name.
func (r *Registry) GetLLM(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, exists := r.llmClients[name]
	if !exists {
		return nil, fmt.Errorf("LLM client not found: %s", name)
	}
	return client, nil
}

// GetTTSFactory retrieves a TTS connection factory by name.
func (r *Registry) GetTTSFactory(name string) (TTSConnectionFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.ttsFactories[name]
	if !exists {
		return nil, fmt.Errorf("TTS factory not found: %s", name)
	}
	return factory, nil
}

// ListLLM returns all registered LLM client names.
func (r *Registry) ListLLM() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.llmClients))
	for name := range r.llmClients {
		names = append(names, name)
	}
	return names
}

// ListTTS returns all registered TTS factory names.
func (r *Registry) ListTTS() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ttsFactories))
	for name := range r.ttsFactories {
		names = append(names, name)
	}
	return names
}

// Close closes every registered LLM client. TTS connections are owned by
// individual pool workers and closed there, not by the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, client := range r.llmClients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close LLM client %s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing providers: %v", errs)
	}
	return nil
}

// InitializeProviders creates client/factory instances from configuration.
// LLM providers without a usable endpoint/model pair fall back to a stub
// client so local development and tests can run without real credentials.
func (r *Registry) InitializeProviders(cfg types.ProvidersConfig) error {
	for _, llmCfg := range cfg.LLM {
		if !llmCfg.Enabled {
			continue
		}
		var client LLMClient
		var err error
		if llmCfg.Endpoint != "" && llmCfg.Model != "" {
			client, err = NewOpenAILLMClient(llmCfg)
			if err != nil {
				return fmt.Errorf("failed to create OpenAI LLM client %s: %w", llmCfg.Name, err)
			}
		} else {
			client = NewStubLLMClient(llmCfg)
		}
		if err := r.RegisterLLM(client); err != nil {
			return err
		}
	}

	for _, ttsCfg := range cfg.TTS {
		if !ttsCfg.Enabled {
			continue
		}
		cfgCopy := ttsCfg
		factory := TTSConnectionFactory(func() (TTSConnection, error) {
			if cfgCopy.Endpoint == "" {
				return NewStubTTSConnection(cfgCopy), nil
			}
			return NewOpenAITTSConnection(cfgCopy)
		})
		if err := r.RegisterTTS(ttsCfg.Name, factory); err != nil {
			return err
		}
	}

	return nil
}
