package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mvoss-dev/narrationcast/internal/api"
	"github.com/mvoss-dev/narrationcast/internal/config"
	"github.com/mvoss-dev/narrationcast/internal/health"
	"github.com/mvoss-dev/narrationcast/internal/orchestrator"
	"github.com/mvoss-dev/narrationcast/internal/parser"
	"github.com/mvoss-dev/narrationcast/internal/provider"
	"github.com/mvoss-dev/narrationcast/internal/run"
	"github.com/mvoss-dev/narrationcast/internal/storage"
	"github.com/mvoss-dev/narrationcast/pkg/types"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config/dev.example.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Starting narrationcast server v%s", version)
	log.Printf("Configuration loaded from: %s", *configPath)

	storageAdapter, err := storage.NewAdapter(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to create storage adapter: %v", err)
	}
	defer storageAdapter.Close()
	log.Printf("Storage adapter initialized: %s", cfg.Storage.Adapter)

	providerRegistry := provider.NewRegistry()
	if err := providerRegistry.InitializeProviders(cfg.Providers); err != nil {
		log.Fatalf("Failed to initialize providers: %v", err)
	}
	defer providerRegistry.Close()

	log.Printf("Providers initialized:")
	log.Printf("  LLM: %v", providerRegistry.ListLLM())
	log.Printf("  TTS: %v", providerRegistry.ListTTS())

	voiceCatalog := buildVoiceCatalog(cfg)
	log.Printf("Voice catalog: %d voices", len(voiceCatalog))

	parserFactory := parser.NewFactory()
	log.Printf("Parser factory initialized")

	runRepository := run.NewRepository(storageAdapter)
	conversionOrchestrator := orchestrator.New(runRepository)
	log.Printf("Conversion orchestrator initialized")

	healthHandler := health.NewHandler(version)
	healthHandler.Register("storage", func(ctx context.Context) (health.Status, error) {
		if _, err := storageAdapter.Exists(ctx, ".healthcheck"); err != nil {
			return health.StatusUnhealthy, err
		}
		return health.StatusHealthy, nil
	})
	healthHandler.Register("providers", func(ctx context.Context) (health.Status, error) {
		if len(providerRegistry.ListLLM()) == 0 && len(providerRegistry.ListTTS()) == 0 {
			return health.StatusDegraded, fmt.Errorf("no providers registered")
		}
		return health.StatusHealthy, nil
	})

	mux := http.NewServeMux()

	mux.HandleFunc("/health/live", healthHandler.LivenessHandler())
	mux.HandleFunc("/health/ready", healthHandler.ReadinessHandler())
	mux.HandleFunc("/health", healthHandler.HealthHandler())

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/v1/info", infoHandler(version, cfg))
	mux.HandleFunc("/api/v1/providers", providersHandler(providerRegistry))

	voicesHandler := api.NewVoicesHandler(voiceCatalog)
	mux.HandleFunc("/api/v1/voices", voicesHandler.ListVoices)

	runHandler := api.NewRunHandler(
		conversionOrchestrator,
		parserFactory,
		providerRegistry,
		storageAdapter,
		provider.NewStubAudioBackend(),
		voiceCatalog,
		cfg.Pipeline,
	)
	mux.HandleFunc("/api/v1/conversions", runHandler.Conversions)
	mux.HandleFunc("/api/v1/uploads", runHandler.UploadAndConvert)
	mux.HandleFunc("/api/v1/conversions/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/cancel"):
			runHandler.CancelConversion(w, r)
		case strings.HasSuffix(r.URL.Path, "/voice-map/swap"):
			runHandler.SwapVoice(w, r)
		case strings.HasSuffix(r.URL.Path, "/voice-map"):
			runHandler.VoiceMap(w, r)
		case strings.HasSuffix(r.URL.Path, "/events"):
			runHandler.StreamProgress(w, r)
		default:
			runHandler.RunStatus(w, r)
		}
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// buildVoiceCatalog fetches the voice catalog from the first enabled TTS
// provider with a reachable endpoint, falling back to an empty catalog (the
// stub TTS provider path, or a misconfigured endpoint) rather than failing
// startup outright.
func buildVoiceCatalog(cfg *types.Config) []types.Voice {
	for _, ttsCfg := range cfg.Providers.TTS {
		if !ttsCfg.Enabled || ttsCfg.Endpoint == "" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		raw, err := provider.FetchVoiceCatalog(ctx, ttsCfg)
		cancel()
		if err != nil {
			log.Printf("failed to fetch voice catalog from %s: %v", ttsCfg.Name, err)
			continue
		}
		return provider.ToVoiceCatalog(raw)
	}
	return nil
}

func infoHandler(version string, cfg *types.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"version":"%s","storage_adapter":"%s"}`, version, cfg.Storage.Adapter)
	}
}

func providersHandler(registry *provider.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"llm":%v,"tts":%v}`,
			toJSON(registry.ListLLM()),
			toJSON(registry.ListTTS()))
	}
}

func toJSON(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	result := "["
	for i, item := range items {
		if i > 0 {
			result += ","
		}
		result += fmt.Sprintf(`"%s"`, item)
	}
	result += "]"
	return result
}
