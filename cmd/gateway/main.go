package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/openai/openai-go/v2/packages/param"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/archive"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/asrengine"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/audioprep"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/controller"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/history"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/hotwords"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/llmorch"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/providers"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/store"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/voiceprint"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()
	ctx := context.Background()

	hotwordTable, err := hotwords.New(cfg.hotwordFilePath)
	if err != nil {
		slog.Error("hotword table load failed", "error", err)
		os.Exit(2)
	}

	asrBundle := initASR(cfg)
	llmBundle := initLLM(cfg)
	embedder := providers.NewOllamaEmbeddingProvider(cfg.embeddingURL, cfg.embeddingModel, cfg.embeddingDim, cfg.qdrantPoolSize)
	qdrant := providers.NewQdrantStore(cfg.qdrantURL, cfg.qdrantPoolSize)

	voiceStore, err := providers.NewQdrantVoiceprintStore(ctx, qdrant)
	if err != nil {
		slog.Error("voiceprint collection init failed", "error", err)
		os.Exit(3)
	}
	voiceEmbedder := voiceprint.NewSpectralEmbedder()
	voiceMatcher := voiceprint.New(voiceStore, voiceEmbedder, cfg.voiceprintThreshold)

	archiveSvc, err := archive.New(ctx, embedder, qdrant)
	if err != nil {
		slog.Error("archive collection init failed", "error", err)
		os.Exit(3)
	}

	historySvc := history.NewService(history.Config{
		Embedder: embedder,
		Store:    qdrant,
		LLM:      llmBundle.fallback,
	})

	preparer := audioprep.NewWithRNNoise(cfg.ffmpegPath)

	var records store.TranscriptStore
	if cfg.postgresURL != "" {
		pg, pgErr := store.Open(cfg.postgresURL)
		if pgErr != nil {
			slog.Error("transcript store open failed", "error", pgErr)
		} else {
			records = pg
			slog.Info("transcript persistence enabled", "postgres", cfg.postgresURL)
		}
	}

	pipeline := controller.New(controller.Config{
		ASR:          asrengine.New(asrBundle.router, hotwordTable, cfg.maxAudioSecs),
		AudioPrep:    preparer,
		VoiceMatcher: voiceMatcher,
		History:      historySvc,
		LLMRouter:    llmBundle.router,
		LLMPolicy:    llmorch.DefaultPolicy(),
		Archive:      archiveSvc,
		Records:      records,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		pipeline:       pipeline,
		hotwordTable:   hotwordTable,
		voicePreparer:  preparer,
		voiceEmbedder:  voiceEmbedder,
		voiceStore:     voiceStore,
		asrProbe:       asrBundle.fallback,
		llmProbe:       llmBundle.fallback,
		embeddingProbe: embedder,
		vectorProbe:    qdrant,
		records:        records,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go awaitShutdown(srv)

	slog.Info("gateway starting", "addr", addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway stopped")
}

// awaitShutdown blocks until SIGINT/SIGTERM, then drains in-flight requests.
func awaitShutdown(srv *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

// asrProviders pairs the ASR router with the provider the health endpoint
// probes for readiness.
type asrProviders struct {
	router   *providers.Router[providers.ASRProvider]
	fallback providers.ASRProvider
}

func initASR(cfg config) asrProviders {
	backends := map[string]providers.ASRProvider{}

	funasr := providers.NewFunASRProvider(cfg.funasrURL, cfg.asrPoolSize)
	backends["funasr"] = funasr

	if cfg.tencentURL != "" {
		backends["tencent"] = providers.NewTencentASRProvider(cfg.tencentURL, cfg.tencentSecret, cfg.asrPoolSize)
	}
	backends["auto"] = funasr

	return asrProviders{router: providers.NewRouter(backends, "auto"), fallback: funasr}
}

// llmProviders pairs the LLM router with the provider the health endpoint
// and the history/RAG auto-mode yes/no call use.
type llmProviders struct {
	router   *providers.Router[providers.LLMProvider]
	fallback providers.LLMProvider
}

func initLLM(cfg config) llmProviders {
	backends := map[string]providers.LLMProvider{}

	qwen := providers.NewOllamaLLMProvider(cfg.ollamaURL, "qwen3:8b", cfg.llmPoolSize)
	backends["qwen3"] = qwen

	deepseek := providers.NewOllamaLLMProvider(cfg.ollamaURL, "deepseek-r1:8b", cfg.llmPoolSize)
	backends["deepseek"] = deepseek

	var autoProvider providers.LLMProvider
	if cfg.openaiAPIKey != "" {
		autoProvider = providers.NewOpenAIChatProvider(cfg.openaiAPIKey, cfg.openaiURL, cfg.openaiModel, cfg.llmPoolSize)
	} else {
		agentProvider := agents.NewOpenAIProvider(agents.OpenAIProviderParams{
			BaseURL:      param.NewOpt(cfg.ollamaURL + "/v1/"),
			APIKey:       param.NewOpt("ollama"),
			UseResponses: param.NewOpt(false),
		})
		autoProvider = providers.NewAgentLLMProvider(agentProvider, cfg.ollamaModel)
	}
	backends["auto"] = autoProvider

	return llmProviders{router: providers.NewRouter(backends, "auto"), fallback: autoProvider}
}
