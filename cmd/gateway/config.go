package main

import (
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/env"
)

// config holds every environment-driven setting the gateway process needs at
// startup: provider backend URLs/keys, storage connection strings, and the
// pipeline's tunable thresholds and pool sizes.
type config struct {
	port string

	funasrURL     string
	tencentURL    string
	tencentSecret string
	asrPoolSize   int
	maxAudioSecs  float64

	ollamaURL          string
	ollamaModel        string
	openaiAPIKey       string
	openaiURL          string
	openaiModel        string
	llmPoolSize        int
	llmDefaultMaxToken int

	embeddingURL   string
	embeddingModel string
	embeddingDim   int

	qdrantURL      string
	qdrantPoolSize int

	voiceprintThreshold float64

	postgresURL string

	hotwordFilePath string
	templateDir     string

	ffmpegPath string
}

func loadConfig() config {
	return config{
		port: env.Str("GATEWAY_PORT", "8000"),

		funasrURL:     env.Str("FUNASR_URL", "http://localhost:10095"),
		tencentURL:    env.Str("TENCENT_ASR_URL", ""),
		tencentSecret: env.Str("TENCENT_ASR_SECRET", ""),
		asrPoolSize:   env.Int("ASR_POOL_SIZE", 10),
		maxAudioSecs:  env.Float("MAX_AUDIO_DURATION_SECONDS", 18000),

		ollamaURL:          env.Str("OLLAMA_URL", "http://localhost:11434"),
		ollamaModel:        env.Str("OLLAMA_MODEL", "qwen3:8b"),
		openaiAPIKey:       env.Str("OPENAI_API_KEY", ""),
		openaiURL:          env.Str("OPENAI_URL", "https://api.openai.com"),
		openaiModel:        env.Str("OPENAI_MODEL", "gpt-4o-mini"),
		llmPoolSize:        env.Int("LLM_POOL_SIZE", 10),
		llmDefaultMaxToken: env.Int("LLM_DEFAULT_MAX_TOKENS", 2000),

		embeddingURL:   env.Str("EMBEDDING_URL", "http://localhost:11434"),
		embeddingModel: env.Str("EMBEDDING_MODEL", "nomic-embed-text"),
		embeddingDim:   env.Int("EMBEDDING_DIM", 768),

		qdrantURL:      env.Str("QDRANT_URL", "http://localhost:6333"),
		qdrantPoolSize: env.Int("QDRANT_POOL_SIZE", 10),

		voiceprintThreshold: env.Float("VOICEPRINT_SIMILARITY_THRESHOLD", 0.75),

		postgresURL: env.Str("DATABASE_URL", ""),

		hotwordFilePath: env.Str("HOTWORD_FILE_PATH", ""),
		templateDir:     env.Str("TEMPLATE_DIR", ""),

		ffmpegPath: env.Str("FFMPEG_PATH", "ffmpeg"),
	}
}
