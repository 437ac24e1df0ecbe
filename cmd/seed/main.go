package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/archive"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/providers"
)

// seed backfills the archive collection from a directory of already-approved
// meeting minutes (markdown or plain text), for standing up a fresh Qdrant
// instance with retrieval history before the gateway has archived anything
// of its own.
func main() {
	dir := flag.String("dir", "", "directory containing .md/.txt meeting minutes to seed")
	ollamaURL := flag.String("ollama-url", envOr("OLLAMA_URL", "http://localhost:11434"), "Ollama URL")
	model_ := flag.String("model", envOr("EMBEDDING_MODEL", "nomic-embed-text"), "embedding model")
	qdrantURL := flag.String("qdrant-url", envOr("QDRANT_URL", "http://localhost:6333"), "Qdrant URL")
	vectorSize := flag.Int("vector-size", 768, "embedding vector dimension")
	department := flag.String("department", "", "department tag applied to every seeded record")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "usage: seed --dir ./samples/minutes/")
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	embedder := providers.NewOllamaEmbeddingProvider(*ollamaURL, *model_, *vectorSize, 4)
	qdrant := providers.NewQdrantStore(*qdrantURL, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	archiveSvc, err := archive.New(ctx, embedder, qdrant)
	if err != nil {
		slog.Error("archive collection init", "error", err)
		os.Exit(1)
	}

	files, err := globMinutes(*dir)
	if err != nil {
		slog.Error("glob files", "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no .md or .txt files found in", *dir)
		os.Exit(1)
	}

	var total int
	for i, f := range files {
		n, seedErr := seedFile(ctx, archiveSvc, f, i+1, *department)
		if seedErr != nil {
			slog.Error("seed file", "file", f, "error", seedErr)
			continue
		}
		total += n
		slog.Info("seeded", "file", f, "chunks", n)
	}

	slog.Info("done", "total_chunks", total, "files", len(files))
}

func globMinutes(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.md", "*.txt"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	return files, nil
}

func seedFile(ctx context.Context, svc *archive.Service, path string, sourceID int, department string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	return svc.Archive(ctx, model.MinuteRecord{
		Markdown:    string(data),
		SourceID:    sourceID,
		MeetingDate: fileModDate(path),
		Department:  department,
	})
}

func fileModDate(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return info.ModTime().UTC().Format("2006-01-02")
}

func envOr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
