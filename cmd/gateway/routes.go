package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/apperr"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/audioprep"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/controller"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/hotwords"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/providers"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/store"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/voiceprint"
)

// maxUploadBytes caps a single /process or /voice/register multipart body.
const maxUploadBytes = 512 << 20 // 512 MiB

// deps carries every dependency the HTTP handlers need, assembled once at
// startup in main and passed by reference — no handler constructs its own
// providers or clients.
type deps struct {
	pipeline       *controller.Controller
	hotwordTable   *hotwords.Table
	voicePreparer  *audioprep.Preparer
	voiceEmbedder  voiceprint.Embedder
	voiceStore     providers.VoiceprintStore
	asrProbe       providers.ASRProvider
	llmProbe       providers.LLMProvider
	embeddingProbe providers.EmbeddingProvider
	vectorProbe    providers.VectorStore
	records        store.TranscriptStore
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.HandleFunc("POST /process", d.handleProcess)
	mux.HandleFunc("POST /archive", d.handleArchive)
	mux.HandleFunc("POST /voice/register", d.handleVoiceRegister)
	mux.HandleFunc("GET /hotwords", d.handleHotwordsGet)
	mux.HandleFunc("POST /hotwords/reload", d.handleHotwordsReload)
	mux.HandleFunc("GET /health", d.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func (d deps) handleProcess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "malformed multipart form")
		return
	}

	req, err := d.buildProcessRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := d.pipeline.Run(r.Context(), req)
	if err != nil {
		status := httpStatusFor(apperr.KindOf(err))
		writeJSON(w, status, map[string]any{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       resp.Status,
		"message":      resp.Message,
		"raw_text":     resp.RawText,
		"transcript":   resp.Transcript,
		"need_rag":     resp.NeedRAG,
		"html_content": resp.HTMLContent,
		"usage_tokens": resp.UsageTokens,
		"file_errors":  resp.FileErrors,
	})
}

func (d deps) buildProcessRequest(r *http.Request) (controller.Request, error) {
	req := controller.Request{
		TemplateID:      defaultString(r.FormValue("template"), "default"),
		UserRequirement: r.FormValue("user_requirement"),
		ASREngine:       defaultString(r.FormValue("asr_model"), "auto"),
		LLMEngine:       defaultString(r.FormValue("llm_model"), "auto"),
		LLMTemperature:  parseFloatDefault(r.FormValue("llm_temperature"), 0.7),
		LLMMaxTokens:    parseIntDefault(r.FormValue("llm_max_tokens"), 2000),
		HistoryMode:     model.HistoryMode(r.FormValue("history_mode")),
		HistoryIDs:      parseIntCSV(r.FormValue("history_meeting_ids")),

		EnableDiarization: true,
		EnablePunctuation: true,
	}

	if text := r.FormValue("text_content"); text != "" {
		req.TextContent = text
		return req, nil
	}

	if audioID := r.FormValue("audio_id"); audioID != "" {
		if d.records == nil {
			return controller.Request{}, fmt.Errorf("audio_id is not available: transcript persistence is disabled")
		}
		rec, err := d.records.Get(r.Context(), audioID)
		if err != nil {
			return controller.Request{}, fmt.Errorf("resolve audio_id %q: %w", audioID, err)
		}
		if rec.RawText == "" {
			return controller.Request{}, fmt.Errorf("stored record %q has no transcript text", audioID)
		}
		// The stored record already went through ASR; re-feed its raw text
		// through the text path rather than re-running recognition.
		req.TextContent = rec.RawText
		return req, nil
	}

	if docHeader := firstFileHeader(r, "document_file"); docHeader != nil {
		data, err := readFormFile(docHeader)
		if err != nil {
			return controller.Request{}, fmt.Errorf("read document_file: %w", err)
		}
		req.DocumentName = docHeader.Filename
		req.DocumentBytes = data
		return req, nil
	}

	if urls := r.Form["audio_urls"]; len(urls) > 0 {
		for _, u := range urls {
			req.Audio = append(req.Audio, controller.AudioInput{URL: u})
		}
		return req, nil
	}

	if paths := r.Form["file_paths"]; len(paths) > 0 {
		for _, p := range paths {
			data, err := readLocalFile(p)
			if err != nil {
				return controller.Request{}, fmt.Errorf("read file_paths entry %q: %w", p, err)
			}
			req.Audio = append(req.Audio, controller.AudioInput{Bytes: data, Name: p})
		}
		return req, nil
	}

	if r.MultipartForm != nil {
		if headers := r.MultipartForm.File["files"]; len(headers) > 0 {
			for _, h := range headers {
				data, err := readFormFile(h)
				if err != nil {
					return controller.Request{}, fmt.Errorf("read files entry %q: %w", h.Filename, err)
				}
				req.Audio = append(req.Audio, controller.AudioInput{Bytes: data, Name: h.Filename})
			}
			return req, nil
		}
	}

	return controller.Request{}, fmt.Errorf("exactly one of files|file_paths|audio_urls|audio_id|document_file|text_content is required")
}

func (d deps) handleArchive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MinutesID   int    `json:"minutes_id"`
		Markdown    string `json:"markdown_content"`
		UserID      string `json:"user_id"`
		MeetingDate string `json:"meeting_date"`
		Department  string `json:"department"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 32<<20)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed archive request")
		return
	}
	if body.Markdown == "" {
		writeError(w, http.StatusBadRequest, "markdown_content must not be empty")
		return
	}

	count, err := d.pipeline.Archive(r.Context(), model.MinuteRecord{
		Markdown:    body.Markdown,
		SourceID:    body.MinutesID,
		UserID:      body.UserID,
		MeetingDate: body.MeetingDate,
		Department:  body.Department,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"message":      "archived",
		"chunks_count": count,
	})
}

func (d deps) handleVoiceRegister(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": 400, "message": "malformed multipart form"})
		return
	}

	name := r.FormValue("name")
	employeeID := r.FormValue("employee_id")
	header := firstFileHeader(r, "file")
	if name == "" || employeeID == "" || header == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": 400, "message": "file, name, and employee_id are required"})
		return
	}

	data, err := readFormFile(header)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"code": 500, "message": err.Error()})
		return
	}

	samples, _, err := d.voicePreparer.Prepare(r.Context(), data, audioprep.Options{Denoise: true})
	if err != nil || len(samples) < 16000 { // under 1s at 16kHz is too short to embed reliably
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": 400, "message": "audio too short or unreadable"})
		return
	}

	embedding := d.voiceEmbedder.Embed(samples, 16000)
	if err = d.voiceStore.Register(r.Context(), model.VoiceprintRecord{
		EmployeeID: employeeID,
		Name:       name,
		Embedding:  embedding,
	}); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"code": 500, "message": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"code":    200,
		"message": "registered",
		"data": map[string]any{
			"employee_id": employeeID,
			"name":        name,
			"vector_dim":  model.VoiceprintDim,
		},
	})
}

func (d deps) handleHotwordsGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, hotwordStats(d.hotwordTable))
}

func (d deps) handleHotwordsReload(w http.ResponseWriter, r *http.Request) {
	if err := d.hotwordTable.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, hotwordStats(d.hotwordTable))
}

func hotwordStats(table *hotwords.Table) map[string]any {
	snap := table.Snapshot()
	total := 0
	for _, words := range snap.Categories {
		total += len(words)
	}
	return map[string]any{
		"categories": snap.Categories,
		"hotwords":   table.Render(),
		"stats":      map[string]any{"category_count": len(snap.Categories)},
		"total":      total,
	}
}

func (d deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"mode":   "meeting-ingest",
		"providers": map[string]bool{
			"asr":       d.asrProbe == nil || d.asrProbe.Ready(ctx),
			"llm":       d.llmProbe == nil || d.llmProbe.Ready(ctx),
			"embedding": d.embeddingProbe == nil || d.embeddingProbe.Ready(ctx),
			"vector":    d.vectorProbe == nil || d.vectorProbe.Ready(ctx),
		},
	})
}

func httpStatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.BadInput, apperr.UnsupportedFormat, apperr.DurationExceeded, apperr.ContextLength, apperr.VectorDimMismatch:
		return http.StatusBadRequest
	case apperr.UpstreamAuth:
		return http.StatusUnauthorized
	case apperr.UpstreamTimeout, apperr.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case apperr.UpstreamUnavailable:
		return http.StatusBadGateway
	case apperr.Cancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"status": "error", "message": message})
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func parseFloatDefault(v string, fallback float64) float64 {
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseIntDefault(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func parseIntCSV(v string) []int {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func firstFileHeader(r *http.Request, field string) *multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil
	}
	return headers[0]
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func readLocalFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
