package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/metrics"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
)

// FunASRProvider sends raw audio bytes to a FunASR-compatible HTTP server.
// Grounded on the teacher's whisper.cpp multipart client.
type FunASRProvider struct {
	url    string
	client *http.Client
}

// NewFunASRProvider creates a client pointing at a FunASR server URL.
func NewFunASRProvider(url string, poolSize int) *FunASRProvider {
	return &FunASRProvider{
		url:    url,
		client: NewPooledHTTPClient(poolSize, 2*time.Hour),
	}
}

func (c *FunASRProvider) RequiresURL() bool { return false }

func (c *FunASRProvider) Ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Recognize uploads the audio blob as multipart/form-data and parses the
// segmented JSON response FunASR-compatible servers return when diarization
// or timestamping is requested.
func (c *FunASRProvider) Recognize(ctx context.Context, audio []byte, opts ASROptions) (string, []model.TranscriptSegment, error) {
	start := time.Now()

	body, contentType, err := buildMultipartAudio(audio, opts)
	if err != nil {
		return "", nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/inference", body)
	if err != nil {
		return "", nil, fmt.Errorf("create asr request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("asr", "http").Inc()
		return "", nil, fmt.Errorf("asr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.Errors.WithLabelValues("asr", "status").Inc()
		return "", nil, fmt.Errorf("asr status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed funasrResponse
	if err = json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", nil, fmt.Errorf("decode asr response: %w", err)
	}

	metrics.StageDuration.WithLabelValues("asr").Observe(time.Since(start).Seconds())

	segments := make([]model.TranscriptSegment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		segments = append(segments, model.TranscriptSegment{
			Text:      s.Text,
			StartS:    s.Start,
			EndS:      s.End,
			SpeakerID: s.Speaker,
		})
	}
	if len(segments) == 0 && parsed.Text != "" {
		// No per-segment timing from the server; C4 diarization segments
		// this further from the raw audio when diarization is enabled.
		segments = append(segments, model.TranscriptSegment{Text: parsed.Text})
	}
	return parsed.Text, segments, nil
}

func buildMultipartAudio(audio []byte, opts ASROptions) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err = part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write audio data: %w", err)
	}
	if opts.HotwordBlob != "" {
		_ = writer.WriteField("hotword", opts.HotwordBlob)
	}
	if opts.LanguageHint != "" {
		_ = writer.WriteField("language", opts.LanguageHint)
	}
	_ = writer.WriteField("enable_punctuation", boolStr(opts.EnablePunctuation))
	_ = writer.WriteField("enable_diarization", boolStr(opts.EnableDiarization))

	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

type funasrSegment struct {
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker int     `json:"speaker"`
}

type funasrResponse struct {
	Text     string          `json:"text"`
	Segments []funasrSegment `json:"segments"`
}

// TencentASRProvider calls a Tencent Cloud ASR-compatible endpoint that only
// accepts a fetchable URL, never raw bytes — RequiresURL reports true so C6
// rejects local-bytes-only input with apperr.UnsupportedFormat instead of
// silently downgrading.
type TencentASRProvider struct {
	url    string
	secret string
	client *http.Client
}

// NewTencentASRProvider creates a Tencent Cloud ASR client.
func NewTencentASRProvider(url, secret string, poolSize int) *TencentASRProvider {
	return &TencentASRProvider{
		url:    url,
		secret: secret,
		client: NewPooledHTTPClient(poolSize, 2*time.Hour),
	}
}

func (c *TencentASRProvider) RequiresURL() bool { return true }

func (c *TencentASRProvider) Ready(ctx context.Context) bool {
	return c.secret != ""
}

// Recognize expects audio to carry a UTF-8 encoded URL — the ASR engine (C6)
// is responsible for routing URL-kind AudioSource here rather than bytes.
func (c *TencentASRProvider) Recognize(ctx context.Context, audio []byte, opts ASROptions) (string, []model.TranscriptSegment, error) {
	body, err := json.Marshal(map[string]any{
		"url":                string(audio),
		"hotword":            opts.HotwordBlob,
		"enable_diarization": opts.EnableDiarization,
		"enable_punctuation": opts.EnablePunctuation,
	})
	if err != nil {
		return "", nil, fmt.Errorf("marshal tencent asr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/asr/v1/recognize", bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("create tencent asr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("asr", "http").Inc()
		return "", nil, fmt.Errorf("tencent asr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.Errors.WithLabelValues("asr", "status").Inc()
		return "", nil, fmt.Errorf("tencent asr status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed funasrResponse
	if err = json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", nil, fmt.Errorf("decode tencent asr response: %w", err)
	}

	segments := make([]model.TranscriptSegment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		segments = append(segments, model.TranscriptSegment{Text: s.Text, StartS: s.Start, EndS: s.End, SpeakerID: s.Speaker})
	}
	return parsed.Text, segments, nil
}
