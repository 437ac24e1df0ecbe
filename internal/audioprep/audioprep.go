// Package audioprep normalizes raw uploaded audio into the 16 kHz mono PCM
// shape the ASR engine expects: decode the uploaded WAV container, resample,
// and optionally run it through a denoiser and an external band-pass and
// loudness-normalization tool. Every optional stage degrades to passthrough on
// failure rather than aborting the pipeline.
package audioprep

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"time"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/audio"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/denoise"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/metrics"
)

const targetSampleRate = 16000

// Denoiser is the narrow interface audioprep depends on, satisfied by
// *denoise.Denoiser.
type Denoiser interface {
	Denoise(samples []float32) []float32
}

// Options controls which optional stages run.
type Options struct {
	Denoise        bool
	LoudnessNormalize bool
}

// Preparer decodes, resamples, and optionally denoises/normalizes audio.
type Preparer struct {
	denoiser   Denoiser
	ffmpegPath string
	httpClient *http.Client
}

// New creates a Preparer. ffmpegPath is the external loudness-normalization
// binary; an empty path disables that stage (LoudnessNormalizeReady reports
// it unavailable).
func New(denoiser Denoiser, ffmpegPath string) *Preparer {
	return &Preparer{denoiser: denoiser, ffmpegPath: ffmpegPath, httpClient: &http.Client{Timeout: 2 * time.Minute}}
}

// NewWithRNNoise wires the cgo RNNoise denoiser.
func NewWithRNNoise(ffmpegPath string) *Preparer {
	return New(denoise.New(), ffmpegPath)
}

// LoudnessNormalizeReady reports whether the external tool is on PATH.
func (p *Preparer) LoudnessNormalizeReady() bool {
	if p.ffmpegPath == "" {
		return false
	}
	_, err := exec.LookPath(p.ffmpegPath)
	return err == nil
}

// Prepare decodes raw audio bytes (WAV container) into mono float32 PCM at
// 16 kHz, applying the requested optional stages. It returns the resampled
// samples and the WAV-encoded bytes ready for an ASR provider.
func (p *Preparer) Prepare(ctx context.Context, raw []byte, opts Options) ([]float32, []byte, error) {
	start := time.Now()
	defer func() { metrics.StageDuration.WithLabelValues("audioprep").Observe(time.Since(start).Seconds()) }()

	samples, sourceRate, err := decodeWAV(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decode audio: %w", err)
	}

	if sourceRate != targetSampleRate {
		samples = audio.Resample(samples, sourceRate, targetSampleRate)
	}

	if opts.Denoise && p.denoiser != nil {
		samples = p.safeDenoise(samples)
	}

	encoded := audio.SamplesToWAV(samples, targetSampleRate)

	if opts.LoudnessNormalize && p.LoudnessNormalizeReady() {
		if normalized, normErr := p.runLoudnessNormalize(ctx, encoded); normErr == nil {
			encoded = normalized
		} else {
			slog.Warn("loudness normalization failed, passing through", "error", normErr)
		}
	}

	return samples, encoded, nil
}

// ProbeDurationSeconds fetches audio from url, reads the whole body and
// decodes it as WAV to report its duration, without running any of the
// optional Prepare stages. Used to enforce the duration cap on
// URL-sourced audio that the ASR backend fetches itself.
func (p *Preparer) ProbeDurationSeconds(ctx context.Context, url string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch audio for duration probe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch audio for duration probe: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read audio for duration probe: %w", err)
	}

	samples, sourceRate, err := decodeWAV(raw)
	if err != nil {
		return 0, fmt.Errorf("decode audio for duration probe: %w", err)
	}
	if sourceRate <= 0 {
		return 0, fmt.Errorf("decode audio for duration probe: invalid sample rate")
	}
	return float64(len(samples)) / float64(sourceRate), nil
}

// safeDenoise recovers from a panicking cgo call so a bad frame never takes
// down the request; it returns the original samples unchanged on failure.
func (p *Preparer) safeDenoise(samples []float32) (out []float32) {
	out = samples
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("denoise stage failed, passing through", "panic", r)
			out = samples
		}
	}()
	return p.denoiser.Denoise(samples)
}

// runLoudnessNormalize shells out to ffmpeg via temp files, applying a 200 Hz
// high-pass, a 3000 Hz low-pass and loudnorm and writing 16 kHz mono output,
// cleaning both files up unconditionally.
func (p *Preparer) runLoudnessNormalize(ctx context.Context, wavBytes []byte) ([]byte, error) {
	inFile, err := os.CreateTemp("", "audioprep-in-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp input: %w", err)
	}
	defer os.Remove(inFile.Name())

	if _, err = inFile.Write(wavBytes); err != nil {
		inFile.Close()
		return nil, fmt.Errorf("write temp input: %w", err)
	}
	inFile.Close()

	outFile, err := os.CreateTemp("", "audioprep-out-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp output: %w", err)
	}
	outPath := outFile.Name()
	outFile.Close()
	defer os.Remove(outPath)

	cmd := exec.CommandContext(ctx, p.ffmpegPath, "-y", "-i", inFile.Name(), "-af", "highpass=f=200,lowpass=f=3000,loudnorm", "-ar", "16000", "-ac", "1", outPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err = cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg loudnorm: %w: %s", err, stderr.String())
	}

	return os.ReadFile(outPath)
}

// decodeWAV decodes a WAV byte slice to mono float32 PCM using go-audio/wav,
// downmixing stereo by averaging channels.
func decodeWAV(raw []byte) ([]float32, int, error) {
	decoder := gowav.NewDecoder(bytes.NewReader(raw))
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("not a valid wav file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode pcm buffer: %w", err)
	}

	samples := toMonoFloat32(buf)
	return samples, int(decoder.SampleRate), nil
}

func toMonoFloat32(buf *goaudio.IntBuffer) []float32 {
	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	frameCount := len(buf.Data) / channels
	maxVal := float32(int(1) << (buf.SourceBitDepth - 1))
	if buf.SourceBitDepth == 0 {
		maxVal = float32(1 << 15)
	}

	out := make([]float32, frameCount)
	for i := 0; i < frameCount; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c]) / maxVal
		}
		out[i] = sum / float32(channels)
	}
	return out
}
