// Package voiceprint matches diarized speakers against a registered
// employee voiceprint store: extract the longest contiguous span per
// speaker, embed it, and query the nearest registered voiceprint.
package voiceprint

import (
	"context"
	"log/slog"
	"time"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/metrics"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/providers"
)

// maxMatchSeconds caps the audio window embedded per speaker for matching.
const maxMatchSeconds = 10.0

// Embedder produces a fixed-size voiceprint embedding from raw PCM samples.
type Embedder interface {
	Embed(samples []float32, sampleRate int) [model.VoiceprintDim]float64
}

// Matcher attaches speaker identity to diarized segments.
type Matcher struct {
	store     providers.VoiceprintStore
	embedder  Embedder
	threshold float64
}

// New creates a Matcher. threshold is the minimum cosine-equivalent
// similarity (post L2-distance conversion) required to accept a match.
func New(store providers.VoiceprintStore, embedder Embedder, threshold float64) *Matcher {
	return &Matcher{store: store, embedder: embedder, threshold: threshold}
}

// Match attaches SpeakerName/EmployeeID/VoiceSimilarity to every segment
// belonging to a speaker whose longest span matches a registered voiceprint
// at or above threshold. Failure to match, or the voiceprint store being empty,
// is non-fatal: segments are returned unmodified in that case.
func (m *Matcher) Match(ctx context.Context, segments []model.TranscriptSegment, samples []float32, sampleRate int) []model.TranscriptSegment {
	if m.store == nil || m.embedder == nil {
		return segments
	}

	count, err := m.store.Count(ctx)
	if err != nil {
		slog.Warn("voiceprint store count failed, skipping match", "error", err)
		return segments
	}
	if count == 0 {
		return segments
	}

	longest := longestSpanPerSpeaker(segments)
	out := append([]model.TranscriptSegment(nil), segments...)

	for speaker, span := range longest {
		m.matchSpeaker(ctx, speaker, span, samples, sampleRate, out)
	}
	return out
}

func (m *Matcher) matchSpeaker(ctx context.Context, speaker int, span spanRange, samples []float32, sampleRate int, out []model.TranscriptSegment) {
	start := time.Now()
	clip := clipSamples(samples, sampleRate, span.start, span.end, maxMatchSeconds)
	if len(clip) == 0 {
		return
	}

	embedding := m.embedder.Embed(clip, sampleRate)

	hit, ok, err := m.store.MatchTop1(ctx, embedding)
	metrics.StageDuration.WithLabelValues("voiceprint_match").Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("voiceprint match failed", "speaker", speaker, "error", err)
		metrics.VoiceMatchAttempts.WithLabelValues("error").Inc()
		return
	}
	if !ok || hit.Similarity < m.threshold {
		metrics.VoiceMatchAttempts.WithLabelValues("no_match").Inc()
		return
	}
	metrics.VoiceMatchAttempts.WithLabelValues("matched").Inc()

	name, _ := hit.Metadata["text"].(string)
	employeeID, _ := hit.Metadata["employee_id"].(string)
	similarity := hit.Similarity

	for i := range out {
		if out[i].SpeakerID == speaker {
			out[i].SpeakerName = name
			out[i].EmployeeID = employeeID
			sim := similarity
			out[i].VoiceSimilarity = &sim
		}
	}
}

type spanRange struct {
	start, end float64
}

// longestSpanPerSpeaker returns the single longest contiguous segment for
// each distinct speaker id — the clip most likely to carry a clean, single-
// speaker voiceprint sample.
func longestSpanPerSpeaker(segments []model.TranscriptSegment) map[int]spanRange {
	best := map[int]spanRange{}
	for _, s := range segments {
		dur := s.EndS - s.StartS
		if dur <= 0 {
			continue
		}
		cur, ok := best[s.SpeakerID]
		if !ok || dur > cur.end-cur.start {
			best[s.SpeakerID] = spanRange{start: s.StartS, end: s.EndS}
		}
	}
	return best
}

// clipSamples extracts up to maxSeconds of audio from [startS, endS],
// trimming a longer span equally at both ends so the clip stays centred.
func clipSamples(samples []float32, sampleRate int, startS, endS, maxSeconds float64) []float32 {
	if endS-startS > maxSeconds {
		mid := (startS + endS) / 2
		startS = mid - maxSeconds/2
		endS = mid + maxSeconds/2
	}
	startIdx := int(startS * float64(sampleRate))
	endIdx := int(endS * float64(sampleRate))
	if startIdx < 0 {
		startIdx = 0
	}
	if endIdx > len(samples) {
		endIdx = len(samples)
	}
	if startIdx >= endIdx {
		return nil
	}
	return samples[startIdx:endIdx]
}
