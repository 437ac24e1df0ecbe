// Package diarize segments an ASR transcript into speaker turns. It reuses
// the VAD's energy-based segmentation to find speech boundaries when the ASR
// provider returned no timing of its own, then assigns a speaker to each
// turn by majority vote of whichever diarization-tagged spans overlap it,
// finally remapping speaker ids to a dense 0..N-1 range.
package diarize

import (
	"math"
	"sort"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/audio"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
)

// Segment segments transcript turns against raw samples when the ASR
// response carried no per-segment timing, then assigns speakers to every
// turn by overlap-majority vote against rawSegments (the ASR's own
// diarization tags, if it produced any), and remaps speaker ids densely.
func Segment(rawSegments []model.TranscriptSegment, samples []float32, sampleRate int) []model.TranscriptSegment {
	turns := rawSegments
	if needsVADSegmentation(rawSegments) {
		turns = segmentByVAD(samples, sampleRate, rawSegments)
	}

	assigned := assignSpeakers(turns, rawSegments)
	return remapDense(assigned)
}

// needsVADSegmentation reports whether the ASR response gave us a single
// blob of text with no real timing boundaries to work from.
func needsVADSegmentation(segs []model.TranscriptSegment) bool {
	if len(segs) != 1 {
		return false
	}
	return segs[0].StartS == 0 && segs[0].EndS == 0
}

// segmentByVAD re-derives turn boundaries from the raw audio energy and
// assigns the full ASR text to each resulting speech span proportionally to
// its share of total speech duration — a best-effort split when the ASR
// backend produced no internal segmentation at all.
func segmentByVAD(samples []float32, sampleRate int, original []model.TranscriptSegment) []model.TranscriptSegment {
	if len(samples) == 0 || len(original) == 0 {
		return original
	}

	cfg := audio.DefaultVADConfig()
	cfg.SampleRate = sampleRate
	vad := audio.NewVAD(cfg)

	const chunkSize = 160 // 10ms @ 16kHz
	var spans []model.TranscriptSegment
	var offsetSamples int

	emit := func(audioSamples []float32, endSample int) {
		startS := float64(endSample-len(audioSamples)) / float64(sampleRate)
		endSec := float64(endSample) / float64(sampleRate)
		spans = append(spans, model.TranscriptSegment{StartS: startS, EndS: endSec})
	}

	for offsetSamples < len(samples) {
		end := offsetSamples + chunkSize
		if end > len(samples) {
			end = len(samples)
		}
		result := vad.Process(samples[offsetSamples:end])
		if result.SpeechEnded {
			emit(result.Audio, end)
		}
		offsetSamples = end
	}
	if tail := vad.Flush(); len(tail) > 0 {
		emit(tail, len(samples))
	}

	if len(spans) == 0 {
		return original
	}

	fullText := original[0].Text
	return distributeText(spans, fullText)
}

// distributeText splits fullText across spans proportionally to each span's
// duration share, on whitespace boundaries, approximating per-turn text when
// the ASR backend gave none.
func distributeText(spans []model.TranscriptSegment, fullText string) []model.TranscriptSegment {
	words := splitWords(fullText)
	if len(words) == 0 {
		return spans
	}

	var totalDur float64
	for _, s := range spans {
		totalDur += s.EndS - s.StartS
	}
	if totalDur <= 0 {
		return spans
	}

	wordIdx := 0
	for i := range spans {
		share := (spans[i].EndS - spans[i].StartS) / totalDur
		n := int(share * float64(len(words)))
		if i == len(spans)-1 {
			n = len(words) - wordIdx
		}
		end := wordIdx + n
		if end > len(words) {
			end = len(words)
		}
		spans[i].Text = joinWords(words[wordIdx:end])
		wordIdx = end
	}
	return spans
}

func splitWords(s string) []string {
	var words []string
	var cur []byte
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\t' || s[i] == '\n' {
			if len(cur) > 0 {
				words = append(words, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, s[i])
	}
	if len(cur) > 0 {
		words = append(words, string(cur))
	}
	return words
}

func joinWords(words []string) string {
	out := ""
	for i, w := range words {
		if i > 0 {
			out += " "
		}
		out += w
	}
	return out
}

// assignSpeakers assigns each turn the speaker id of whichever diarization
// span (from the original ASR response) overlaps it most in time. A turn
// with no overlapping diarization span takes the speaker of the nearest span
// by midpoint (see majorityOverlapSpeaker). If no diarized span has positive
// length, turns are returned unchanged.
func assignSpeakers(turns []model.TranscriptSegment, diarized []model.TranscriptSegment) []model.TranscriptSegment {
	hasDiarization := false
	for _, d := range diarized {
		if d.EndS > d.StartS {
			hasDiarization = true
			break
		}
	}
	if !hasDiarization {
		return turns
	}

	out := make([]model.TranscriptSegment, len(turns))
	for i, t := range turns {
		out[i] = t
		out[i].SpeakerID = majorityOverlapSpeaker(t, diarized)
	}
	return out
}

// majorityOverlapSpeaker picks the speaker whose diarization spans have the
// greatest total time overlap with turn. If no span overlaps turn at all, it
// falls back to the speaker of the nearest span by midpoint distance. Ties
// are broken deterministically by the earlier t_start among the candidate
// spans, so the result depends only on the ASR output, never map iteration
// order.
func majorityOverlapSpeaker(turn model.TranscriptSegment, diarized []model.TranscriptSegment) int {
	type overlapAcc struct {
		total    float64
		earliest float64
	}
	overlap := map[int]*overlapAcc{}
	for _, d := range diarized {
		o := overlapSeconds(turn.StartS, turn.EndS, d.StartS, d.EndS)
		if o <= 0 {
			continue
		}
		a, ok := overlap[d.SpeakerID]
		if !ok {
			a = &overlapAcc{earliest: d.StartS}
			overlap[d.SpeakerID] = a
		} else if d.StartS < a.earliest {
			a.earliest = d.StartS
		}
		a.total += o
	}

	if len(overlap) == 0 {
		return nearestByMidpoint(turn, diarized)
	}

	ids := make([]int, 0, len(overlap))
	for id := range overlap {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	best := ids[0]
	bestAcc := overlap[best]
	for _, id := range ids[1:] {
		a := overlap[id]
		if a.total > bestAcc.total || (a.total == bestAcc.total && a.earliest < bestAcc.earliest) {
			best, bestAcc = id, a
		}
	}
	return best
}

// nearestByMidpoint assigns turn the speaker of the diarization span whose
// midpoint is closest to turn's own midpoint, used when no span overlaps
// turn in time at all. Ties are broken by the earlier t_start.
func nearestByMidpoint(turn model.TranscriptSegment, diarized []model.TranscriptSegment) int {
	turnMid := (turn.StartS + turn.EndS) / 2

	best := 0
	bestDist := math.MaxFloat64
	bestStart := 0.0
	set := false
	for _, d := range diarized {
		if d.EndS <= d.StartS {
			continue
		}
		dist := math.Abs(turnMid - (d.StartS+d.EndS)/2)
		if !set || dist < bestDist || (dist == bestDist && d.StartS < bestStart) {
			best, bestDist, bestStart = d.SpeakerID, dist, d.StartS
			set = true
		}
	}
	return best
}

func overlapSeconds(aStart, aEnd, bStart, bEnd float64) float64 {
	lo := max(aStart, bStart)
	hi := min(aEnd, bEnd)
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// remapDense renumbers speaker ids to a dense 0..N-1 range in first-
// appearance order, so downstream consumers never see gaps.
func remapDense(turns []model.TranscriptSegment) []model.TranscriptSegment {
	mapping := map[int]int{}
	next := 0
	for _, t := range turns {
		if _, ok := mapping[t.SpeakerID]; !ok {
			mapping[t.SpeakerID] = next
			next++
		}
	}

	out := make([]model.TranscriptSegment, len(turns))
	for i, t := range turns {
		out[i] = t
		out[i].SpeakerID = mapping[t.SpeakerID]
	}
	return out
}
