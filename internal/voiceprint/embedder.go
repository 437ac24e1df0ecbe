package voiceprint

import (
	"math"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
)

// SpectralEmbedder derives a fixed 192-dim voiceprint from framed log-energy
// spectral bins — a deterministic, dependency-free stand-in for a trained
// speaker-embedding model. No example repo in this corpus links a speaker-
// embedding model (pyannote-style approaches shell out to Python); this
// keeps matching in-process at the cost of discriminative power a trained
// model would have.
type SpectralEmbedder struct{}

// NewSpectralEmbedder creates a SpectralEmbedder.
func NewSpectralEmbedder() *SpectralEmbedder { return &SpectralEmbedder{} }

const (
	frameSize = 512
	hopSize   = 256
)

// Embed computes model.VoiceprintDim mean log-magnitude spectral bins across
// all frames in samples, L2-normalized so embeddings compare by cosine-
// equivalent distance once stored with Euclid distance in the vector store.
func (e *SpectralEmbedder) Embed(samples []float32, sampleRate int) [model.VoiceprintDim]float64 {
	var acc [model.VoiceprintDim]float64
	frames := 0

	for off := 0; off+frameSize <= len(samples); off += hopSize {
		frame := samples[off : off+frameSize]
		bins := logMagnitudeBins(frame, model.VoiceprintDim)
		for i, b := range bins {
			acc[i] += b
		}
		frames++
	}

	if frames == 0 {
		return acc
	}
	for i := range acc {
		acc[i] /= float64(frames)
	}
	return normalize(acc)
}

// logMagnitudeBins computes a naive DFT magnitude spectrum over frame and
// pools it down to nBins log-scaled bands.
func logMagnitudeBins(frame []float32, nBins int) []float64 {
	n := len(frame)
	half := n / 2
	mags := make([]float64, half)

	for k := 0; k < half; k++ {
		var re, im float64
		for t := 0; t < n; t++ {
			angle := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			v := float64(frame[t])
			re += v * math.Cos(angle)
			im += v * math.Sin(angle)
		}
		mags[k] = math.Hypot(re, im)
	}

	bins := make([]float64, nBins)
	binWidth := float64(half) / float64(nBins)
	for b := 0; b < nBins; b++ {
		lo := int(float64(b) * binWidth)
		hi := int(float64(b+1) * binWidth)
		if hi <= lo {
			hi = lo + 1
		}
		if hi > half {
			hi = half
		}
		var sum float64
		count := 0
		for k := lo; k < hi; k++ {
			sum += mags[k]
			count++
		}
		if count > 0 {
			bins[b] = math.Log1p(sum / float64(count))
		}
	}
	return bins
}

func normalize(v [model.VoiceprintDim]float64) [model.VoiceprintDim]float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	if sumSq == 0 {
		return v
	}
	norm := math.Sqrt(sumSq)
	var out [model.VoiceprintDim]float64
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
