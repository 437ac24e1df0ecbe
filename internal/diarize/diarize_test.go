package diarize

import (
	"testing"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
)

func densespeakerIDs(segs []model.TranscriptSegment) map[int]bool {
	ids := map[int]bool{}
	for _, s := range segs {
		ids[s.SpeakerID] = true
	}
	return ids
}

func TestSegmentAssignsMajorityOverlapSpeaker(t *testing.T) {
	raw := []model.TranscriptSegment{
		{Text: "hello there", StartS: 0, EndS: 2},
		{Text: "general kenobi", StartS: 2, EndS: 4},
	}
	diarization := []model.TranscriptSegment{
		{StartS: 0, EndS: 1.9, SpeakerID: 7},
		{StartS: 1.9, EndS: 4, SpeakerID: 3},
	}

	out := assignSpeakers(raw, diarization)
	if len(out) != 2 {
		t.Fatalf("assignSpeakers() returned %d segments, want 2", len(out))
	}
	if out[0].SpeakerID != 7 {
		t.Errorf("segment 0 speaker = %d, want 7 (majority overlap)", out[0].SpeakerID)
	}
	if out[1].SpeakerID != 3 {
		t.Errorf("segment 1 speaker = %d, want 3 (majority overlap)", out[1].SpeakerID)
	}
}

func TestAssignSpeakersNoOpWithoutDiarizationTags(t *testing.T) {
	turns := []model.TranscriptSegment{{Text: "a", StartS: 0, EndS: 1}}
	out := assignSpeakers(turns, nil)
	if out[0].SpeakerID != 0 {
		t.Errorf("speaker id = %d, want 0 (untouched default)", out[0].SpeakerID)
	}
}

func TestRemapDenseProducesZeroBasedContiguousRange(t *testing.T) {
	turns := []model.TranscriptSegment{
		{SpeakerID: 9},
		{SpeakerID: 2},
		{SpeakerID: 9},
		{SpeakerID: 5},
	}
	out := remapDense(turns)

	ids := densespeakerIDs(out)
	for i := 0; i < len(ids); i++ {
		if !ids[i] {
			t.Errorf("remapDense() ids = %v, missing expected dense id %d", ids, i)
		}
	}
	if len(ids) != 3 {
		t.Fatalf("remapDense() produced %d distinct ids, want 3", len(ids))
	}
	// first-appearance order: 9 -> 0, 2 -> 1, 5 -> 2
	want := []int{0, 1, 0, 2}
	for i, w := range want {
		if out[i].SpeakerID != w {
			t.Errorf("out[%d].SpeakerID = %d, want %d", i, out[i].SpeakerID, w)
		}
	}
}

func TestMajorityOverlapSpeakerFallsBackToNearestMidpointOnNoOverlap(t *testing.T) {
	turn := model.TranscriptSegment{StartS: 10, EndS: 11}
	diarized := []model.TranscriptSegment{
		{StartS: 0, EndS: 2, SpeakerID: 1},   // midpoint 1, far
		{StartS: 8, EndS: 9, SpeakerID: 2},   // midpoint 8.5, closest
		{StartS: 20, EndS: 22, SpeakerID: 3}, // midpoint 21, far
	}
	if got := majorityOverlapSpeaker(turn, diarized); got != 2 {
		t.Errorf("majorityOverlapSpeaker() = %d, want 2 (nearest midpoint)", got)
	}
}

func TestMajorityOverlapSpeakerTieBreaksByEarlierStart(t *testing.T) {
	turn := model.TranscriptSegment{StartS: 0, EndS: 4}
	diarized := []model.TranscriptSegment{
		{StartS: 2, EndS: 4, SpeakerID: 9}, // 2s overlap, starts at 2
		{StartS: 0, EndS: 2, SpeakerID: 4}, // 2s overlap, starts at 0 (earlier)
	}
	if got := majorityOverlapSpeaker(turn, diarized); got != 4 {
		t.Errorf("majorityOverlapSpeaker() = %d, want 4 (earlier t_start wins tie)", got)
	}
}

func TestMajorityOverlapSpeakerIsDeterministicAcrossCalls(t *testing.T) {
	turn := model.TranscriptSegment{StartS: 0, EndS: 4}
	diarized := []model.TranscriptSegment{
		{StartS: 0, EndS: 2, SpeakerID: 4},
		{StartS: 2, EndS: 4, SpeakerID: 9},
	}
	first := majorityOverlapSpeaker(turn, diarized)
	for i := 0; i < 20; i++ {
		if got := majorityOverlapSpeaker(turn, diarized); got != first {
			t.Fatalf("majorityOverlapSpeaker() not deterministic: got %d then %d", first, got)
		}
	}
}

func TestOverlapSeconds(t *testing.T) {
	cases := []struct {
		aStart, aEnd, bStart, bEnd float64
		want                       float64
	}{
		{0, 2, 1, 3, 1},
		{0, 1, 1, 2, 0},
		{0, 5, 1, 2, 1},
		{2, 2, 0, 5, 0},
	}
	for _, c := range cases {
		if got := overlapSeconds(c.aStart, c.aEnd, c.bStart, c.bEnd); got != c.want {
			t.Errorf("overlapSeconds(%v,%v,%v,%v) = %v, want %v", c.aStart, c.aEnd, c.bStart, c.bEnd, got, c.want)
		}
	}
}

func TestSegmentWithoutVADNeedDoesNotMutateTiming(t *testing.T) {
	raw := []model.TranscriptSegment{
		{Text: "a", StartS: 0, EndS: 1, SpeakerID: 0},
		{Text: "b", StartS: 1, EndS: 2, SpeakerID: 1},
	}
	out := Segment(raw, nil, 16000)
	if len(out) != 2 {
		t.Fatalf("Segment() returned %d segments, want 2", len(out))
	}
	if out[0].StartS != 0 || out[1].EndS != 2 {
		t.Errorf("Segment() altered timing: %+v", out)
	}
	ids := densespeakerIDs(out)
	if len(ids) != 2 || !ids[0] || !ids[1] {
		t.Errorf("Segment() ids = %v, want dense {0,1}", ids)
	}
}

func TestNeedsVADSegmentation(t *testing.T) {
	if needsVADSegmentation(nil) {
		t.Error("needsVADSegmentation(nil) = true, want false")
	}
	if needsVADSegmentation([]model.TranscriptSegment{{StartS: 0, EndS: 0}, {StartS: 0, EndS: 1}}) {
		t.Error("needsVADSegmentation(2 segs) = true, want false")
	}
	if !needsVADSegmentation([]model.TranscriptSegment{{StartS: 0, EndS: 0}}) {
		t.Error("needsVADSegmentation(1 untimed seg) = false, want true")
	}
	if needsVADSegmentation([]model.TranscriptSegment{{StartS: 0, EndS: 2}}) {
		t.Error("needsVADSegmentation(1 timed seg) = true, want false")
	}
}
