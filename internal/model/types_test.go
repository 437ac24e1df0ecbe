package model

import "testing"

func TestBuildFullTextJoinsWithSingleSpace(t *testing.T) {
	segs := []TranscriptSegment{
		{Text: "hello"},
		{Text: "world"},
		{Text: "again"},
	}
	if got := BuildFullText(segs); got != "hello world again" {
		t.Errorf("BuildFullText() = %q, want %q", got, "hello world again")
	}
}

func TestBuildFullTextEmpty(t *testing.T) {
	if got := BuildFullText(nil); got != "" {
		t.Errorf("BuildFullText(nil) = %q, want empty", got)
	}
}

func TestBuildFullTextSingleSegment(t *testing.T) {
	segs := []TranscriptSegment{{Text: "only one"}}
	if got := BuildFullText(segs); got != "only one" {
		t.Errorf("BuildFullText() = %q, want %q", got, "only one")
	}
}
