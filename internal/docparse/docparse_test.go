package docparse

import (
	"testing"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/apperr"
)

func TestParseTxtPassesThroughNormalized(t *testing.T) {
	text, err := Parse("notes.txt", []byte("line one\n\n\n\nline two  \n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := "line one\n\n\nline two"
	if text != want {
		t.Errorf("Parse() = %q, want %q", text, want)
	}
}

func TestParseMdUsesSameTxtPath(t *testing.T) {
	text, err := Parse("MINUTES.MD", []byte("# Heading\ncontent"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if text != "# Heading\ncontent" {
		t.Errorf("Parse() = %q, want unchanged content", text)
	}
}

func TestParseUnsupportedExtension(t *testing.T) {
	_, err := Parse("audio.wav", []byte{0x00})
	if err == nil {
		t.Fatal("Parse() with unsupported extension: want error, got nil")
	}
	if kind := apperr.KindOf(err); kind != apperr.UnsupportedFormat {
		t.Errorf("KindOf(err) = %v, want %v", kind, apperr.UnsupportedFormat)
	}
}

func TestParseExtensionIsCaseInsensitive(t *testing.T) {
	_, err := Parse("report.TXT", []byte("hello"))
	if err != nil {
		t.Fatalf("Parse() with uppercase extension: error = %v", err)
	}
}

func TestNormalizeCollapsesBlankRunsAndTrimsTrailingWhitespace(t *testing.T) {
	in := "a  \n\n\n\nb\t\n\nc\n\n\n\n\n"
	got := normalize(in)
	want := "a\n\n\nb\n\nc"
	if got != want {
		t.Errorf("normalize() = %q, want %q", got, want)
	}
}

func TestNormalizeTrimsLeadingAndTrailingBlankLines(t *testing.T) {
	got := normalize("\n\n\ncontent\n\n\n")
	if got != "content" {
		t.Errorf("normalize() = %q, want %q", got, "content")
	}
}
