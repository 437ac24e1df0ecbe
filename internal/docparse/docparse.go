// Package docparse extracts plain text from uploaded documents: .txt
// directly, .docx via go-docx, .pdf via ledongthuc/pdf. Unknown extensions
// are rejected as apperr.UnsupportedFormat rather than guessed at.
package docparse

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/apperr"
)

// Parse extracts normalized plain text from a document identified by
// filename (for extension sniffing) and its raw bytes.
func Parse(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".md":
		return normalize(string(data)), nil
	case ".docx":
		text, err := parseDocx(data)
		if err != nil {
			return "", apperr.New(apperr.BadInput, "docparse.Parse", err)
		}
		return normalize(text), nil
	case ".pdf":
		text, err := parsePDF(data)
		if err != nil {
			return "", apperr.New(apperr.BadInput, "docparse.Parse", err)
		}
		return normalize(text), nil
	default:
		return "", apperr.New(apperr.UnsupportedFormat, "docparse.Parse",
			fmt.Errorf("unsupported document extension %q", ext))
	}
}

func parseDocx(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer doc.Close()

	var b strings.Builder
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		b.WriteString(para.String())
		b.WriteString("\n")
	}
	return b.String(), nil
}

func parsePDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// normalize collapses runs of more than two consecutive blank lines down to
// two, matching the lossless-aside-from-whitespace contract the rest of the
// pipeline assumes for raw_text.
func normalize(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blankRun := 0
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t\r")
		if trimmed == "" {
			blankRun++
			if blankRun > 2 {
				continue
			}
		} else {
			blankRun = 0
		}
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
