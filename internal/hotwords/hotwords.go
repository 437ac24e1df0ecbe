// Package hotwords loads and renders the hotword table the ASR engine (C6)
// biases recognition with, supporting an atomic hot-reload from disk so a
// running pipeline never serves a half-updated table.
package hotwords

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/metrics"
	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
)

// maxRenderedChars caps the rendered hotword blob passed to the ASR backend.
const maxRenderedChars = 4096

// fileFormat mirrors the on-disk JSON document: category -> words, plus an
// optional per-category alias -> canonical mapping.
type fileFormat struct {
	Categories map[string][]string          `json:"categories"`
	Mappings   map[string]map[string]string `json:"mappings,omitempty"`
}

// Table holds a loaded hotword document plus the path it was loaded from,
// with hot reload guarded by an atomic pointer swap rather than a mutex —
// readers never block on a concurrent reload.
type Table struct {
	path string
	ptr  atomic.Pointer[model.HotwordTable]
}

// New loads the hotword table at path. An empty path yields an always-empty
// table: callers render "" and the ASR engine proceeds without biasing.
func New(path string) (*Table, error) {
	t := &Table{path: path}
	if path == "" {
		t.ptr.Store(&model.HotwordTable{Categories: map[string][]string{}, Mappings: map[string]map[string]string{}})
		return t, nil
	}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads the table from disk and atomically swaps it in. A
// malformed file leaves the previously loaded table in place.
func (t *Table) Reload() error {
	if t.path == "" {
		return nil
	}
	data, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("read hotword file: %w", err)
	}

	var ff fileFormat
	if err = json.Unmarshal(data, &ff); err != nil {
		return fmt.Errorf("parse hotword file: %w", err)
	}

	snapshot := &model.HotwordTable{
		Categories: ff.Categories,
		Mappings:   ff.Mappings,
	}
	if snapshot.Categories == nil {
		snapshot.Categories = map[string][]string{}
	}
	if snapshot.Mappings == nil {
		snapshot.Mappings = map[string]map[string]string{}
	}

	t.ptr.Store(snapshot)
	metrics.HotwordReloadsTotal.Inc()
	return nil
}

// Snapshot returns the currently loaded table. Safe for concurrent use with
// Reload — it always observes either the old or the new table, never a mix.
func (t *Table) Snapshot() *model.HotwordTable {
	return t.ptr.Load()
}

// Render flattens the current table into the bias string the ASR providers
// accept, sorted for determinism and capped at maxRenderedChars. When the
// cap would be exceeded, whole categories are dropped from the tail rather
// than truncating mid-word.
func (t *Table) Render() string {
	snap := t.Snapshot()
	if snap == nil || len(snap.Categories) == 0 {
		return ""
	}

	categories := make([]string, 0, len(snap.Categories))
	for c := range snap.Categories {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var b strings.Builder
	for _, cat := range categories {
		words := snap.Categories[cat]
		if len(words) == 0 {
			continue
		}
		candidate := strings.Join(words, ",")
		if b.Len() > 0 {
			candidate = "," + candidate
		}
		if b.Len()+len(candidate) > maxRenderedChars {
			break
		}
		b.WriteString(candidate)
	}
	return b.String()
}

// Canonicalize resolves word to its canonical form within category via the
// alias mapping, returning word unchanged if no mapping applies.
func (t *Table) Canonicalize(category, word string) string {
	snap := t.Snapshot()
	if snap == nil {
		return word
	}
	m, ok := snap.Mappings[category]
	if !ok {
		return word
	}
	if canon, ok := m[strings.ToLower(word)]; ok {
		return canon
	}
	return word
}
