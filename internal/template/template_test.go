package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
)

func TestResolvePresetByID(t *testing.T) {
	resolved, err := Resolve(Request{PresetID: "standup"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Kind != model.TemplatePreset {
		t.Errorf("Kind = %v, want %v", resolved.Kind, model.TemplatePreset)
	}
	if resolved.System != presets["standup"] {
		t.Errorf("System = %q, want the standup preset text", resolved.System)
	}
}

func TestResolveUnknownPresetErrors(t *testing.T) {
	if _, err := Resolve(Request{PresetID: "no-such-preset"}); err == nil {
		t.Fatal("Resolve() with unknown preset: want error, got nil")
	}
}

func TestResolveDefaultsWhenNoFieldSet(t *testing.T) {
	resolved, err := Resolve(Request{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.System != presets[defaultPresetName] {
		t.Errorf("System = %q, want default preset", resolved.System)
	}
}

func TestResolveFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.txt")
	if err := os.WriteFile(path, []byte("  Custom system prompt.  \n"), 0o644); err != nil {
		t.Fatalf("write template file: %v", err)
	}

	resolved, err := Resolve(Request{FilePath: path})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Kind != model.TemplateFile {
		t.Errorf("Kind = %v, want %v", resolved.Kind, model.TemplateFile)
	}
	if resolved.System != "Custom system prompt." {
		t.Errorf("System = %q, want trimmed file content", resolved.System)
	}
}

func TestResolveFromFileMissingErrors(t *testing.T) {
	if _, err := Resolve(Request{FilePath: "/no/such/path.txt"}); err == nil {
		t.Fatal("Resolve() with missing file: want error, got nil")
	}
}

func TestResolveFromInlineJSON(t *testing.T) {
	resolved, err := Resolve(Request{InlineJSON: `{"system": "Inline prompt."}`})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Kind != model.TemplateJSON {
		t.Errorf("Kind = %v, want %v", resolved.Kind, model.TemplateJSON)
	}
	if resolved.System != "Inline prompt." {
		t.Errorf("System = %q, want %q", resolved.System, "Inline prompt.")
	}
}

func TestResolveFromInlineJSONMissingSystemField(t *testing.T) {
	if _, err := Resolve(Request{InlineJSON: `{"other": "field"}`}); err == nil {
		t.Fatal("Resolve() with missing system field: want error, got nil")
	}
}

func TestResolveFromInlineJSONMalformed(t *testing.T) {
	if _, err := Resolve(Request{InlineJSON: `not json`}); err == nil {
		t.Fatal("Resolve() with malformed JSON: want error, got nil")
	}
}

func TestResolveRaw(t *testing.T) {
	resolved, err := Resolve(Request{Raw: "Raw system prompt text."})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Kind != model.TemplateRaw {
		t.Errorf("Kind = %v, want %v", resolved.Kind, model.TemplateRaw)
	}
	if resolved.System != "Raw system prompt text." {
		t.Errorf("System = %q, want %q", resolved.System, "Raw system prompt text.")
	}
}

func TestResolvePriorityOrder(t *testing.T) {
	// PresetID wins over FilePath/InlineJSON/Raw when multiple are set,
	// matching the switch's declared precedence.
	resolved, err := Resolve(Request{
		PresetID:   "decision-log",
		FilePath:   "/ignored",
		InlineJSON: `{"system":"ignored"}`,
		Raw:        "ignored",
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.System != presets["decision-log"] {
		t.Errorf("System = %q, want decision-log preset (priority order)", resolved.System)
	}
}

func TestPresetsListsAllKnownIDs(t *testing.T) {
	ids := Presets()
	if len(ids) != len(presets) {
		t.Fatalf("Presets() returned %d ids, want %d", len(ids), len(presets))
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	for id := range presets {
		if !seen[id] {
			t.Errorf("Presets() missing id %q", id)
		}
	}
}
