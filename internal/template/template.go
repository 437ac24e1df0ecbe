// Package template resolves a summarization template request into the
// system-prompt instructions the LLM orchestrator prepends to a call. It
// generalizes the single fixed system prompt the teacher used for call
// sessions into a named-preset table plus file/inline-JSON/raw overrides.
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/model"
)

// defaultPresetName is used when a request names no preset at all.
const defaultPresetName = "default"

var presets = map[string]string{
	"default": "You are an assistant that writes clear, accurate meeting " +
		"minutes from a transcript or document. Summarize decisions, action " +
		"items with owners, and open questions. Keep the output in Markdown " +
		"with headings for Summary, Decisions, Action Items, and Open Questions.",

	"standup": "You summarize daily standup meetings. For each participant, " +
		"list what they did yesterday, what they plan today, and any " +
		"blockers. Keep it terse, one bullet per item, grouped by speaker.",

	"decision-log": "You extract only the decisions made in this meeting. " +
		"For each decision, note what was decided, who decided it, and why, " +
		"in a Markdown table with columns Decision, Owner, Rationale.",

	"retrospective": "You summarize a retrospective meeting into three " +
		"Markdown sections: What Went Well, What Didn't, and Action Items, " +
		"each as a bullet list attributing points to speakers where stated.",
}

// Resolve picks the system prompt in this order: an explicit preset id, a
// template file path, inline template JSON, or a raw system-prompt string.
// Exactly one of these fields is expected to be set on req.
func Resolve(req Request) (model.ResolvedPrompt, error) {
	switch {
	case req.PresetID != "":
		return resolvePreset(req.PresetID)
	case req.FilePath != "":
		return resolveFile(req.FilePath)
	case req.InlineJSON != "":
		return resolveJSON(req.InlineJSON)
	case req.Raw != "":
		return model.ResolvedPrompt{Kind: model.TemplateRaw, System: req.Raw}, nil
	default:
		return resolvePreset(defaultPresetName)
	}
}

// Request carries the four ways a caller can name a template. The pipeline
// controller (C12) copies them from its own Request; the HTTP /process
// handler sets only PresetID, from the `template` form field, so a value
// there that is not a known preset id fails resolution and is not tried as a
// file path, inline JSON or raw prompt.
type Request struct {
	PresetID   string
	FilePath   string
	InlineJSON string
	Raw        string
}

func resolvePreset(id string) (model.ResolvedPrompt, error) {
	system, ok := presets[id]
	if !ok {
		return model.ResolvedPrompt{}, fmt.Errorf("unknown template preset %q", id)
	}
	return model.ResolvedPrompt{Kind: model.TemplatePreset, System: system}, nil
}

func resolveFile(path string) (model.ResolvedPrompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ResolvedPrompt{}, fmt.Errorf("read template file: %w", err)
	}
	return model.ResolvedPrompt{Kind: model.TemplateFile, System: strings.TrimSpace(string(data))}, nil
}

func resolveJSON(inline string) (model.ResolvedPrompt, error) {
	var doc struct {
		System string `json:"system"`
	}
	if err := json.Unmarshal([]byte(inline), &doc); err != nil {
		return model.ResolvedPrompt{}, fmt.Errorf("parse inline template json: %w", err)
	}
	if doc.System == "" {
		return model.ResolvedPrompt{}, fmt.Errorf("inline template json missing \"system\" field")
	}
	return model.ResolvedPrompt{Kind: model.TemplateJSON, System: doc.System}, nil
}

// Presets returns the known preset ids, sorted for listing endpoints.
func Presets() []string {
	ids := make([]string, 0, len(presets))
	for id := range presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
