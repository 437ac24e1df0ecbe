// Package model holds the data types shared across the meeting-ingestion
// pipeline: transcripts, hotwords, templates, history requests, and the
// records archived to the vector stores.
package model

// TranscriptSegment is one ASR-produced or diarized span of speech.
type TranscriptSegment struct {
	Text            string   `json:"text"`
	StartS          float64  `json:"start_s"`
	EndS            float64  `json:"end_s"`
	SpeakerID       int      `json:"speaker_id"`
	SpeakerName     string   `json:"speaker_name,omitempty"`
	EmployeeID      string   `json:"employee_id,omitempty"`
	VoiceSimilarity *float64 `json:"voice_similarity,omitempty"`
}

// Transcript is an ordered sequence of segments plus their flattened text.
type Transcript struct {
	Segments []TranscriptSegment `json:"segments"`
	FullText string              `json:"full_text"`
}

// BuildFullText joins segment text with single spaces, matching the
// lossless-text testable property: join(segments) == raw_text up to
// whitespace normalization.
func BuildFullText(segments []TranscriptSegment) string {
	var out []byte
	for i, s := range segments {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, s.Text...)
	}
	return string(out)
}

// HotwordTable is the parsed hotword document: category -> ordered words,
// plus an alias -> canonical mapping per category.
type HotwordTable struct {
	Categories map[string][]string          `json:"categories"`
	Mappings   map[string]map[string]string `json:"mappings"`
}

// TemplateKind tags which of the four resolution branches produced a prompt.
type TemplateKind int

const (
	TemplatePreset TemplateKind = iota
	TemplateFile
	TemplateJSON
	TemplateRaw
)

// ResolvedPrompt is what a template resolves to: the template-contributed
// system instructions. The user prompt (transcript/text, then history, then
// requirement) is assembled separately by the pipeline controller's runLLM.
type ResolvedPrompt struct {
	Kind   TemplateKind
	System string
}

// HistoryMode selects how HistoryRequest is satisfied.
type HistoryMode string

const (
	HistoryAuto      HistoryMode = "auto"
	HistoryRetrieval HistoryMode = "retrieval"
	HistorySummary   HistoryMode = "summary"
)

// HistoryRequest asks for context from prior archived meetings.
type HistoryRequest struct {
	IDs  []int
	Mode HistoryMode
}

// MinuteRecord is an approved meeting minute awaiting archival.
type MinuteRecord struct {
	Markdown    string  `json:"markdown"`
	SourceID    int     `json:"source_id"`
	UserID      string  `json:"user_id,omitempty"`
	MeetingDate string  `json:"meeting_date,omitempty"`
	Department  string  `json:"department,omitempty"`
}

// VectorRecord is one embedded chunk upserted to a vector collection.
type VectorRecord struct {
	ID        string
	Embedding []float64
	Document  string
	Metadata  map[string]any
}

// VoiceprintRecord identifies a speaker by a fixed 192-dim embedding.
type VoiceprintRecord struct {
	EmployeeID string
	Name       string
	Embedding  [192]float64
	Metadata   map[string]any
}

// VoiceprintDim is the fixed embedding dimension for the voiceprint collection.
const VoiceprintDim = 192
