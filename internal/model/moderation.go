package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// ModerationRequest asks for a single video to be moderated.
type ModerationRequest struct {
	ID         string // caller supplied identifier, used in logs and verdicts
	SourcePath string
}

// ModerationResult is the normalized verdict of the analyzer.
type ModerationResult struct {
	IsNSFW     bool      `json:"is_nsfw"`
	Confidence float64   `json:"confidence"`
	Details    []Finding `json:"details"`
	ObservedAt time.Time `json:"observed_at"`
}

// Finding is a single element of the analyzer's details list. Analyzers
// either report plain labels ("nudity") or per frame objects like
// {"frame": "temp_frame_3.jpg", "score": 0.71, "detections": 2}. The raw JSON
// is kept so a verdict repeats exactly what the analyzer said.
type Finding struct {
	Label      string
	Frame      string
	Score      float64
	Detections int

	raw json.RawMessage
}

type findingObject struct {
	Label      string  `json:"label,omitempty"`
	Frame      string  `json:"frame,omitempty"`
	Score      float64 `json:"score,omitempty"`
	Detections int     `json:"detections,omitempty"`
}

// Label returns a Finding consisting of a label only.
func Label(label string) Finding {
	return Finding{Label: label}
}

func (f *Finding) UnmarshalJSON(b []byte) error {
	*f = Finding{raw: append(json.RawMessage(nil), b...)}
	switch first(b) {
	case '"':
		return json.Unmarshal(b, &f.Label)
	case '{':
		var obj findingObject
		if err := json.Unmarshal(b, &obj); err != nil {
			// unknown object shape, keep only the raw form
			return nil
		}
		f.Label, f.Frame, f.Score, f.Detections = obj.Label, obj.Frame, obj.Score, obj.Detections
	}
	return nil
}

func (f Finding) MarshalJSON() ([]byte, error) {
	if len(f.raw) > 0 {
		return f.raw, nil
	}
	if f.Frame == "" && f.Score == 0 && f.Detections == 0 {
		return json.Marshal(f.Label)
	}
	return json.Marshal(findingObject{
		Label:      f.Label,
		Frame:      f.Frame,
		Score:      f.Score,
		Detections: f.Detections,
	})
}

func (f Finding) String() string {
	if f.Label != "" {
		return f.Label
	}
	if len(f.raw) > 0 {
		return string(f.raw)
	}
	b, _ := f.MarshalJSON()
	return string(b)
}

// Verdict is the document published for every processed request, it
// carries either a Result or an Error.
type Verdict struct {
	ID      string            `json:"id,omitempty"`
	Source  string            `json:"source"`
	Result  *ModerationResult `json:"result,omitempty"`
	Error   *ErrorInfo        `json:"error,omitempty"`
	Started time.Time         `json:"started"`
	Elapsed string            `json:"elapsed"`
}

func NewVerdict(req ModerationRequest, started time.Time, res ModerationResult, err error) Verdict {
	v := Verdict{
		ID:      req.ID,
		Source:  req.SourcePath,
		Started: started.UTC(),
		Elapsed: time.Since(started).Round(time.Millisecond).String(),
	}
	if err != nil {
		v.Error = NewErrorInfo(err)
		return v
	}
	v.Result = &res
	return v
}

func (v Verdict) Failed() bool {
	return v.Error != nil
}

// first returns the first non whitespace byte of a JSON document
func first(b []byte) byte {
	b = bytes.TrimLeft(b, " \t\r\n")
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

// JSONKind reports the JSON kind of raw: one of "object", "array",
// "string", "number", "bool", "null" or "" for empty input.
func JSONKind(raw []byte) string {
	switch c := first(raw); {
	case c == '{':
		return "object"
	case c == '[':
		return "array"
	case c == '"':
		return "string"
	case c == 't' || c == 'f':
		return "bool"
	case c == 'n':
		return "null"
	case c == '-' || (c >= '0' && c <= '9'):
		return "number"
	default:
		return ""
	}
}
