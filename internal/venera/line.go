package venera

import (
	"encoding/json"
	"strings"

	"github.com/slok/comicsub/internal/model"
)

const (
	// Marker is the prefix of the output lines that carry a JSON payload.
	Marker = "[CLI PRINT] "

	// MessageProgress is the message of the per comic progress payloads.
	MessageProgress = "Progress"
	// MessageUpdatedComics is the message of the flow terminal payload.
	MessageUpdatedComics = "Updated comics list."
)

// LineKind is the classification of an output line.
type LineKind int

const (
	// LineKindPlain is opaque log text.
	LineKindPlain LineKind = iota
	// LineKindProgress is a progress payload.
	LineKindProgress
	// LineKindSummary is the terminal updated comics payload.
	LineKindSummary
	// LineKindPayload is any other valid payload.
	LineKindPayload
)

func (k LineKind) String() string {
	switch k {
	case LineKindProgress:
		return "progress"
	case LineKindSummary:
		return "summary"
	case LineKindPayload:
		return "payload"
	default:
		return "plain"
	}
}

// Payload is the structured data the tool prints on tagged lines.
type Payload struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	// Raw is the original JSON of the payload.
	Raw json.RawMessage `json:"-"`
}

// ProgressData is the data of a progress payload.
type ProgressData struct {
	Current int          `json:"current"`
	Total   int          `json:"total"`
	Comic   *model.Comic `json:"comic"`
}

// Line is a classified output line.
type Line struct {
	// Raw is the line as it was received (trimmed).
	Raw     string
	Kind    LineKind
	Payload *Payload
}

// Classify classifies an output line of the tool. Tagged lines that can't be
// decoded are plain log text.
func Classify(raw string) Line {
	line := Line{Raw: raw, Kind: LineKindPlain}

	body, ok := strings.CutPrefix(raw, Marker)
	if !ok {
		return line
	}

	p, err := decodePayload(body)
	if err != nil {
		return line
	}
	line.Payload = p

	switch p.Message {
	case MessageProgress:
		line.Kind = LineKindProgress
	case MessageUpdatedComics:
		line.Kind = LineKindSummary
	default:
		line.Kind = LineKindPayload
	}

	return line
}

func decodePayload(body string) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, err
	}
	p.Raw = json.RawMessage(body)
	return &p, nil
}

// Progress returns the progress data of a progress payload.
func (p Payload) Progress() (ProgressData, bool) {
	if p.Message != MessageProgress || len(p.Data) == 0 {
		return ProgressData{}, false
	}

	var data ProgressData
	if err := json.Unmarshal(p.Data, &data); err != nil {
		return ProgressData{}, false
	}
	return data, true
}

// UpdatedIDs returns the comic IDs of a terminal payload. The tool may report
// the IDs as plain values or as objects with an id field.
func (p Payload) UpdatedIDs() ([]string, bool) {
	if p.Message != MessageUpdatedComics {
		return nil, false
	}

	var items []json.RawMessage
	if err := json.Unmarshal(p.Data, &items); err != nil {
		return nil, false
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		var c model.Comic
		if err := json.Unmarshal(item, &c); err == nil {
			if c.ID != "" {
				ids = append(ids, c.ID)
			}
			continue
		}

		var id json.Number
		if err := json.Unmarshal(item, &id); err == nil {
			ids = append(ids, id.String())
			continue
		}

		var s string
		if err := json.Unmarshal(item, &s); err == nil && s != "" {
			ids = append(ids, s)
		}
	}

	return ids, true
}
