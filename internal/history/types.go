// Package history reads chat history exports, the JSON documents produced
// by the Telegram desktop "export chat history" feature.
package history

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Export struct {
	Messages []Message `json:"messages"`
}

type Message struct {
	ID   int64   `json:"id"`
	Type string  `json:"type"`
	Date string  `json:"date"`
	From *string `json:"from,omitempty"`
	Text Text    `json:"text"`
}

// Segment is one piece of a rich message body. Plain string pieces have an
// empty Type.
type Segment struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

// Text is a message body: either a plain string or a list of segments.
type Text struct {
	plain    string
	segments []Segment
	isPlain  bool
}

func PlainText(s string) Text {
	return Text{plain: s, isPlain: true}
}

func RichText(segments ...Segment) Text {
	return Text{segments: segments}
}

// Plain returns the body when it is a plain string.
func (t Text) Plain() (string, bool) {
	return t.plain, t.isPlain
}

func (t Text) Segments() []Segment {
	return t.segments
}

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = Text{}
		return nil
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = PlainText(s)
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		segs := make([]Segment, 0, len(raw))
		for _, r := range raw {
			var seg Segment
			if len(r) > 0 && r[0] == '"' {
				if err := json.Unmarshal(r, &seg.Text); err != nil {
					return err
				}
			} else if err := json.Unmarshal(r, &seg); err != nil {
				return fmt.Errorf("text segment: %w", err)
			}
			segs = append(segs, seg)
		}
		*t = RichText(segs...)
		return nil
	default:
		return fmt.Errorf("text must be a string or an array, got %s", b)
	}
}

func (t Text) MarshalJSON() ([]byte, error) {
	if t.isPlain {
		return json.Marshal(t.plain)
	}
	out := make([]any, 0, len(t.segments))
	for _, s := range t.segments {
		if s.Type == "" {
			out = append(out, s.Text)
			continue
		}
		out = append(out, s)
	}
	return json.Marshal(out)
}
