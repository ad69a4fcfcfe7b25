// Package message implements the version-agnostic OneBot message model: an
// ordered sequence of typed segments shared by the v11 and v12 wire formats.
package message

import (
	"encoding/json"
	"strings"
)

// Segment is a tagged value: a type string and an unordered map of
// string-keyed attribute values. A segment is textual iff Type == "text",
// in which case its displayable text lives at Data["text"].
type Segment struct {
	Type string
	Data map[string]any
}

// IsText reports whether the segment is a plain-text segment.
func (s Segment) IsText() bool {
	return s.Type == "text"
}

// Text returns the segment's text attribute, or "" if absent or non-textual.
func (s Segment) Text() string {
	if !s.IsText() {
		return ""
	}
	t, _ := s.Data["text"].(string)
	return t
}

// Equal reports whether two segments have the same type and data.
func (s Segment) Equal(other Segment) bool {
	if s.Type != other.Type {
		return false
	}
	if len(s.Data) != len(other.Data) {
		return false
	}
	for k, v := range s.Data {
		ov, ok := other.Data[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// NewText builds a text segment.
func NewText(text string) Segment {
	return Segment{Type: "text", Data: map[string]any{"text": text}}
}

// Message is an ordered sequence of segments.
type Message []Segment

// FromString coerces a raw string into a single-segment Message.
func FromString(s string) Message {
	return Message{NewText(s)}
}

// Concat appends a raw string, coerced to a text segment, to the message and
// returns the result. The receiver is not modified.
func (m Message) Concat(s string) Message {
	out := make(Message, len(m), len(m)+1)
	copy(out, m)
	return append(out, NewText(s))
}

// Append appends segments and returns the result. The receiver is not
// modified.
func (m Message) Append(segs ...Segment) Message {
	out := make(Message, len(m), len(m)+len(segs))
	copy(out, m)
	return append(out, segs...)
}

// Equal reports whether two messages contain equal segments in the same
// order.
func (m Message) Equal(other Message) bool {
	if len(m) != len(other) {
		return false
	}
	for i := range m {
		if !m[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Reduce merges any run of adjacent textual segments into one by text
// concatenation, preserving order and all non-textual segments. It returns a
// new Message; the receiver is not modified.
func (m Message) Reduce() Message {
	if len(m) == 0 {
		return m
	}
	out := make(Message, 0, len(m))
	var pendingText strings.Builder
	hasPending := false
	flush := func() {
		if hasPending {
			out = append(out, NewText(pendingText.String()))
			pendingText.Reset()
			hasPending = false
		}
	}
	for _, seg := range m {
		if seg.IsText() {
			pendingText.WriteString(seg.Text())
			hasPending = true
			continue
		}
		flush()
		out = append(out, seg)
	}
	flush()
	return out
}

// ExtractPlainText concatenates Data["text"] over textual segments in order.
func (m Message) ExtractPlainText() string {
	var sb strings.Builder
	for _, seg := range m {
		if seg.IsText() {
			sb.WriteString(seg.Text())
		}
	}
	return sb.String()
}

type wireSegment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// MarshalJSON renders the message in the array-of-segment wire form shared
// by v11 (array mode) and v12.
func (m Message) MarshalJSON() ([]byte, error) {
	wire := make([]wireSegment, len(m))
	for i, seg := range m {
		data := seg.Data
		if data == nil {
			data = map[string]any{}
		}
		wire[i] = wireSegment{Type: seg.Type, Data: data}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the array-of-segment wire form. Callers that need to
// accept a bare CQ-coded string (v11's alternate wire form) must rewrite it
// into this array form before decoding reaches this method; see the v11
// package's event-decoding pipeline.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire []wireSegment
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := make(Message, len(wire))
	for i, w := range wire {
		out[i] = Segment{Type: w.Type, Data: w.Data}
	}
	*m = out
	return nil
}

// Clone returns a deep-enough copy of m suitable for snapshotting into
// OriginalMessage fields: the segment slice is copied, but segment Data maps
// are shared (segments are treated as immutable once constructed).
func (m Message) Clone() Message {
	out := make(Message, len(m))
	copy(out, m)
	return out
}
