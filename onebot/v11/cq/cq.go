// Package cq implements the v11 CQ-code message codec: escaping, parsing a
// CQ-coded string into message segments, and rendering segments back into a
// CQ-coded string.
package cq

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nonebot/adapter-onebot/onebot/message"
)

// Escape escapes &, [, ] and, when escapeComma is true, also ','. Apply
// escapeComma=false for a text segment's displayable text, and
// escapeComma=true for CQ attribute values.
func Escape(s string, escapeComma bool) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "[", "&#91;")
	s = strings.ReplaceAll(s, "]", "&#93;")
	if escapeComma {
		s = strings.ReplaceAll(s, ",", "&#44;")
	}
	return s
}

// Unescape inverts Escape. The substitutions are applied in the opposite
// order of Escape, unescaping &amp; last, so an escaped escape artifact such
// as "&amp;#91;" round-trips to the literal string "&#91;" instead of being
// unescaped a second time into "[".
func Unescape(s string) string {
	s = strings.ReplaceAll(s, "&#44;", ",")
	s = strings.ReplaceAll(s, "&#91;", "[")
	s = strings.ReplaceAll(s, "&#93;", "]")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return s
}

// cqToken matches a single [CQ:type,k=v,...] token. Trailing commas before
// the closing bracket (with or without a following key=value pair) are
// accepted, matching the permissive upstream grammar.
var cqToken = regexp.MustCompile(`\[CQ:([A-Za-z0-9_.-]+)((?:,[A-Za-z0-9_.-]+=[^,\]]*)*),?\]`)

// Parse scans s, emitting a text segment for each run of plain text (empty
// runs are dropped) and a segment for each [CQ:...] token encountered, in
// order.
func Parse(s string) message.Message {
	var out message.Message
	last := 0
	for _, loc := range cqToken.FindAllStringSubmatchIndex(s, -1) {
		start, end := loc[0], loc[1]
		if text := s[last:start]; text != "" {
			out = append(out, message.NewText(Unescape(text)))
		}
		typ := s[loc[2]:loc[3]]
		paramsStr := strings.TrimPrefix(s[loc[4]:loc[5]], ",")
		data := map[string]any{}
		if paramsStr != "" {
			for _, kv := range strings.Split(paramsStr, ",") {
				if kv == "" {
					continue
				}
				k, v, found := strings.Cut(kv, "=")
				if !found {
					continue
				}
				data[k] = Unescape(v)
			}
		}
		out = append(out, message.Segment{Type: typ, Data: data})
		last = end
	}
	if text := s[last:]; text != "" {
		out = append(out, message.NewText(Unescape(text)))
	}
	return out
}

// attrOrder controls rendering order for well-known attribute keys so output
// is stable across runs; unknown keys are appended afterward in map
// iteration order, which Go intentionally randomizes per-run but is
// otherwise inconsequential since CQ attribute order carries no meaning.
var attrOrder = []string{"id", "qq", "file", "type", "url", "text"}

// Render inverts Parse: a text segment prints its escaped text (no comma
// escaping); any other segment prints "[CQ:<type>" followed by ",<k>=<v>"
// for each present, non-nil attribute (values comma-escaped), then "]".
func Render(m message.Message) string {
	var sb strings.Builder
	for _, seg := range m {
		if seg.IsText() {
			sb.WriteString(Escape(seg.Text(), false))
			continue
		}
		sb.WriteString("[CQ:")
		sb.WriteString(seg.Type)
		written := make(map[string]bool, len(seg.Data))
		writeAttr := func(k string, v any) {
			if v == nil || written[k] {
				return
			}
			written[k] = true
			sb.WriteString(",")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(Escape(fmt.Sprint(v), true))
		}
		for _, k := range attrOrder {
			if v, ok := seg.Data[k]; ok {
				writeAttr(k, v)
			}
		}
		for k, v := range seg.Data {
			writeAttr(k, v)
		}
		sb.WriteString("]")
	}
	return sb.String()
}

// RichText renders a human-display variant: non-text segments print as
// "[type:k=v,...]" without the "CQ:" prefix, and long attribute values are
// truncated. It is not reversible and is not used by the wire codec.
func RichText(m message.Message, maxAttrLen int) string {
	var sb strings.Builder
	for _, seg := range m {
		if seg.IsText() {
			sb.WriteString(seg.Text())
			continue
		}
		sb.WriteString("[")
		sb.WriteString(seg.Type)
		first := true
		for k, v := range seg.Data {
			if v == nil {
				continue
			}
			if first {
				sb.WriteString(":")
				first = false
			} else {
				sb.WriteString(",")
			}
			val := fmt.Sprint(v)
			if maxAttrLen > 0 && len(val) > maxAttrLen {
				val = val[:maxAttrLen] + "..."
			}
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(val)
		}
		sb.WriteString("]")
	}
	return sb.String()
}
