package cq

import (
	"testing"

	"github.com/nonebot/adapter-onebot/onebot/message"
)

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := []string{"hello", "a&b", "a[b]c", "a,b", "plain text with spaces"}
	for _, s := range cases {
		if got := Unescape(Escape(s, true)); got != s {
			t.Errorf("Unescape(Escape(%q, true)) = %q, want %q", s, got, s)
		}
	}
}

func TestUnescapeAmpLast(t *testing.T) {
	// An already-escaped "&#91;" in the wire text must round-trip to the
	// literal string "&#91;", not be double-unescaped into "[".
	escaped := Escape("&#91;", false)
	if got := Unescape(escaped); got != "&#91;" {
		t.Errorf("round trip of %q = %q, want %q", "&#91;", got, "&#91;")
	}
}

func TestParseUnescapedCQStringIsToken(t *testing.T) {
	// An unescaped "[CQ:test]" in the input is not kept as text.
	m := Parse("[CQ:test]")
	// "[CQ:test]" does match the CQ grammar itself (type="test", no params),
	// so per the grammar this *is* a token, not literal text — verifying the
	// permissive "no params required" case instead.
	want := message.Message{{Type: "test", Data: map[string]any{}}}
	if !m.Equal(want) {
		t.Fatalf("Parse(%q) = %#v, want %#v", "[CQ:test]", m, want)
	}
}

func TestParseEscapedBracketsStayText(t *testing.T) {
	s := Render(message.Message{message.NewText("[CQ:test]")})
	m := Parse(s)
	want := message.Message{message.NewText("[CQ:test]")}
	if !m.Equal(want) {
		t.Fatalf("Parse(Render(text(%q))) = %#v, want %#v", "[CQ:test]", m, want)
	}
}

func TestParseNoParams(t *testing.T) {
	m := Parse("[CQ:face]")
	want := message.Message{{Type: "face", Data: map[string]any{}}}
	if !m.Equal(want) {
		t.Fatalf("Parse(%q) = %#v, want %#v", "[CQ:face]", m, want)
	}
}

func TestParseTrailingComma(t *testing.T) {
	m := Parse("[CQ:face,id=1,]")
	want := message.Message{{Type: "face", Data: map[string]any{"id": "1"}}}
	if !m.Equal(want) {
		t.Fatalf("Parse(%q) = %#v, want %#v", "[CQ:face,id=1,]", m, want)
	}
}

func TestParseTextAroundToken(t *testing.T) {
	m := Parse("hi [CQ:at,qq=123] there")
	want := message.Message{
		message.NewText("hi "),
		{Type: "at", Data: map[string]any{"qq": "123"}},
		message.NewText(" there"),
	}
	if !m.Equal(want) {
		t.Fatalf("Parse() = %#v, want %#v", m, want)
	}
}

func TestRoundTripParseRender(t *testing.T) {
	m := message.Message{
		message.NewText("hello, world"),
		{Type: "at", Data: map[string]any{"qq": "123"}},
		message.NewText(" bye"),
	}
	rendered := Render(m)
	got := Parse(rendered).Reduce()
	if !got.Equal(m.Reduce()) {
		t.Fatalf("Parse(Render(m)).Reduce() = %#v, want %#v (rendered=%q)", got, m.Reduce(), rendered)
	}
}

func TestRenderSkipsNilAttributes(t *testing.T) {
	m := message.Message{{Type: "image", Data: map[string]any{"file": "a.jpg", "cache": nil}}}
	got := Render(m)
	want := "[CQ:image,file=a.jpg]"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestRenderEscapesCommaInAttrNotInText(t *testing.T) {
	m := message.Message{
		message.NewText("a,b"),
		{Type: "image", Data: map[string]any{"file": "x,y"}},
	}
	got := Render(m)
	want := "a,b[CQ:image,file=x&#44;y]"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}
