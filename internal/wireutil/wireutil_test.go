package wireutil

import (
	"reflect"
	"testing"
)

func TestAuthBearer(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"token abc123", "abc123"},
		{"Basic abc123", ""},
		{"", ""},
		{"abc123", ""},
	}
	for _, c := range cases {
		if got := AuthBearer(c.header); got != c.want {
			t.Errorf("AuthBearer(%q) = %q, want %q", c.header, got, c.want)
		}
	}
}

func TestFlattenToNested(t *testing.T) {
	in := map[string]any{"qq.key": "v", "plain": "ok"}
	got := FlattenToNested(in)
	want := map[string]any{"qq": map[string]any{"key": "v"}, "plain": "ok"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FlattenToNested() = %#v, want %#v", got, want)
	}
}

func TestFlattenToNestedRecursesIntoLists(t *testing.T) {
	in := map[string]any{"items": []any{map[string]any{"a.b": 1}}}
	got := FlattenToNested(in)
	want := map[string]any{"items": []any{map[string]any{"a": map[string]any{"b": 1}}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FlattenToNested() = %#v, want %#v", got, want)
	}
}

func TestFlattenToNestedMergesIntoExistingMap(t *testing.T) {
	in := map[string]any{"a.b": 1, "a.c": 2}
	got := FlattenToNested(in)
	want := map[string]any{"a": map[string]any{"b": 1, "c": 2}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FlattenToNested() = %#v, want %#v", got, want)
	}
}
