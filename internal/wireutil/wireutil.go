// Package wireutil holds the handful of small, protocol-version-independent
// helpers shared by v11 and v12: bearer-token extraction and the v12
// flattened-key preprocessor.
package wireutil

import "strings"

// AuthBearer extracts the token from an "Authorization: <scheme> <token>"
// header value. The scheme is matched case-insensitively against "bearer"
// and "token" (both accepted, matching the upstream helper's leniency). It
// returns "" if header is empty or does not carry a recognized scheme.
func AuthBearer(header string) string {
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found {
		return ""
	}
	switch strings.ToLower(scheme) {
	case "bearer", "token":
		return token
	default:
		return ""
	}
}

// FlattenToNested lifts dotted string keys in a decoded JSON-like value into
// nested maps, recursing into list elements. It is applied to v12 payloads
// before schema classification so that wire data such as
// {"qq.key":"v"} is seen by the classifier and decoder as
// {"qq":{"key":"v"}}.
func FlattenToNested(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := map[string]any{}
		for k, val := range t {
			nested := FlattenToNested(val)
			assignDotted(out, k, nested)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = FlattenToNested(e)
		}
		return out
	default:
		return v
	}
}

// assignDotted writes value into dst under the dotted key path, creating
// intermediate maps as needed, merging into any map already present at an
// intermediate path.
func assignDotted(dst map[string]any, dottedKey string, value any) {
	parts := strings.Split(dottedKey, ".")
	cur := dst
	for i, part := range parts {
		if i == len(parts)-1 {
			cur[part] = value
			return
		}
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
}
