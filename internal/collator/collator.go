// Package collator implements the event-schema registry: a prefix trie
// indexing values (event schemas, in practice) by an ordered tuple of
// discriminator key specifiers, with longest-prefix classification.
package collator

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrInvalidKeyShape is returned when a key (built from either a
// registration or a payload) leaves a specifier unconstrained while a later
// specifier is constrained — the registry requires that once a discriminator
// position is a wildcard, every position after it is too.
var ErrInvalidKeyShape = errors.New("collator: a narrower key may not follow an unconstrained one")

// ErrAmbiguousGroup is returned when more than one alternative in a grouped
// specifier is present at once.
var ErrAmbiguousGroup = errors.New("collator: at most one alternative of a grouped specifier may be present")

// Specifier names one discriminator field, or a group of mutually exclusive
// alternative field names (at most one of which may carry a value on any
// given schema or payload).
type Specifier struct {
	Names []string
}

// Field builds a single-name specifier.
func Field(name string) Specifier { return Specifier{Names: []string{name}} }

// Group builds a specifier for a set of mutually exclusive alternative
// fields.
func Group(names ...string) Specifier { return Specifier{Names: names} }

const separator = "/"

// Collator is a prefix-trie registry of values of type T keyed by an ordered
// tuple of discriminator specifiers.
type Collator[T any] struct {
	name string
	keys []Specifier
	logf func(format string, args ...any)

	mu   sync.RWMutex
	tree map[string]T
}

// New creates a Collator with the given name (used only in log messages) and
// ordered discriminator specifiers. logf may be nil, in which case
// collisions are not logged.
func New[T any](name string, keys []Specifier, logf func(format string, args ...any)) *Collator[T] {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Collator[T]{name: name, keys: keys, logf: logf, tree: map[string]T{}}
}

// Register inserts value at the path computed from keyValues, one string per
// specifier in order; an empty string marks that specifier unconstrained for
// this registration. On collision with an existing registration, the later
// one wins and the collision is logged.
func (c *Collator[T]) Register(value T, keyValues ...string) error {
	if len(keyValues) != len(c.keys) {
		return fmt.Errorf("collator %s: expected %d key values, got %d", c.name, len(c.keys), len(keyValues))
	}
	parts, err := buildParts(keyValues)
	if err != nil {
		return fmt.Errorf("collator %s: %w", c.name, err)
	}
	path := strings.Join(parts, separator)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tree[path]; exists {
		c.logf("collator %s: registration at %q overridden", c.name, path)
	}
	c.tree[path] = value
	return nil
}

// Classify reads the specifier fields from data and returns the registered
// values at every proper prefix of the resulting path, deepest (most
// specific) first.
func (c *Collator[T]) Classify(data map[string]any) ([]T, error) {
	keyValues := make([]string, len(c.keys))
	for i, spec := range c.keys {
		v, err := fieldOf(spec, data)
		if err != nil {
			return nil, fmt.Errorf("collator %s: %w", c.name, err)
		}
		keyValues[i] = v
	}
	parts, err := buildParts(keyValues)
	if err != nil {
		return nil, fmt.Errorf("collator %s: %w", c.name, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []T
	for i := len(parts); i >= 1; i-- {
		path := strings.Join(parts[:i], separator)
		if v, ok := c.tree[path]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// fieldOf extracts the single applicable field value for a specifier from
// data, enforcing the at-most-one-alternative rule for grouped specifiers.
func fieldOf(spec Specifier, data map[string]any) (string, error) {
	var present []string
	for _, name := range spec.Names {
		v, ok := data[name]
		if !ok {
			continue
		}
		s := stringify(v)
		if s != "" {
			present = append(present, s)
		}
	}
	if len(present) > 1 {
		return "", ErrAmbiguousGroup
	}
	if len(present) == 1 {
		return present[0], nil
	}
	return "", nil
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}

// buildParts validates that no constrained key value follows an
// unconstrained one, then returns the trie path components: a leading empty
// root component followed by each non-empty key value in order.
func buildParts(keyValues []string) ([]string, error) {
	firstEmpty := -1
	for i, k := range keyValues {
		if k == "" {
			firstEmpty = i
			break
		}
	}
	if firstEmpty != -1 {
		for _, k := range keyValues[firstEmpty:] {
			if k != "" {
				return nil, ErrInvalidKeyShape
			}
		}
	}
	parts := make([]string, 1, len(keyValues)+1)
	parts[0] = ""
	for _, k := range keyValues {
		if k != "" {
			parts = append(parts, k)
		}
	}
	return parts, nil
}
