// Package store is the hierarchical key-value collaborator every component
// reads and writes through. Nodes are addressed by slash-delimited paths;
// appending with Push yields a generated, chronologically sortable key.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

// Store is implemented by every backend (Firebase, Postgres, memory).
type Store interface {
	// Get returns the JSON value at path, or nil when nothing is stored there.
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Set(ctx context.Context, path string, value any) error
	// Push appends value under a new child of path and returns its key.
	Push(ctx context.Context, path string, value any) (string, error)
	// Delete removes the node at path together with its whole subtree.
	Delete(ctx context.Context, path string) error
}

// Pinger is implemented by backends that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ErrNotObject is returned by Children when the node holds a scalar or list.
var ErrNotObject = errors.New("store: node is not an object")

// Child is one direct child of a node.
type Child struct {
	Key   string
	Value json.RawMessage
}

// Children returns the direct children of the node at path sorted by key.
// Push keys sort in insertion order, so for pushed collections this is
// chronological order. found is false when nothing is stored at path.
func Children(ctx context.Context, s Store, path string) (children []Child, found bool, err error) {
	raw, err := s.Get(ctx, path)
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, true, ErrNotObject
	}
	if m == nil {
		return nil, false, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	children = make([]Child, 0, len(keys))
	for _, k := range keys {
		children = append(children, Child{Key: k, Value: m[k]})
	}
	return children, true, nil
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

const maxKeyLen = 768

const forbidden = ".#$[]/"

// ValidKey reports whether s can be used as a single path segment.
func ValidKey(s string) bool {
	if s == "" || len(s) > maxKeyLen {
		return false
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(forbidden, r) {
			return false
		}
	}
	return true
}

// SanitizeKey replaces every character that is not allowed in a path segment
// with an underscore.
func SanitizeKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(forbidden, r) {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if len(out) > maxKeyLen {
		out = out[:maxKeyLen]
	}
	return out
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
