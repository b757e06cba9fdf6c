// Package indexstore assigns the numeric index that each counter name, pool
// name and io column occupies in the identifier space.
package indexstore

import (
	"errors"
	"sort"
)

// Namespaces partition the index sequences; indices are unique per namespace.
const (
	NamespaceArcstats = "arcstats"
	NamespaceZIL      = "zil"
	NamespacePool     = "pool"
	NamespacePoolIO   = "pool.io"
)

// ErrClosed is returned by a Registry used after Close.
var ErrClosed = errors.New("index registry closed")

// Registry maps names to stable indices.
type Registry interface {
	// Assign returns an index for every name in names. Duplicates are ignored.
	Assign(namespace string, names []string) (map[string]uint32, error)
	Close() error
}

// Sequential assigns 0..n-1 in lexicographic name order and remembers nothing.
// Indices are reproducible for identical inputs but shift when names come or go.
type Sequential struct{}

func (Sequential) Assign(_ string, names []string) (map[string]uint32, error) {
	sorted := SortedUnique(names)
	out := make(map[string]uint32, len(sorted))
	for i, n := range sorted {
		out[n] = uint32(i)
	}
	return out, nil
}

func (Sequential) Close() error { return nil }

// SortedUnique returns a sorted copy of names without duplicates.
func SortedUnique(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

var _ Registry = Sequential{}
