// Package oidspace builds the immutable identifier space: every cached counter
// gets a hierarchical OID under the registration root, once, at startup.
//
// Layout under root R:
//
//	R.0.0.<arcstat_idx>        arcstats counter
//	R.0.1.<zil_idx>            zil counter
//	R.1.0.<pool_idx>           pool index echo
//	R.1.1.<pool_idx>           pool name
//	R.1.2.<io_idx>.<pool_idx>  pool io counter
//
// io counters are keyed counter first, pool second, so the same metric for
// every pool is adjacent in a walk.
package oidspace

import (
	"fmt"
	"sort"

	"github.com/haukened/zfs-snmpd/internal/zfs/domain"
	"github.com/haukened/zfs-snmpd/internal/zfs/repos/indexstore"
)

const (
	arcCommon uint32 = 0
	arcPool   uint32 = 1

	arcArcstats uint32 = 0
	arcZIL      uint32 = 1

	arcPoolIndex uint32 = 0
	arcPoolName  uint32 = 1
	arcPoolIO    uint32 = 2
)

// Entry binds one identifier to the value it resolves to.
type Entry struct {
	OID domain.OID
	Ref domain.ResolverRef
}

// Space is the sorted, read-only identifier space. It is never extended
// after Build: pools or counters that appear later stay invisible.
type Space struct {
	root    domain.OID
	entries []Entry
	byOID   map[string]int
}

// Build assigns identifiers to every name in snap and returns the sorted space.
func Build(root domain.OID, snap domain.Snapshot, registry indexstore.Registry) (*Space, error) {
	if len(root) == 0 {
		return nil, fmt.Errorf("%w: empty registration root", domain.ErrInvalidOID)
	}
	b := &builder{root: root.Append(), registry: registry}

	if err := b.common(indexstore.NamespaceArcstats, arcArcstats, domain.CategoryArcstats, snap.Arcstats); err != nil {
		return nil, err
	}
	if err := b.common(indexstore.NamespaceZIL, arcZIL, domain.CategoryZIL, snap.ZIL); err != nil {
		return nil, err
	}
	if err := b.pools(snap.Pools, snap.PoolIO); err != nil {
		return nil, err
	}
	return b.finish()
}

type builder struct {
	root     domain.OID
	registry indexstore.Registry
	entries  []Entry
}

func (b *builder) add(oid domain.OID, ref domain.ResolverRef) {
	b.entries = append(b.entries, Entry{OID: oid, Ref: ref})
}

func (b *builder) assign(namespace string, names []string) (map[string]uint32, error) {
	idx, err := b.registry.Assign(namespace, names)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		if _, ok := idx[n]; !ok {
			return nil, fmt.Errorf("registry returned no %s index for %q", namespace, n)
		}
	}
	return idx, nil
}

func (b *builder) common(namespace string, arc uint32, cat domain.Category, names []string) error {
	idx, err := b.assign(namespace, names)
	if err != nil {
		return err
	}
	for _, n := range indexstore.SortedUnique(names) {
		b.add(b.root.Append(arcCommon, arc, idx[n]), domain.ResolverRef{Category: cat, Key: n})
	}
	return nil
}

func (b *builder) pools(pools []string, poolIO map[string][]string) error {
	pidx, err := b.assign(indexstore.NamespacePool, pools)
	if err != nil {
		return err
	}

	var columns []string
	for _, p := range pools {
		columns = append(columns, poolIO[p]...)
	}
	cidx, err := b.assign(indexstore.NamespacePoolIO, columns)
	if err != nil {
		return err
	}

	for _, p := range indexstore.SortedUnique(pools) {
		i := pidx[p]
		b.add(b.root.Append(arcPool, arcPoolIndex, i), domain.ResolverRef{Category: domain.CategoryPoolIndex, Pool: p, Index: int(i)})
		b.add(b.root.Append(arcPool, arcPoolName, i), domain.ResolverRef{Category: domain.CategoryPoolName, Pool: p, Index: int(i)})
		for _, c := range indexstore.SortedUnique(poolIO[p]) {
			b.add(b.root.Append(arcPool, arcPoolIO, cidx[c], i), domain.ResolverRef{Category: domain.CategoryPoolIO, Pool: p, Key: c, Index: int(i)})
		}
	}
	return nil
}

func (b *builder) finish() (*Space, error) {
	sort.Slice(b.entries, func(i, j int) bool {
		return b.entries[i].OID.Less(b.entries[j].OID)
	})
	byOID := make(map[string]int, len(b.entries))
	for i, e := range b.entries {
		key := e.OID.String()
		if prev, dup := byOID[key]; dup {
			return nil, fmt.Errorf("identifier %s assigned to both %s and %s", key, b.entries[prev].Ref, e.Ref)
		}
		byOID[key] = i
	}
	return &Space{root: b.root, entries: b.entries, byOID: byOID}, nil
}

// Root returns the registration root.
func (s *Space) Root() domain.OID {
	return s.root.Append()
}

// Len returns the number of identifiers.
func (s *Space) Len() int {
	return len(s.entries)
}

// At returns the i-th entry in identifier order.
func (s *Space) At(i int) Entry {
	return s.entries[i]
}

// Lookup returns the ref registered at exactly oid.
func (s *Space) Lookup(oid domain.OID) (domain.ResolverRef, bool) {
	i, ok := s.byOID[oid.String()]
	if !ok {
		return domain.ResolverRef{}, false
	}
	return s.entries[i].Ref, true
}

// Lowest returns the smallest identifier. ok is false for an empty space.
func (s *Space) Lowest() (oid domain.OID, ok bool) {
	if len(s.entries) == 0 {
		return nil, false
	}
	return s.entries[0].OID, true
}

// Highest returns the largest identifier. ok is false for an empty space.
func (s *Space) Highest() (oid domain.OID, ok bool) {
	if len(s.entries) == 0 {
		return nil, false
	}
	return s.entries[len(s.entries)-1].OID, true
}
