package dispatcher

import (
	"time"

	"github.com/haukened/zfs-snmpd/internal/zfs/domain"
	"github.com/haukened/zfs-snmpd/internal/zfs/services/oidspace"
)

// ValueSource resolves a ref to its current value, refreshing stale data as
// needed. Implemented by statcache.Cache.
type ValueSource interface {
	Get(ref domain.ResolverRef, now time.Time) (domain.Value, bool, error)
}

// IdentifierSpace is the sorted identifier table. Implemented by oidspace.Space.
type IdentifierSpace interface {
	Len() int
	At(i int) oidspace.Entry
	Lookup(oid domain.OID) (domain.ResolverRef, bool)
}

// SuccessorCache remembers the position of the successor of a NEXT request
// identifier. Entries never go stale because the space is immutable.
type SuccessorCache interface {
	Get(key string) (int, bool)
	Put(key string, pos int)
	Len() int
	Stats() (hits, misses uint64)
}
