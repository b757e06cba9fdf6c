package domain

import "fmt"

// Category names one statistics source held by the cache.
type Category string

const (
	CategoryArcstats  Category = "common.arcstats"
	CategoryZIL       Category = "common.zil"
	CategoryPoolIO    Category = "pool.io"
	CategoryPoolIndex Category = "pool.idx"
	CategoryPoolName  Category = "pool.name"
)

// IsValid returns true for the categories the cache knows how to resolve.
func (c Category) IsValid() bool {
	switch c {
	case CategoryArcstats, CategoryZIL, CategoryPoolIO, CategoryPoolIndex, CategoryPoolName:
		return true
	default:
		return false
	}
}

// IsCommon returns true for the mandatory, pool-independent categories.
func (c Category) IsCommon() bool {
	return c == CategoryArcstats || c == CategoryZIL
}

// ForPool renders the per-pool form of a pool category, e.g. "pool.tank.io".
func (c Category) ForPool(pool string) string {
	switch c {
	case CategoryPoolIO:
		return fmt.Sprintf("pool.%s.io", pool)
	case CategoryPoolIndex:
		return fmt.Sprintf("pool.%s.idx", pool)
	case CategoryPoolName:
		return fmt.Sprintf("pool.%s.name", pool)
	default:
		return string(c)
	}
}

// ResolverRef points an identifier at the cached value it exposes.
// Pool is empty for common categories; Key is empty for pool.idx and pool.name.
// Index is the pool's position in the identifier space, echoed by pool.idx.
type ResolverRef struct {
	Category Category
	Pool     string
	Key      string
	Index    int
}

// String renders the ref as "category/key" for logs.
func (r ResolverRef) String() string {
	name := r.Category.ForPool(r.Pool)
	if r.Key == "" {
		return name
	}
	return name + "/" + r.Key
}
