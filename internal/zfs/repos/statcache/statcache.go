// Package statcache holds the latest parse of every kstat category and
// refreshes a category synchronously once it is older than the TTL.
//
// The cache is not safe for concurrent use. It is owned by the single request
// loop, which is the only caller of Get.
package statcache

import (
	"fmt"
	"sort"
	"time"

	"github.com/haukened/zfs-snmpd/internal/zfs/common/clock"
	"github.com/haukened/zfs-snmpd/internal/zfs/common/log"
	"github.com/haukened/zfs-snmpd/internal/zfs/domain"
)

// DefaultTTL is the refresh window used when Options.TTL is zero.
const DefaultTTL = 30 * time.Second

// Source is the file-reading collaborator.
type Source interface {
	ReadStats(category domain.Category) (map[string]uint64, error)
	ReadPools() ([]string, error)
	ReadPoolIO(pool string) (map[string]uint64, error)
}

// Entry is the cached parse of one common category.
type Entry struct {
	Category   domain.Category
	CapturedAt time.Time
	Data       map[string]uint64
}

// poolEntry is the cached io table of every known pool, refreshed as one unit.
type poolEntry struct {
	CapturedAt time.Time
	IO         map[string]map[string]uint64
}

// Stats counts reads of the underlying source per category.
type Stats struct {
	Refreshes map[domain.Category]uint64
}

// Options configures a Cache.
type Options struct {
	Source Source
	Clock  clock.Clock
	TTL    time.Duration
	Logger log.Logger
}

// Cache is the TTL-bounded statistics cache.
type Cache struct {
	source Source
	clock  clock.Clock
	ttl    time.Duration
	logger log.Logger

	common    map[domain.Category]*Entry
	pools     []string
	known     map[string]struct{}
	poolIO    *poolEntry
	refreshes map[domain.Category]uint64
}

// New returns an empty Cache. Call Populate before Get.
func New(opts Options) *Cache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Cache{
		source:    opts.Source,
		clock:     clk,
		ttl:       ttl,
		logger:    logger,
		common:    make(map[domain.Category]*Entry),
		known:     make(map[string]struct{}),
		refreshes: make(map[domain.Category]uint64),
	}
}

// TTL returns the refresh window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Populate loads every category and discovers pools. Pools are discovered
// exactly once, here; later refreshes only re-read known pools.
func (c *Cache) Populate() error {
	now := c.clock.Now()
	for _, cat := range []domain.Category{domain.CategoryArcstats, domain.CategoryZIL} {
		if err := c.refreshCommon(cat, now); err != nil {
			return err
		}
	}

	pools, err := c.source.ReadPools()
	if err != nil {
		return fmt.Errorf("discover pools: %w", err)
	}
	c.pools = pools
	for _, p := range pools {
		c.known[p] = struct{}{}
	}
	c.refreshPools(now)

	c.logger.Info(map[string]any{
		"arcstats": len(c.common[domain.CategoryArcstats].Data),
		"zil":      len(c.common[domain.CategoryZIL].Data),
		"pools":    pools,
	}, "Statistics cache populated")
	return nil
}

// Pools returns the pools discovered by Populate, in discovery order.
func (c *Cache) Pools() []string {
	out := make([]string, len(c.pools))
	copy(out, c.pools)
	return out
}

// Snapshot returns the names currently cached, for building the identifier space.
func (c *Cache) Snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		Arcstats: c.keys(domain.CategoryArcstats),
		ZIL:      c.keys(domain.CategoryZIL),
		Pools:    c.Pools(),
		PoolIO:   make(map[string][]string, len(c.pools)),
	}
	for _, p := range c.pools {
		var io map[string]uint64
		if c.poolIO != nil {
			io = c.poolIO.IO[p]
		}
		snap.PoolIO[p] = sortedKeys(io)
	}
	return snap
}

func (c *Cache) keys(cat domain.Category) []string {
	e, ok := c.common[cat]
	if !ok {
		return []string{}
	}
	return sortedKeys(e.Data)
}

// Get resolves ref at time now, refreshing its category first if the cached
// copy is older than the TTL. The bool is false when the key is not present.
// A non-nil error wraps domain.ErrFatal when a mandatory file could not be read.
func (c *Cache) Get(ref domain.ResolverRef, now time.Time) (domain.Value, bool, error) {
	switch ref.Category {
	case domain.CategoryArcstats, domain.CategoryZIL:
		e, ok := c.common[ref.Category]
		if !ok || c.expired(e.CapturedAt, now) {
			if err := c.refreshCommon(ref.Category, now); err != nil {
				return domain.Value{}, false, err
			}
			e = c.common[ref.Category]
		}
		v, ok := e.Data[ref.Key]
		if !ok {
			return domain.Value{}, false, nil
		}
		return domain.CounterValue(v), true, nil

	case domain.CategoryPoolIO:
		if c.poolIO == nil || c.expired(c.poolIO.CapturedAt, now) {
			c.refreshPools(now)
		}
		v, ok := c.poolIO.IO[ref.Pool][ref.Key]
		if !ok {
			return domain.Value{}, false, nil
		}
		return domain.CounterValue(v), true, nil

	case domain.CategoryPoolIndex:
		if _, ok := c.known[ref.Pool]; !ok {
			return domain.Value{}, false, nil
		}
		return domain.IntegerValue(ref.Index), true, nil

	case domain.CategoryPoolName:
		if _, ok := c.known[ref.Pool]; !ok {
			return domain.Value{}, false, nil
		}
		return domain.StringValue(ref.Pool), true, nil

	default:
		return domain.Value{}, false, fmt.Errorf("unknown category %q", ref.Category)
	}
}

// Stats returns a copy of the refresh counters.
func (c *Cache) Stats() Stats {
	out := Stats{Refreshes: make(map[domain.Category]uint64, len(c.refreshes))}
	for k, v := range c.refreshes {
		out.Refreshes[k] = v
	}
	return out
}

// expired is true once strictly more than ttl has elapsed since captured.
func (c *Cache) expired(captured, now time.Time) bool {
	return now.Sub(captured) > c.ttl
}

func (c *Cache) refreshCommon(cat domain.Category, now time.Time) error {
	data, err := c.source.ReadStats(cat)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", cat, err)
	}
	c.common[cat] = &Entry{Category: cat, CapturedAt: now, Data: data}
	c.refreshes[cat]++
	c.logger.Debug(map[string]any{
		"category": string(cat),
		"counters": len(data),
	}, "Refreshed statistics category")
	return nil
}

// refreshPools re-reads io for every known pool. A failing pool degrades to an
// empty table and never fails the refresh.
func (c *Cache) refreshPools(now time.Time) {
	io := make(map[string]map[string]uint64, len(c.pools))
	for _, p := range c.pools {
		data, err := c.source.ReadPoolIO(p)
		if err != nil {
			c.logger.Warn(map[string]any{
				"pool":  p,
				"error": err,
			}, "Failed to read pool io statistics")
			data = map[string]uint64{}
		}
		io[p] = data
	}
	c.poolIO = &poolEntry{CapturedAt: now, IO: io}
	c.refreshes[domain.CategoryPoolIO]++
	c.logger.Debug(map[string]any{
		"category": string(domain.CategoryPoolIO),
		"pools":    len(io),
	}, "Refreshed statistics category")
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
