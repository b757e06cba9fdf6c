package statcache

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haukened/zfs-snmpd/internal/zfs/common/clock"
	"github.com/haukened/zfs-snmpd/internal/zfs/common/log"
	"github.com/haukened/zfs-snmpd/internal/zfs/domain"
)

// MockSource implements Source for testing.
type MockSource struct {
	mock.Mock
}

func (m *MockSource) ReadStats(category domain.Category) (map[string]uint64, error) {
	args := m.Called(category)
	data, _ := args.Get(0).(map[string]uint64)
	return data, args.Error(1)
}

func (m *MockSource) ReadPools() ([]string, error) {
	args := m.Called()
	pools, _ := args.Get(0).([]string)
	return pools, args.Error(1)
}

func (m *MockSource) ReadPoolIO(pool string) (map[string]uint64, error) {
	args := m.Called(pool)
	data, _ := args.Get(0).(map[string]uint64)
	return data, args.Error(1)
}

var epoch = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, src *MockSource) (*Cache, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(epoch)
	c := New(Options{Source: src, Clock: clk, TTL: 30 * time.Second, Logger: log.NewNoopLogger()})
	return c, clk
}

func standardSource() *MockSource {
	src := &MockSource{}
	src.On("ReadStats", domain.CategoryArcstats).Return(map[string]uint64{"hits": 100, "misses": 7}, nil)
	src.On("ReadStats", domain.CategoryZIL).Return(map[string]uint64{}, nil)
	src.On("ReadPools").Return([]string{"tank"}, nil)
	src.On("ReadPoolIO", "tank").Return(map[string]uint64{"read_ops": 42, "write_ops": 9}, nil)
	return src
}

func TestNew_Defaults(t *testing.T) {
	c := New(Options{Source: &MockSource{}})
	assert.Equal(t, DefaultTTL, c.TTL())
	assert.NotNil(t, c.clock)
	assert.NotNil(t, c.logger)
}

func TestCache_Populate(t *testing.T) {
	src := standardSource()
	c, _ := newTestCache(t, src)

	require.NoError(t, c.Populate())

	snap := c.Snapshot()
	assert.Equal(t, []string{"hits", "misses"}, snap.Arcstats)
	assert.Empty(t, snap.ZIL)
	assert.Equal(t, []string{"tank"}, snap.Pools)
	assert.Equal(t, map[string][]string{"tank": {"read_ops", "write_ops"}}, snap.PoolIO)
	src.AssertExpectations(t)
}

func TestCache_Populate_FatalArcstats(t *testing.T) {
	src := &MockSource{}
	src.On("ReadStats", domain.CategoryArcstats).Return(nil, fmt.Errorf("%w: open arcstats", domain.ErrFatal))
	c, _ := newTestCache(t, src)

	err := c.Populate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFatal))
	src.AssertNotCalled(t, "ReadPools")
}

func TestCache_Populate_PoolListingError(t *testing.T) {
	src := &MockSource{}
	src.On("ReadStats", mock.Anything).Return(map[string]uint64{}, nil)
	src.On("ReadPools").Return(nil, errors.New("permission denied"))
	c, _ := newTestCache(t, src)

	require.Error(t, c.Populate())
}

func TestCache_Get_Values(t *testing.T) {
	src := standardSource()
	c, clk := newTestCache(t, src)
	require.NoError(t, c.Populate())

	tests := []struct {
		name  string
		ref   domain.ResolverRef
		want  domain.Value
		found bool
	}{
		{"arcstats counter", domain.ResolverRef{Category: domain.CategoryArcstats, Key: "hits"}, domain.CounterValue(100), true},
		{"arcstats missing key", domain.ResolverRef{Category: domain.CategoryArcstats, Key: "nope"}, domain.Value{}, false},
		{"zil missing key", domain.ResolverRef{Category: domain.CategoryZIL, Key: "zil_commit_count"}, domain.Value{}, false},
		{"pool io", domain.ResolverRef{Category: domain.CategoryPoolIO, Pool: "tank", Key: "write_ops"}, domain.CounterValue(9), true},
		{"pool io unknown pool", domain.ResolverRef{Category: domain.CategoryPoolIO, Pool: "ghost", Key: "write_ops"}, domain.Value{}, false},
		{"pool index", domain.ResolverRef{Category: domain.CategoryPoolIndex, Pool: "tank"}, domain.IntegerValue(0), true},
		{"pool index echoes ref", domain.ResolverRef{Category: domain.CategoryPoolIndex, Pool: "tank", Index: 4}, domain.IntegerValue(4), true},
		{"pool index unknown", domain.ResolverRef{Category: domain.CategoryPoolIndex, Pool: "ghost"}, domain.Value{}, false},
		{"pool name", domain.ResolverRef{Category: domain.CategoryPoolName, Pool: "tank"}, domain.StringValue("tank"), true},
		{"pool name unknown", domain.ResolverRef{Category: domain.CategoryPoolName, Pool: "ghost"}, domain.Value{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found, err := c.Get(tt.ref, clk.Now())
			require.NoError(t, err)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCache_Get_UnknownCategory(t *testing.T) {
	c, clk := newTestCache(t, standardSource())
	require.NoError(t, c.Populate())

	_, _, err := c.Get(domain.ResolverRef{Category: "bogus"}, clk.Now())
	require.Error(t, err)
}

func TestCache_Get_TTLBoundary(t *testing.T) {
	src := standardSource()
	c, clk := newTestCache(t, src)
	require.NoError(t, c.Populate())
	ref := domain.ResolverRef{Category: domain.CategoryArcstats, Key: "hits"}

	// Two reads inside the window: no extra file read.
	_, _, err := c.Get(ref, clk.Now())
	require.NoError(t, err)
	clk.Advance(10 * time.Second)
	_, _, err = c.Get(ref, clk.Now())
	require.NoError(t, err)
	src.AssertNumberOfCalls(t, "ReadStats", 2) // arcstats + zil at populate

	// Exactly TTL old is still fresh.
	clk.Set(epoch.Add(30 * time.Second))
	_, _, err = c.Get(ref, clk.Now())
	require.NoError(t, err)
	src.AssertNumberOfCalls(t, "ReadStats", 2)

	// One nanosecond past TTL triggers exactly one refresh of that category.
	clk.Advance(time.Nanosecond)
	_, _, err = c.Get(ref, clk.Now())
	require.NoError(t, err)
	_, _, err = c.Get(ref, clk.Now())
	require.NoError(t, err)
	src.AssertNumberOfCalls(t, "ReadStats", 3)
	assert.Equal(t, uint64(2), c.Stats().Refreshes[domain.CategoryArcstats])
	assert.Equal(t, uint64(1), c.Stats().Refreshes[domain.CategoryZIL])
}

func TestCache_Get_RefreshPicksUpNewValues(t *testing.T) {
	src := &MockSource{}
	src.On("ReadStats", domain.CategoryArcstats).Return(map[string]uint64{"hits": 1}, nil).Once()
	src.On("ReadStats", domain.CategoryArcstats).Return(map[string]uint64{"hits": 2}, nil).Once()
	src.On("ReadStats", domain.CategoryZIL).Return(map[string]uint64{}, nil)
	src.On("ReadPools").Return([]string{}, nil)
	c, clk := newTestCache(t, src)
	require.NoError(t, c.Populate())
	ref := domain.ResolverRef{Category: domain.CategoryArcstats, Key: "hits"}

	v, _, err := c.Get(ref, clk.Now())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.Counter)

	clk.Advance(31 * time.Second)
	v, _, err = c.Get(ref, clk.Now())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v.Counter)
}

func TestCache_Get_RefreshFailureIsFatal(t *testing.T) {
	src := &MockSource{}
	src.On("ReadStats", domain.CategoryArcstats).Return(map[string]uint64{"hits": 1}, nil).Once()
	src.On("ReadStats", domain.CategoryArcstats).Return(nil, fmt.Errorf("%w: open arcstats: gone", domain.ErrFatal)).Once()
	src.On("ReadStats", domain.CategoryZIL).Return(map[string]uint64{}, nil)
	src.On("ReadPools").Return([]string{}, nil)
	c, clk := newTestCache(t, src)
	require.NoError(t, c.Populate())

	clk.Advance(time.Minute)
	_, found, err := c.Get(domain.ResolverRef{Category: domain.CategoryArcstats, Key: "hits"}, clk.Now())
	require.Error(t, err)
	assert.False(t, found)
	assert.True(t, errors.Is(err, domain.ErrFatal))
}

func TestCache_Get_PoolRefreshToleratesFailures(t *testing.T) {
	src := &MockSource{}
	src.On("ReadStats", mock.Anything).Return(map[string]uint64{}, nil)
	src.On("ReadPools").Return([]string{"rpool", "tank"}, nil)
	src.On("ReadPoolIO", "rpool").Return(map[string]uint64{"nread": 5}, nil)
	src.On("ReadPoolIO", "tank").Return(map[string]uint64{"nread": 1}, nil).Once()
	src.On("ReadPoolIO", "tank").Return(nil, errors.New("input/output error"))
	c, clk := newTestCache(t, src)
	require.NoError(t, c.Populate())

	clk.Advance(time.Minute)
	_, found, err := c.Get(domain.ResolverRef{Category: domain.CategoryPoolIO, Pool: "tank", Key: "nread"}, clk.Now())
	require.NoError(t, err)
	assert.False(t, found)

	v, found, err := c.Get(domain.ResolverRef{Category: domain.CategoryPoolIO, Pool: "rpool", Key: "nread"}, clk.Now())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(5), v.Counter)
}

func TestCache_PoolRefreshNeverRediscovers(t *testing.T) {
	src := standardSource()
	c, clk := newTestCache(t, src)
	require.NoError(t, c.Populate())

	clk.Advance(time.Hour)
	_, _, err := c.Get(domain.ResolverRef{Category: domain.CategoryPoolIO, Pool: "tank", Key: "read_ops"}, clk.Now())
	require.NoError(t, err)

	src.AssertNumberOfCalls(t, "ReadPools", 1)
	src.AssertNumberOfCalls(t, "ReadPoolIO", 2)
	assert.Equal(t, []string{"tank"}, c.Pools())
}

func TestCache_StaleKeyDisappears(t *testing.T) {
	src := &MockSource{}
	src.On("ReadStats", domain.CategoryArcstats).Return(map[string]uint64{"hits": 1, "l2_hits": 3}, nil).Once()
	src.On("ReadStats", domain.CategoryArcstats).Return(map[string]uint64{"hits": 2}, nil)
	src.On("ReadStats", domain.CategoryZIL).Return(map[string]uint64{}, nil)
	src.On("ReadPools").Return([]string{}, nil)
	c, clk := newTestCache(t, src)
	require.NoError(t, c.Populate())
	assert.Equal(t, []string{"hits", "l2_hits"}, c.Snapshot().Arcstats)

	clk.Advance(time.Minute)
	_, found, err := c.Get(domain.ResolverRef{Category: domain.CategoryArcstats, Key: "l2_hits"}, clk.Now())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_PoolsReturnsCopy(t *testing.T) {
	c, _ := newTestCache(t, standardSource())
	require.NoError(t, c.Populate())

	pools := c.Pools()
	pools[0] = "mutated"
	assert.Equal(t, []string{"tank"}, c.Pools())
}
