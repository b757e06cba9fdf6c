// Package statsource reads ZFS kstat files (arcstats, zil, <pool>/io) from the
// SPL kstat directory, normally /proc/spl/kstat/zfs.
package statsource

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/haukened/zfs-snmpd/internal/zfs/domain"
)

// ioFile is the per-pool io kstat name.
const ioFile = "io"

// Source reads kstat files from a filesystem rooted at the stats directory.
type Source struct {
	fsys fs.FS
}

// New returns a Source reading from the directory root.
func New(root string) *Source {
	return &Source{fsys: os.DirFS(root)}
}

// NewFromFS returns a Source reading from fsys. Used by tests with fstest.MapFS.
func NewFromFS(fsys fs.FS) *Source {
	return &Source{fsys: fsys}
}

// fileFor maps a common category to its kstat file name.
func fileFor(category domain.Category) (string, error) {
	switch category {
	case domain.CategoryArcstats:
		return "arcstats", nil
	case domain.CategoryZIL:
		return "zil", nil
	default:
		return "", fmt.Errorf("category %q has no named kstat file", category)
	}
}

// ReadStats parses the named kstat file for category. A file that cannot be
// opened is unrecoverable and the returned error wraps domain.ErrFatal.
func (s *Source) ReadStats(category domain.Category) (map[string]uint64, error) {
	name, err := fileFor(category)
	if err != nil {
		return nil, err
	}
	f, err := s.fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrFatal, name, err)
	}
	defer f.Close()

	stats, err := ParseNamedKstat(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrFatal, name, err)
	}
	return stats, nil
}

// ReadPools lists pool directories in name order. Entries made only of dots
// are skipped.
func (s *Source) ReadPools() ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	pools := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.Trim(e.Name(), ".") == "" {
			continue
		}
		pools = append(pools, e.Name())
	}
	sort.Strings(pools)
	return pools, nil
}

// ReadPoolIO parses <pool>/io. A missing file is not an error and yields an
// empty map.
func (s *Source) ReadPoolIO(pool string) (map[string]uint64, error) {
	f, err := s.fsys.Open(path.Join(pool, ioFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]uint64{}, nil
		}
		return nil, fmt.Errorf("open %s io: %w", pool, err)
	}
	defer f.Close()

	stats, err := ParseIOTable(f)
	if err != nil {
		return nil, fmt.Errorf("read %s io: %w", pool, err)
	}
	return stats, nil
}
