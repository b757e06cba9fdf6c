// Package bolt persists index assignments in a bbolt file so identifiers keep
// their position across restarts, even when counters come and go.
package bolt

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/zfs-snmpd/internal/zfs/repos/indexstore"
)

const schemaVersion uint32 = 1

var (
	bucketMeta = []byte("meta")
	keySchema  = []byte("schema")
)

// boltRegistry implements indexstore.Registry using bbolt. Each namespace is a
// bucket of name -> big-endian uint32 index; the bucket sequence allocates new
// indices so a released index is never handed out again.
type boltRegistry struct {
	mu     sync.Mutex
	db     *bbolt.DB
	closed bool
}

// New opens (or creates) the registry database at path.
func New(path string) (indexstore.Registry, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open index registry %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if v := b.Get(keySchema); v != nil {
			if len(v) != 4 || binary.BigEndian.Uint32(v) != schemaVersion {
				return fmt.Errorf("unsupported index registry schema %x", v)
			}
			return nil
		}
		return b.Put(keySchema, encodeIndex(schemaVersion))
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltRegistry{db: db}, nil
}

// Assign returns persisted indices for known names and allocates new ones, in
// lexicographic order, for names seen for the first time.
func (r *boltRegistry) Assign(namespace string, names []string) (map[string]uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, indexstore.ErrClosed
	}

	out := make(map[string]uint32, len(names))
	err := r.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		for _, name := range indexstore.SortedUnique(names) {
			if v := b.Get([]byte(name)); len(v) == 4 {
				out[name] = binary.BigEndian.Uint32(v)
				continue
			}
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			if seq-1 > math.MaxUint32 {
				return fmt.Errorf("namespace %s exhausted", namespace)
			}
			idx := uint32(seq - 1)
			if err := b.Put([]byte(name), encodeIndex(idx)); err != nil {
				return err
			}
			out[name] = idx
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("assign %s indices: %w", namespace, err)
	}
	return out, nil
}

func (r *boltRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}

func encodeIndex(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

var _ indexstore.Registry = (*boltRegistry)(nil)
