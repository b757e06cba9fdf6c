// Package dispatcher answers EXACT and NEXT queries against the identifier
// space and expands protocol requests (get, getnext, getbulk, set) into them.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/haukened/zfs-snmpd/internal/zfs/common/clock"
	"github.com/haukened/zfs-snmpd/internal/zfs/common/log"
	"github.com/haukened/zfs-snmpd/internal/zfs/domain"
)

// maxBulkResults caps the varbinds produced by one getbulk request.
const maxBulkResults = 512

// Options configures a Dispatcher.
type Options struct {
	Space  IdentifierSpace
	Values ValueSource
	Clock  clock.Clock
	Logger log.Logger
	// NextCacheSize sizes the successor memo; 0 disables it.
	NextCacheSize int
}

// Dispatcher is the query engine. Like the cache behind it, it is driven by a
// single request loop and is not safe for concurrent use.
type Dispatcher struct {
	space  IdentifierSpace
	values ValueSource
	clock  clock.Clock
	logger log.Logger
	memo   SuccessorCache
}

// New builds a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if opts.Space == nil || opts.Values == nil {
		return nil, errors.New("dispatcher requires a space and a value source")
	}
	memo, err := NewSuccessorCache(opts.NextCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create successor cache: %w", err)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Dispatcher{
		space:  opts.Space,
		values: opts.Values,
		clock:  clk,
		logger: logger,
		memo:   memo,
	}, nil
}

// MemoStats reports successor memo hits and misses.
func (d *Dispatcher) MemoStats() (hits, misses uint64) {
	return d.memo.Stats()
}

// HandleQuery answers one EXACT or NEXT query. Absence is reported through
// Result.Status; an error means the value could not be produced at all.
func (d *Dispatcher) HandleQuery(ctx context.Context, q domain.Query) (domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}
	now := d.clock.Now()
	switch q.Mode {
	case domain.ModeExact:
		return d.exact(q.OID, now)
	case domain.ModeNext:
		return d.next(ctx, q.OID, now)
	default:
		return domain.Result{}, fmt.Errorf("unsupported query mode %s", q.Mode)
	}
}

func (d *Dispatcher) exact(oid domain.OID, now time.Time) (domain.Result, error) {
	ref, ok := d.space.Lookup(oid)
	if !ok {
		return domain.Result{OID: oid, Status: domain.StatusNoSuchObject}, nil
	}
	v, found, err := d.values.Get(ref, now)
	if err != nil {
		return domain.Result{}, fmt.Errorf("resolve %s (%s): %w", oid, ref, err)
	}
	if !found {
		return domain.Result{OID: oid, Status: domain.StatusNoSuchInstance}, nil
	}
	return domain.Result{OID: oid, Status: domain.StatusFound, Value: v}, nil
}

// next returns the first identifier strictly greater than oid whose value
// still resolves. Identifiers whose counter vanished since startup are skipped.
func (d *Dispatcher) next(ctx context.Context, oid domain.OID, now time.Time) (domain.Result, error) {
	for pos := d.successor(oid); pos < d.space.Len(); pos++ {
		if err := ctx.Err(); err != nil {
			return domain.Result{}, err
		}
		e := d.space.At(pos)
		v, found, err := d.values.Get(e.Ref, now)
		if err != nil {
			return domain.Result{}, fmt.Errorf("resolve %s (%s): %w", e.OID, e.Ref, err)
		}
		if found {
			return domain.Result{OID: e.OID, Status: domain.StatusFound, Value: v}, nil
		}
		d.logger.Debug(map[string]any{
			"oid": e.OID.String(),
			"ref": e.Ref.String(),
		}, "Skipping identifier without a current value")
	}
	return domain.Result{OID: oid, Status: domain.StatusEndOfMibView}, nil
}

// successor returns the position of the first entry strictly greater than
// oid, or Len() when there is none. Below the lowest entry this is 0.
func (d *Dispatcher) successor(oid domain.OID) int {
	key := oid.String()
	if pos, ok := d.memo.Get(key); ok {
		return pos
	}
	pos := sort.Search(d.space.Len(), func(i int) bool {
		return d.space.At(i).OID.Compare(oid) > 0
	})
	d.memo.Put(key, pos)
	return pos
}

// HandleRequest expands a protocol request into queries and collects the
// results. Errors wrapping domain.ErrFatal must stop the service; any other
// failure is reported to the client as genErr.
func (d *Dispatcher) HandleRequest(ctx context.Context, req domain.Request) (domain.Response, error) {
	resp := domain.Response{ID: req.ID}

	var err error
	switch req.Kind {
	case domain.RequestGet:
		resp.Results, err = d.each(ctx, domain.ModeExact, req.OIDs)
	case domain.RequestGetNext:
		resp.Results, err = d.each(ctx, domain.ModeNext, req.OIDs)
	case domain.RequestGetBulk:
		resp.Results, err = d.bulk(ctx, req)
	case domain.RequestSet:
		return domain.ErrorResponse(req, domain.ErrorNotWritable), nil
	default:
		err = fmt.Errorf("unsupported request kind %s", req.Kind)
	}
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, domain.ErrFatal) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Response{}, err
	}

	d.logger.Error(map[string]any{
		"request_id": req.ID,
		"kind":       req.Kind.String(),
		"error":      err,
	}, "Failed to handle request")
	return domain.ErrorResponse(req, domain.ErrorGenErr), nil
}

func (d *Dispatcher) each(ctx context.Context, mode domain.QueryMode, oids []domain.OID) ([]domain.Result, error) {
	results := make([]domain.Result, 0, len(oids))
	for _, oid := range oids {
		r, err := d.HandleQuery(ctx, domain.Query{Mode: mode, OID: oid})
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// bulk implements getbulk: one NEXT per non-repeater, then up to
// MaxRepetitions rows of NEXTs over the repeaters, stopping early once every
// repeater has reached the end of the space.
func (d *Dispatcher) bulk(ctx context.Context, req domain.Request) ([]domain.Result, error) {
	nonRep := req.NonRepeaters
	if nonRep < 0 {
		nonRep = 0
	}
	if nonRep > len(req.OIDs) {
		nonRep = len(req.OIDs)
	}
	results, err := d.each(ctx, domain.ModeNext, req.OIDs[:nonRep])
	if err != nil {
		return nil, err
	}

	cursors := make([]domain.OID, len(req.OIDs)-nonRep)
	copy(cursors, req.OIDs[nonRep:])
	if len(cursors) == 0 {
		return results, nil
	}

	for rep := 0; rep < req.MaxRepetitions; rep++ {
		if len(results)+len(cursors) > maxBulkResults {
			break
		}
		allEnd := true
		for j, cur := range cursors {
			r, err := d.HandleQuery(ctx, domain.Query{Mode: domain.ModeNext, OID: cur})
			if err != nil {
				return nil, err
			}
			results = append(results, r)
			if r.Status != domain.StatusEndOfMibView {
				allEnd = false
				cursors[j] = r.OID
			}
		}
		if allEnd {
			break
		}
	}
	return results, nil
}
