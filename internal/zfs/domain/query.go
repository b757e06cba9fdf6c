package domain

import "fmt"

// QueryMode is the lookup semantics of a single query.
type QueryMode uint8

const (
	// ModeExact returns the value at the identifier itself.
	ModeExact QueryMode = iota
	// ModeNext returns the lowest identifier strictly greater than the one given.
	ModeNext
)

func (m QueryMode) String() string {
	switch m {
	case ModeExact:
		return "EXACT"
	case ModeNext:
		return "NEXT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", m)
	}
}

// Query asks for one identifier.
type Query struct {
	Mode QueryMode
	OID  OID
}

// ResultStatus tells a poller whether a value came back and, if not, why.
type ResultStatus uint8

const (
	StatusFound ResultStatus = iota
	// StatusNoSuchObject: the identifier is not part of the space.
	StatusNoSuchObject
	// StatusNoSuchInstance: the identifier exists but its value is gone.
	StatusNoSuchInstance
	// StatusEndOfMibView: NEXT ran past the highest identifier.
	StatusEndOfMibView
)

func (s ResultStatus) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNoSuchObject:
		return "noSuchObject"
	case StatusNoSuchInstance:
		return "noSuchInstance"
	case StatusEndOfMibView:
		return "endOfMibView"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Result answers a Query. OID is the identifier the value belongs to; for NEXT
// queries that is the successor, for misses it echoes the requested identifier.
type Result struct {
	OID    OID
	Status ResultStatus
	Value  Value
}

// Found reports whether the result carries a value.
func (r Result) Found() bool {
	return r.Status == StatusFound
}
