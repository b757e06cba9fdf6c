package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidOID is returned when a dotted identifier cannot be parsed.
var ErrInvalidOID = errors.New("invalid OID")

// OID is a hierarchical numeric identifier. OIDs are ordered lexicographically:
// element-wise, with a strict prefix sorting before any of its extensions.
type OID []uint32

// ParseOID parses a dotted identifier such as ".1.3.6.1.4.1" or "1.3.6.1.4.1".
func ParseOID(s string) (OID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidOID)
	}
	parts := strings.Split(s, ".")
	oid := make(OID, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidOID, s, err)
		}
		oid = append(oid, uint32(n))
	}
	return oid, nil
}

// MustParseOID is ParseOID for constants; it panics on malformed input.
func MustParseOID(s string) OID {
	oid, err := ParseOID(s)
	if err != nil {
		panic(err)
	}
	return oid
}

// String renders the OID in net-snmp's leading-dot form.
func (o OID) String() string {
	if len(o) == 0 {
		return ""
	}
	var b strings.Builder
	for _, n := range o {
		b.WriteByte('.')
		b.WriteString(strconv.FormatUint(uint64(n), 10))
	}
	return b.String()
}

// Compare returns -1, 0 or +1 as o sorts before, equal to, or after p.
func (o OID) Compare(p OID) int {
	n := len(o)
	if len(p) < n {
		n = len(p)
	}
	for i := 0; i < n; i++ {
		switch {
		case o[i] < p[i]:
			return -1
		case o[i] > p[i]:
			return 1
		}
	}
	switch {
	case len(o) < len(p):
		return -1
	case len(o) > len(p):
		return 1
	}
	return 0
}

// Less reports whether o sorts strictly before p.
func (o OID) Less(p OID) bool {
	return o.Compare(p) < 0
}

// Equal reports whether o and p address the same node.
func (o OID) Equal(p OID) bool {
	return o.Compare(p) == 0
}

// HasPrefix reports whether o lies in the subtree rooted at prefix (or is prefix).
func (o OID) HasPrefix(prefix OID) bool {
	if len(prefix) > len(o) {
		return false
	}
	for i := range prefix {
		if o[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Append returns a new OID made of o followed by sub. o is never modified.
func (o OID) Append(sub ...uint32) OID {
	out := make(OID, 0, len(o)+len(sub))
	out = append(out, o...)
	return append(out, sub...)
}
