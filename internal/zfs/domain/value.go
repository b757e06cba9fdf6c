package domain

import (
	"fmt"
	"strconv"
)

// ValueKind selects how a Value is encoded on the wire.
type ValueKind uint8

const (
	// KindCounter is an unsigned, wrapping counter (SNMP Counter64).
	KindCounter ValueKind = iota
	// KindInteger is a signed integer (SNMP Integer32).
	KindInteger
	// KindString is a text value (SNMP OctetString).
	KindString
)

// String returns the pass_persist type keyword for the kind.
func (k ValueKind) String() string {
	switch k {
	case KindCounter:
		return "counter64"
	case KindInteger:
		return "integer"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", k)
	}
}

// Value is a resolved, typed value.
type Value struct {
	Kind    ValueKind
	Counter uint64
	Integer int
	Text    string
}

// CounterValue builds a counter Value.
func CounterValue(v uint64) Value {
	return Value{Kind: KindCounter, Counter: v}
}

// IntegerValue builds an integer Value.
func IntegerValue(v int) Value {
	return Value{Kind: KindInteger, Integer: v}
}

// StringValue builds a text Value.
func StringValue(s string) Value {
	return Value{Kind: KindString, Text: s}
}

// String renders the value payload without type information.
func (v Value) String() string {
	switch v.Kind {
	case KindCounter:
		return strconv.FormatUint(v.Counter, 10)
	case KindInteger:
		return strconv.Itoa(v.Integer)
	default:
		return v.Text
	}
}
