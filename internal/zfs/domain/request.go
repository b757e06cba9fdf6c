package domain

import (
	"errors"
	"fmt"
)

// ErrFatal marks failures the process cannot continue from, such as a
// mandatory kstat file disappearing. Check with errors.Is.
var ErrFatal = errors.New("fatal")

// RequestKind is the protocol operation carried by a request.
type RequestKind uint8

const (
	RequestGet RequestKind = iota
	RequestGetNext
	RequestGetBulk
	RequestSet
)

func (k RequestKind) String() string {
	switch k {
	case RequestGet:
		return "get"
	case RequestGetNext:
		return "getnext"
	case RequestGetBulk:
		return "getbulk"
	case RequestSet:
		return "set"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", k)
	}
}

// Request is a decoded protocol request carrying one or more identifiers.
type Request struct {
	ID             uint32
	Kind           RequestKind
	Community      string
	NonRepeaters   int
	MaxRepetitions int
	OIDs           []OID
}

// ErrorStatus is the protocol-level error status of a response.
type ErrorStatus uint8

// Values match the SNMPv2 error-status numbering.
const (
	ErrorNone        ErrorStatus = 0
	ErrorTooBig      ErrorStatus = 1
	ErrorGenErr      ErrorStatus = 5
	ErrorNoAccess    ErrorStatus = 6
	ErrorNotWritable ErrorStatus = 17
)

func (e ErrorStatus) String() string {
	switch e {
	case ErrorNone:
		return "noError"
	case ErrorTooBig:
		return "tooBig"
	case ErrorGenErr:
		return "genErr"
	case ErrorNoAccess:
		return "noAccess"
	case ErrorNotWritable:
		return "notWritable"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", e)
	}
}

// Response answers a Request. ErrorIndex is 1-based and only meaningful when
// Status is not ErrorNone.
type Response struct {
	ID         uint32
	Status     ErrorStatus
	ErrorIndex int
	Results    []Result
}

// ErrorResponse answers req with status. The request identifiers are echoed
// back without values, with the first one blamed.
func ErrorResponse(req Request, status ErrorStatus) Response {
	results := make([]Result, len(req.OIDs))
	for i, oid := range req.OIDs {
		results[i] = Result{OID: oid, Status: StatusNoSuchObject}
	}
	resp := Response{ID: req.ID, Status: status, Results: results}
	if len(req.OIDs) > 0 {
		resp.ErrorIndex = 1
	}
	return resp
}
