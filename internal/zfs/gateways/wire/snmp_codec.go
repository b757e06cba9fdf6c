// Package wire provides encoding and decoding of SNMPv2c messages on top of
// gosnmp's BER implementation.
package wire

import (
	"errors"
	"fmt"

	"github.com/gosnmp/gosnmp"

	"github.com/haukened/zfs-snmpd/internal/zfs/common/log"
	"github.com/haukened/zfs-snmpd/internal/zfs/domain"
)

// DefaultMaxMessageSize is the largest payload a single UDP datagram can carry.
const DefaultMaxMessageSize = 65507

var (
	// ErrUnsupportedVersion is returned for anything other than SNMPv2c.
	ErrUnsupportedVersion = errors.New("unsupported SNMP version")
	// ErrUnsupportedPDU is returned for PDUs an agent does not accept.
	ErrUnsupportedPDU = errors.New("unsupported PDU type")
)

// snmpCodec implements Codec for SNMPv2c over gosnmp.
type snmpCodec struct {
	logger  log.Logger
	maxSize int
}

// NewSNMPCodec returns a codec that answers with responses no larger than
// maxSize bytes. A maxSize of 0 selects DefaultMaxMessageSize.
func NewSNMPCodec(logger log.Logger, maxSize int) *snmpCodec {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &snmpCodec{logger: logger, maxSize: maxSize}
}

// DecodeRequest parses a Get, GetNext, GetBulk or Set request.
func (c *snmpCodec) DecodeRequest(data []byte) (domain.Request, error) {
	decoder := &gosnmp.GoSNMP{Version: gosnmp.Version2c}
	packet, err := decoder.SnmpDecodePacket(data)
	if err != nil {
		return domain.Request{}, fmt.Errorf("decode SNMP packet: %w", err)
	}
	if packet.Version != gosnmp.Version2c {
		return domain.Request{}, fmt.Errorf("%w: %s", ErrUnsupportedVersion, packet.Version)
	}

	req := domain.Request{
		ID:        packet.RequestID,
		Community: packet.Community,
	}
	switch packet.PDUType {
	case gosnmp.GetRequest:
		req.Kind = domain.RequestGet
	case gosnmp.GetNextRequest:
		req.Kind = domain.RequestGetNext
	case gosnmp.GetBulkRequest:
		req.Kind = domain.RequestGetBulk
		req.NonRepeaters = int(packet.NonRepeaters)
		req.MaxRepetitions = int(packet.MaxRepetitions)
	case gosnmp.SetRequest:
		req.Kind = domain.RequestSet
	default:
		return domain.Request{}, fmt.Errorf("%w: %s", ErrUnsupportedPDU, packet.PDUType)
	}

	req.OIDs = make([]domain.OID, 0, len(packet.Variables))
	for _, v := range packet.Variables {
		oid, err := domain.ParseOID(v.Name)
		if err != nil {
			return domain.Request{}, fmt.Errorf("varbind %q: %w", v.Name, err)
		}
		req.OIDs = append(req.OIDs, oid)
	}
	return req, nil
}

// EncodeResponse marshals resp as a GetResponse. A response that would exceed
// the size limit is replaced by a tooBig error with no varbinds.
func (c *snmpCodec) EncodeResponse(req domain.Request, resp domain.Response) ([]byte, error) {
	out, err := c.marshal(req, resp)
	if err != nil {
		return nil, err
	}
	if len(out) <= c.maxSize {
		return out, nil
	}

	c.logger.Warn(map[string]any{
		"request_id": req.ID,
		"size":       len(out),
		"max_size":   c.maxSize,
	}, "Response too big, answering tooBig")
	return c.marshal(req, domain.Response{ID: resp.ID, Status: domain.ErrorTooBig})
}

func (c *snmpCodec) marshal(req domain.Request, resp domain.Response) ([]byte, error) {
	packet := &gosnmp.SnmpPacket{
		Version:    gosnmp.Version2c,
		Community:  req.Community,
		PDUType:    gosnmp.GetResponse,
		RequestID:  resp.ID,
		Error:      gosnmp.SNMPError(resp.Status),
		ErrorIndex: uint8(resp.ErrorIndex),
		Variables:  make([]gosnmp.SnmpPDU, 0, len(resp.Results)),
	}
	for _, r := range resp.Results {
		pdu := gosnmp.SnmpPDU{Name: r.OID.String()}
		if resp.Status != domain.ErrorNone {
			pdu.Type = gosnmp.Null
		} else if err := fillVarbind(&pdu, r); err != nil {
			return nil, err
		}
		packet.Variables = append(packet.Variables, pdu)
	}

	out, err := packet.MarshalMsg()
	if err != nil {
		return nil, fmt.Errorf("marshal SNMP response: %w", err)
	}
	return out, nil
}

func fillVarbind(pdu *gosnmp.SnmpPDU, r domain.Result) error {
	switch r.Status {
	case domain.StatusNoSuchObject:
		pdu.Type = gosnmp.NoSuchObject
		return nil
	case domain.StatusNoSuchInstance:
		pdu.Type = gosnmp.NoSuchInstance
		return nil
	case domain.StatusEndOfMibView:
		pdu.Type = gosnmp.EndOfMibView
		return nil
	case domain.StatusFound:
	default:
		return fmt.Errorf("varbind %s: unknown status %s", r.OID, r.Status)
	}

	switch r.Value.Kind {
	case domain.KindCounter:
		pdu.Type = gosnmp.Counter64
		pdu.Value = r.Value.Counter
	case domain.KindInteger:
		pdu.Type = gosnmp.Integer
		pdu.Value = r.Value.Integer
	case domain.KindString:
		pdu.Type = gosnmp.OctetString
		pdu.Value = []byte(r.Value.Text)
	default:
		return fmt.Errorf("varbind %s: unknown value kind %s", r.OID, r.Value.Kind)
	}
	return nil
}
