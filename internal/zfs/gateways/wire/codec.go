package wire

import (
	"github.com/haukened/zfs-snmpd/internal/zfs/domain"
)

// Codec converts between SNMP messages and domain requests and responses.
type Codec interface {
	// DecodeRequest parses one inbound message.
	DecodeRequest(data []byte) (domain.Request, error)

	// EncodeResponse builds the GetResponse answering req.
	EncodeResponse(req domain.Request, resp domain.Response) ([]byte, error)
}
