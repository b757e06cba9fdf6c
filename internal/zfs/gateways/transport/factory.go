package transport

import (
	"fmt"
	"io"
	"os"

	"github.com/haukened/zfs-snmpd/internal/zfs/common/log"
	"github.com/haukened/zfs-snmpd/internal/zfs/gateways/wire"
)

// Options holds what the transports need. Fields irrelevant to the selected
// type are ignored.
type Options struct {
	// Address is the UDP listen address.
	Address string
	// Community is the SNMPv2c community accepted by the UDP transport.
	Community string
	Codec     wire.Codec
	Logger    log.Logger

	// In and Out default to stdin and stdout for pass_persist.
	In  io.Reader
	Out io.Writer
}

// NewTransport creates a new transport instance based on the specified type.
func NewTransport(transportType TransportType, opts Options) (ServerTransport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	switch transportType {
	case TransportUDP:
		if opts.Codec == nil {
			return nil, fmt.Errorf("udp transport requires a codec")
		}
		return NewUDPTransport(opts.Address, opts.Community, opts.Codec, logger), nil

	case TransportPassPersist:
		in, out := opts.In, opts.Out
		if in == nil {
			in = os.Stdin
		}
		if out == nil {
			out = os.Stdout
		}
		return NewPassPersistTransport(in, out, logger), nil

	case TransportAgentX:
		return nil, fmt.Errorf("AgentX transport not yet implemented")

	default:
		return nil, fmt.Errorf("unsupported transport type: %s", transportType)
	}
}

// GetSupportedTransports returns a list of currently supported transport types.
func GetSupportedTransports() []TransportType {
	return []TransportType{
		TransportUDP,
		TransportPassPersist,
	}
}

// IsTransportSupported checks if a given transport type is currently supported.
func IsTransportSupported(transportType TransportType) bool {
	for _, t := range GetSupportedTransports() {
		if t == transportType {
			return true
		}
	}
	return false
}
