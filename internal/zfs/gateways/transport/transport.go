// Package transport carries decoded requests between clients and the query
// dispatcher. Every transport serves requests strictly one at a time, so the
// dispatcher and cache behind it never see concurrent calls.
package transport

import (
	"context"

	"github.com/haukened/zfs-snmpd/internal/zfs/domain"
)

// ServerTransport defines the interface for agent transport implementations.
type ServerTransport interface {
	// Start begins serving requests through handler. It returns once the
	// transport is ready; requests are served on a single background loop.
	Start(ctx context.Context, handler RequestHandler) error

	// Stop shuts the transport down and waits for the request loop to exit.
	Stop() error

	// Address describes where the transport is listening.
	Address() string

	// Err delivers the error that stopped the loop, at most once. Errors
	// wrapping domain.ErrFatal mean the process must exit.
	Err() <-chan error
}

// RequestHandler is implemented by the dispatcher. An error return means the
// request could not be answered at all; recoverable failures come back as
// a Response carrying an error status.
type RequestHandler interface {
	HandleRequest(ctx context.Context, req domain.Request) (domain.Response, error)
}

// TransportType names a transport implementation.
type TransportType string

const (
	// TransportUDP is a standalone SNMPv2c agent on a UDP socket.
	TransportUDP TransportType = "udp"

	// TransportPassPersist is the net-snmp pass_persist line protocol over
	// stdin and stdout.
	TransportPassPersist TransportType = "pass_persist"

	// TransportAgentX is AgentX subagent registration - future implementation
	TransportAgentX TransportType = "agentx"
)
