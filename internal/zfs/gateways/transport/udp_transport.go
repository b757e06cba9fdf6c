package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/haukened/zfs-snmpd/internal/zfs/common/log"
	"github.com/haukened/zfs-snmpd/internal/zfs/domain"
	"github.com/haukened/zfs-snmpd/internal/zfs/gateways/wire"
)

const (
	// maxDatagram is the largest UDP payload.
	maxDatagram = 65535
	// pollInterval bounds how long a blocked read delays noticing shutdown.
	pollInterval = 250 * time.Millisecond
)

// UDPTransport implements ServerTransport as a standalone SNMPv2c agent.
// Datagrams are read, dispatched and answered one at a time on one goroutine.
type UDPTransport struct {
	addr      string
	community string
	conn      *net.UDPConn
	codec     wire.Codec
	logger    log.Logger

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	errCh   chan error
}

// NewUDPTransport creates a new UDP transport instance.
func NewUDPTransport(addr, community string, codec wire.Codec, logger log.Logger) *UDPTransport {
	return &UDPTransport{
		addr:      addr,
		community: community,
		codec:     codec,
		logger:    logger,
		errCh:     make(chan error, 1),
	}
}

// Start binds the UDP socket and starts the request loop.
func (t *UDPTransport) Start(ctx context.Context, handler RequestHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("UDP transport already running")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", t.addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP socket on %s: %w", t.addr, err)
	}

	t.conn = conn
	t.running = true
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})

	t.logger.Info(map[string]any{
		"transport": string(TransportUDP),
		"address":   conn.LocalAddr().String(),
	}, "SNMP transport started")

	go t.listenLoop(ctx, handler, t.stopCh, t.doneCh)
	return nil
}

// Stop closes the socket and waits for the request loop to exit.
func (t *UDPTransport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	close(t.stopCh)
	t.running = false

	var closeErr error
	if t.conn != nil {
		closeErr = t.conn.Close()
		if closeErr != nil {
			t.logger.Warn(map[string]any{
				"error": closeErr,
			}, "Error closing UDP connection")
		}
	}
	done := t.doneCh
	t.mu.Unlock()

	<-done

	t.logger.Info(map[string]any{
		"transport": string(TransportUDP),
		"address":   t.addr,
	}, "SNMP transport stopped")
	return closeErr
}

// Address returns the bound address once started, else the configured one.
func (t *UDPTransport) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn != nil {
		return t.conn.LocalAddr().String()
	}
	return t.addr
}

// Err delivers the error that stopped the request loop.
func (t *UDPTransport) Err() <-chan error {
	return t.errCh
}

// listenLoop serves datagrams until stopped, cancelled or a fatal error.
func (t *UDPTransport) listenLoop(ctx context.Context, handler RequestHandler, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	buffer := make([]byte, maxDatagram)

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug(nil, "UDP transport stopping due to context cancellation")
			return
		case <-stopCh:
			t.logger.Debug(nil, "UDP transport stopping due to stop signal")
			return
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, clientAddr, err := t.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if t.isStopped(stopCh) {
				return
			}
			t.logger.Warn(map[string]any{
				"error": err,
			}, "Failed to read UDP packet")
			continue
		}

		if err := t.handlePacket(ctx, buffer[:n], clientAddr, handler); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			t.logger.Error(map[string]any{
				"error": err,
			}, "UDP transport stopping on fatal error")
			t.errCh <- err
			return
		}
	}
}

func (t *UDPTransport) isStopped(stopCh chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

// handlePacket answers one datagram. Only errors that must stop the loop are
// returned; everything else is logged and the client gets genErr or nothing.
func (t *UDPTransport) handlePacket(ctx context.Context, data []byte, clientAddr *net.UDPAddr, handler RequestHandler) (err error) {
	var (
		req     domain.Request
		decoded bool
	)
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error(map[string]any{
				"client": clientAddr.String(),
				"panic":  fmt.Sprint(r),
			}, "Recovered from panic while handling request")
			if decoded {
				t.send(req, domain.ErrorResponse(req, domain.ErrorGenErr), clientAddr)
			}
			err = nil
		}
	}()

	t.logger.Debug(map[string]any{
		"client": clientAddr.String(),
		"size":   len(data),
		"raw":    fmt.Sprintf("%x", data),
	}, "Received raw SNMP request data")

	req, err = t.codec.DecodeRequest(data)
	if err != nil {
		t.logger.Warn(map[string]any{
			"client": clientAddr.String(),
			"error":  err,
			"size":   len(data),
		}, "Failed to decode SNMP request")
		return nil
	}
	decoded = true

	if req.Community != t.community {
		t.logger.Warn(map[string]any{
			"client":     clientAddr.String(),
			"request_id": req.ID,
		}, "Dropping request with unknown community")
		return nil
	}

	t.logger.Debug(map[string]any{
		"client":     clientAddr.String(),
		"request_id": req.ID,
		"kind":       req.Kind.String(),
		"varbinds":   len(req.OIDs),
	}, "Received SNMP request")

	resp, err := handler.HandleRequest(ctx, req)
	if err != nil {
		return err
	}
	t.send(req, resp, clientAddr)
	return nil
}

func (t *UDPTransport) send(req domain.Request, resp domain.Response, clientAddr *net.UDPAddr) {
	out, err := t.codec.EncodeResponse(req, resp)
	if err != nil {
		t.logger.Error(map[string]any{
			"client":     clientAddr.String(),
			"request_id": req.ID,
			"error":      err,
		}, "Failed to encode SNMP response")
		return
	}

	if _, err := t.conn.WriteToUDP(out, clientAddr); err != nil {
		t.logger.Error(map[string]any{
			"client":     clientAddr.String(),
			"request_id": req.ID,
			"error":      err,
		}, "Failed to send SNMP response")
		return
	}

	t.logger.Debug(map[string]any{
		"client":     clientAddr.String(),
		"request_id": resp.ID,
		"status":     resp.Status.String(),
		"varbinds":   len(resp.Results),
		"size":       len(out),
	}, "Sent SNMP response")
}
