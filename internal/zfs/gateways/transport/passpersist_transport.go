package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/haukened/zfs-snmpd/internal/zfs/common/log"
	"github.com/haukened/zfs-snmpd/internal/zfs/domain"
)

// stopTimeout bounds how long Stop waits for a reader that cannot be closed.
const stopTimeout = 2 * time.Second

// pass_persist protocol keywords.
const (
	ppPing        = "PING"
	ppPong        = "PONG"
	ppGet         = "get"
	ppGetNext     = "getnext"
	ppSet         = "set"
	ppNone        = "NONE"
	ppNotWritable = "not-writable"
)

// PassPersistTransport speaks the net-snmp pass_persist protocol: the master
// agent writes a command and an OID per request and reads back either
// "oid\ntype\nvalue" or NONE.
type PassPersistTransport struct {
	in     io.Reader
	out    io.Writer
	logger log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	errCh   chan error
}

// NewPassPersistTransport creates a transport reading commands from in and
// writing answers to out.
func NewPassPersistTransport(in io.Reader, out io.Writer, logger log.Logger) *PassPersistTransport {
	return &PassPersistTransport{
		in:     in,
		out:    out,
		logger: logger,
		errCh:  make(chan error, 1),
	}
}

// Start begins reading commands.
func (t *PassPersistTransport) Start(ctx context.Context, handler RequestHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("pass_persist transport already running")
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})

	t.logger.Info(map[string]any{
		"transport": string(TransportPassPersist),
	}, "SNMP transport started")

	go t.loop(ctx, handler, t.stopCh, t.doneCh)
	return nil
}

// Stop ends the command loop. A loop blocked reading input is released by
// closing the input when it is closable.
func (t *PassPersistTransport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	close(t.stopCh)
	t.running = false
	done := t.doneCh
	t.mu.Unlock()

	var closeErr error
	if c, ok := t.in.(io.Closer); ok {
		closeErr = c.Close()
	}
	select {
	case <-done:
	case <-time.After(stopTimeout):
		t.logger.Warn(nil, "pass_persist reader did not exit, abandoning it")
	}

	t.logger.Info(map[string]any{
		"transport": string(TransportPassPersist),
	}, "SNMP transport stopped")
	return closeErr
}

// Address describes the transport endpoint.
func (t *PassPersistTransport) Address() string {
	return "stdio"
}

// Err delivers the error that stopped the command loop. End of input is
// reported as io.EOF so the caller can exit when the master agent goes away.
func (t *PassPersistTransport) Err() <-chan error {
	return t.errCh
}

func (t *PassPersistTransport) loop(ctx context.Context, handler RequestHandler, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	scanner := bufio.NewScanner(t.in)
	w := bufio.NewWriter(t.out)

	readLine := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug(nil, "pass_persist transport stopping due to context cancellation")
			return
		case <-stopCh:
			t.logger.Debug(nil, "pass_persist transport stopping due to stop signal")
			return
		default:
		}

		cmd, ok := readLine()
		if !ok || cmd == "" {
			if t.isStopped(stopCh) {
				return
			}
			err := scanner.Err()
			if err == nil {
				err = io.EOF
			}
			t.logger.Info(map[string]any{
				"error": err,
			}, "pass_persist input closed")
			t.errCh <- err
			return
		}

		err := t.command(ctx, cmd, readLine, w, handler)
		if err == nil {
			err = w.Flush()
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			t.logger.Error(map[string]any{
				"error": err,
			}, "pass_persist transport stopping on error")
			t.errCh <- err
			return
		}
	}
}

func (t *PassPersistTransport) isStopped(stopCh chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

// command executes one protocol command and writes its answer to w.
func (t *PassPersistTransport) command(ctx context.Context, cmd string, readLine func() (string, bool), w *bufio.Writer, handler RequestHandler) error {
	switch strings.ToLower(cmd) {
	case strings.ToLower(ppPing):
		_, err := fmt.Fprintln(w, ppPong)
		return err

	case ppGet, ppGetNext:
		oidText, ok := readLine()
		if !ok {
			return io.ErrUnexpectedEOF
		}
		kind := domain.RequestGet
		if strings.ToLower(cmd) == ppGetNext {
			kind = domain.RequestGetNext
		}
		return t.query(ctx, kind, oidText, w, handler)

	case ppSet:
		// set carries the OID and a "type value" line.
		for i := 0; i < 2; i++ {
			if _, ok := readLine(); !ok {
				return io.ErrUnexpectedEOF
			}
		}
		_, err := fmt.Fprintln(w, ppNotWritable)
		return err

	default:
		t.logger.Warn(map[string]any{
			"command": cmd,
		}, "Unknown pass_persist command")
		_, err := fmt.Fprintln(w, ppNone)
		return err
	}
}

func (t *PassPersistTransport) query(ctx context.Context, kind domain.RequestKind, oidText string, w *bufio.Writer, handler RequestHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error(map[string]any{
				"oid":   oidText,
				"panic": fmt.Sprint(r),
			}, "Recovered from panic while handling request")
			_, err = fmt.Fprintln(w, ppNone)
		}
	}()

	oid, err := domain.ParseOID(oidText)
	if err != nil {
		t.logger.Warn(map[string]any{
			"oid":   oidText,
			"error": err,
		}, "Invalid OID in pass_persist request")
		_, err = fmt.Fprintln(w, ppNone)
		return err
	}

	resp, err := handler.HandleRequest(ctx, domain.Request{Kind: kind, OIDs: []domain.OID{oid}})
	if err != nil {
		return err
	}
	if resp.Status != domain.ErrorNone || len(resp.Results) == 0 || !resp.Results[0].Found() {
		_, err = fmt.Fprintln(w, ppNone)
		return err
	}

	r := resp.Results[0]
	_, err = fmt.Fprintf(w, "%s\n%s\n%s\n", r.OID, r.Value.Kind, r.Value)
	return err
}
