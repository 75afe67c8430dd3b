package unii

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/sync/cio"
	"github.com/unii-security/go-unii/wire"
)

// Transport states: idle → connecting → handshaking → ready → closing →
// closed, with faulted reachable from any non-terminal state on I/O error.
type transportState int32

const (
	tIdle transportState = iota
	tConnecting
	tHandshaking
	tReady
	tClosing
	tClosed
	tFaulted
)

const (
	dialTimeout      = 5 * time.Second
	handshakeTimeout = 5 * time.Second
	defaultHeartbeat = 30 * time.Second
	missedHeartbeats = 3
	readChunk        = 4096
	frameBacklog     = 64
)

// transport owns the TCP connection: dialing, the encrypted handshake,
// heartbeats, the read loop, and fault signaling. The socket is owned
// exclusively here; everything above sends through write.
type transport struct {
	conn net.Conn
	key  []byte

	// scanner is shared between the handshake and the read loop so that
	// stream bytes coalesced into the same segment as the handshake reply
	// carry over instead of being discarded. Complete frames decoded past
	// the reply during the handshake wait in backlog for the read loop.
	scanner *wire.Scanner
	backlog []wire.Frame

	info      EquipmentInformation
	heartbeat time.Duration

	writeMu sync.Mutex
	state   atomic.Int32

	frames chan wire.Frame
	fault  chan error
	done   chan struct{}
	once   sync.Once

	lastRx atomic.Int64
}

// openTransport dials the panel and performs the handshake. On return the
// transport is ready: the read loop delivers decoded frames on frames and
// heartbeats keep the session alive.
func openTransport(ctx context.Context, addr string, sharedKey []byte) (*transport, error) {
	t := &transport{
		key:     sharedKey,
		scanner: wire.NewScanner(sharedKey),
		frames:  make(chan wire.Frame, frameBacklog),
		fault:   make(chan error, 1),
		done:    make(chan struct{}),
	}
	t.state.Store(int32(tConnecting))

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		t.state.Store(int32(tFaulted))
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	t.conn = conn

	t.state.Store(int32(tHandshaking))
	if err := t.handshake(); err != nil {
		t.state.Store(int32(tFaulted))
		_ = conn.Close()
		return nil, err
	}

	t.state.Store(int32(tReady))
	t.lastRx.Store(time.Now().UnixNano())
	go t.readLoop()
	go t.heartbeatLoop()
	return t, nil
}

// handshake sends the connection request and waits for the panel to echo
// the nonce inside an encrypted reply, proving both sides share the key.
func (t *transport) handshake() error {
	var req wire.ConnectionRequest
	if _, err := rand.Read(req.Nonce[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if err := t.write(wire.Frame{Command: wire.CmdConnectionRequest, Payload: req.Encode()}); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	reader := cio.TimeoutReader(t.conn, handshakeTimeout)
	buf := make([]byte, readChunk)
	for {
		n, err := reader.Read(buf)
		if err != nil {
			if isTimeout(err) {
				return fmt.Errorf("%w: no handshake reply", ErrTimeout)
			}
			return fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		frames, err := t.scanner.Feed(buf[:n])
		if err != nil {
			// An undecodable reply during the handshake is a key mismatch.
			return fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		for i, f := range frames {
			if f.Command != wire.CmdConnectionResponse {
				continue
			}
			resp, err := wire.ParseConnectionResponse(f.Payload)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrHandshake, err)
			}
			if resp.Nonce != req.Nonce {
				return fmt.Errorf("%w: nonce mismatch", ErrHandshake)
			}
			// Frames the panel pushed right behind the reply belong to
			// the session; the read loop delivers them first.
			t.backlog = frames[i+1:]
			t.heartbeat = defaultHeartbeat
			if resp.HeartbeatInterval > 0 {
				t.heartbeat = time.Duration(resp.HeartbeatInterval) * time.Second
			}
			t.info = EquipmentInformation{
				DeviceName:        resp.DeviceName,
				Model:             resp.Model,
				SerialNumber:      resp.SerialNumber,
				FirmwareVersion:   resp.FirmwareVersion,
				Mac:               resp.Mac,
				Features:          resp.Features,
				HeartbeatInterval: t.heartbeat,
			}
			return nil
		}
	}
}

// write encodes and sends one frame. Any I/O error faults the transport.
func (t *transport) write(f wire.Frame) error {
	raw, err := wire.Encode(f, t.key)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write(raw); err != nil {
		t.fail(err)
		return err
	}
	return nil
}

// readLoop feeds the frame scanner and watches liveness: no inbound
// traffic at all for missedHeartbeats intervals faults the transport.
func (t *transport) readLoop() {
	if !t.deliver(t.backlog) {
		return
	}
	t.backlog = nil

	buf := make([]byte, readChunk)
	for {
		select {
		case <-t.done:
			return
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := t.conn.Read(buf)
		if err != nil {
			if isTimeout(err) {
				silence := time.Since(time.Unix(0, t.lastRx.Load()))
				if silence > time.Duration(missedHeartbeats)*t.heartbeat {
					t.fail(fmt.Errorf("%w: silent for %s", ErrTimeout, silence.Round(time.Second)))
					return
				}
				continue
			}
			t.fail(err)
			return
		}
		t.lastRx.Store(time.Now().UnixNano())

		frames, err := t.scanner.Feed(buf[:n])
		if err != nil {
			// Corrupted stream, cannot resynchronize frame by frame.
			t.fail(err)
			return
		}
		if !t.deliver(frames) {
			return
		}
	}
}

func (t *transport) deliver(frames []wire.Frame) bool {
	for _, f := range frames {
		if f.Command == wire.CmdPollAliveResponse {
			continue
		}
		select {
		case t.frames <- f:
		case <-t.done:
			return false
		}
	}
	return true
}

func (t *transport) heartbeatLoop() {
	ticker := time.NewTicker(t.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			_ = t.write(wire.Frame{Command: wire.CmdPollAlive})
		}
	}
}

// fail transitions to faulted, reports the cause once and releases the
// socket. Later calls are no-ops, as are calls after close.
func (t *transport) fail(err error) {
	if !t.state.CompareAndSwap(int32(tReady), int32(tFaulted)) &&
		!t.state.CompareAndSwap(int32(tHandshaking), int32(tFaulted)) {
		return
	}
	select {
	case t.fault <- err:
	default:
	}
	t.teardown()
}

// close sends a normal disconnect when the session is still healthy and
// releases the socket. Idempotent on every exit path.
func (t *transport) close() error {
	if t.state.CompareAndSwap(int32(tReady), int32(tClosing)) {
		_ = t.write(wire.Frame{Command: wire.CmdNormalDisconnect})
	}
	t.teardown()
	t.state.Store(int32(tClosed))
	return nil
}

func (t *transport) teardown() {
	t.once.Do(func() {
		close(t.done)
		if t.conn != nil {
			_ = t.conn.Close()
		}
	})
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
