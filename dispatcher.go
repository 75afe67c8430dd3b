package unii

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unii-security/go-unii/wire"
)

// pendingCommand tracks one in-flight command until its response arrives
// or its deadline elapses.
type pendingCommand struct {
	resp chan wire.Frame
}

// dispatcher correlates command responses on the shared connection. The
// frame header carries no sequence field, so correlation uses the response
// command id: pending commands expecting the same response are matched in
// FIFO order, which the single connection guarantees anyway.
type dispatcher struct {
	t *transport

	mu      sync.Mutex
	pending map[wire.Command][]*pendingCommand
	err     error

	lost chan struct{}
}

func newDispatcher(t *transport) *dispatcher {
	return &dispatcher{
		t:       t,
		pending: make(map[wire.Command][]*pendingCommand),
		lost:    make(chan struct{}),
	}
}

// issue sends a command and suspends the caller until the matching
// response arrives or the timeout elapses. Multiple commands may be
// outstanding concurrently. No implicit retry: on ErrCommandTimeout the
// pending entry is discarded and a late response is ignored.
func (d *dispatcher) issue(ctx context.Context, cmd wire.Command, payload []byte, timeout time.Duration) (wire.Frame, error) {
	frame := wire.Frame{Command: cmd, Payload: payload}

	respID, expects := wire.ResponseFor(cmd)
	if !expects {
		if err := d.t.write(frame); err != nil {
			return wire.Frame{}, fmt.Errorf("%w: %v", ErrSessionLost, err)
		}
		return wire.Frame{}, nil
	}

	p := &pendingCommand{resp: make(chan wire.Frame, 1)}
	d.mu.Lock()
	if d.err != nil {
		err := d.err
		d.mu.Unlock()
		return wire.Frame{}, err
	}
	d.pending[respID] = append(d.pending[respID], p)
	d.mu.Unlock()

	if err := d.t.write(frame); err != nil {
		d.remove(respID, p)
		return wire.Frame{}, fmt.Errorf("%w: %v", ErrSessionLost, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-p.resp:
		return f, nil
	case <-timer.C:
		d.remove(respID, p)
		return wire.Frame{}, fmt.Errorf("%w: command 0x%04x after %s", ErrCommandTimeout, uint16(cmd), timeout)
	case <-ctx.Done():
		d.remove(respID, p)
		return wire.Frame{}, ctx.Err()
	case <-d.lost:
		d.mu.Lock()
		err := d.err
		d.mu.Unlock()
		return wire.Frame{}, err
	}
}

// match claims a frame as the response to the oldest pending command
// expecting this id. Unclaimed frames fall through to the event router.
func (d *dispatcher) match(f wire.Frame) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.pending[f.Command]
	if len(q) == 0 {
		return false
	}
	p := q[0]
	d.pending[f.Command] = q[1:]
	p.resp <- f
	return true
}

// fail resolves every outstanding command with err immediately instead of
// letting them wait out their timeouts, and rejects future issues.
func (d *dispatcher) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return
	}
	d.err = err
	d.pending = make(map[wire.Command][]*pendingCommand)
	close(d.lost)
}

func (d *dispatcher) remove(respID wire.Command, p *pendingCommand) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.pending[respID]
	for i, cand := range q {
		if cand == p {
			d.pending[respID] = append(q[:i:i], q[i+1:]...)
			return
		}
	}
}
