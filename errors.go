package unii

import (
	"errors"

	"github.com/unii-security/go-unii/wire"
)

var (
	// ErrConnect means the TCP connection to the panel could not be
	// established.
	ErrConnect = errors.New("could not connect to panel")

	// ErrHandshake means the panel was reachable but the encrypted
	// handshake failed, usually a shared key mismatch.
	ErrHandshake = errors.New("handshake failed")

	// ErrTimeout means the panel stopped answering within the bounded
	// interval, including missed heartbeats.
	ErrTimeout = errors.New("panel timed out")

	// ErrCommandTimeout means no response to a command arrived before its
	// deadline. The command is not retried; a late response is ignored.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrSessionLost means the session dropped while a command was in
	// flight or before it could be sent.
	ErrSessionLost = errors.New("session lost")

	// ErrWriteAccessDisabled means an arm, disarm or bypass command was
	// issued without an operator user code configured. No frame is sent.
	ErrWriteAccessDisabled = errors.New("write access disabled")

	// ErrCommandRejected means the panel received the command and refused
	// it, e.g. arming a section with open inputs.
	ErrCommandRejected = errors.New("command rejected by panel")

	// ErrInvalidUserCode means the panel refused the operator user code.
	ErrInvalidUserCode = errors.New("invalid user code")
)

// Transport-level integrity failures, surfaced by the wire package and
// recovered internally by reconnecting.
var (
	ErrFrameCorrupt = wire.ErrFrameCorrupt
	ErrCrypto       = wire.ErrCrypto
)
