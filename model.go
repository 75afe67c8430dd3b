package unii

import (
	"net"
	"time"

	"github.com/unii-security/go-unii/wire"
)

// ConnectionStatus is the externally visible state of the supervised
// session. It is owned by the Client; everything else observes it.
type ConnectionStatus int32

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Section is a logical group of inputs armed and disarmed as a unit.
// Identity is panel-assigned and stable across reconnects.
type Section struct {
	ID     uint16
	Name   string
	Status wire.SectionStatus
}

// Input is a physical sensor reporting a condition. Disabled and
// supervision inputs stay in the model but are flagged so consumers can
// skip them.
type Input struct {
	ID          uint16
	Name        string
	Condition   wire.InputCondition
	Bypassed    bool
	Disabled    bool
	Supervision bool
}

// EquipmentInformation identifies the panel, as reported during the
// handshake. Replaced on every re-handshake.
type EquipmentInformation struct {
	DeviceName        string
	Model             string
	SerialNumber      string
	FirmwareVersion   string
	Mac               net.HardwareAddr
	Features          uint16
	HeartbeatInterval time.Duration
}

func (e EquipmentInformation) CanArm() bool {
	return e.Features&wire.FeatureArmSection != 0
}

func (e EquipmentInformation) CanBypass() bool {
	return e.Features&wire.FeatureBypassInput != 0
}

// Event is a discrete, timestamped, immutable record delivered to
// subscribers.
type Event interface {
	Timestamp() time.Time
}

// ConnectionChange reports a ConnectionStatus transition.
type ConnectionChange struct {
	Time   time.Time
	Status ConnectionStatus
}

func (e ConnectionChange) Timestamp() time.Time { return e.Time }

// SectionChange reports a section moving from Previous to Section.Status.
type SectionChange struct {
	Time     time.Time
	Section  Section
	Previous wire.SectionStatus
}

func (e SectionChange) Timestamp() time.Time { return e.Time }

// InputChange reports an input condition or bypass transition.
type InputChange struct {
	Time             time.Time
	Input            Input
	Previous         wire.InputCondition
	PreviousBypassed bool
}

func (e InputChange) Timestamp() time.Time { return e.Time }

// AlarmEvent reports an alarm raised by the panel.
type AlarmEvent struct {
	Time      time.Time
	SectionID uint16
	Type      byte
}

func (e AlarmEvent) Timestamp() time.Time { return e.Time }
