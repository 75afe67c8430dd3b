package unii

import (
	"fmt"
	"time"

	"github.com/unii-security/go-unii/wire"
)

// router classifies inbound frames the dispatcher did not claim as
// asynchronous events and applies them, in arrival order, to the state
// model; alarms and reload requests are handled directly. Unknown event
// identifiers are logged and dropped, never fatal.
type router struct {
	state  *stateModel
	hub    *hub
	resync func()
}

func (r *router) route(f wire.Frame) {
	switch f.Command {
	case wire.EventSectionStatusChanged:
		rec, err := wire.ParseSectionStatusChanged(f.Payload)
		if err != nil {
			log.Warn("dropping malformed section event", "err", err)
			return
		}
		r.state.applySectionStatus(rec)
	case wire.EventInputStatusChanged:
		rec, err := wire.ParseInputStatusChanged(f.Payload)
		if err != nil {
			log.Warn("dropping malformed input event", "err", err)
			return
		}
		r.state.applyInputStatus(rec)
	case wire.EventBypassChanged:
		change, err := wire.ParseBypassChanged(f.Payload)
		if err != nil {
			log.Warn("dropping malformed bypass event", "err", err)
			return
		}
		r.state.applyBypass(change)
	case wire.EventAlarmRaised:
		alarm, err := wire.ParseAlarmRaised(f.Payload)
		if err != nil {
			log.Warn("dropping malformed alarm event", "err", err)
			return
		}
		r.state.applySectionStatus(wire.SectionStatusRecord{
			ID:     alarm.SectionID,
			Status: wire.SectionAlarm,
		})
		r.hub.publish(AlarmEvent{Time: time.Now(), SectionID: alarm.SectionID, Type: alarm.Type})
	case wire.EventReloadConfiguration:
		log.Info("panel requested configuration reload, resyncing")
		r.resync()
	default:
		log.Debug("dropping unrecognized event", "command", fmt.Sprintf("0x%04x", uint16(f.Command)))
	}
}
