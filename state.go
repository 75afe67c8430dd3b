package unii

import (
	"sort"
	"sync"
	"time"

	"github.com/unii-security/go-unii/wire"
)

// stateModel is the authoritative in-memory mirror of the panel: an arena
// of sections and inputs addressed by their panel-assigned identifier.
// Deltas are applied in arrival order by the session's frame pump; reads
// never touch the network.
type stateModel struct {
	mu       sync.RWMutex
	sections map[uint16]*Section
	inputs   map[uint16]*Input

	// While a resync is in flight deltas are not applied directly: the
	// snapshot answers supersede everything that arrived before them, and
	// deltas that arrived after an entity kind's snapshot answer (its cut)
	// are deferred and replayed once the snapshot is installed, keeping
	// state strictly in frame-arrival order across the resync.
	syncing    bool
	sectionCut bool
	inputCut   bool
	deferred   []delta

	publish func(Event)
	resync  func()
	now     func() time.Time
}

// delta is one panel-pushed change deferred during a resync.
type delta struct {
	section *wire.SectionStatusRecord
	input   *wire.InputStatusRecord
	bypass  *wire.BypassChange
}

func newStateModel(publish func(Event), resync func()) *stateModel {
	return &stateModel{
		sections: make(map[uint16]*Section),
		inputs:   make(map[uint16]*Input),
		publish:  publish,
		resync:   resync,
		now:      time.Now,
	}
}

// applySectionStatus applies a panel-pushed or command-driven delta. An
// unknown identifier triggers a full resync instead of creating an ad-hoc
// entry: only a resync recovers the entity's static attributes.
func (s *stateModel) applySectionStatus(rec wire.SectionStatusRecord) {
	if s.deferWhileSyncing(delta{section: &rec}) {
		return
	}
	s.sectionStatus(rec)
}

func (s *stateModel) sectionStatus(rec wire.SectionStatusRecord) {
	s.mu.Lock()
	sec, ok := s.sections[rec.ID]
	if !ok {
		s.mu.Unlock()
		log.Warn("status for unknown section, requesting resync", "section", rec.ID)
		s.resync()
		return
	}
	if sec.Status == rec.Status {
		s.mu.Unlock()
		return
	}
	prev := sec.Status
	sec.Status = rec.Status
	snap := *sec
	s.mu.Unlock()

	s.publish(SectionChange{Time: s.now(), Section: snap, Previous: prev})
}

func (s *stateModel) applyInputStatus(rec wire.InputStatusRecord) {
	if s.deferWhileSyncing(delta{input: &rec}) {
		return
	}
	s.inputStatus(rec)
}

func (s *stateModel) inputStatus(rec wire.InputStatusRecord) {
	s.mu.Lock()
	in, ok := s.inputs[rec.ID]
	if !ok {
		s.mu.Unlock()
		log.Warn("status for unknown input, requesting resync", "input", rec.ID)
		s.resync()
		return
	}
	if in.Condition == rec.Condition && in.Bypassed == rec.Bypassed() &&
		in.Disabled == rec.Disabled() && in.Supervision == rec.Supervision() {
		s.mu.Unlock()
		return
	}
	prev, prevBypassed := in.Condition, in.Bypassed
	in.Condition = rec.Condition
	in.Bypassed = rec.Bypassed()
	in.Disabled = rec.Disabled()
	in.Supervision = rec.Supervision()
	snap := *in
	s.mu.Unlock()

	s.publish(InputChange{Time: s.now(), Input: snap, Previous: prev, PreviousBypassed: prevBypassed})
}

// applyBypass toggles an input's bypass flag. Unbypassing an input that is
// not bypassed leaves state unchanged and emits nothing.
func (s *stateModel) applyBypass(change wire.BypassChange) {
	if s.deferWhileSyncing(delta{bypass: &change}) {
		return
	}
	s.bypass(change)
}

func (s *stateModel) bypass(change wire.BypassChange) {
	s.mu.Lock()
	in, ok := s.inputs[change.InputID]
	if !ok {
		s.mu.Unlock()
		log.Warn("bypass for unknown input, requesting resync", "input", change.InputID)
		s.resync()
		return
	}
	if in.Bypassed == change.Bypassed {
		s.mu.Unlock()
		return
	}
	prevBypassed := in.Bypassed
	in.Bypassed = change.Bypassed
	snap := *in
	s.mu.Unlock()

	s.publish(InputChange{Time: s.now(), Input: snap, Previous: snap.Condition, PreviousBypassed: prevBypassed})
}

// beginSync freezes direct delta application for the duration of a resync.
func (s *stateModel) beginSync() {
	s.mu.Lock()
	s.syncing = true
	s.sectionCut, s.inputCut = false, false
	s.deferred = nil
	s.mu.Unlock()
}

// noteSyncResponse marks the stream position of a snapshot answer. Deltas
// for that entity kind arriving after the answer postdate the snapshot and
// must replay on top of it; everything before it is already folded in.
func (s *stateModel) noteSyncResponse(cmd wire.Command) {
	s.mu.Lock()
	if s.syncing {
		switch cmd {
		case wire.CmdResponseSectionStatus:
			s.sectionCut = true
		case wire.CmdResponseInputStatus:
			s.inputCut = true
		}
	}
	s.mu.Unlock()
}

// abortSync lifts the freeze after a failed resync attempt. Pending deltas
// are dropped; the retry fetches a fresh snapshot anyway.
func (s *stateModel) abortSync() {
	s.mu.Lock()
	s.syncing = false
	s.sectionCut, s.inputCut = false, false
	s.deferred = nil
	s.mu.Unlock()
}

// deferWhileSyncing reports whether the delta was consumed by an in-flight
// resync. Deltas that precede the entity kind's snapshot answer are
// superseded by the snapshot and dropped; later ones are queued for replay.
func (s *stateModel) deferWhileSyncing(d delta) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.syncing {
		return false
	}
	cut := s.inputCut
	if d.section != nil {
		cut = s.sectionCut
	}
	if cut {
		s.deferred = append(s.deferred, d)
	}
	return true
}

// finishSync installs the snapshot and replays the deltas that arrived
// after its answers, one at a time so deltas landing concurrently keep
// queueing behind until the backlog is drained.
func (s *stateModel) finishSync(sections []Section, inputs []Input) {
	s.replaceAll(sections, inputs)
	for {
		s.mu.Lock()
		if len(s.deferred) == 0 {
			s.syncing = false
			s.sectionCut, s.inputCut = false, false
			s.mu.Unlock()
			return
		}
		d := s.deferred[0]
		s.deferred = s.deferred[1:]
		s.mu.Unlock()

		switch {
		case d.section != nil:
			s.sectionStatus(*d.section)
		case d.input != nil:
			s.inputStatus(*d.input)
		case d.bypass != nil:
			s.bypass(*d.bypass)
		}
	}
}

// replaceAll installs a full resync snapshot as one atomic replace and
// emits changes only where the new snapshot differs from the prior state,
// so a reconnect never looks like "everything cleared". Entities the panel
// no longer reports are dropped.
func (s *stateModel) replaceAll(sections []Section, inputs []Input) {
	newSections := make(map[uint16]*Section, len(sections))
	for i := range sections {
		sec := sections[i]
		newSections[sec.ID] = &sec
	}
	newInputs := make(map[uint16]*Input, len(inputs))
	for i := range inputs {
		in := inputs[i]
		newInputs[in.ID] = &in
	}

	var events []Event
	now := s.now()

	s.mu.Lock()
	for id, sec := range newSections {
		if old, ok := s.sections[id]; ok && old.Status != sec.Status {
			events = append(events, SectionChange{Time: now, Section: *sec, Previous: old.Status})
		}
	}
	for id, in := range newInputs {
		old, ok := s.inputs[id]
		if ok && (old.Condition != in.Condition || old.Bypassed != in.Bypassed) {
			events = append(events, InputChange{Time: now, Input: *in, Previous: old.Condition, PreviousBypassed: old.Bypassed})
		}
	}
	s.sections = newSections
	s.inputs = newInputs
	s.mu.Unlock()

	for _, ev := range events {
		s.publish(ev)
	}
}

// Point-in-time reads. Copies, sorted by identifier.

func (s *stateModel) allSections() []Section {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Section, 0, len(s.sections))
	for _, sec := range s.sections {
		out = append(out, *sec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *stateModel) allInputs() []Input {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Input, 0, len(s.inputs))
	for _, in := range s.inputs {
		out = append(out, *in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *stateModel) section(id uint16) (Section, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sec, ok := s.sections[id]; ok {
		return *sec, true
	}
	return Section{}, false
}

func (s *stateModel) input(id uint16) (Input, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if in, ok := s.inputs[id]; ok {
		return *in, true
	}
	return Input{}, false
}
