package unii

import (
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/unii-security/go-unii/wire"
)

// fakePanel speaks the panel side of the protocol on a loopback listener:
// handshake, full-state queries, write commands, poll-alive, plus helpers
// to push events and to drop the connection mid-session.
type fakePanel struct {
	t   *testing.T
	key []byte
	ln  net.Listener

	mu           sync.Mutex
	wmu          sync.Mutex
	conn         net.Conn
	sections     map[uint16]*Section
	inputs       map[uint16]*Input
	userCode     string
	rejectArm    bool
	muted        map[wire.Command]bool
	writeFrames  int
	arrangements int
	tailAfter    wire.Command
	tailFirst    []byte
	tailRest     []byte
}

func newFakePanel(t *testing.T, key []byte) *fakePanel {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	p := &fakePanel{
		t:        t,
		key:      key,
		ln:       ln,
		sections: map[uint16]*Section{},
		inputs:   map[uint16]*Input{},
		userCode: "1234",
		muted:    map[wire.Command]bool{},
	}
	t.Cleanup(func() { _ = ln.Close() })
	go p.serve()
	return p
}

func (p *fakePanel) hostPort() (string, string) {
	host, port, err := net.SplitHostPort(p.ln.Addr().String())
	require.NoError(p.t, err)
	return host, port
}

func (p *fakePanel) addSection(id uint16, name string, status wire.SectionStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sections[id] = &Section{ID: id, Name: name, Status: status}
}

func (p *fakePanel) addInput(id uint16, name string, cond wire.InputCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs[id] = &Input{ID: id, Name: name, Condition: cond}
}

func (p *fakePanel) setSectionStatus(id uint16, status wire.SectionStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sections[id].Status = status
}

func (p *fakePanel) setInputCondition(id uint16, cond wire.InputCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs[id].Condition = cond
}

// mute makes the panel swallow a request command without answering.
func (p *fakePanel) mute(cmd wire.Command) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted[cmd] = true
}

func (p *fakePanel) unmute(cmd wire.Command) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.muted, cmd)
}

func (p *fakePanel) writeCommandCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeFrames
}

func (p *fakePanel) arrangementCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.arrangements
}

// dropConnection severs the TCP link without a normal disconnect.
func (p *fakePanel) dropConnection() {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (p *fakePanel) serve() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.conn = conn
		p.mu.Unlock()
		go p.handle(conn)
	}
}

func (p *fakePanel) handle(conn net.Conn) {
	defer conn.Close()
	scanner := wire.NewScanner(p.key)
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		frames, err := scanner.Feed(buf[:n])
		if err != nil {
			return
		}
		for _, f := range frames {
			if !p.answer(conn, f) {
				return
			}
		}
	}
}

// answer replies to one inbound frame; false means the session ended.
func (p *fakePanel) answer(conn net.Conn, f wire.Frame) bool {
	p.mu.Lock()
	if p.muted[f.Command] {
		p.mu.Unlock()
		return true
	}
	p.mu.Unlock()

	switch f.Command {
	case wire.CmdConnectionRequest:
		req, err := wire.ParseConnectionRequest(f.Payload)
		if err != nil {
			return false
		}
		resp := wire.ConnectionResponse{
			Nonce:             req.Nonce,
			HeartbeatInterval: 1,
			Features:          wire.FeatureArmSection | wire.FeatureBypassInput,
			Mac:               net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
			DeviceName:        "Test Panel",
			Model:             "UNii 32",
			SerialNumber:      "T00001",
			FirmwareVersion:   "9.9.9",
		}
		p.send(conn, wire.CmdConnectionResponse, resp.Encode())
	case wire.CmdPollAlive:
		p.send(conn, wire.CmdPollAliveResponse, nil)
	case wire.CmdNormalDisconnect:
		return false
	case wire.CmdRequestSectionArrangement:
		p.mu.Lock()
		p.arrangements++
		recs := make([]wire.SectionRecord, 0, len(p.sections))
		for _, sec := range p.sections {
			recs = append(recs, wire.SectionRecord{ID: sec.ID, Name: sec.Name})
		}
		p.mu.Unlock()
		p.send(conn, wire.CmdResponseSectionArrangement, wire.EncodeSectionArrangement(recs))
	case wire.CmdRequestSectionStatus:
		p.mu.Lock()
		recs := make([]wire.SectionStatusRecord, 0, len(p.sections))
		for _, sec := range p.sections {
			recs = append(recs, wire.SectionStatusRecord{ID: sec.ID, Status: sec.Status})
		}
		p.mu.Unlock()
		p.send(conn, wire.CmdResponseSectionStatus, wire.EncodeSectionStatuses(recs))
	case wire.CmdRequestInputArrangement:
		p.mu.Lock()
		recs := make([]wire.InputRecord, 0, len(p.inputs))
		for _, in := range p.inputs {
			recs = append(recs, wire.InputRecord{ID: in.ID, Name: in.Name})
		}
		p.mu.Unlock()
		p.send(conn, wire.CmdResponseInputArrangement, wire.EncodeInputArrangement(recs))
	case wire.CmdRequestInputStatus:
		p.mu.Lock()
		recs := make([]wire.InputStatusRecord, 0, len(p.inputs))
		for _, in := range p.inputs {
			recs = append(recs, wire.InputStatusRecord{ID: in.ID, Condition: in.Condition, Flags: inputFlags(*in)})
		}
		p.mu.Unlock()
		p.send(conn, wire.CmdResponseInputStatus, wire.EncodeInputStatuses(recs))
	case wire.CmdArmSection, wire.CmdDisarmSection, wire.CmdBypassInput, wire.CmdUnbypassInput:
		p.handleWrite(conn, f)
	}
	return true
}

func (p *fakePanel) handleWrite(conn net.Conn, f wire.Frame) {
	cmd, err := wire.ParseWriteCommand(f.Payload)
	require.NoError(p.t, err)
	respID, _ := wire.ResponseFor(f.Command)

	p.mu.Lock()
	p.writeFrames++
	if cmd.UserCode != p.userCode {
		p.mu.Unlock()
		p.send(conn, respID, wire.WriteResponse{TargetID: cmd.TargetID, Result: wire.ResultInvalidUserCode}.Encode())
		return
	}
	if p.rejectArm && f.Command == wire.CmdArmSection {
		p.mu.Unlock()
		p.send(conn, respID, wire.WriteResponse{TargetID: cmd.TargetID, Result: wire.ResultRejected}.Encode())
		return
	}

	var event wire.Frame
	switch f.Command {
	case wire.CmdArmSection, wire.CmdDisarmSection:
		status := wire.SectionArmed
		if f.Command == wire.CmdDisarmSection {
			status = wire.SectionDisarmed
		}
		p.sections[cmd.TargetID].Status = status
		event = wire.Frame{
			Command: wire.EventSectionStatusChanged,
			Payload: wire.EncodeSectionStatusChanged(wire.SectionStatusRecord{ID: cmd.TargetID, Status: status}),
		}
	case wire.CmdBypassInput, wire.CmdUnbypassInput:
		bypassed := f.Command == wire.CmdBypassInput
		p.inputs[cmd.TargetID].Bypassed = bypassed
		event = wire.Frame{
			Command: wire.EventBypassChanged,
			Payload: wire.BypassChange{InputID: cmd.TargetID, Bypassed: bypassed}.Encode(),
		}
	}
	p.mu.Unlock()

	p.send(conn, respID, wire.WriteResponse{TargetID: cmd.TargetID, Result: wire.ResultOK}.Encode())
	p.sendFrame(conn, event)
}

// Event push helpers for tests.

func (p *fakePanel) pushInputStatus(id uint16, cond wire.InputCondition, flags byte) {
	p.mu.Lock()
	if in, ok := p.inputs[id]; ok {
		in.Condition = cond
	}
	conn := p.conn
	p.mu.Unlock()
	if conn != nil {
		p.sendFrame(conn, wire.Frame{
			Command: wire.EventInputStatusChanged,
			Payload: wire.EncodeInputStatusChanged(wire.InputStatusRecord{ID: id, Condition: cond, Flags: flags}),
		})
	}
}

func (p *fakePanel) pushSectionStatus(id uint16, status wire.SectionStatus) {
	p.mu.Lock()
	if sec, ok := p.sections[id]; ok {
		sec.Status = status
	}
	conn := p.conn
	p.mu.Unlock()
	if conn != nil {
		p.sendFrame(conn, wire.Frame{
			Command: wire.EventSectionStatusChanged,
			Payload: wire.EncodeSectionStatusChanged(wire.SectionStatusRecord{ID: id, Status: status}),
		})
	}
}

func (p *fakePanel) pushBypass(id uint16, bypassed bool) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn != nil {
		p.sendFrame(conn, wire.Frame{
			Command: wire.EventBypassChanged,
			Payload: wire.BypassChange{InputID: id, Bypassed: bypassed}.Encode(),
		})
	}
}

func (p *fakePanel) pushAlarm(sectionID uint16, alarmType byte) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn != nil {
		p.sendFrame(conn, wire.Frame{
			Command: wire.EventAlarmRaised,
			Payload: wire.Alarm{SectionID: sectionID, Type: alarmType}.Encode(),
		})
	}
}

func (p *fakePanel) pushRaw(cmd wire.Command, payload []byte) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn != nil {
		p.sendFrame(conn, wire.Frame{Command: cmd, Payload: payload})
	}
}

// stuffAfter coalesces an encoded frame onto the next reply carrying cmd:
// the first split bytes ride in the same TCP write as the reply, the
// remainder follows in a separate write. A negative split coalesces the
// whole frame. Segment boundaries are the panel's choice, so the client
// must cope with both halves.
func (p *fakePanel) stuffAfter(cmd wire.Command, f wire.Frame, split int) {
	raw, err := wire.Encode(f, p.key)
	require.NoError(p.t, err)
	if split < 0 || split > len(raw) {
		split = len(raw)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tailAfter = cmd
	p.tailFirst = raw[:split]
	p.tailRest = raw[split:]
}

func (p *fakePanel) send(conn net.Conn, cmd wire.Command, payload []byte) {
	p.sendFrame(conn, wire.Frame{Command: cmd, Payload: payload})
}

func (p *fakePanel) sendFrame(conn net.Conn, f wire.Frame) {
	raw, err := wire.Encode(f, p.key)
	require.NoError(p.t, err)

	p.mu.Lock()
	var rest []byte
	if p.tailAfter != 0 && f.Command == p.tailAfter {
		raw = append(raw, p.tailFirst...)
		rest = p.tailRest
		p.tailAfter = 0
	}
	p.mu.Unlock()

	p.wmu.Lock()
	defer p.wmu.Unlock()
	if _, err := conn.Write(raw); err != nil && !errors.Is(err, net.ErrClosed) {
		p.t.Logf("fake panel write: %v", err)
		return
	}
	if len(rest) > 0 {
		if _, err := conn.Write(rest); err != nil && !errors.Is(err, net.ErrClosed) {
			p.t.Logf("fake panel write: %v", err)
		}
	}
}

func inputFlags(in Input) byte {
	var flags byte
	if in.Bypassed {
		flags |= wire.InputFlagBypassed
	}
	if in.Disabled {
		flags |= wire.InputFlagDisabled
	}
	if in.Supervision {
		flags |= wire.InputFlagSupervision
	}
	return flags
}
