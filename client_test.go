package unii

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/unii-security/go-unii/wire"
)

var testSharedKey = []byte("panel shared key")

func newTestPanel(t *testing.T) *fakePanel {
	t.Helper()
	p := newFakePanel(t, testSharedKey)
	p.addSection(1, "Ground floor", wire.SectionDisarmed)
	p.addSection(2, "Workshop", wire.SectionArmed)
	p.addInput(10, "Front door", wire.InputClear)
	p.addInput(11, "Hallway PIR", wire.InputOpen)
	p.addInput(12, "Safe tamper", wire.InputClear)
	return p
}

func connectClient(t *testing.T, p *fakePanel, opts ...Option) *Client {
	t.Helper()
	host, port := p.hostPort()
	c := New(host, port, testSharedKey, opts...)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// collect drains events of type T from ch until none arrive for the grace
// period.
func collect[T Event](t *testing.T, ch <-chan Event, want int, grace time.Duration) []T {
	t.Helper()
	var out []T
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			if typed, isT := ev.(T); isT {
				out = append(out, typed)
				if len(out) >= want {
					return out
				}
			}
		case <-deadline:
			t.Fatalf("timed out, got %d of %d events", len(out), want)
		case <-time.After(grace):
			if want <= 0 {
				return out
			}
		}
	}
}

func TestConnectSyncsFullState(t *testing.T) {
	p := newTestPanel(t)
	c := connectClient(t, p)

	require.Equal(t, StatusConnected, c.Status())

	sections := c.Sections()
	require.Len(t, sections, 2)
	require.Equal(t, "Ground floor", sections[0].Name)
	require.Equal(t, wire.SectionDisarmed, sections[0].Status)
	require.Equal(t, wire.SectionArmed, sections[1].Status)

	inputs := c.Inputs()
	require.Len(t, inputs, 3)
	in, ok := c.Input(11)
	require.True(t, ok)
	require.Equal(t, wire.InputOpen, in.Condition)

	info := c.EquipmentInformation()
	require.Equal(t, "Test Panel", info.DeviceName)
	require.Equal(t, "UNii 32", info.Model)
	require.Equal(t, "T00001", info.SerialNumber)
	require.Equal(t, "9.9.9", info.FirmwareVersion)
	require.Equal(t, time.Second, info.HeartbeatInterval)
	require.True(t, info.CanArm())
	require.True(t, info.CanBypass())
}

func TestWrongKeyFailsHandshake(t *testing.T) {
	p := newTestPanel(t)
	host, port := p.hostPort()

	c := New(host, port, []byte("not the right key"))
	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrHandshake)
	require.Equal(t, StatusError, c.Status())
}

func TestConnectRefused(t *testing.T) {
	c := New("127.0.0.1", "1", testSharedKey)
	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnect)
}

func TestConnectWithCoalescedHandshakeReply(t *testing.T) {
	p := newTestPanel(t)
	p.setInputCondition(10, wire.InputTamper)

	// The panel pushes an event right behind the connection response: part
	// of it rides in the same TCP segment as the reply, the rest follows.
	// Both halves belong to the session and must survive the handshake.
	p.stuffAfter(wire.CmdConnectionResponse, wire.Frame{
		Command: wire.EventInputStatusChanged,
		Payload: wire.EncodeInputStatusChanged(wire.InputStatusRecord{ID: 10, Condition: wire.InputTamper}),
	}, 3)

	c := connectClient(t, p)

	require.Eventually(t, func() bool {
		in, ok := c.Input(10)
		return ok && in.Condition == wire.InputTamper
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEventsArriveInPushOrder(t *testing.T) {
	p := newTestPanel(t)
	c := connectClient(t, p)

	ch, cancel := c.Subscribe()
	defer cancel()

	p.pushInputStatus(10, wire.InputOpen, 0)
	p.pushInputStatus(10, wire.InputClear, 0)
	p.pushInputStatus(10, wire.InputTamper, 0)

	changes := collect[InputChange](t, ch, 3, 200*time.Millisecond)
	require.Equal(t, wire.InputOpen, changes[0].Input.Condition)
	require.Equal(t, wire.InputClear, changes[1].Input.Condition)
	require.Equal(t, wire.InputTamper, changes[2].Input.Condition)
	require.Equal(t, wire.InputClear, changes[2].Previous)

	in, ok := c.Input(10)
	require.True(t, ok)
	require.Equal(t, wire.InputTamper, in.Condition)
}

func TestArmSection(t *testing.T) {
	p := newTestPanel(t)
	c := connectClient(t, p, WithUserCode("1234"))

	ch, cancel := c.Subscribe()
	defer cancel()

	require.NoError(t, c.Arm(context.Background(), 1))

	changes := collect[SectionChange](t, ch, 1, 200*time.Millisecond)
	require.Equal(t, uint16(1), changes[0].Section.ID)
	require.Equal(t, wire.SectionArmed, changes[0].Section.Status)
	require.Equal(t, wire.SectionDisarmed, changes[0].Previous)

	sec, ok := c.Section(1)
	require.True(t, ok)
	require.Equal(t, wire.SectionArmed, sec.Status)
}

func TestWriteAccessDisabled(t *testing.T) {
	p := newTestPanel(t)
	c := connectClient(t, p)

	err := c.Arm(context.Background(), 1)
	require.ErrorIs(t, err, ErrWriteAccessDisabled)
	require.Equal(t, 0, p.writeCommandCount())

	// Granting a code at runtime enables writes on the live session.
	c.SetUserCode("1234")
	require.NoError(t, c.Arm(context.Background(), 1))
	require.Equal(t, 1, p.writeCommandCount())
}

func TestInvalidUserCode(t *testing.T) {
	p := newTestPanel(t)
	c := connectClient(t, p, WithUserCode("0000"))

	err := c.Arm(context.Background(), 1)
	require.ErrorIs(t, err, ErrInvalidUserCode)

	sec, _ := c.Section(1)
	require.Equal(t, wire.SectionDisarmed, sec.Status)
}

func TestCommandRejected(t *testing.T) {
	p := newTestPanel(t)
	p.rejectArm = true
	c := connectClient(t, p, WithUserCode("1234"))

	err := c.Arm(context.Background(), 1)
	require.ErrorIs(t, err, ErrCommandRejected)
}

func TestCommandTimeoutAndLateResponse(t *testing.T) {
	p := newTestPanel(t)
	c := connectClient(t, p, WithUserCode("1234"), WithCommandTimeout(200*time.Millisecond))

	p.mute(wire.CmdArmSection)
	err := c.Arm(context.Background(), 1)
	require.ErrorIs(t, err, ErrCommandTimeout)
	p.unmute(wire.CmdArmSection)

	// A response frame with no matching pending command must be ignored
	// without disturbing later correlation.
	p.pushRaw(wire.CmdArmSectionResponse, wire.WriteResponse{TargetID: 1, Result: wire.ResultOK}.Encode())
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, c.Disarm(context.Background(), 2))
	require.Equal(t, StatusConnected, c.Status())
}

func TestBypassIsIdempotent(t *testing.T) {
	p := newTestPanel(t)
	c := connectClient(t, p, WithUserCode("1234"))

	ch, cancel := c.Subscribe()
	defer cancel()

	require.NoError(t, c.Bypass(context.Background(), 12))
	changes := collect[InputChange](t, ch, 1, 200*time.Millisecond)
	require.True(t, changes[0].Input.Bypassed)
	require.False(t, changes[0].PreviousBypassed)

	// A repeated bypass notification for an already bypassed input is a
	// no-op and must not be re-announced.
	p.pushBypass(12, true)
	changes = collect[InputChange](t, ch, 0, 300*time.Millisecond)
	require.Empty(t, changes)

	in, _ := c.Input(12)
	require.True(t, in.Bypassed)
}

func TestAlarmEvent(t *testing.T) {
	p := newTestPanel(t)
	c := connectClient(t, p)

	ch, cancel := c.Subscribe()
	defer cancel()

	p.pushAlarm(2, 0x01)

	alarms := collect[AlarmEvent](t, ch, 1, 200*time.Millisecond)
	require.Equal(t, uint16(2), alarms[0].SectionID)
	require.Equal(t, byte(0x01), alarms[0].Type)

	sec, _ := c.Section(2)
	require.Equal(t, wire.SectionAlarm, sec.Status)
}

func TestUnknownInputTriggersResync(t *testing.T) {
	p := newTestPanel(t)
	c := connectClient(t, p)
	before := p.arrangementCount()

	p.pushInputStatus(99, wire.InputOpen, 0)

	require.Eventually(t, func() bool {
		return p.arrangementCount() > before
	}, 5*time.Second, 50*time.Millisecond)

	_, ok := c.Input(99)
	require.False(t, ok)
}

func TestResyncKeepsNewerEvent(t *testing.T) {
	p := newTestPanel(t)
	c := connectClient(t, p)

	// The input flips to tamper the instant after the panel answered the
	// status query: the event lands in the same segment as the answer, so
	// it postdates the snapshot and must win over it.
	p.stuffAfter(wire.CmdResponseInputStatus, wire.Frame{
		Command: wire.EventInputStatusChanged,
		Payload: wire.EncodeInputStatusChanged(wire.InputStatusRecord{ID: 10, Condition: wire.InputTamper}),
	}, -1)
	p.pushInputStatus(99, wire.InputOpen, 0)

	require.Eventually(t, func() bool {
		in, ok := c.Input(10)
		return ok && in.Condition == wire.InputTamper
	}, 5*time.Second, 10*time.Millisecond)

	// And it stays won: the snapshot install must not overwrite it later.
	time.Sleep(200 * time.Millisecond)
	in, ok := c.Input(10)
	require.True(t, ok)
	require.Equal(t, wire.InputTamper, in.Condition)
}

func TestUnrecognizedEventIsDropped(t *testing.T) {
	p := newTestPanel(t)
	c := connectClient(t, p)

	p.pushRaw(wire.Command(0x03ff), []byte{0xde, 0xad})
	time.Sleep(100 * time.Millisecond)

	require.Equal(t, StatusConnected, c.Status())
	require.Len(t, c.Inputs(), 3)
}

func TestReconnectResyncsChangedState(t *testing.T) {
	p := newTestPanel(t)
	c := connectClient(t, p)

	ch, cancel := c.Subscribe(WithQueueSize(64))
	defer cancel()

	// The panel's truth changes while the link is down.
	p.setSectionStatus(1, wire.SectionArmed)
	p.setInputCondition(10, wire.InputOpen)
	p.dropConnection()

	require.Eventually(t, func() bool {
		return c.Status() != StatusConnected
	}, 15*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return c.Status() == StatusConnected
	}, 15*time.Second, 100*time.Millisecond)

	sec, _ := c.Section(1)
	require.Equal(t, wire.SectionArmed, sec.Status)
	in, _ := c.Input(10)
	require.Equal(t, wire.InputOpen, in.Condition)

	// Only entities whose state actually differs are announced after the
	// resync, alongside the connection transitions.
	secChanges := collect[SectionChange](t, ch, 1, 300*time.Millisecond)
	require.Len(t, secChanges, 1)
	require.Equal(t, uint16(1), secChanges[0].Section.ID)
}

func TestHeartbeatSilenceFaultsSession(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the liveness watchdog")
	}
	p := newTestPanel(t)
	c := connectClient(t, p)

	ch, cancel := c.Subscribe(WithQueueSize(64))
	defer cancel()

	// The panel goes silent: poll-alive requests get no response, so the
	// watchdog must fault the session after three missed intervals and
	// the supervisor must bring it back.
	p.mute(wire.CmdPollAlive)

	sawDisconnect := false
	deadline := time.After(20 * time.Second)
	for !sawDisconnect {
		select {
		case ev := <-ch:
			if cc, ok := ev.(ConnectionChange); ok && cc.Status == StatusDisconnected {
				sawDisconnect = true
			}
		case <-deadline:
			t.Fatal("watchdog never faulted the session")
		}
	}

	p.unmute(wire.CmdPollAlive)
	require.Eventually(t, func() bool {
		return c.Status() == StatusConnected
	}, 15*time.Second, 100*time.Millisecond)
}

func TestCloseIsIdempotent(t *testing.T) {
	p := newTestPanel(t)
	c := connectClient(t, p)

	ch, cancel := c.Subscribe()
	defer cancel()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.Equal(t, StatusDisconnected, c.Status())

	// Subscriptions close with the client.
	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)

	err := c.Arm(context.Background(), 1)
	require.Error(t, err)
}

func TestConnectTwice(t *testing.T) {
	p := newTestPanel(t)
	c := connectClient(t, p)
	require.Error(t, c.Connect(context.Background()))
}
