package unii

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	logp "github.com/charmbracelet/log"
	"github.com/unii-security/go-unii/wire"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "unii",
})

// DefaultCommandTimeout bounds the wait for a command response.
const DefaultCommandTimeout = 5 * time.Second

const (
	reconnectInitial = time.Second
	reconnectMax     = 30 * time.Second
)

// Option configures a Client.
type Option func(*Client)

// WithUserCode enables write access (arm, disarm, bypass) with the given
// operator user code. Without it the client is read-only.
func WithUserCode(code string) Option {
	return func(c *Client) { c.userCode = code }
}

// WithCommandTimeout overrides DefaultCommandTimeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.cmdTimeout = d
		}
	}
}

// Client maintains an authenticated session with a UNii panel: it mirrors
// the panel's sections and inputs, issues control commands, relays
// panel-pushed events to subscribers, and reconnects with backoff after
// any fault, resynchronizing the full state before resuming delivery.
type Client struct {
	addr string
	key  []byte

	mu         sync.Mutex
	userCode   string
	cmdTimeout time.Duration
	started    bool
	t          *transport
	d          *dispatcher
	info       EquipmentInformation

	state *stateModel
	hub   *hub

	status   atomic.Int32
	resyncCh chan struct{}
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// New prepares a client for the panel at host:port with the shared key
// provisioned on the panel. No I/O happens until Connect.
func New(host, port string, sharedKey []byte, opts ...Option) *Client {
	c := &Client{
		addr:       net.JoinHostPort(host, port),
		key:        sharedKey,
		cmdTimeout: DefaultCommandTimeout,
		resyncCh:   make(chan struct{}, 1),
		done:       make(chan struct{}),
		hub:        newHub(),
	}
	c.state = newStateModel(c.hub.publish, c.requestResync)
	c.status.Store(int32(StatusDisconnected))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the session, performs the initial full-state sync
// and starts supervision. The first attempt fails fast so callers learn
// about bad addresses or keys; later faults reconnect automatically.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("client already connected")
	}
	c.started = true
	c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		c.setStatus(StatusError)
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		return err
	}

	c.wg.Add(1)
	go c.run()
	return nil
}

func (c *Client) connect(ctx context.Context) error {
	c.setStatus(StatusConnecting)
	t, err := openTransport(ctx, c.addr, c.key)
	if err != nil {
		return err
	}
	d := newDispatcher(t)
	go c.pump(t, d)

	if err := c.resyncNow(ctx, d); err != nil {
		_ = t.close()
		d.fail(fmt.Errorf("%w: %v", ErrSessionLost, err))
		return err
	}

	c.mu.Lock()
	c.t, c.d, c.info = t, d, t.info
	c.mu.Unlock()
	c.setStatus(StatusConnected)
	log.Info("connected to panel",
		"device", t.info.DeviceName,
		"model", t.info.Model,
		"firmware", t.info.FirmwareVersion,
		"heartbeat", t.info.HeartbeatInterval,
	)
	return nil
}

// run is the supervision loop: it reacts to transport faults with
// reconnect-and-resync and serves coalesced resync requests.
func (c *Client) run() {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		t, d := c.t, c.d
		c.mu.Unlock()

		if t == nil {
			if !c.reconnect() {
				return
			}
			continue
		}

		select {
		case <-c.done:
			return
		case err := <-t.fault:
			log.Warn("session lost", "err", err)
			d.fail(fmt.Errorf("%w: %v", ErrSessionLost, err))
			c.dropSession()
			c.setStatus(StatusDisconnected)
		case <-c.resyncCh:
			if err := c.resyncNow(context.Background(), d); err != nil {
				log.Error("resync failed, recycling session", "err", err)
				d.fail(fmt.Errorf("%w: %v", ErrSessionLost, err))
				_ = t.close()
				c.dropSession()
				c.setStatus(StatusDisconnected)
			}
		}
	}
}

// reconnect retries with exponential backoff, 1s up to a 30s cap, until
// it succeeds or the client is closed. The backoff resets on success
// because each outage gets a fresh one.
func (c *Client) reconnect() bool {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = reconnectInitial
	bo.MaxInterval = reconnectMax
	bo.MaxElapsedTime = 0
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(bo.NextBackOff()):
		}
		if err := c.connect(context.Background()); err != nil {
			log.Error("reconnect failed", "err", err)
			c.setStatus(StatusError)
			continue
		}
		return true
	}
}

// pump is the read side of one session: command responses go to the
// dispatcher, everything else to the event router, in arrival order.
func (c *Client) pump(t *transport, d *dispatcher) {
	r := &router{state: c.state, hub: c.hub, resync: c.requestResync}
	for {
		select {
		case <-t.done:
			return
		case f := <-t.frames:
			if d.match(f) {
				c.state.noteSyncResponse(f.Command)
				continue
			}
			r.route(f)
		}
	}
}

// resyncNow enumerates every section and input with its current status and
// installs the snapshot atomically, diffing against prior values so only
// real changes are notified. Deltas the panel pushes while the queries are
// in flight are held back by the state model and replayed on top of the
// snapshot, never underneath it.
func (c *Client) resyncNow(ctx context.Context, d *dispatcher) (err error) {
	timeout := c.commandTimeout()

	c.state.beginSync()
	defer func() {
		if err != nil {
			c.state.abortSync()
		}
	}()

	f, err := d.issue(ctx, wire.CmdRequestSectionArrangement, nil, timeout)
	if err != nil {
		return fmt.Errorf("section arrangement: %w", err)
	}
	secArr, err := wire.ParseSectionArrangement(f.Payload)
	if err != nil {
		return err
	}

	f, err = d.issue(ctx, wire.CmdRequestSectionStatus, nil, timeout)
	if err != nil {
		return fmt.Errorf("section status: %w", err)
	}
	secSt, err := wire.ParseSectionStatuses(f.Payload)
	if err != nil {
		return err
	}

	f, err = d.issue(ctx, wire.CmdRequestInputArrangement, nil, timeout)
	if err != nil {
		return fmt.Errorf("input arrangement: %w", err)
	}
	inArr, err := wire.ParseInputArrangement(f.Payload)
	if err != nil {
		return err
	}

	f, err = d.issue(ctx, wire.CmdRequestInputStatus, nil, timeout)
	if err != nil {
		return fmt.Errorf("input status: %w", err)
	}
	inSt, err := wire.ParseInputStatuses(f.Payload)
	if err != nil {
		return err
	}

	secStatus := make(map[uint16]wire.SectionStatus, len(secSt))
	for _, rec := range secSt {
		secStatus[rec.ID] = rec.Status
	}
	sections := make([]Section, 0, len(secArr))
	for _, rec := range secArr {
		sections = append(sections, Section{
			ID:     rec.ID,
			Name:   rec.Name,
			Status: secStatus[rec.ID],
		})
	}

	inStatus := make(map[uint16]wire.InputStatusRecord, len(inSt))
	for _, rec := range inSt {
		inStatus[rec.ID] = rec
	}
	inputs := make([]Input, 0, len(inArr))
	for _, rec := range inArr {
		st := inStatus[rec.ID]
		inputs = append(inputs, Input{
			ID:          rec.ID,
			Name:        rec.Name,
			Condition:   st.Condition,
			Bypassed:    st.Bypassed(),
			Disabled:    st.Disabled(),
			Supervision: st.Supervision(),
		})
	}

	c.state.finishSync(sections, inputs)
	return nil
}

// Arm arms a section. Requires write access.
func (c *Client) Arm(ctx context.Context, sectionID uint16) error {
	return c.write(ctx, wire.CmdArmSection, sectionID)
}

// Disarm disarms a section. Requires write access.
func (c *Client) Disarm(ctx context.Context, sectionID uint16) error {
	return c.write(ctx, wire.CmdDisarmSection, sectionID)
}

// Bypass excludes an input from triggering an alarm. Requires write access.
func (c *Client) Bypass(ctx context.Context, inputID uint16) error {
	return c.write(ctx, wire.CmdBypassInput, inputID)
}

// Unbypass re-includes an input. Requires write access.
func (c *Client) Unbypass(ctx context.Context, inputID uint16) error {
	return c.write(ctx, wire.CmdUnbypassInput, inputID)
}

func (c *Client) write(ctx context.Context, cmd wire.Command, target uint16) error {
	c.mu.Lock()
	code := c.userCode
	timeout := c.cmdTimeout
	d := c.d
	c.mu.Unlock()

	if code == "" {
		// Rejected locally, no frame reaches the panel.
		return fmt.Errorf("%w: no operator user code configured", ErrWriteAccessDisabled)
	}
	if d == nil {
		return fmt.Errorf("%w: not connected", ErrSessionLost)
	}

	payload := wire.WriteCommand{TargetID: target, UserCode: code}.Encode()
	f, err := d.issue(ctx, cmd, payload, timeout)
	if err != nil {
		return err
	}
	resp, err := wire.ParseWriteResponse(f.Payload)
	if err != nil {
		return err
	}
	switch resp.Result {
	case wire.ResultOK:
		return nil
	case wire.ResultInvalidUserCode:
		return ErrInvalidUserCode
	default:
		return fmt.Errorf("%w: target %d: %s", ErrCommandRejected, target, resp.Result)
	}
}

// SetUserCode changes the operator user code at runtime. An empty code
// reverts the client to read-only without invalidating the session.
func (c *Client) SetUserCode(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userCode = code
}

// Sections returns a point-in-time copy of all sections.
func (c *Client) Sections() []Section { return c.state.allSections() }

// Inputs returns a point-in-time copy of all inputs.
func (c *Client) Inputs() []Input { return c.state.allInputs() }

// Section looks up one section by its panel-assigned identifier.
func (c *Client) Section(id uint16) (Section, bool) { return c.state.section(id) }

// Input looks up one input by its panel-assigned identifier.
func (c *Client) Input(id uint16) (Input, bool) { return c.state.input(id) }

// EquipmentInformation returns the identity reported by the panel during
// the most recent handshake.
func (c *Client) EquipmentInformation() EquipmentInformation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

// Subscribe registers for change notifications: connection transitions,
// per-entity changes, and alarms. The returned cancel func releases the
// subscription; the channel closes when the client does.
func (c *Client) Subscribe(opts ...SubscribeOption) (<-chan Event, func()) {
	return c.hub.subscribe(opts...)
}

// Close tears the session down, cancels every outstanding wait and closes
// all subscriptions. Closing an already-closed client is a no-op.
func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		t, d := c.t, c.d
		c.t, c.d = nil, nil
		c.mu.Unlock()
		if d != nil {
			d.fail(fmt.Errorf("%w: client closed", ErrSessionLost))
		}
		if t != nil {
			_ = t.close()
		}
		c.wg.Wait()
		c.setStatus(StatusDisconnected)
		c.hub.close()
	})
	return nil
}

func (c *Client) dropSession() {
	c.mu.Lock()
	c.t, c.d = nil, nil
	c.mu.Unlock()
}

func (c *Client) setStatus(st ConnectionStatus) {
	if ConnectionStatus(c.status.Swap(int32(st))) == st {
		return
	}
	c.hub.publish(ConnectionChange{Time: time.Now(), Status: st})
}

// requestResync schedules a full-state resynchronization; requests
// coalesce while one is pending.
func (c *Client) requestResync() {
	select {
	case c.resyncCh <- struct{}{}:
	default:
	}
}

func (c *Client) commandTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cmdTimeout
}
