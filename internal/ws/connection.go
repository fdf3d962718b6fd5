package ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ehrlich-b/wingterm/internal/clock"
)

const (
	DefaultBaseDelay    = time.Second
	DefaultMaxDelay     = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
)

// State is the lifecycle state of a Connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Size is a terminal geometry.
type Size struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// StateChange describes one transition, delivered to the Handler.
type StateChange struct {
	State   State
	Err     error         // why the channel went away, nil on explicit disconnect
	Attempt int           // retry counter after the transition
	RetryIn time.Duration // delay of the retry just scheduled, 0 if none
}

// Handler receives a Connection's decoded messages and transitions, in
// order. Handlers may call Send and Resize but must not call Connect or
// Disconnect synchronously.
type Handler interface {
	HandleMessage(msg Message)
	ConnectionStateChanged(change StateChange)
}

// Options configure a Connection. Zero values select the defaults.
type Options struct {
	Clock        clock.Clock
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	PingInterval time.Duration // negative disables pings
	Size         Size
	Logger       *slog.Logger
}

// Connection owns the channel for one session and reconnects it with
// capped exponential backoff until Disconnect is called. At any time it
// holds at most one live channel or one pending retry, never both.
type Connection struct {
	sessionID    string
	dialer       Dialer
	handler      Handler
	clock        clock.Clock
	log          *slog.Logger
	pingInterval time.Duration

	mu         sync.Mutex
	state      State
	backoff    *Backoff
	gen        uint64
	ch         Channel
	cancelDial context.CancelFunc
	retry      *clock.Timer
	ping       *clock.Timer
	stopped    bool
	size       Size
	opens      int

	// dmu orders handler delivery across goroutines without holding mu.
	dmu sync.Mutex
}

// NewConnection returns a Connection in StateDisconnected. Nothing is
// dialed until Connect.
func NewConnection(sessionID string, dialer Dialer, handler Handler, opts Options) *Connection {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = opts.BaseDelay
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if handler == nil {
		handler = nopHandler{}
	}
	return &Connection{
		sessionID:    sessionID,
		dialer:       dialer,
		handler:      handler,
		clock:        opts.Clock,
		log:          opts.Logger.With("session", sessionID),
		pingInterval: opts.PingInterval,
		backoff:      NewBackoff(opts.BaseDelay, opts.MaxDelay),
		size:         opts.Size,
	}
}

func (c *Connection) SessionID() string { return c.sessionID }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempt returns the retry counter. It is 0 after every successful open.
func (c *Connection) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backoff.Attempt()
}

// RetryPending reports whether a reconnect timer is scheduled.
func (c *Connection) RetryPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retry != nil
}

// Size returns the last known terminal size.
func (c *Connection) Size() Size {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Opens counts successful opens over the Connection's lifetime.
func (c *Connection) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// Connect starts an attempt unless one is in flight or the channel is
// open. It clears a previous Disconnect and replaces a pending retry.
func (c *Connection) Connect() {
	c.mu.Lock()
	notes, dial := c.connectLocked()
	c.deliver(notes)
	dial()
}

// Disconnect cancels any pending retry, closes the channel and stops
// automatic reconnection until the next Connect. It is idempotent.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	c.stopped = true
	c.stopRetryLocked()
	if c.state == StateDisconnected {
		c.gen++
		c.mu.Unlock()
		return
	}

	c.state = StateClosing
	closing := StateChange{State: StateClosing, Attempt: c.backoff.Attempt()}
	c.teardownLocked()
	c.gen++
	c.state = StateDisconnected
	done := StateChange{State: StateDisconnected, Attempt: c.backoff.Attempt()}
	c.log.Debug("connection closed by client")

	c.deliver([]func(){
		func() { c.handler.ConnectionStateChanged(closing) },
		func() { c.handler.ConnectionStateChanged(done) },
	})
}

// Send encodes msg onto the open channel. It returns ErrNotOpen instead of
// queueing when the channel is not open.
func (c *Connection) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen || c.ch == nil {
		return ErrNotOpen
	}
	return c.sendLocked(msg)
}

// Resize records the size and forwards it when open. The size is resent
// after every successful open either way.
func (c *Connection) Resize(size Size) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.size = size
	if c.state != StateOpen || c.ch == nil {
		return ErrNotOpen
	}
	return c.sendLocked(Resize{Cols: size.Cols, Rows: size.Rows})
}

// Handle feeds an event for the current attempt.
func (c *Connection) Handle(ev Event) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.handle(gen, ev)
}

func (c *Connection) handle(gen uint64, ev Event) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if opened, ok := ev.(ChannelOpened); ok && opened.Channel != nil {
			opened.Channel.Close()
		}
		return
	}

	var notes []func()
	switch ev := ev.(type) {
	case ChannelOpened:
		notes = c.openedLocked(ev.Channel)
	case ChannelClosed:
		notes = c.closedLocked(ev.Err)
	case MessageReceived:
		if c.state == StateOpen {
			msg := Decode(ev.Payload)
			if raw, ok := msg.(RawBytes); ok {
				c.log.Debug("non-protocol payload", "bytes", len(raw))
			}
			notes = []func(){func() { c.handler.HandleMessage(msg) }}
		}
	}
	c.deliver(notes)
}

func (c *Connection) connectLocked() ([]func(), func()) {
	if c.state == StateConnecting || c.state == StateOpen {
		return nil, func() {}
	}
	c.stopped = false
	c.stopRetryLocked()
	c.gen++
	c.state = StateConnecting

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	a := &Attempt{SessionID: c.sessionID, Number: c.backoff.Attempt(), conn: c, gen: c.gen}
	change := StateChange{State: StateConnecting, Attempt: a.Number}
	c.log.Debug("connecting", "attempt", a.Number)

	return []func(){func() { c.handler.ConnectionStateChanged(change) }},
		func() { c.dialer.Dial(ctx, a) }
}

func (c *Connection) openedLocked(ch Channel) []func() {
	if ch == nil {
		return c.closedLocked(fmt.Errorf("dialer reported an open without a channel"))
	}
	if c.state != StateConnecting {
		ch.Close()
		return nil
	}
	c.ch = ch
	c.state = StateOpen
	c.backoff.Reset()
	c.opens++

	if err := c.sendLocked(Init{SessionID: c.sessionID}); err != nil {
		return c.closedLocked(fmt.Errorf("send init: %w", err))
	}
	if err := c.sendLocked(Resize{Cols: c.size.Cols, Rows: c.size.Rows}); err != nil {
		return c.closedLocked(fmt.Errorf("send resize: %w", err))
	}
	c.schedulePingLocked()
	c.log.Info("connection open", "cols", c.size.Cols, "rows", c.size.Rows)

	change := StateChange{State: StateOpen}
	return []func(){func() { c.handler.ConnectionStateChanged(change) }}
}

func (c *Connection) closedLocked(err error) []func() {
	if c.state != StateOpen && c.state != StateConnecting {
		return nil
	}
	c.teardownLocked()
	c.gen++
	c.state = StateDisconnected

	change := StateChange{State: StateDisconnected, Err: err}
	if !c.stopped {
		delay := c.backoff.Next()
		token := c.gen
		c.retry = c.clock.AfterFunc(delay, func() { c.retryFired(token) })
		change.RetryIn = delay
		c.log.Warn("connection lost", "attempt", c.backoff.Attempt(), "retry_in", delay, "err", err)
	}
	change.Attempt = c.backoff.Attempt()
	return []func(){func() { c.handler.ConnectionStateChanged(change) }}
}

func (c *Connection) retryFired(token uint64) {
	c.mu.Lock()
	if token != c.gen || c.stopped || c.state != StateDisconnected || c.retry == nil {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	notes, dial := c.connectLocked()
	c.deliver(notes)
	dial()
}

func (c *Connection) schedulePingLocked() {
	if c.pingInterval <= 0 {
		return
	}
	token := c.gen
	c.ping = c.clock.AfterFunc(c.pingInterval, func() { c.pingFired(token) })
}

func (c *Connection) pingFired(token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.gen || c.state != StateOpen || c.ch == nil {
		return
	}
	if err := c.sendLocked(Ping{}); err != nil {
		c.log.Debug("ping failed", "err", err)
	}
	c.schedulePingLocked()
}

func (c *Connection) sendLocked(msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return c.ch.Send(data)
}

func (c *Connection) teardownLocked() {
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	if c.ping != nil {
		c.ping.Stop()
		c.ping = nil
	}
	if c.ch != nil {
		c.ch.Close()
		c.ch = nil
	}
}

func (c *Connection) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

// deliver runs handler notifications in order. It must be called with mu
// held and releases it.
func (c *Connection) deliver(notes []func()) {
	if len(notes) == 0 {
		c.mu.Unlock()
		return
	}
	c.dmu.Lock()
	c.mu.Unlock()
	defer c.dmu.Unlock()
	for _, n := range notes {
		n()
	}
}

type nopHandler struct{}

func (nopHandler) HandleMessage(Message)             {}
func (nopHandler) ConnectionStateChanged(StateChange) {}
