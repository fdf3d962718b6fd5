package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ehrlich-b/wingterm/internal/clock"
)

type fakeChannel struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (f *fakeChannel) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrChannelClosed
	}
	f.sent = append(f.sent, append([]byte(nil), p...))
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, p := range f.sent {
		out = append(out, Decode(p))
	}
	return out
}

type fakeDialer struct {
	mu       sync.Mutex
	attempts []*Attempt
	ctxs     []context.Context
}

func (d *fakeDialer) Dial(ctx context.Context, a *Attempt) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts = append(d.attempts, a)
	d.ctxs = append(d.ctxs, ctx)
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.attempts)
}

func (d *fakeDialer) last(t *testing.T) *Attempt {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.attempts) == 0 {
		t.Fatal("no dial attempts")
	}
	return d.attempts[len(d.attempts)-1]
}

type recorder struct {
	mu      sync.Mutex
	changes []StateChange
	msgs    []Message
}

func (r *recorder) HandleMessage(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) ConnectionStateChanged(c StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) lastChange(t *testing.T) StateChange {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.changes) == 0 {
		t.Fatal("no state changes recorded")
	}
	return r.changes[len(r.changes)-1]
}

func newTestConnection(t *testing.T, opts Options) (*Connection, *fakeDialer, *recorder, *clock.FakeClock) {
	t.Helper()
	fc := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	opts.Clock = fc
	if opts.PingInterval == 0 {
		opts.PingInterval = -1
	}
	d := &fakeDialer{}
	r := &recorder{}
	return NewConnection("T1", d, r, opts), d, r, fc
}

func TestConnectOpenReadyCloseScenario(t *testing.T) {
	c, d, r, fc := newTestConnection(t, Options{Size: Size{Cols: 80, Rows: 24}})

	c.Connect()
	if c.State() != StateConnecting {
		t.Fatalf("state = %v, want connecting", c.State())
	}

	ch := &fakeChannel{}
	d.last(t).Post(ChannelOpened{Channel: ch})
	if c.State() != StateOpen {
		t.Fatalf("state = %v, want open", c.State())
	}

	sent := ch.messages()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2: %#v", len(sent), sent)
	}
	if init, ok := sent[0].(Init); !ok || init.SessionID != "T1" {
		t.Errorf("first message = %#v, want init{T1}", sent[0])
	}
	if rs, ok := sent[1].(Resize); !ok || rs.Cols != 80 || rs.Rows != 24 {
		t.Errorf("second message = %#v, want resize{80,24}", sent[1])
	}

	d.last(t).Post(MessageReceived{Payload: []byte(`{"type":"ready"}`)})
	if len(r.msgs) != 1 || r.msgs[0].MessageType() != TypeReady {
		t.Fatalf("delivered = %#v, want ready", r.msgs)
	}

	d.last(t).Post(ChannelClosed{Err: errors.New("EOF")})
	if c.State() != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", c.State())
	}
	if !ch.isClosed() {
		t.Error("channel not closed after drop")
	}
	if !c.RetryPending() {
		t.Fatal("no retry scheduled")
	}
	if c.Attempt() != 1 {
		t.Errorf("attempt = %d, want 1", c.Attempt())
	}
	change := r.lastChange(t)
	if change.State != StateDisconnected || change.RetryIn != DefaultBaseDelay || change.Err == nil {
		t.Errorf("last change = %+v", change)
	}

	fc.Advance(DefaultBaseDelay)
	if d.count() != 2 {
		t.Fatalf("dials = %d, want 2 after retry", d.count())
	}
	if c.State() != StateConnecting {
		t.Errorf("state = %v, want connecting", c.State())
	}
	if c.RetryPending() {
		t.Error("retry still pending while connecting")
	}
}

func TestConnectIsNoopWhileConnectingOrOpen(t *testing.T) {
	c, d, _, _ := newTestConnection(t, Options{})

	c.Connect()
	c.Connect()
	if d.count() != 1 {
		t.Fatalf("dials = %d while connecting, want 1", d.count())
	}

	ch := &fakeChannel{}
	d.last(t).Post(ChannelOpened{Channel: ch})
	c.Connect()
	if d.count() != 1 {
		t.Fatalf("dials = %d while open, want 1", d.count())
	}

	inits := 0
	for _, m := range ch.messages() {
		if m.MessageType() == TypeInit {
			inits++
		}
	}
	if inits != 1 {
		t.Errorf("init sent %d times, want 1", inits)
	}
}

func TestBackoffDelaysAcrossRepeatedFailures(t *testing.T) {
	c, d, r, fc := newTestConnection(t, Options{BaseDelay: time.Second, MaxDelay: 8 * time.Second})
	c.Connect()

	want := []time.Duration{1, 2, 4, 8, 8, 8}
	for i, w := range want {
		d.last(t).Post(ChannelClosed{Err: errors.New("refused")})
		change := r.lastChange(t)
		if change.RetryIn != w*time.Second {
			t.Errorf("failure %d: retry in %v, want %v", i+1, change.RetryIn, w*time.Second)
		}
		if change.Attempt != i+1 {
			t.Errorf("failure %d: attempt = %d", i+1, change.Attempt)
		}
		fc.Advance(change.RetryIn)
	}
	if d.count() != len(want)+1 {
		t.Errorf("dials = %d, want %d", d.count(), len(want)+1)
	}
}

func TestOpenResetsAttempt(t *testing.T) {
	c, d, r, fc := newTestConnection(t, Options{})
	c.Connect()
	for range 3 {
		d.last(t).Post(ChannelClosed{Err: errors.New("refused")})
		fc.Advance(r.lastChange(t).RetryIn)
	}
	d.last(t).Post(ChannelOpened{Channel: &fakeChannel{}})
	if c.Attempt() != 0 {
		t.Fatalf("attempt after open = %d, want 0", c.Attempt())
	}
	d.last(t).Post(ChannelClosed{Err: errors.New("reset")})
	if got := r.lastChange(t).RetryIn; got != DefaultBaseDelay {
		t.Errorf("retry after reset = %v, want %v", got, DefaultBaseDelay)
	}
}

func TestDisconnectCancelsPendingRetry(t *testing.T) {
	c, d, r, fc := newTestConnection(t, Options{})
	c.Connect()
	d.last(t).Post(ChannelClosed{Err: errors.New("refused")})
	if !c.RetryPending() {
		t.Fatal("expected pending retry")
	}

	c.Disconnect()
	if c.RetryPending() {
		t.Error("retry still pending after Disconnect")
	}
	if fc.Pending() != 0 {
		t.Errorf("fake clock has %d live timers", fc.Pending())
	}
	n := len(r.changes)
	c.Disconnect()
	if len(r.changes) != n {
		t.Error("second Disconnect emitted a transition")
	}

	fc.Advance(time.Hour)
	if d.count() != 1 {
		t.Errorf("dials = %d after Disconnect, want 1", d.count())
	}
}

func TestDisconnectWhileOpen(t *testing.T) {
	c, d, r, fc := newTestConnection(t, Options{})
	c.Connect()
	ch := &fakeChannel{}
	d.last(t).Post(ChannelOpened{Channel: ch})

	c.Disconnect()
	if !ch.isClosed() {
		t.Error("channel left open")
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %v", c.State())
	}
	got := r.changes[len(r.changes)-2:]
	if got[0].State != StateClosing || got[1].State != StateDisconnected {
		t.Errorf("tail transitions = %+v, want closing then disconnected", got)
	}

	// The reader goroutine reports the close after the fact; it must not
	// schedule a retry.
	d.last(t).Post(ChannelClosed{Err: errors.New("use of closed connection")})
	if c.RetryPending() {
		t.Error("retry scheduled after explicit disconnect")
	}
	fc.Advance(time.Hour)
	if d.count() != 1 {
		t.Errorf("dials = %d, want 1", d.count())
	}

	c.Connect()
	if d.count() != 2 {
		t.Errorf("explicit Connect after Disconnect did not dial")
	}
}

func TestStaleAttemptIsIgnored(t *testing.T) {
	c, d, _, _ := newTestConnection(t, Options{})
	c.Connect()
	first := d.last(t)
	c.Disconnect()
	c.Connect()
	second := d.last(t)
	if first == second {
		t.Fatal("expected a fresh attempt")
	}

	stale := &fakeChannel{}
	first.Post(ChannelOpened{Channel: stale})
	if !stale.isClosed() {
		t.Error("channel from superseded attempt was not closed")
	}
	if c.State() != StateConnecting {
		t.Fatalf("state = %v, want connecting", c.State())
	}

	live := &fakeChannel{}
	second.Post(ChannelOpened{Channel: live})
	first.Post(ChannelClosed{Err: errors.New("late")})
	if c.State() != StateOpen {
		t.Errorf("stale close changed state to %v", c.State())
	}
	if live.isClosed() {
		t.Error("live channel closed by stale event")
	}
}

func TestSendRequiresOpen(t *testing.T) {
	c, d, _, _ := newTestConnection(t, Options{})
	if err := c.Send(Input{Data: "x"}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Send while disconnected = %v, want ErrNotOpen", err)
	}
	c.Connect()
	if err := c.Send(Input{Data: "x"}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Send while connecting = %v, want ErrNotOpen", err)
	}

	ch := &fakeChannel{}
	d.last(t).Post(ChannelOpened{Channel: ch})
	if err := c.Send(Input{Data: "ls\r"}); err != nil {
		t.Fatalf("Send while open: %v", err)
	}
	sent := ch.messages()
	if len(sent) != 3 {
		t.Fatalf("sent = %#v", sent)
	}
	if in, ok := sent[2].(Input); !ok || in.Data != "ls\r" {
		t.Errorf("third message = %#v, want input", sent[2])
	}
}

func TestResizeRememberedAcrossReconnect(t *testing.T) {
	c, d, r, fc := newTestConnection(t, Options{Size: Size{Cols: 80, Rows: 24}})
	c.Connect()
	d.last(t).Post(ChannelOpened{Channel: &fakeChannel{}})
	d.last(t).Post(ChannelClosed{Err: errors.New("drop")})

	if err := c.Resize(Size{Cols: 132, Rows: 50}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Resize while disconnected = %v", err)
	}
	fc.Advance(r.lastChange(t).RetryIn)

	ch := &fakeChannel{}
	d.last(t).Post(ChannelOpened{Channel: ch})
	sent := ch.messages()
	if rs, ok := sent[1].(Resize); !ok || rs.Cols != 132 || rs.Rows != 50 {
		t.Errorf("resize after reconnect = %#v", sent[1])
	}
}

func TestPingWhileOpen(t *testing.T) {
	c, d, _, fc := newTestConnection(t, Options{PingInterval: 5 * time.Second})
	c.Connect()
	ch := &fakeChannel{}
	d.last(t).Post(ChannelOpened{Channel: ch})

	fc.Advance(5 * time.Second)
	fc.Advance(5 * time.Second)
	pings := 0
	for _, m := range ch.messages() {
		if m.MessageType() == TypePing {
			pings++
		}
	}
	if pings != 2 {
		t.Errorf("pings = %d, want 2", pings)
	}

	c.Disconnect()
	if fc.Pending() != 0 {
		t.Errorf("timers left after disconnect: %d", fc.Pending())
	}
}

func TestInboundOrderAndRawFallback(t *testing.T) {
	c, d, r, _ := newTestConnection(t, Options{})
	c.Connect()
	a := d.last(t)
	a.Post(MessageReceived{Payload: []byte(`{"type":"output","data":"early"}`)})
	if len(r.msgs) != 0 {
		t.Fatal("message delivered before open")
	}
	a.Post(ChannelOpened{Channel: &fakeChannel{}})

	a.Post(MessageReceived{Payload: []byte(`{"type":"output","data":"one"}`)})
	a.Post(MessageReceived{Payload: []byte("not json")})
	a.Post(MessageReceived{Payload: []byte(`{"type":"output","data":"two"}`)})

	if len(r.msgs) != 3 {
		t.Fatalf("delivered %d messages, want 3", len(r.msgs))
	}
	if o, ok := r.msgs[0].(Output); !ok || o.Data != "one" {
		t.Errorf("msg 0 = %#v", r.msgs[0])
	}
	if raw, ok := r.msgs[1].(RawBytes); !ok || string(raw) != "not json" {
		t.Errorf("msg 1 = %#v", r.msgs[1])
	}
	if o, ok := r.msgs[2].(Output); !ok || o.Data != "two" {
		t.Errorf("msg 2 = %#v", r.msgs[2])
	}
}

func TestDisconnectCancelsDialContext(t *testing.T) {
	c, d, _, _ := newTestConnection(t, Options{})
	c.Connect()
	c.Disconnect()
	d.mu.Lock()
	ctx := d.ctxs[0]
	d.mu.Unlock()
	if ctx.Err() == nil {
		t.Error("dial context still live after Disconnect")
	}
}
