// Package wstest provides an in-memory Dialer and Channel for driving
// Connections from tests without a network.
package wstest

import (
	"context"
	"sync"

	"github.com/ehrlich-b/wingterm/internal/ws"
)

// Channel records every payload sent on it.
type Channel struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (c *Channel) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ws.ErrChannelClosed
	}
	c.sent = append(c.sent, append([]byte(nil), p...))
	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Messages decodes everything sent so far.
func (c *Channel) Messages() []ws.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ws.Message, 0, len(c.sent))
	for _, p := range c.sent {
		out = append(out, ws.Decode(p))
	}
	return out
}

// Types lists the message types sent so far.
func (c *Channel) Types() []string {
	var out []string
	for _, m := range c.Messages() {
		out = append(out, m.MessageType())
	}
	return out
}

// Dialer records attempts per session id and lets the test decide their
// outcome.
type Dialer struct {
	mu       sync.Mutex
	attempts map[string][]*ws.Attempt
	channels map[string]*Channel
	total    int
}

func NewDialer() *Dialer {
	return &Dialer{
		attempts: make(map[string][]*ws.Attempt),
		channels: make(map[string]*Channel),
	}
}

func (d *Dialer) Dial(_ context.Context, a *ws.Attempt) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts[a.SessionID] = append(d.attempts[a.SessionID], a)
	d.total++
}

// Attempts returns the number of dials for a session.
func (d *Dialer) Attempts(sessionID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.attempts[sessionID])
}

// Total returns the number of dials across all sessions.
func (d *Dialer) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

// Last returns the most recent attempt for a session, or nil.
func (d *Dialer) Last(sessionID string) *ws.Attempt {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.attempts[sessionID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// Open completes the latest attempt for a session with a fresh Channel.
func (d *Dialer) Open(sessionID string) *Channel {
	a := d.Last(sessionID)
	if a == nil {
		return nil
	}
	ch := &Channel{}
	d.mu.Lock()
	d.channels[sessionID] = ch
	d.mu.Unlock()
	a.Post(ws.ChannelOpened{Channel: ch})
	return ch
}

// Channel returns the channel most recently opened for a session.
func (d *Dialer) Channel(sessionID string) *Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels[sessionID]
}

// Deliver posts an inbound message on the latest attempt.
func (d *Dialer) Deliver(sessionID string, msg ws.Message) {
	if a := d.Last(sessionID); a != nil {
		a.Post(ws.MessageReceived{Payload: ws.MustEncode(msg)})
	}
}

// DeliverRaw posts an inbound payload verbatim.
func (d *Dialer) DeliverRaw(sessionID string, payload []byte) {
	if a := d.Last(sessionID); a != nil {
		a.Post(ws.MessageReceived{Payload: payload})
	}
}

// Drop fails the latest attempt.
func (d *Dialer) Drop(sessionID string, err error) {
	if a := d.Last(sessionID); a != nil {
		a.Post(ws.ChannelClosed{Err: err})
	}
}
