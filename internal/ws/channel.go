package ws

import (
	"context"
	"errors"
)

var (
	// ErrNotOpen is returned by Connection.Send when there is no open channel.
	ErrNotOpen = errors.New("connection not open")
	// ErrBacklogFull is returned by a Channel whose outbound queue is full.
	ErrBacklogFull = errors.New("channel backlog full")
	// ErrChannelClosed is returned by Send after Close.
	ErrChannelClosed = errors.New("channel closed")
)

// Channel is one open duplex message transport to the session host.
// Send must not block on the network and must preserve call order.
type Channel interface {
	Send(payload []byte) error
	Close() error
}

// Dialer opens channels. Dial must return promptly; the outcome of the
// attempt and every inbound payload are reported by posting events to a.
// Dial must stop posting once ctx is cancelled (posts after that are
// ignored anyway).
type Dialer interface {
	Dial(ctx context.Context, a *Attempt)
}

// DialerFunc adapts a function to a Dialer.
type DialerFunc func(ctx context.Context, a *Attempt)

func (f DialerFunc) Dial(ctx context.Context, a *Attempt) { f(ctx, a) }

// Event is a transition input for a Connection.
type Event interface {
	isEvent()
}

// ChannelOpened reports that the attempt produced a live channel.
type ChannelOpened struct {
	Channel Channel
}

// ChannelClosed reports that the channel failed to open or went away.
type ChannelClosed struct {
	Err error
}

// MessageReceived carries one inbound payload, still encoded.
type MessageReceived struct {
	Payload []byte
}

func (ChannelOpened) isEvent()   {}
func (ChannelClosed) isEvent()   {}
func (MessageReceived) isEvent() {}

// Attempt identifies one connection attempt. Events posted through a
// superseded Attempt are dropped, and a channel opened by one is closed.
type Attempt struct {
	SessionID string
	Number    int

	conn *Connection
	gen  uint64
}

// Post delivers an event to the owning Connection.
func (a *Attempt) Post(ev Event) {
	a.conn.handle(a.gen, ev)
}
