package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	writeTimeout     = 10 * time.Second
	defaultReadLimit = 10 * 1024 * 1024 // 10MB, matches the host's max message size
	outboxSize       = 256
)

// WebSocketDialer opens one websocket per attempt to the session host.
type WebSocketDialer struct {
	URL       string // e.g. "ws://localhost:8765"
	Header    http.Header
	ReadLimit int64
	Logger    *slog.Logger
}

// Dial connects in the background and reports the result through a.
// Inbound frames are posted in arrival order from a single goroutine.
func (d *WebSocketDialer) Dial(ctx context.Context, a *Attempt) {
	go d.run(ctx, a)
}

func (d *WebSocketDialer) run(ctx context.Context, a *Attempt) {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	opts := &websocket.DialOptions{HTTPHeader: d.Header}
	conn, _, err := websocket.Dial(ctx, d.URL, opts)
	if err != nil {
		a.Post(ChannelClosed{Err: fmt.Errorf("dial: %w", err)})
		return
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	conn.SetReadLimit(limit)

	ch := newWSChannel(ctx, conn, log)
	a.Post(ChannelOpened{Channel: ch})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			ch.Close()
			if ctx.Err() == nil {
				log.Debug("websocket read ended", "session", a.SessionID, "err", err)
			}
			a.Post(ChannelClosed{Err: fmt.Errorf("read: %w", err)})
			return
		}
		a.Post(MessageReceived{Payload: data})
	}
}

// wsChannel queues outbound frames for a single writer goroutine so Send
// never blocks on the network and frames keep their call order.
type wsChannel struct {
	conn   *websocket.Conn
	outbox chan []byte
	done   chan struct{}
	once   sync.Once
	log    *slog.Logger

	mu     sync.Mutex
	closed bool
}

func newWSChannel(ctx context.Context, conn *websocket.Conn, log *slog.Logger) *wsChannel {
	if log == nil {
		log = slog.Default()
	}
	c := &wsChannel{
		conn:   conn,
		outbox: make(chan []byte, outboxSize),
		done:   make(chan struct{}),
		log:    log,
	}
	go c.writeLoop(ctx)
	return c
}

func (c *wsChannel) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	select {
	case c.outbox <- payload:
		return nil
	default:
		return ErrBacklogFull
	}
}

func (c *wsChannel) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

func (c *wsChannel) writeLoop(ctx context.Context) {
	defer c.conn.Close(websocket.StatusNormalClosure, "")
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			c.drain(ctx)
			return
		case data := <-c.outbox:
			if err := c.write(ctx, data); err != nil {
				if !errors.Is(err, context.Canceled) {
					c.log.Debug("websocket write failed", "err", err)
				}
				c.conn.CloseNow()
				return
			}
		}
	}
}

// drain flushes frames queued before Close.
func (c *wsChannel) drain(ctx context.Context) {
	for {
		select {
		case data := <-c.outbox:
			if err := c.write(ctx, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsChannel) write(ctx context.Context, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}
