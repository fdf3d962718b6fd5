// Package sim is a Dialer whose channels are answered in-process by a tiny
// line-oriented shell. It lets the client run with no host at all and is
// only used when explicitly selected.
package sim

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ehrlich-b/wingterm/internal/clock"
	"github.com/ehrlich-b/wingterm/internal/ws"
)

const (
	prompt = "$ "

	keyEnter     = '\r'
	keyBackspace = 0x7f
	keyCtrlC     = 0x03

	greeting = "\x1b[33m⚠ Simulated terminal: no host is connected.\x1b[0m\r\n" +
		"Type 'help' for the available commands.\r\n" +
		"For a real shell run: wterm host\r\n\r\n"
)

// Dialer opens simulated channels. The zero value is ready to use.
type Dialer struct {
	Clock clock.Clock
}

func (d *Dialer) Dial(ctx context.Context, a *ws.Attempt) {
	clk := d.Clock
	if clk == nil {
		clk = clock.Real()
	}
	go func() {
		if err := ctx.Err(); err != nil {
			a.Post(ws.ChannelClosed{Err: err})
			return
		}
		a.Post(ws.ChannelOpened{Channel: newChannel(a, clk)})
	}()
}

// channel interprets outbound protocol messages. Replies are posted from
// a single goroutine so they arrive in order and never re-enter the
// Connection from inside Send.
type channel struct {
	attempt *ws.Attempt
	clock   clock.Clock
	replies chan ws.Message
	done    chan struct{}

	mu     sync.Mutex
	line   []rune
	closed bool
}

func newChannel(a *ws.Attempt, clk clock.Clock) *channel {
	c := &channel{
		attempt: a,
		clock:   clk,
		replies: make(chan ws.Message, 256),
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *channel) run() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.replies:
			c.attempt.Post(ws.MessageReceived{Payload: ws.MustEncode(msg)})
		}
	}
}

func (c *channel) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ws.ErrChannelClosed
	}
	switch m := ws.Decode(payload).(type) {
	case ws.Init:
		c.replyLocked(ws.Ready{SessionID: m.SessionID})
		c.replyLocked(ws.Output{Data: greeting + prompt})
	case ws.Input:
		if out := c.typeLocked(m.Data); out != "" {
			c.replyLocked(ws.Output{Data: out})
		}
	case ws.Ping:
		c.replyLocked(ws.Pong{})
	}
	return nil
}

func (c *channel) replyLocked(msg ws.Message) {
	select {
	case c.replies <- msg:
	default:
	}
}

func (c *channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

// typeLocked applies keystrokes to the line buffer and returns the echo.
func (c *channel) typeLocked(data string) string {
	// Arrow keys and other escape sequences are not supported.
	if strings.HasPrefix(data, "\x1b") {
		return ""
	}
	var out strings.Builder
	for _, r := range data {
		switch r {
		case keyEnter:
			out.WriteString("\r\n")
			out.WriteString(c.exec(string(c.line)))
			out.WriteString(prompt)
			c.line = c.line[:0]
		case keyBackspace:
			if len(c.line) > 0 {
				c.line = c.line[:len(c.line)-1]
				out.WriteString("\b \b")
			}
		case keyCtrlC:
			out.WriteString("^C\r\n" + prompt)
			c.line = c.line[:0]
		default:
			if r >= ' ' {
				c.line = append(c.line, r)
				out.WriteRune(r)
			}
		}
	}
	return out.String()
}

// exec executes one command line and returns its output.
func (c *channel) exec(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	switch strings.ToLower(fields[0]) {
	case "help":
		return "Simulated commands:\r\n" +
			"  help     show this help\r\n" +
			"  clear    clear the screen\r\n" +
			"  date     print the current date and time\r\n" +
			"  echo     print the arguments\r\n"
	case "clear":
		return "\x1b[H\x1b[2J\x1b[3J"
	case "date":
		return c.clock.Now().Format("2006-01-02 15:04:05") + "\r\n"
	case "echo":
		return strings.Join(fields[1:], " ") + "\r\n"
	default:
		return fmt.Sprintf("\x1b[31mcommand not found: %s\x1b[0m\r\n", fields[0]) +
			"This is a simulated terminal. Run 'wterm host' for real commands.\r\n"
	}
}
