// Package session binds one display surface to one reconnecting
// Connection: display events become protocol messages and protocol
// messages become display writes.
package session

import (
	"log/slog"
	"sync"

	"github.com/ehrlich-b/wingterm/internal/ws"
)

// DefaultSize is used until a display reports its geometry.
var DefaultSize = ws.Size{Cols: 80, Rows: 24}

// Config describes a Session. Dialer and Conn are used when the Session
// first connects; a Session that never connects never opens a channel.
type Config struct {
	ID     string
	Title  string
	Hint   string
	Dialer ws.Dialer
	Conn   ws.Options
	Logger *slog.Logger
}

// Session is one terminal tab.
type Session struct {
	id       string
	dialer   ws.Dialer
	connOpts ws.Options
	log      *slog.Logger

	mu       sync.Mutex
	title    string
	hint     string
	display  Display
	conn     *ws.Connection
	size     ws.Size
	wasOpen  bool
	lost     bool // dropped from open, next attempt is announced
	inactive bool
	exitCode int
	closed   bool
}

func New(cfg Config) *Session {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	size := cfg.Conn.Size
	if size.Cols <= 0 || size.Rows <= 0 {
		size = DefaultSize
	}
	return &Session{
		id:       cfg.ID,
		title:    cfg.Title,
		hint:     cfg.Hint,
		dialer:   cfg.Dialer,
		connOpts: cfg.Conn,
		log:      log.With("session", cfg.ID),
		size:     size,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}

// Display returns the attached display, or nil.
func (s *Session) Display() Display {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.display
}

// AttachDisplay binds d to the session. Its keystrokes are forwarded with
// Send and its resizes with Resize; its current size becomes the last
// known size.
func (s *Session) AttachDisplay(d Display) {
	s.mu.Lock()
	s.display = d
	size := d.Size()
	s.mu.Unlock()

	d.OnData(s.Send)
	d.OnResize(func(size ws.Size) { s.Resize(size.Cols, size.Rows) })
	if size.Cols > 0 && size.Rows > 0 {
		s.Resize(size.Cols, size.Rows)
	}
}

// Materialized reports whether the session has ever been connected.
// Restored tabs stay cold until first shown.
func (s *Session) Materialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Connection returns the session's Connection, or nil while cold.
func (s *Session) Connection() *ws.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Connect creates the Connection on first use and starts it.
func (s *Session) Connect() {
	s.mu.Lock()
	if s.closed || s.dialer == nil {
		s.mu.Unlock()
		return
	}
	if s.conn == nil {
		opts := s.connOpts
		opts.Size = s.size
		if opts.Logger == nil {
			opts.Logger = s.log
		}
		s.conn = ws.NewConnection(s.id, s.dialer, s, opts)
	}
	conn := s.conn
	s.mu.Unlock()
	conn.Connect()
}

// Disconnect tears the Connection down without forgetting it.
func (s *Session) Disconnect() {
	if conn := s.Connection(); conn != nil {
		conn.Disconnect()
	}
}

// State returns the connection state; a cold session is disconnected.
func (s *Session) State() ws.State {
	if conn := s.Connection(); conn != nil {
		return conn.State()
	}
	return ws.StateDisconnected
}

// Send forwards keystrokes while the channel is open and drops them
// otherwise. Input typed during an outage is never replayed.
func (s *Session) Send(data []byte) {
	conn := s.Connection()
	if conn == nil || len(data) == 0 {
		return
	}
	if err := conn.Send(ws.Input{Data: string(data)}); err != nil && err != ws.ErrNotOpen {
		s.log.Debug("input dropped", "err", err)
	}
}

// Resize records the geometry; it reaches the host now if the channel is
// open and otherwise on the next successful connect.
func (s *Session) Resize(cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}
	size := ws.Size{Cols: cols, Rows: rows}
	s.mu.Lock()
	s.size = size
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		if err := conn.Resize(size); err != nil && err != ws.ErrNotOpen {
			s.log.Debug("resize dropped", "err", err)
		}
	}
}

// LastKnownSize mirrors the display's most recent geometry.
func (s *Session) LastKnownSize() ws.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Inactive reports whether the remote process has exited since the last
// ready.
func (s *Session) Inactive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inactive
}

// ExitCode is the code reported by the last exit message.
func (s *Session) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// ScrollbackHint is a plain-text snapshot for metadata and debugging. It
// is never replayed into a channel.
func (s *Session) ScrollbackHint() string {
	s.mu.Lock()
	d, hint := s.display, s.hint
	s.mu.Unlock()
	if h, ok := d.(Hinter); ok {
		if text := h.ScrollbackHint(); text != "" {
			return text
		}
	}
	return hint
}

// Handle applies one inbound message to the display.
func (s *Session) Handle(msg ws.Message) {
	switch m := msg.(type) {
	case ws.Output:
		s.write(m.Data)
	case ws.RawBytes:
		s.writeBytes(m)
	case ws.Ready:
		s.mu.Lock()
		s.inactive = false
		d := s.display
		s.mu.Unlock()
		if d != nil {
			d.Clear()
		}
		s.write(bannerConnected)
	case ws.Exit:
		s.mu.Lock()
		s.inactive = true
		s.exitCode = m.Code
		s.mu.Unlock()
		s.write(bannerExit(m.Code))
		s.log.Info("remote process exited", "code", m.Code)
	case ws.ErrorMsg:
		s.write(bannerError(m.Message))
		s.log.Warn("host error", "message", m.Message)
	case ws.Pong:
	default:
		s.log.Debug("ignored message", "type", msg.MessageType())
	}
}

// HandleMessage implements ws.Handler.
func (s *Session) HandleMessage(msg ws.Message) {
	s.Handle(msg)
}

// ConnectionStateChanged implements ws.Handler. Drops are surfaced as a
// transient banner.
func (s *Session) ConnectionStateChanged(c ws.StateChange) {
	var banner string
	s.mu.Lock()
	switch c.State {
	case ws.StateOpen:
		s.wasOpen = true
		s.lost = false
	case ws.StateConnecting:
		if s.lost {
			banner = bannerReconnecting
			s.lost = false
		}
	case ws.StateDisconnected:
		if c.Err != nil {
			if s.wasOpen {
				banner = bannerLost(c.RetryIn)
				s.lost = c.RetryIn > 0
			} else if c.Attempt == 1 {
				banner = bannerUnavailable(c.RetryIn)
			}
		}
		s.wasOpen = false
	}
	s.mu.Unlock()

	if banner != "" {
		s.write(banner)
	}
}

// Close disconnects and disposes the display. The session cannot be
// reconnected afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	conn, d := s.conn, s.display
	s.display = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
	}
	if d != nil {
		return d.Dispose()
	}
	return nil
}

// Notify writes a local notice to the display. It never reaches the host.
func (s *Session) Notify(text string) {
	s.write(text)
}

func (s *Session) write(text string) {
	s.writeBytes([]byte(text))
}

func (s *Session) writeBytes(p []byte) {
	d := s.Display()
	if d == nil || len(p) == 0 {
		return
	}
	if _, err := d.Write(p); err != nil {
		s.log.Debug("display write failed", "err", err)
	}
}
