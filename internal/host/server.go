// Package host is the remote end of the terminal protocol: a websocket
// endpoint that binds each channel to a session id and runs one terminal
// process per session.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ehrlich-b/wingterm/internal/ws"
)

const (
	DefaultInitTimeout = 5 * time.Second
	DefaultMaxMessage  = 10 << 20
	terminateGrace     = 2 * time.Second
	readBufSize        = 4096
	shutdownTimeout    = 5 * time.Second
)

type Options struct {
	Spawner     Spawner
	InitTimeout time.Duration
	// OutputRate caps output per session in bytes per second; 0 is unlimited.
	OutputRate int
	MaxMessage int64
	Logger     *slog.Logger
}

// Server implements http.Handler. A channel must open with init; a second
// channel for a session id that is already running replaces it.
type Server struct {
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*hostSession
}

func NewServer(opts Options) *Server {
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = DefaultInitTimeout
	}
	if opts.MaxMessage <= 0 {
		opts.MaxMessage = DefaultMaxMessage
	}
	if opts.Spawner == nil {
		opts.Spawner = &PTYSpawner{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{opts: opts, log: log, sessions: make(map[string]*hostSession)}
}

// hostSession is one live channel and its process.
type hostSession struct {
	id     string
	conn   *websocket.Conn
	proc   Process
	cancel context.CancelFunc

	wmu sync.Mutex // serializes frames
}

func (h *hostSession) send(ctx context.Context, msg ws.Message) error {
	data, err := ws.Encode(msg)
	if err != nil {
		return err
	}
	h.wmu.Lock()
	defer h.wmu.Unlock()
	return h.conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn("websocket accept", "err", err)
		return
	}
	conn.SetReadLimit(s.opts.MaxMessage)
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id, err := s.awaitInit(ctx, conn)
	if err != nil {
		s.log.Info("rejected channel", "remote", r.RemoteAddr, "err", err)
		data, _ := ws.Encode(ws.ErrorMsg{Message: err.Error()})
		conn.Write(ctx, websocket.MessageText, data)
		conn.Close(websocket.StatusPolicyViolation, "expected init")
		return
	}

	proc, err := s.opts.Spawner.Spawn(id, ws.Size{Cols: 80, Rows: 24})
	if err != nil {
		s.log.Error("spawn failed", "session", id, "err", err)
		data, _ := ws.Encode(ws.ErrorMsg{Message: fmt.Sprintf("failed to start terminal: %v", err)})
		conn.Write(ctx, websocket.MessageText, data)
		conn.Close(websocket.StatusInternalError, "spawn failed")
		return
	}

	sess := &hostSession{id: id, conn: conn, proc: proc, cancel: cancel}
	s.register(sess)
	defer s.release(sess)
	s.log.Info("session started", "session", id, "remote", r.RemoteAddr)

	if err := sess.send(ctx, ws.Ready{SessionID: id}); err != nil {
		return
	}
	go s.pump(ctx, sess)
	s.readLoop(ctx, sess)
}

// awaitInit reads the first frame. The read runs in its own goroutine
// because an expiring read context would close the connection before the
// timeout error could be sent.
func (s *Server) awaitInit(ctx context.Context, conn *websocket.Conn) (string, error) {
	type frame struct {
		data []byte
		err  error
	}
	first := make(chan frame, 1)
	go func() {
		_, data, err := conn.Read(ctx)
		first <- frame{data, err}
	}()

	timer := time.NewTimer(s.opts.InitTimeout)
	defer timer.Stop()
	var f frame
	select {
	case f = <-first:
	case <-timer.C:
		return "", errors.New("timed out waiting for init message")
	}
	if f.err != nil {
		return "", f.err
	}
	msg, ok := ws.Decode(f.data).(ws.Init)
	if !ok {
		return "", errors.New("expected init message")
	}
	if msg.SessionID == "" {
		msg.SessionID = uuid.NewString()
	}
	return msg.SessionID, nil
}

// register installs sess, replacing any channel already bound to its id.
func (s *Server) register(sess *hostSession) {
	s.mu.Lock()
	prev := s.sessions[sess.id]
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	if prev != nil {
		s.log.Info("replacing session", "session", sess.id)
		prev.conn.Close(websocket.StatusPolicyViolation, "replaced by a new channel")
		prev.cancel()
		prev.proc.Terminate(terminateGrace)
	}
}

func (s *Server) release(sess *hostSession) {
	s.mu.Lock()
	if s.sessions[sess.id] == sess {
		delete(s.sessions, sess.id)
	}
	s.mu.Unlock()
	sess.proc.Terminate(terminateGrace)
	s.log.Info("session released", "session", sess.id)
}

func (s *Server) readLoop(ctx context.Context, sess *hostSession) {
	for {
		_, data, err := sess.conn.Read(ctx)
		if err != nil {
			return
		}
		switch m := ws.Decode(data).(type) {
		case ws.Input:
			if _, err := sess.proc.Write([]byte(m.Data)); err != nil {
				sess.send(ctx, ws.ErrorMsg{Message: fmt.Sprintf("write error: %v", err)})
			}
		case ws.Resize:
			if err := sess.proc.Resize(ws.Size{Cols: m.Cols, Rows: m.Rows}); err != nil {
				s.log.Debug("resize failed", "session", sess.id, "err", err)
			}
		case ws.Ping:
			sess.send(ctx, ws.Pong{})
		case ws.RawBytes:
			sess.send(ctx, ws.ErrorMsg{Message: "invalid message: expected a JSON object with a type"})
		default:
			s.log.Debug("ignored message", "session", sess.id, "type", m.MessageType())
		}
	}
}

// pump forwards process output until the process ends, then reports the
// exit code. The channel stays open afterwards.
func (s *Server) pump(ctx context.Context, sess *hostSession) {
	lim := newOutputLimiter(s.opts.OutputRate)
	var split utf8Splitter
	buf := make([]byte, readBufSize)
	for {
		n, err := sess.proc.Read(buf)
		if n > 0 {
			if text := split.feed(buf[:n]); text != "" {
				if lim.wait(ctx, len(text)) != nil {
					return
				}
				if sess.send(ctx, ws.Output{Data: text}) != nil {
					return
				}
			}
		}
		if err != nil {
			break
		}
	}
	if text := split.flush(); text != "" {
		sess.send(ctx, ws.Output{Data: text})
	}
	code := sess.proc.Wait()
	s.log.Info("process exited", "session", sess.id, "code", code)
	sess.send(ctx, ws.Exit{Code: code})
}

// Sessions lists the ids with a live channel.
func (s *Server) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Close drops every channel and terminates every process.
func (s *Server) Close() {
	s.mu.Lock()
	sessions := make([]*hostSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.conn.Close(websocket.StatusGoingAway, "host shutting down")
			sess.cancel()
			sess.proc.Terminate(terminateGrace)
		}()
	}
	wg.Wait()
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("host listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		s.Close()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(sctx)
		return nil
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
