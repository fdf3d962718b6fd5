// Package console drives the tab registry from an interactive terminal:
// raw keyboard input, prefix-key tab commands, and window resizes.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/ehrlich-b/wingterm/internal/display"
	"github.com/ehrlich-b/wingterm/internal/session"
	"github.com/ehrlich-b/wingterm/internal/tabs"
	"github.com/ehrlich-b/wingterm/internal/ws"
)

const hiddenScreen = "\x1b[H\x1b[2J\x1b[2mwterm panel hidden. Press Ctrl-] h to show it, Ctrl-] d to detach.\x1b[0m\r\n"

// inputSink is implemented by displays that accept typed input.
type inputSink interface {
	Input([]byte)
}

type Console struct {
	in  *os.File
	out io.Writer
	fd  int
	log *slog.Logger
}

func New(in *os.File, out io.Writer, log *slog.Logger) *Console {
	if log == nil {
		log = slog.Default()
	}
	return &Console{in: in, out: &lockedWriter{w: out}, fd: int(in.Fd()), log: log}
}

// lockedWriter keeps escape sequences from different sessions and the
// title updates from interleaving.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// NewDisplay builds the surface for one session. It is the registry's
// display factory.
func (c *Console) NewDisplay(id string) session.Display {
	cols, rows, err := c.size()
	if err != nil {
		cols, rows = session.DefaultSize.Cols, session.DefaultSize.Rows
	}
	return display.New(display.Options{Cols: cols, Rows: rows, Out: c.out, Fit: c.size})
}

func (c *Console) size() (int, int, error) {
	return term.GetSize(c.fd)
}

// Run owns the terminal until the user detaches, input ends, or ctx is
// done. The registry is left running; the caller closes it.
func (c *Console) Run(ctx context.Context, reg *tabs.Registry) error {
	if !term.IsTerminal(c.fd) {
		return errors.New("console: stdin is not a terminal")
	}
	old, err := term.MakeRaw(c.fd)
	if err != nil {
		return fmt.Errorf("console: raw mode: %w", err)
	}
	defer func() {
		term.Restore(c.fd, old)
		fmt.Fprint(c.out, "\x1b[?25h\r\n[detached]\r\n")
	}()

	reg.OnChange(func() { c.setTitle(reg) })
	reg.Show()
	c.setTitle(reg)

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, unix.SIGWINCH)
	defer signal.Stop(winch)

	input := make(chan []byte, 16)
	go c.readInput(input)

	var keys Keymap
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-winch:
			c.fitActive(reg)
		case data, ok := <-input:
			if !ok {
				return nil
			}
			for _, act := range keys.Feed(data) {
				if c.apply(reg, act) {
					return nil
				}
			}
		}
	}
}

func (c *Console) readInput(out chan<- []byte) {
	defer close(out)
	buf := make([]byte, 4096)
	for {
		n, err := c.in.Read(buf)
		if n > 0 {
			out <- append([]byte(nil), buf[:n]...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Debug("console read", "err", err)
			}
			return
		}
	}
}

// apply performs one action and reports whether the console should detach.
func (c *Console) apply(reg *tabs.Registry, act Action) bool {
	switch act.Kind {
	case ActSend:
		if !reg.Visible() || reg.Minimized() {
			return false
		}
		s := reg.Active()
		if s == nil {
			return false
		}
		if sink, ok := s.Display().(inputSink); ok {
			sink.Input(act.Data)
		} else {
			s.Send(act.Data)
		}
	case ActNew:
		reg.CreateSession("")
	case ActClose:
		s := reg.Active()
		if s == nil {
			return false
		}
		if err := reg.CloseSession(s.ID()); errors.Is(err, tabs.ErrLastSession) {
			s.Notify(session.BannerRefused)
		} else if err != nil {
			c.log.Warn("close tab", "err", err)
		}
	case ActNext:
		reg.SwitchBy(1)
	case ActPrev:
		reg.SwitchBy(-1)
	case ActSelect:
		reg.SwitchToIndex(act.Index)
	case ActToggle:
		reg.Toggle()
		if !reg.Visible() {
			io.WriteString(c.out, hiddenScreen)
		}
	case ActDetach:
		return true
	}
	return false
}

func (c *Console) fitActive(reg *tabs.Registry) {
	s := reg.Active()
	if s == nil {
		return
	}
	if vp, ok := s.Display().(session.Viewport); ok {
		vp.Fit()
	}
}

// setTitle shows the tab strip in the terminal window title.
func (c *Console) setTitle(reg *tabs.Registry) {
	fmt.Fprintf(c.out, "\x1b]2;%s\x07", TabStrip(reg.Tabs()))
}

// TabStrip renders tabs as a single line. The active tab is bracketed and
// marked "~" while not connected; exited tabs are marked "!".
func TabStrip(list []tabs.Tab) string {
	parts := make([]string, 0, len(list)+1)
	parts = append(parts, "wterm")
	for i, t := range list {
		label := fmt.Sprintf("%d:%s", i+1, t.Title)
		switch {
		case t.Inactive:
			label += "!"
		case t.Active && t.State != ws.StateOpen:
			label += "~"
		}
		if t.Active {
			label = "[" + label + "]"
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, " ")
}
