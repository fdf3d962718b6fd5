// Package display provides terminal surfaces backed by a VT emulator. A
// Surface keeps the full screen state of one session so it can be hidden
// and later repainted onto a real terminal.
package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/vt"

	"github.com/ehrlich-b/wingterm/internal/ws"
)

const (
	// DefaultScrollback is the per-surface scrollback ring size.
	DefaultScrollback = 10000
	// hintLines bounds the plain-text scrollback hint.
	hintLines = 200

	clearSeq = "\x1b[H\x1b[2J\x1b[3J"
)

// SizeFunc reports the geometry a surface should fit to.
type SizeFunc func() (cols, rows int, err error)

// Options configures a Surface. Out and Fit are optional: without Out the
// surface is headless, without Fit it keeps its initial size until Resize.
type Options struct {
	Cols, Rows int
	Out        io.Writer
	Fit        SizeFunc
	Scrollback int
}

// Surface implements session.Display, session.Viewport and session.Hinter.
// While shown, every write is mirrored to Out.
type Surface struct {
	mu           sync.Mutex
	emu          *vt.Emulator
	sb           *scrollback
	out          io.Writer
	fit          SizeFunc
	cols, rows   int
	visible      bool
	altScreen    bool
	cursorHidden bool
	disposed     bool
	onData       func([]byte)
	onResize     func(ws.Size)
}

func New(opts Options) *Surface {
	if opts.Cols <= 0 || opts.Rows <= 0 {
		opts.Cols, opts.Rows = 80, 24
	}
	if opts.Scrollback <= 0 {
		opts.Scrollback = DefaultScrollback
	}
	s := &Surface{
		emu:  vt.NewEmulator(opts.Cols, opts.Rows),
		sb:   newScrollback(opts.Scrollback),
		out:  opts.Out,
		fit:  opts.Fit,
		cols: opts.Cols,
		rows: opts.Rows,
	}
	// Callbacks fire inside emu.Write, so mu is already held.
	s.emu.SetCallbacks(vt.Callbacks{
		ScrollOut: func(lines []uv.Line) {
			if s.altScreen {
				return
			}
			for _, line := range lines {
				s.sb.push(line.Render())
			}
		},
		ScrollbackClear: func() {
			s.sb.reset()
		},
		AltScreen: func(on bool) {
			s.altScreen = on
		},
		CursorVisibility: func(visible bool) {
			s.cursorHidden = !visible
		},
	})
	return s
}

// Write feeds host output to the emulator and, while shown, to Out.
func (s *Surface) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return 0, io.ErrClosedPipe
	}
	n, err := s.emu.Write(p)
	if err != nil {
		return n, err
	}
	if s.visible && s.out != nil {
		if _, err := s.out.Write(p); err != nil {
			return n, fmt.Errorf("mirror: %w", err)
		}
	}
	return n, nil
}

// Clear wipes the screen and the scrollback.
func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.emu.Write([]byte(clearSeq))
	s.sb.reset()
	if s.visible && s.out != nil {
		io.WriteString(s.out, clearSeq)
	}
}

func (s *Surface) Size() ws.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ws.Size{Cols: s.cols, Rows: s.rows}
}

func (s *Surface) OnData(fn func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onData = fn
}

func (s *Surface) OnResize(fn func(ws.Size)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResize = fn
}

// Input delivers keystrokes typed into this surface.
func (s *Surface) Input(p []byte) {
	s.mu.Lock()
	fn := s.onData
	s.mu.Unlock()
	if fn != nil && len(p) > 0 {
		fn(p)
	}
}

// Resize changes the emulator geometry and notifies the resize callback
// when it actually changed.
func (s *Surface) Resize(cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}
	s.mu.Lock()
	if s.disposed || (cols == s.cols && rows == s.rows) {
		s.mu.Unlock()
		return
	}
	s.emu.Resize(cols, rows)
	s.cols, s.rows = cols, rows
	fn := s.onResize
	s.mu.Unlock()
	if fn != nil {
		fn(ws.Size{Cols: cols, Rows: rows})
	}
}

// Fit resizes to the geometry reported by the fit function.
func (s *Surface) Fit() {
	s.mu.Lock()
	fit := s.fit
	s.mu.Unlock()
	if fit == nil {
		return
	}
	cols, rows, err := fit()
	if err != nil {
		return
	}
	s.Resize(cols, rows)
}

// Show starts mirroring to Out and repaints the current screen there.
func (s *Surface) Show() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.visible {
		return
	}
	s.visible = true
	if s.out != nil {
		s.out.Write(s.snapshotLocked())
	}
}

// Hide stops mirroring. The emulator keeps tracking output.
func (s *Surface) Hide() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = false
}

func (s *Surface) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Snapshot renders scrollback, screen and cursor state as ANSI that any
// terminal can consume directly.
func (s *Surface) Snapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Surface) snapshotLocked() []byte {
	var buf strings.Builder
	buf.WriteString(clearSeq)

	lines := s.sb.tail(0)
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteString("\r\n")
	}
	// Push scrollback above the visible region before repainting the grid.
	if len(lines) > 0 {
		for range s.rows - 1 {
			buf.WriteByte('\n')
		}
	}

	buf.WriteString("\x1b[m\x1b[H")
	buf.WriteString(s.emu.Render())

	pos := s.emu.CursorPosition()
	fmt.Fprintf(&buf, "\x1b[%d;%dH", pos.Y+1, pos.X+1)
	if s.cursorHidden {
		buf.WriteString("\x1b[?25l")
	} else {
		buf.WriteString("\x1b[?25h")
	}
	return []byte(buf.String())
}

// ScrollbackHint returns the tail of the scrollback plus the screen as
// plain text, without escape sequences.
func (s *Surface) ScrollbackHint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ""
	}
	var lines []string
	for _, l := range s.sb.tail(hintLines) {
		lines = append(lines, strings.TrimRight(ansi.Strip(l), " "))
	}
	for _, l := range strings.Split(ansi.Strip(s.emu.Render()), "\n") {
		lines = append(lines, strings.TrimRight(l, " \r"))
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > hintLines {
		lines = lines[len(lines)-hintLines:]
	}
	return strings.Join(lines, "\n")
}

// ScrollbackLen returns the number of lines held in scrollback.
func (s *Surface) ScrollbackLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sb.len()
}

// Dispose releases the emulator. Further writes fail.
func (s *Surface) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil
	}
	s.disposed = true
	s.visible = false
	return s.emu.Close()
}
