// Package sessiontest provides a recording Display for tests.
package sessiontest

import (
	"bytes"
	"sync"

	"github.com/ehrlich-b/wingterm/internal/ws"
)

// Display records writes and presentation calls.
type Display struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	size     ws.Size
	clears   int
	shows    int
	hides    int
	fits     int
	visible  bool
	disposed bool
	onData   func([]byte)
	onResize func(ws.Size)
}

func NewDisplay(cols, rows int) *Display {
	return &Display{size: ws.Size{Cols: cols, Rows: rows}}
}

func (d *Display) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.Write(p)
}

func (d *Display) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf.Reset()
	d.clears++
}

func (d *Display) Size() ws.Size {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

func (d *Display) OnData(fn func([]byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onData = fn
}

func (d *Display) OnResize(fn func(ws.Size)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onResize = fn
}

func (d *Display) Dispose() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disposed = true
	return nil
}

func (d *Display) Show() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shows++
	d.visible = true
}

func (d *Display) Hide() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hides++
	d.visible = false
}

func (d *Display) Fit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fits++
}

// Type simulates keystrokes.
func (d *Display) Type(s string) {
	d.mu.Lock()
	fn := d.onData
	d.mu.Unlock()
	if fn != nil {
		fn([]byte(s))
	}
}

// SetSize simulates the user resizing the surface.
func (d *Display) SetSize(cols, rows int) {
	d.mu.Lock()
	d.size = ws.Size{Cols: cols, Rows: rows}
	fn := d.onResize
	d.mu.Unlock()
	if fn != nil {
		fn(ws.Size{Cols: cols, Rows: rows})
	}
}

// Text returns everything written since the last Clear.
func (d *Display) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.String()
}

func (d *Display) Clears() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clears
}

func (d *Display) Visible() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visible
}

func (d *Display) Fits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fits
}

func (d *Display) Disposed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}
