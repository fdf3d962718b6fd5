package session

import (
	"io"

	"github.com/ehrlich-b/wingterm/internal/ws"
)

// Display is the terminal rendering surface a Session drives. Writes are
// raw terminal bytes; OnData delivers keystrokes and pastes; OnResize
// reports geometry changes.
type Display interface {
	io.Writer
	Clear()
	Size() ws.Size
	OnData(func(data []byte))
	OnResize(func(size ws.Size))
	Dispose() error
}

// Viewport is implemented by displays that can be hidden, shown and
// refitted to their container.
type Viewport interface {
	Show()
	Hide()
	Fit()
}

// Hinter is implemented by displays that can summarise their contents as
// plain text.
type Hinter interface {
	ScrollbackHint() string
}
