package host

import (
	"strings"
	"testing"

	"github.com/ehrlich-b/wingterm/internal/session"
	"github.com/ehrlich-b/wingterm/internal/session/sessiontest"
	"github.com/ehrlich-b/wingterm/internal/ws"
)

// A client Session talking to a real host over a websocket.
func TestSessionAgainstHost(t *testing.T) {
	sp := &fakeSpawner{}
	_, url := startHost(t, Options{Spawner: sp})

	d := sessiontest.NewDisplay(100, 30)
	s := session.New(session.Config{
		ID:     "e2e",
		Title:  "shell",
		Dialer: &ws.WebSocketDialer{URL: url},
		Conn:   ws.Options{PingInterval: -1},
	})
	t.Cleanup(func() { s.Close() })
	s.AttachDisplay(d)
	s.Connect()

	eventually(t, "open", func() bool { return s.State() == ws.StateOpen })
	eventually(t, "spawn", func() bool { return sp.proc("e2e", 0) != nil })
	p := sp.proc("e2e", 0)

	eventually(t, "resize forwarded", func() bool {
		for _, sz := range p.Sizes() {
			if sz == (ws.Size{Cols: 100, Rows: 30}) {
				return true
			}
		}
		return false
	})

	if _, err := p.outW.Write([]byte("hello from pty\r\n")); err != nil {
		t.Fatal(err)
	}
	eventually(t, "output rendered", func() bool { return strings.Contains(d.Text(), "hello from pty") })

	d.Type("ls\r")
	eventually(t, "input delivered", func() bool { return p.Input() == "ls\r" })

	p.exit(3)
	eventually(t, "exit reported", func() bool { return s.Inactive() && s.ExitCode() == 3 })
	if s.State() != ws.StateOpen {
		t.Errorf("state after exit = %v, want open", s.State())
	}
}
