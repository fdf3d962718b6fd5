package host

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/wingterm/internal/ws"
)

// Process is a program attached to a terminal. Reads return its output,
// writes deliver keystrokes.
type Process interface {
	io.ReadWriter
	Resize(size ws.Size) error
	// Wait blocks until the program exits and returns its exit code, or -1
	// when it is unknown.
	Wait() int
	// Terminate asks the program to stop, kills it after grace, and
	// releases the terminal.
	Terminate(grace time.Duration)
}

// Spawner starts one Process per session.
type Spawner interface {
	Spawn(sessionID string, size ws.Size) (Process, error)
}

// PTYSpawner runs a login shell in a pseudo-terminal.
type PTYSpawner struct {
	Shell string
	Dir   string
}

func (p *PTYSpawner) shell() string {
	if p.Shell != "" {
		return p.Shell
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}

func (p *PTYSpawner) Spawn(sessionID string, size ws.Size) (Process, error) {
	cmd := exec.Command(p.shell(), "-l")
	cmd.Dir = p.Dir
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
		"WTERM_SESSION="+sessionID,
	)
	ptmx, err := pty.StartWithSize(cmd, winsize(size))
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}
	proc := &ptyProcess{cmd: cmd, ptmx: ptmx, done: make(chan struct{}), code: -1}
	go proc.wait()
	return proc, nil
}

func winsize(size ws.Size) *pty.Winsize {
	if size.Cols <= 0 || size.Rows <= 0 {
		size = ws.Size{Cols: 80, Rows: 24}
	}
	return &pty.Winsize{Cols: uint16(size.Cols), Rows: uint16(size.Rows)}
}

type ptyProcess struct {
	cmd  *exec.Cmd
	ptmx *os.File
	done chan struct{}
	code int
	once sync.Once
}

func (p *ptyProcess) wait() {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		p.code = 0
	case errors.As(err, &exitErr):
		p.code = exitErr.ExitCode()
	}
	close(p.done)
}

func (p *ptyProcess) Read(b []byte) (int, error)  { return p.ptmx.Read(b) }
func (p *ptyProcess) Write(b []byte) (int, error) { return p.ptmx.Write(b) }

func (p *ptyProcess) Resize(size ws.Size) error {
	return pty.Setsize(p.ptmx, winsize(size))
}

func (p *ptyProcess) Wait() int {
	<-p.done
	return p.code
}

func (p *ptyProcess) Terminate(grace time.Duration) {
	p.once.Do(func() {
		select {
		case <-p.done:
		default:
			p.cmd.Process.Signal(unix.SIGTERM)
			select {
			case <-p.done:
			case <-time.After(grace):
				p.cmd.Process.Kill()
				<-p.done
			}
		}
		p.ptmx.Close()
	})
}
