// Package ptyadapter spawns and owns a child shell attached to a
// pseudo-terminal, mapping OS-level spawn failures onto a small set of
// coarse error kinds and retrying partial writes to the child's stdin.
package ptyadapter

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// ErrWriteTimeout is returned by WriteTimeout when the child isn't draining
// its stdin quickly enough for the write to complete within the deadline.
var ErrWriteTimeout = errors.New("pty write timed out")

// Pty owns a child process attached to a pseudo-terminal master.
type Pty struct {
	master *os.File
	cmd    *exec.Cmd

	writeMu sync.Mutex

	exitMu   sync.Mutex
	exited   bool
	exitErr  error
	exitedCh chan struct{}
}

// Spawn forks a child running shellPath with args attached to a new PTY of
// the given size. shellPath should already have passed ValidateShellPath;
// Spawn does not re-validate it.
func Spawn(shellPath string, args []string, env []string, cols, rows int) (*Pty, error) {
	cmd := exec.Command(shellPath, args...)
	if env != nil {
		cmd.Env = env
	}

	master, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		return nil, classifySpawnError(err)
	}

	p := &Pty{
		master:   master,
		cmd:      cmd,
		exitedCh: make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

func (p *Pty) reap() {
	err := p.cmd.Wait()
	p.exitMu.Lock()
	p.exited = true
	p.exitErr = err
	p.exitMu.Unlock()
	close(p.exitedCh)
}

// Read blocks until child output is available, the child exits (returning
// n==0, err==io.EOF-ish from the underlying read), or the master is closed.
func (p *Pty) Read(buf []byte) (int, error) {
	return p.master.Read(buf)
}

// Write writes all of p to the child's stdin, internally retrying on short
// writes (the PTY master can accept fewer bytes than requested under
// backpressure without that being a fatal error).
func (p *Pty) Write(data []byte) (int, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	written := 0
	for written < len(data) {
		n, err := p.master.Write(data[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, fmt.Errorf("ptyadapter: write made no progress")
		}
	}
	return written, nil
}

// WriteTimeout behaves like Write but gives up after timeout, returning
// ErrWriteTimeout if the child hasn't drained enough of its stdin for the
// write to complete. Used when the caller must not block the event loop
// indefinitely on a hung child.
func (p *Pty) WriteTimeout(data []byte, timeout time.Duration) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := p.Write(data)
		done <- result{n, err}
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.n, r.err
	case <-timer.C:
		return 0, ErrWriteTimeout
	}
}

// Resize propagates a window-size change to the child.
func (p *Pty) Resize(cols, rows int) error {
	return pty.Setsize(p.master, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

// Kill signals the child process; the caller should still call Wait (or
// rely on HasExited/ExitErr) to observe termination.
func (p *Pty) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Drop kills the child if still running and releases the PTY master. Safe
// to call more than once.
func (p *Pty) Drop() error {
	p.Kill()
	return p.master.Close()
}

// Hangup sends SIGHUP to the child, the signal a controlling terminal
// sends on close; used by the headless runtime's graceful shutdown instead
// of Kill's SIGKILL.
func (p *Pty) Hangup() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(syscall.SIGHUP)
}

// HasExited reports whether the child has already terminated.
func (p *Pty) HasExited() bool {
	p.exitMu.Lock()
	defer p.exitMu.Unlock()
	return p.exited
}

// ExitErr returns the error from the child's exec.Cmd.Wait, valid only once
// HasExited reports true (or after Wait has returned).
func (p *Pty) ExitErr() error {
	p.exitMu.Lock()
	defer p.exitMu.Unlock()
	return p.exitErr
}

// Wait blocks until the child has been reaped.
func (p *Pty) Wait() {
	<-p.exitedCh
}
