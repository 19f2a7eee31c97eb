package hostrunner

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
	"github.com/relaysix/sshx/internal/shelllog"
)

// ContentRollingBytes bounds how much recent PTY output a shell keeps
// around so it can re-encrypt and resend a gap the server reports through
// a Sync frame. Once exceeded, the oldest whole chunks are dropped: a
// server whose recorded offset fell far enough behind is resent only what
// is still held, starting at the earliest retained byte.
const ContentRollingBytes = 256 << 10

// shellProc is one PTY-backed shell running under a host connection.
type shellProc struct {
	id   uint32
	cmd  *exec.Cmd
	pty  *os.File
	log  *shelllog.Log
	done chan struct{}
}

func startShell(id uint32, rows, cols uint32, env []string) (*shellProc, error) {
	shellPath := determineShellPath()
	cmd := exec.Command(shellPath)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, err
	}

	return &shellProc{
		id:   id,
		cmd:  cmd,
		pty:  f,
		log:  shelllog.New(ContentRollingBytes, shelllog.Window{Rows: rows, Cols: cols}),
		done: make(chan struct{}),
	}, nil
}

func (sh *shellProc) resize(rows, cols uint32) error {
	sh.log.Resize(shelllog.Window{Rows: rows, Cols: cols})
	return pty.Setsize(sh.pty, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// close terminates the PTY and its shell process. Safe to call more than
// once.
func (sh *shellProc) close() {
	select {
	case <-sh.done:
		return
	default:
		close(sh.done)
	}
	_ = sh.pty.Close()
	if sh.cmd.Process != nil {
		_ = sh.cmd.Process.Kill()
	}
	_ = sh.cmd.Wait()
	sh.log.Close()
}

func determineShellPath() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	if bashPath, err := exec.LookPath("bash"); err == nil {
		return bashPath
	}
	return "/bin/sh"
}
