package builtin

import (
	"context"
	"io"
	"os/exec"
	"strings"
)

// Executor runs a program for the run_code tool. Implementations may run it
// locally, in a container, or on a remote sandbox.
type Executor interface {
	// Exec runs argv in dir. onData receives combined stdout and stderr
	// chunks as they arrive and may be nil. A non-zero exit is reported
	// through exitCode, not err.
	Exec(ctx context.Context, argv []string, dir string, onData func(chunk string)) (exitCode int, err error)
}

// ---------------------------------------------------------------------------
// LocalExecutor
// ---------------------------------------------------------------------------

// LocalExecutor runs programs as local subprocesses with a minimal
// environment.
type LocalExecutor struct {
	// Env replaces the process environment. Nil keeps only PATH and HOME
	// pointing at dir.
	Env []string
}

func (e *LocalExecutor) Exec(ctx context.Context, argv []string, dir string, onData func(chunk string)) (int, error) {
	if len(argv) == 0 {
		return -1, exec.ErrNotFound
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = e.Env
	if cmd.Env == nil {
		cmd.Env = []string{"PATH=/usr/local/bin:/usr/bin:/bin", "HOME=" + dir, "PYTHONDONTWRITEBYTECODE=1"}
	}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		return -1, err
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		buf := make([]byte, 32*1024)
		for {
			n, err := pr.Read(buf)
			if n > 0 && onData != nil {
				onData(string(buf[:n]))
			}
			if err != nil {
				return
			}
		}
	}()

	waitErr := cmd.Wait()
	pw.Close()
	<-readDone

	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, waitErr
	}
	return 0, nil
}

// boundedBuffer keeps at most max bytes and counts the rest.
type boundedBuffer struct {
	max     int
	b       strings.Builder
	dropped int
}

func (w *boundedBuffer) write(s string) {
	room := w.max - w.b.Len()
	if room <= 0 {
		w.dropped += len(s)
		return
	}
	if len(s) > room {
		w.b.WriteString(truncateBytes(s, room))
		w.dropped += len(s) - len(truncateBytes(s, room))
		return
	}
	w.b.WriteString(s)
}
