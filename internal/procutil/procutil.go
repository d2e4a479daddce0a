// Package procutil runs external programs with a hard wall-clock
// deadline and captured output. It backs the CLI generation backends:
// a single invocation, or two processes chained stdout-to-stdin under
// one shared deadline.
package procutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Result holds the outcome of a completed invocation. For the piped
// form, ExitCode and Stderr belong to the terminal process.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// TimeoutError reports that an invocation exceeded its deadline. The
// spawned process (both, for the piped form) has been killed and
// reaped by the time this is returned.
type TimeoutError struct {
	Command string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Command, e.Elapsed.Round(time.Millisecond))
}

// ExitError reports a non-zero exit from the terminal process.
// Stderr is kept for diagnostics but never parsed.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   []byte
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
}

// Command describes one program plus its argument vector. Arguments
// are passed as argv elements, never through a shell, so prompts with
// quotes or metacharacters need no escaping.
type Command struct {
	Name string
	Args []string
}

// Invoke runs a single program and waits for it to finish or for the
// timeout to expire, whichever comes first.
func Invoke(ctx context.Context, timeout time.Duration, cmd Command) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, &TimeoutError{Command: cmd.Name, Elapsed: time.Since(start)}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{Command: cmd.Name, ExitCode: exitErr.ExitCode(), Stderr: stderr.Bytes()}
		}
		return nil, fmt.Errorf("failed to run %s: %w", cmd.Name, err)
	}

	return &Result{ExitCode: 0, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
}

// InvokePiped runs first and second with first's stdout connected to
// second's stdin. A single deadline covers the whole chain; on expiry
// both processes are killed. The result reflects the second process.
//
// A non-zero exit from the first process is deliberately ignored: the
// terminal process decides success, matching shell pipeline semantics.
func InvokePiped(ctx context.Context, timeout time.Duration, first, second Command) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	src := exec.CommandContext(ctx, first.Name, first.Args...)
	dst := exec.CommandContext(ctx, second.Name, second.Args...)

	pipe, err := src.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open pipe from %s: %w", first.Name, err)
	}
	dst.Stdin = pipe

	var stdout, stderr bytes.Buffer
	dst.Stdout = &stdout
	dst.Stderr = &stderr

	if err := src.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", first.Name, err)
	}
	if err := dst.Start(); err != nil {
		// Reap the already-running source before bailing out.
		_ = src.Process.Kill()
		_ = src.Wait()
		return nil, fmt.Errorf("failed to start %s: %w", second.Name, err)
	}

	dstErr := dst.Wait()
	srcErr := src.Wait()

	if ctx.Err() == context.DeadlineExceeded {
		return nil, &TimeoutError{
			Command: first.Name + " | " + second.Name,
			Elapsed: time.Since(start),
		}
	}
	if dstErr != nil {
		var exitErr *exec.ExitError
		if errors.As(dstErr, &exitErr) {
			return nil, &ExitError{Command: second.Name, ExitCode: exitErr.ExitCode(), Stderr: stderr.Bytes()}
		}
		return nil, fmt.Errorf("failed to run %s: %w", second.Name, dstErr)
	}
	_ = srcErr // see doc comment

	return &Result{ExitCode: 0, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
}
