package solver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// waitDelay bounds how long Wait blocks on inherited pipes after the engine
// has been killed.
const waitDelay = 2 * time.Second

// runProcess runs the engine once with the configured timeout and returns
// its stdout. mode is used for error context.
func runProcess(ctx context.Context, opts *Options, mode string, stdin io.Reader, args ...string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	//nolint:gosec // Command comes from operator configuration.
	cmd := exec.CommandContext(runCtx, opts.Command[0], opts.argv(args...)...)
	cmd.Dir = opts.Dir
	cmd.Stdin = stdin
	cmd.WaitDelay = waitDelay

	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() != nil {
		return nil, fmt.Errorf("running %s: %w", mode, ctx.Err())
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, &TimeoutError{Mode: mode, Timeout: opts.Timeout}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{
				Mode:   mode,
				Code:   exitErr.ExitCode(),
				Stderr: truncate(stderr.String(), opts.StderrLimit),
			}
		}

		return nil, fmt.Errorf("starting solver for %s: %w", mode, err)
	}

	return stdout.Bytes(), nil
}
