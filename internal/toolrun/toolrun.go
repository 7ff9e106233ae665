// Package toolrun is the single boundary through which every external codec
// (ffmpeg, pdftocairo, ImageMagick, heif-convert) is invoked.
package toolrun

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hbomb79/galleria/pkg/logger"
)

var log = logger.Get("ToolRun")

const (
	// maxOutputInError bounds how much tool output is retained on a ToolError.
	maxOutputInError = 2048

	// waitDelay bounds how long Run waits for output pipes to close once the
	// process has been killed, in case a grandchild still holds them open.
	waitDelay = 2 * time.Second
)

type (
	// Invocation describes one external process execution.
	Invocation struct {
		Command string
		Args    []string
		Timeout time.Duration
	}

	// Output is the result of a successful invocation.
	Output struct {
		Combined []byte
		Elapsed  time.Duration
	}

	// Runner executes invocations. Test doubles implement this to avoid
	// spawning real processes.
	Runner interface {
		Run(ctx context.Context, inv Invocation) (*Output, error)
	}

	// ToolError is returned for any invocation which fails to start, exits
	// non-zero, or exceeds its timeout.
	ToolError struct {
		Command  string
		Args     []string
		Output   string
		TimedOut bool
		Err      error
	}

	execRunner struct{}
)

func (err *ToolError) Error() string {
	reason := err.Err.Error()
	if err.TimedOut {
		reason = "timed out"
	}

	if err.Output == "" {
		return fmt.Sprintf("%s failed: %s", err.Command, reason)
	}

	return fmt.Sprintf("%s failed: %s\noutput: %s", err.Command, reason, err.Output)
}

func (err *ToolError) Unwrap() error { return err.Err }

// New returns a Runner backed by os/exec.
func New() Runner { return &execRunner{} }

// IsAvailable reports whether the command can be found on $PATH.
func IsAvailable(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

func (r *execRunner) Run(ctx context.Context, inv Invocation) (*Output, error) {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	log.Verbosef("Executing %s %s\n", inv.Command, strings.Join(inv.Args, " "))
	start := time.Now()
	cmd := exec.CommandContext(ctx, inv.Command, inv.Args...)
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)
	out, err := cmd.CombinedOutput()
	elapsed := time.Since(start)
	if err != nil {
		toolErr := &ToolError{
			Command: inv.Command,
			Args:    inv.Args,
			Output:  trimOutput(out),
			Err:     err,
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			toolErr.TimedOut = true
			toolErr.Err = ctx.Err()
		} else if ctx.Err() != nil {
			toolErr.Err = ctx.Err()
		}

		log.Debugf("%s failed after %s: %v\n", inv.Command, elapsed.Round(time.Millisecond), toolErr.Err)
		return nil, toolErr
	}

	return &Output{Combined: out, Elapsed: elapsed}, nil
}

// trimOutput keeps the tail of the output, which is where tools print the actual failure.
func trimOutput(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > maxOutputInError {
		s = "..." + s[len(s)-maxOutputInError:]
	}

	return s
}
