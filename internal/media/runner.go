package media

import (
	"bufio"
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
)

// tailLines bounds the stderr kept for error diagnostics.
const tailLines = 12

// Result is the outcome of one external command invocation.
type Result struct {
	ExitCode   int
	StderrTail string
}

// LineSink receives stderr lines from a running command as they arrive.
type LineSink func(line string)

// Runner abstracts process execution for testability.
type Runner interface {
	// Run executes the command, streaming stderr lines to sink (may be nil)
	// while retaining a bounded tail for diagnostics.
	Run(ctx context.Context, name string, args []string, sink LineSink) (Result, error)
	// Output executes the command and returns its stdout, for probe-style
	// commands.
	Output(ctx context.Context, name string, args []string) ([]byte, error)
}

// ExecRunner executes commands via os/exec, killing the child process when
// the context is cancelled.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args []string, sink LineSink) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{ExitCode: -1}, err
	}

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, err
	}

	tail := newTailBuffer(tailLines)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			tail.Add(line)
			if sink != nil {
				sink(line)
			}
		}
	}()

	wg.Wait()
	waitErr := cmd.Wait()

	result := Result{
		ExitCode:   0,
		StderrTail: tail.String(),
	}
	if waitErr != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		// Surface cancellation instead of the generic "signal: killed".
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, waitErr
	}
	return result, nil
}

func (r *ExecRunner) Output(ctx context.Context, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Output()
}

// tailBuffer keeps the most recent n lines.
type tailBuffer struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (b *tailBuffer) Add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.n {
		b.lines = b.lines[len(b.lines)-b.n:]
	}
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}
