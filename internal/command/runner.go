package command

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/acarl005/stripansi"
)

// Result holds the outcome of one subprocess execution. Immutable once
// produced.
type Result struct {
	Success  bool          `json:"success"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// LineFunc receives one line of subprocess output. channel is "stdout" or
// "stderr". Lines are delivered in the order they are read, with ANSI escape
// sequences stripped.
type LineFunc func(channel, line string)

// Runner abstracts command execution for testability.
type Runner interface {
	Run(ctx context.Context, dir string, command string, timeout time.Duration, onLine LineFunc) (*Result, error)
}

// ExecRunner implements Runner by shelling out through sh -c. Build and test
// commands are first-class configuration input ("npm run build", compound
// commands, aliases), so a shell interpretation layer is deliberate here;
// anything untrusted spliced into a command goes through safety.ShellQuote
// first.
type ExecRunner struct{}

// timeoutSentinel is appended to stderr when the wall-clock timeout fires,
// so a timeout is distinguishable from a normal failing exit.
const timeoutSentinel = "[buildmedic] command timed out"

func (e *ExecRunner) Run(ctx context.Context, dir string, command string, timeout time.Duration, onLine LineFunc) (*Result, error) {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = dir
	// Kill the whole process group on cancellation so children of the shell
	// do not outlive the timeout.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", command, err)
	}

	var stdoutBuf, stderrBuf strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go collectLines(&wg, stdoutPipe, &stdoutBuf, "stdout", onLine)
	go collectLines(&wg, stderrPipe, &stderrBuf, "stderr", onLine)
	wg.Wait()

	waitErr := cmd.Wait()
	duration := time.Since(start)

	result := &Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: duration,
	}

	if runCtx.Err() == context.DeadlineExceeded || (ctx.Err() != nil && waitErr != nil) {
		result.TimedOut = runCtx.Err() == context.DeadlineExceeded
		result.ExitCode = -1
		msg := timeoutSentinel + " after " + timeout.String()
		if !result.TimedOut {
			msg = "[buildmedic] command canceled"
		}
		if result.Stderr != "" && !strings.HasSuffix(result.Stderr, "\n") {
			result.Stderr += "\n"
		}
		result.Stderr += msg + "\n"
		if onLine != nil {
			onLine("stderr", msg)
		}
		return result, nil
	}

	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("exec %q: %w", command, waitErr)
	}

	result.Success = true
	result.ExitCode = 0
	return result, nil
}

// collectLines scans a pipe line by line, accumulating output and forwarding
// each stripped line to onLine.
func collectLines(wg *sync.WaitGroup, r io.Reader, buf *strings.Builder, channel string, onLine LineFunc) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := stripansi.Strip(scanner.Text())
		buf.WriteString(line)
		buf.WriteByte('\n')
		if onLine != nil {
			onLine(channel, line)
		}
	}
}
