package command

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRunSuccess(t *testing.T) {
	r := &ExecRunner{}
	result, err := r.Run(context.Background(), t.TempDir(), "echo hello", time.Minute, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d", result.ExitCode)
	}
	if !strings.Contains(result.Stdout, "hello") {
		t.Errorf("stdout = %q", result.Stdout)
	}
}

func TestRunFailure(t *testing.T) {
	r := &ExecRunner{}
	result, err := r.Run(context.Background(), t.TempDir(), "echo oops >&2; exit 3", time.Minute, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success {
		t.Error("expected failure")
	}
	if result.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", result.ExitCode)
	}
	if !strings.Contains(result.Stderr, "oops") {
		t.Errorf("stderr = %q", result.Stderr)
	}
	if result.TimedOut {
		t.Error("normal failure should not be marked as timeout")
	}
}

func TestRunTimeout(t *testing.T) {
	r := &ExecRunner{}
	result, err := r.Run(context.Background(), t.TempDir(), "sleep 10", 100*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success {
		t.Error("timed-out command should not succeed")
	}
	if result.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", result.ExitCode)
	}
	if !result.TimedOut {
		t.Error("TimedOut flag not set")
	}
	if !strings.Contains(result.Stderr, "timed out") {
		t.Errorf("stderr missing sentinel: %q", result.Stderr)
	}
}

func TestRunStreamsLines(t *testing.T) {
	r := &ExecRunner{}

	var mu sync.Mutex
	var lines []string
	onLine := func(channel, line string) {
		mu.Lock()
		lines = append(lines, channel+": "+line)
		mu.Unlock()
	}

	_, err := r.Run(context.Background(), t.TempDir(), "echo one; echo two >&2", time.Minute, onLine)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	var sawOut, sawErr bool
	for _, l := range lines {
		if l == "stdout: one" {
			sawOut = true
		}
		if l == "stderr: two" {
			sawErr = true
		}
	}
	if !sawOut || !sawErr {
		t.Errorf("lines = %v", lines)
	}
}

func TestRunStripsANSI(t *testing.T) {
	r := &ExecRunner{}
	result, err := r.Run(context.Background(), t.TempDir(), `printf '\033[31mred\033[0m\n'`, time.Minute, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Contains(result.Stdout, "\x1b") {
		t.Errorf("ANSI escapes not stripped: %q", result.Stdout)
	}
	if !strings.Contains(result.Stdout, "red") {
		t.Errorf("stdout = %q", result.Stdout)
	}
}

func TestRunCancellation(t *testing.T) {
	r := &ExecRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result, err := r.Run(ctx, t.TempDir(), "sleep 30", time.Minute, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not kill the subprocess promptly")
	}
	if result.Success {
		t.Error("canceled command should not succeed")
	}
	if result.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", result.ExitCode)
	}
}
