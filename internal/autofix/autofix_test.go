package autofix

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/lucasnoah/buildmedic/internal/oracle"
)

// fixOracle answers ApplyFix with one edit per call.
type fixOracle struct {
	mu       sync.Mutex
	applyErr error
	calls    []string
}

func (f *fixOracle) Analyze(ctx context.Context, failureType, logs, sourceContext string) (*oracle.Diagnosis, error) {
	return nil, errors.New("not used")
}

func (f *fixOracle) GenerateFixPrompt(ctx context.Context, d *oracle.Diagnosis, failureType, logs string) (string, error) {
	return "", errors.New("not used")
}

func (f *fixOracle) ApplyFix(ctx context.Context, issue, contextText string) (*oracle.FixResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, issue)
	f.mu.Unlock()
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	return &oracle.FixResult{Edits: []oracle.Edit{{File: "fixed.txt", Content: "ok\n"}}}, nil
}

// scriptedVerifier returns flag sets in sequence; the last set repeats.
func scriptedVerifier(flagSets ...[]string) Verifier {
	i := 0
	return func(ctx context.Context) ([]string, error) {
		flags := flagSets[i]
		if i < len(flagSets)-1 {
			i++
		}
		return flags, nil
	}
}

func newTestLoop(t *testing.T, orc oracle.Oracle, maxAttempts int) *Loop {
	t.Helper()
	return NewLoop(orc, nil, t.TempDir(), maxAttempts, false)
}

func issuesFixture() []Issue {
	return []Issue{
		{ID: "low-1", Severity: SeverityLow, Message: "minor spacing problem"},
		{ID: "crit-1", Severity: SeverityCritical, Message: "null dereference in handler"},
		{ID: "med-1", Severity: SeverityMedium, Message: "unused variable warning"},
	}
}

func TestSeverityOrderDrivesQueue(t *testing.T) {
	orc := &fixOracle{}
	l := newTestLoop(t, orc, 10)

	// Every verification clears everything, so each issue resolves first try.
	verify := scriptedVerifier(nil)
	res, err := l.Run(context.Background(), issuesFixture(), verify)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(orc.calls) == 0 || !contains(orc.calls[0], "null dereference") {
		t.Errorf("first fix was not the critical issue: %v", orc.calls)
	}
	if res.IssuesFixed != 3 || res.IssuesRemaining != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestInvariantHoldsOnMixedOutcome(t *testing.T) {
	l := newTestLoop(t, &fixOracle{}, 10)

	// The critical issue stays flagged forever; the others clear once it is
	// the only one left flagged.
	verify := scriptedVerifier([]string{"null dereference in handler"})
	issues := issuesFixture()
	res, err := l.Run(context.Background(), issues, verify)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.IssuesFixed+res.IssuesRemaining != len(issues) {
		t.Errorf("fixed %d + remaining %d != %d", res.IssuesFixed, res.IssuesRemaining, len(issues))
	}
	if res.IssuesRemaining != 1 {
		t.Errorf("remaining = %d, want 1 (the unfixable critical)", res.IssuesRemaining)
	}
}

func TestTwiceFailedIssueIsDropped(t *testing.T) {
	orc := &fixOracle{}
	l := newTestLoop(t, orc, 10)

	verify := scriptedVerifier([]string{"null dereference in handler"})
	res, err := l.Run(context.Background(), issuesFixture(), verify)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// The critical issue gets exactly two tries before being dropped.
	tries := 0
	for _, call := range orc.calls {
		if contains(call, "null dereference") {
			tries++
		}
	}
	if tries != 2 {
		t.Errorf("critical issue tried %d times, want 2", tries)
	}
	if res.IssuesFixed != 2 {
		t.Errorf("fixed = %d, want 2", res.IssuesFixed)
	}
}

func TestZeroFlagsEndsLoopEarly(t *testing.T) {
	orc := &fixOracle{}
	l := newTestLoop(t, orc, 10)

	verify := scriptedVerifier(nil)
	res, err := l.Run(context.Background(), issuesFixture(), verify)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// First fresh verification comes back clean, so one oracle call suffices
	// and the whole queue counts as resolved.
	if len(orc.calls) != 1 {
		t.Errorf("oracle calls = %d, want 1", len(orc.calls))
	}
	if res.IssuesFixed != 3 || res.IssuesRemaining != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestBudgetBoundsTotalAttempts(t *testing.T) {
	orc := &fixOracle{}
	l := newTestLoop(t, orc, 1)

	verify := scriptedVerifier([]string{
		"null dereference in handler",
		"minor spacing problem",
		"unused variable warning",
	})
	res, err := l.Run(context.Background(), issuesFixture(), verify)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(orc.calls) != 1 {
		t.Errorf("oracle calls = %d, want 1", len(orc.calls))
	}
	if res.IssuesFixed != 0 || res.IssuesRemaining != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestOracleFailureRecordsAttempt(t *testing.T) {
	orc := &fixOracle{applyErr: &oracle.Error{Op: "apply_fix", Err: errors.New("timeout")}}
	l := newTestLoop(t, orc, 10)

	verify := scriptedVerifier([]string{"whatever"})
	res, err := l.Run(context.Background(), issuesFixture(), verify)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.IssuesFixed != 0 || res.IssuesRemaining != 3 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Attempts) == 0 || res.Attempts[0].Error == "" {
		t.Errorf("attempt errors not recorded: %+v", res.Attempts)
	}
}

func TestFlagMatchingIsNormalized(t *testing.T) {
	flags := []string{"  NULL   Dereference In Handler at line 40"}
	if !flagsReference(flags, "null dereference in handler") {
		t.Error("case/whitespace variation not matched")
	}
	if flagsReference([]string{"something else entirely"}, "null dereference in handler") {
		t.Error("unrelated flag matched")
	}
	if flagsReference(flags, "") {
		t.Error("empty message matched")
	}
}

func TestEmptyIssueListIsNoop(t *testing.T) {
	l := newTestLoop(t, &fixOracle{}, 10)
	res, err := l.Run(context.Background(), nil, scriptedVerifier(nil))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.IssuesFixed != 0 || res.IssuesRemaining != 0 || len(res.Attempts) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
