// Package autofix repairs an issue list produced by an external verification
// report. Unlike the pipeline's inner loop, which reacts to a raw command
// failure, this loop works through discrete issues in severity order under
// one shared attempt budget.
package autofix

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lucasnoah/buildmedic/internal/checkpoint"
	"github.com/lucasnoah/buildmedic/internal/oracle"
	"github.com/lucasnoah/buildmedic/internal/safety"
)

// Severity ranks an issue. Unknown severities sort last.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// Issue is one atomic defect from a verification report. Consumed and
// discarded by the loop once resolved or exhausted.
type Issue struct {
	ID       string   `json:"id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Remedy   string   `json:"remedy,omitempty"`
}

// Attempt records one fix try against one issue.
type Attempt struct {
	IssueID      string    `json:"issue_id"`
	Resolved     bool      `json:"resolved"`
	ChangedFiles []string  `json:"changed_files,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Result is the aggregate loop outcome. IssuesFixed + IssuesRemaining always
// equals the original issue count.
type Result struct {
	IssuesFixed     int       `json:"issues_fixed"`
	IssuesRemaining int       `json:"issues_remaining"`
	Attempts        []Attempt `json:"attempts"`
	FinalFlags      []string  `json:"final_flags,omitempty"`
	CommitHash      string    `json:"commit_hash,omitempty"`
}

// Verifier runs a fresh external verification pass and returns the
// outstanding flags, free-text lines describing what is still broken.
type Verifier func(ctx context.Context) ([]string, error)

const (
	// maxContextFiles bounds how many same-directory files are attached as
	// fix context.
	maxContextFiles = 3
	// maxContextFileBytes skips files too large to usefully attach.
	maxContextFileBytes = 32 * 1024
	// dropAfterFailures removes an issue from the queue once it has failed
	// this many times, accepting it as unfixable within budget.
	dropAfterFailures = 2
	// resolvedPrefixLen is how much of a normalized issue message is matched
	// against verification flags to decide resolution.
	resolvedPrefixLen = 48
)

// Loop drives the issue-fix cycle.
type Loop struct {
	oracle      oracle.Oracle
	checkpoint  *checkpoint.Client // nil disables the final commit
	projectRoot string
	maxAttempts int
	commitFixes bool
	logf        func(format string, args ...interface{})
}

// NewLoop creates a Loop. cp may be nil when version control is disabled.
func NewLoop(orc oracle.Oracle, cp *checkpoint.Client, projectRoot string, maxAttempts int, commitFixes bool) *Loop {
	return &Loop{
		oracle:      orc,
		checkpoint:  cp,
		projectRoot: projectRoot,
		maxAttempts: safety.ClampInt(maxAttempts, 0, 25),
		commitFixes: commitFixes,
		logf:        func(string, ...interface{}) {},
	}
}

// SetLogf sets a progress logger.
func (l *Loop) SetLogf(logf func(format string, args ...interface{})) {
	if logf != nil {
		l.logf = logf
	}
}

// Run works through the issues, highest severity first, under one shared
// attempt budget. Each iteration asks the oracle for a fix, writes the edits
// path-safely, and re-verifies. An issue whose normalized message prefix no
// longer appears in the fresh flags counts as resolved; one failing twice is
// dropped. The loop exits early the moment verification reports zero flags.
func (l *Loop) Run(ctx context.Context, issues []Issue, verify Verifier) (*Result, error) {
	result := &Result{Attempts: []Attempt{}}
	if len(issues) == 0 {
		return result, nil
	}

	queue := make([]Issue, len(issues))
	copy(queue, issues)
	sort.SliceStable(queue, func(i, j int) bool {
		return rank(queue[i].Severity) < rank(queue[j].Severity)
	})

	failures := make(map[string]int)
	fixed := 0

	for attempt := 1; attempt <= l.maxAttempts && len(queue) > 0; attempt++ {
		if ctx.Err() != nil {
			break
		}
		issue := queue[0]
		l.logf("auto-fix %d/%d: [%s] %s", attempt, l.maxAttempts, issue.Severity, firstLine(issue.Message))

		rec := Attempt{IssueID: issue.ID, Timestamp: time.Now().UTC()}

		fix, err := l.oracle.ApplyFix(ctx, issueText(issue), l.gatherContext(issue))
		if err != nil {
			rec.Error = err.Error()
			result.Attempts = append(result.Attempts, rec)
			if l.noteFailure(failures, issue.ID) {
				queue = queue[1:]
			}
			continue
		}
		rec.ChangedFiles = l.applyEdits(fix.Edits)

		flags, err := verify(ctx)
		if err != nil {
			rec.Error = fmt.Sprintf("verification: %v", err)
			result.Attempts = append(result.Attempts, rec)
			if l.noteFailure(failures, issue.ID) {
				queue = queue[1:]
			}
			continue
		}
		result.FinalFlags = flags

		if len(flags) == 0 {
			// Nothing outstanding anywhere: everything still queued counts
			// as resolved.
			rec.Resolved = true
			result.Attempts = append(result.Attempts, rec)
			fixed += len(queue)
			queue = nil
			break
		}

		if flagsReference(flags, issue.Message) {
			rec.Error = "still flagged after fix"
			result.Attempts = append(result.Attempts, rec)
			if l.noteFailure(failures, issue.ID) {
				l.logf("auto-fix: dropping issue %s after repeated failures", issue.ID)
				queue = queue[1:]
			}
			continue
		}

		rec.Resolved = true
		result.Attempts = append(result.Attempts, rec)
		fixed++
		queue = queue[1:]
	}

	result.IssuesFixed = fixed
	result.IssuesRemaining = len(issues) - fixed

	if fixed > 0 && l.commitFixes && l.checkpoint != nil {
		msg := fmt.Sprintf("medic: auto-fix resolved %d of %d issues", fixed, len(issues))
		result.CommitHash = l.checkpoint.Commit(msg)
	}
	return result, nil
}

// noteFailure bumps the issue's failure count and reports whether it should
// be dropped from the queue.
func (l *Loop) noteFailure(failures map[string]int, id string) bool {
	failures[id]++
	return failures[id] >= dropAfterFailures
}

// applyEdits writes oracle edits through the path-containment check,
// skipping anything that escapes the project root.
func (l *Loop) applyEdits(edits []oracle.Edit) []string {
	var written []string
	for _, edit := range edits {
		resolved, err := safety.WithinRoot(l.projectRoot, edit.File)
		if err != nil {
			l.logf("auto-fix: skipping unsafe edit target %q: %v", edit.File, err)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
			l.logf("auto-fix: skipping edit %q: %v", edit.File, err)
			continue
		}
		if err := os.WriteFile(resolved, []byte(edit.Content), 0o644); err != nil {
			l.logf("auto-fix: skipping edit %q: %v", edit.File, err)
			continue
		}
		if rel, err := filepath.Rel(l.projectRoot, resolved); err == nil {
			written = append(written, rel)
		} else {
			written = append(written, edit.File)
		}
	}
	return written
}

// gatherContext attaches the issue's file plus up to maxContextFiles
// siblings from the same directory, each size-bounded.
func (l *Loop) gatherContext(issue Issue) string {
	if issue.File == "" {
		return ""
	}
	target, err := safety.WithinRoot(l.projectRoot, issue.File)
	if err != nil {
		return ""
	}

	var b strings.Builder
	appendFile(&b, l.projectRoot, target)

	entries, err := os.ReadDir(filepath.Dir(target))
	if err != nil {
		return b.String()
	}
	added := 0
	for _, e := range entries {
		if added >= maxContextFiles {
			break
		}
		if e.IsDir() {
			continue
		}
		path := filepath.Join(filepath.Dir(target), e.Name())
		if path == target {
			continue
		}
		if appendFile(&b, l.projectRoot, path) {
			added++
		}
	}
	return b.String()
}

func appendFile(b *strings.Builder, root, path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxContextFileBytes {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	fmt.Fprintf(b, "--- %s ---\n%s\n", rel, data)
	return true
}

// issueText renders an issue for the oracle.
func issueText(issue Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", issue.Severity, issue.Message)
	if issue.File != "" {
		fmt.Fprintf(&b, "\nLocation: %s", issue.File)
		if issue.Line > 0 {
			fmt.Fprintf(&b, ":%d", issue.Line)
		}
	}
	if issue.Remedy != "" {
		fmt.Fprintf(&b, "\nSuggested remedy: %s", issue.Remedy)
	}
	return b.String()
}

// flagsReference reports whether any flag still textually references the
// issue message. Both sides are normalized and only a bounded prefix of the
// message is matched; issues and flags are free text, so this is a loose
// heuristic by necessity.
func flagsReference(flags []string, message string) bool {
	needle := normalize(message)
	if len(needle) > resolvedPrefixLen {
		needle = needle[:resolvedPrefixLen]
	}
	if needle == "" {
		return false
	}
	for _, flag := range flags {
		if strings.Contains(normalize(flag), needle) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func rank(s Severity) int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}
