package oracle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

// mockChat replays canned completion contents, or an error.
type mockChat struct {
	content string
	err     error
	lastReq openai.ChatCompletionRequest
}

func (m *mockChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.content}},
		},
	}, nil
}

func TestAnalyzeParsesDiagnosis(t *testing.T) {
	chat := &mockChat{content: `{"hypotheses":["missing import"],"root_cause":"undefined symbol","suggested_strategy":"add the import","confidence":0.9}`}
	o := NewOpenAIOracleWithClient(chat, "")

	d, err := o.Analyze(context.Background(), "build", "main.go:3: undefined: fmt", "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if d.RootCause != "undefined symbol" {
		t.Errorf("root cause = %q", d.RootCause)
	}
	if d.Confidence != 0.9 {
		t.Errorf("confidence = %v", d.Confidence)
	}
	if len(d.Hypotheses) != 1 {
		t.Errorf("hypotheses = %v", d.Hypotheses)
	}
}

func TestAnalyzeToleratesCodeFences(t *testing.T) {
	chat := &mockChat{content: "```json\n{\"hypotheses\":[\"x\"],\"suggested_strategy\":\"y\",\"confidence\":0.5}\n```"}
	o := NewOpenAIOracleWithClient(chat, "")

	d, err := o.Analyze(context.Background(), "build", "logs", "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if d.SuggestedStrategy != "y" {
		t.Errorf("strategy = %q", d.SuggestedStrategy)
	}
}

func TestAnalyzeMalformedResponseIsTypedError(t *testing.T) {
	chat := &mockChat{content: "sorry, I cannot help with that"}
	o := NewOpenAIOracleWithClient(chat, "")

	_, err := o.Analyze(context.Background(), "build", "logs", "")
	if err == nil {
		t.Fatal("expected error for unparseable response")
	}
	var oerr *Error
	if !errors.As(err, &oerr) {
		t.Errorf("error type = %T", err)
	}
	if oerr.Op != "analyze" {
		t.Errorf("op = %q", oerr.Op)
	}
}

func TestAnalyzeNetworkErrorIsTypedError(t *testing.T) {
	chat := &mockChat{err: fmt.Errorf("connection refused")}
	o := NewOpenAIOracleWithClient(chat, "")

	_, err := o.Analyze(context.Background(), "test", "logs", "")
	var oerr *Error
	if !errors.As(err, &oerr) {
		t.Fatalf("error type = %T", err)
	}
}

func TestAnalyzeClampsConfidence(t *testing.T) {
	chat := &mockChat{content: `{"hypotheses":["x"],"suggested_strategy":"y","confidence":3.5}`}
	o := NewOpenAIOracleWithClient(chat, "")

	d, err := o.Analyze(context.Background(), "build", "logs", "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if d.Confidence != 1 {
		t.Errorf("confidence = %v, want 1", d.Confidence)
	}
}

func TestGenerateFixPromptIncludesDiagnosis(t *testing.T) {
	o := NewOpenAIOracleWithClient(&mockChat{}, "")
	d := &Diagnosis{
		Hypotheses:        []string{"bad cast"},
		RootCause:         "type mismatch",
		SuggestedStrategy: "fix the type",
		Confidence:        0.8,
	}
	prompt, err := o.GenerateFixPrompt(context.Background(), d, "build", "some logs")
	if err != nil {
		t.Fatalf("GenerateFixPrompt: %v", err)
	}
	for _, want := range []string{"type mismatch", "bad cast", "fix the type", "some logs"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestApplyFixParsesEdits(t *testing.T) {
	chat := &mockChat{content: `{"analysis":"the fix","edits":[{"file":"main.go","content":"package main\n"}]}`}
	o := NewOpenAIOracleWithClient(chat, "")

	fix, err := o.ApplyFix(context.Background(), "build error", "context")
	if err != nil {
		t.Fatalf("ApplyFix: %v", err)
	}
	if len(fix.Edits) != 1 || fix.Edits[0].File != "main.go" {
		t.Errorf("edits = %+v", fix.Edits)
	}
}

func TestDefaultDiagnosisLowConfidence(t *testing.T) {
	d := DefaultDiagnosis("build")
	if d.Confidence >= 0.5 {
		t.Errorf("confidence = %v, want low", d.Confidence)
	}
	if len(d.Hypotheses) == 0 {
		t.Error("expected at least one hypothesis")
	}
}

func TestSourceContextExtractsExcerpts(t *testing.T) {
	root := t.TempDir()
	var lines []string
	for i := 1; i <= 50; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := SourceContext(root, "compile error\nmain.go:25: undefined: foo\n")
	if !strings.Contains(ctx, "main.go (around line 25)") {
		t.Errorf("context = %q", ctx)
	}
	if !strings.Contains(ctx, "line 25") {
		t.Error("excerpt missing target line")
	}
	if strings.Contains(ctx, "line 1\n") || strings.Contains(ctx, "line 50") {
		t.Error("excerpt not bounded to radius")
	}
}

func TestSourceContextSkipsEscapingPaths(t *testing.T) {
	root := t.TempDir()
	ctx := SourceContext(root, "../../etc/passwd.txt:1: boom\n")
	if ctx != "" {
		t.Errorf("expected empty context, got %q", ctx)
	}
}

func TestSourceContextNoReferences(t *testing.T) {
	if got := SourceContext(t.TempDir(), "no file refs here"); got != "" {
		t.Errorf("got %q", got)
	}
}
