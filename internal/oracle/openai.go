package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const analyzeSystemPrompt = `You are a build failure analyst. Given logs from a failed command,
respond with a single JSON object:
{"hypotheses": ["..."], "root_cause": "...", "suggested_strategy": "...", "confidence": 0.0}
Confidence is between 0 and 1. Respond with JSON only, no prose.`

const applyFixSystemPrompt = `You are an automated code repair tool. Given an issue and source
context, respond with a single JSON object:
{"analysis": "...", "edits": [{"file": "relative/path", "content": "full new file content"}]}
Each edit replaces the whole file. Respond with JSON only, no prose.`

// ChatClient is the subset of the OpenAI client the oracle needs.
// Interface for testing.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIOracle implements Oracle against the OpenAI chat completion API.
type OpenAIOracle struct {
	client ChatClient
	model  string
}

// NewOpenAIOracle creates an oracle using the given API key and model.
// model defaults to gpt-4o-mini.
func NewOpenAIOracle(apiKey, model string) *OpenAIOracle {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIOracle{client: openai.NewClient(apiKey), model: model}
}

// NewOpenAIOracleWithClient creates an oracle with a custom chat client.
func NewOpenAIOracleWithClient(client ChatClient, model string) *OpenAIOracle {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIOracle{client: client, model: model}
}

func (o *OpenAIOracle) Analyze(ctx context.Context, failureType, logs, sourceContext string) (*Diagnosis, error) {
	var user strings.Builder
	fmt.Fprintf(&user, "Failure type: %s\n\nLogs:\n%s\n", failureType, logs)
	if sourceContext != "" {
		fmt.Fprintf(&user, "\nSource context:\n%s\n", sourceContext)
	}

	content, err := o.chat(ctx, analyzeSystemPrompt, user.String())
	if err != nil {
		return nil, &Error{Op: "analyze", Err: err}
	}

	var d Diagnosis
	if err := json.Unmarshal(extractJSON(content), &d); err != nil {
		return nil, &Error{Op: "analyze", Err: fmt.Errorf("parse response: %w", err)}
	}
	if len(d.Hypotheses) == 0 && d.RootCause == "" {
		return nil, &Error{Op: "analyze", Err: fmt.Errorf("empty diagnosis")}
	}
	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}
	return &d, nil
}

func (o *OpenAIOracle) GenerateFixPrompt(ctx context.Context, d *Diagnosis, failureType, logs string) (string, error) {
	// The fix prompt is derived locally from the diagnosis; no second round
	// trip is needed for this step.
	var b strings.Builder
	fmt.Fprintf(&b, "Fix the following %s failure.\n\n", failureType)
	if d.RootCause != "" {
		fmt.Fprintf(&b, "Root cause: %s\n", d.RootCause)
	}
	if len(d.Hypotheses) > 0 {
		b.WriteString("Hypotheses:\n")
		for _, h := range d.Hypotheses {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	if d.SuggestedStrategy != "" {
		fmt.Fprintf(&b, "Strategy: %s\n", d.SuggestedStrategy)
	}
	fmt.Fprintf(&b, "\nLogs:\n%s\n", truncate(logs, 8000))
	return b.String(), nil
}

func (o *OpenAIOracle) ApplyFix(ctx context.Context, issue string, contextText string) (*FixResult, error) {
	var user strings.Builder
	fmt.Fprintf(&user, "Issue:\n%s\n", issue)
	if contextText != "" {
		fmt.Fprintf(&user, "\nContext:\n%s\n", contextText)
	}

	content, err := o.chat(ctx, applyFixSystemPrompt, user.String())
	if err != nil {
		return nil, &Error{Op: "apply_fix", Err: err}
	}

	var fix FixResult
	if err := json.Unmarshal(extractJSON(content), &fix); err != nil {
		return nil, &Error{Op: "apply_fix", Err: fmt.Errorf("parse response: %w", err)}
	}
	return &fix, nil
}

func (o *OpenAIOracle) chat(ctx context.Context, system, user string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// extractJSON pulls the JSON object out of a model response, tolerating
// markdown code fences and surrounding prose.
func extractJSON(s string) []byte {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return []byte(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n... (truncated)"
}
