package textproc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
)

// Model is the capability the "external" summarizer delegates to. The
// default concrete implementation (AnthropicModel) wraps the Anthropic
// Messages API; callers may inject any other Model for testing or to point
// at a different provider.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AnthropicModel is the default Model, grounded on the summarization-prompt
// pattern used for issue compaction in the example pack.
type AnthropicModel struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicModel builds an AnthropicModel for the given API key and
// model name (e.g. "claude-haiku-4-5").
func NewAnthropicModel(apiKey, modelName string) *AnthropicModel {
	return &AnthropicModel{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(modelName),
	}
}

func (m *AnthropicModel) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     m.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Content) == 0 || resp.Content[0].Type != "text" {
		return "", errors.New("textproc: unexpected response: no text content block")
	}
	return resp.Content[0].Text, nil
}

// External is the Summarizer that delegates to an injected Model, retrying
// transient failures with exponential backoff and falling back to
// truncation when the model is unavailable or every retry is exhausted —
// the DependencyFailure-degrades-silently rule of spec.md §7.
type External struct {
	Model      Model
	MaxRetries uint64
	PromptFunc func(text string, targetChars int) string
	fallback   Truncating
}

// NewExternal builds an External summarizer. promptFunc is optional; a
// reasonable default prompt template is used when nil.
func NewExternal(model Model, maxRetries uint64, promptFunc func(string, int) string) *External {
	if promptFunc == nil {
		promptFunc = defaultPrompt
	}
	return &External{Model: model, MaxRetries: maxRetries, PromptFunc: promptFunc}
}

func defaultPrompt(text string, targetChars int) string {
	return fmt.Sprintf(
		"Summarize the following memory content in about %d characters, preserving key facts and entities:\n\n%s",
		targetChars, text,
	)
}

func (e *External) Summarize(text string, targetChars int) string {
	if e == nil || e.Model == nil {
		return Truncating{}.Summarize(text, targetChars)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var out string
	op := func() error {
		result, err := e.Model.Complete(ctx, e.PromptFunc(text, targetChars))
		if err != nil {
			return err
		}
		out = result
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), e.retries())
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		log.Warn("textproc: external summarizer failed, falling back to truncation", "err", err)
		return e.fallback.Summarize(text, targetChars)
	}
	return out
}

func (e *External) retries() uint64 {
	if e.MaxRetries == 0 {
		return 3
	}
	return e.MaxRetries
}
