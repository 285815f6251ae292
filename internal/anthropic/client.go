package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jusunglee/chatrelay/internal/llm"
	"github.com/samber/lo"
)

// Re-export Model type and constants for external use
type Model = anthropic.Model

const (
	ModelClaudeSonnet4_5 Model = anthropic.ModelClaudeSonnet4_5_20250929
	ModelClaudeHaiku4_5  Model = anthropic.ModelClaudeHaiku4_5_20251001
	ModelClaudeOpus4_5   Model = anthropic.ModelClaudeOpus4_5_20251101
)

var DefaultModel Model = ModelClaudeHaiku4_5

const maxTokens = 1024

type Client struct {
	client anthropic.Client
	model  Model
}

func NewClient(apiKey, baseURL string, model Model) *Client {
	if model == "" {
		model = DefaultModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// One attempt per call; the adapter owns failure policy.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (c *Client) Complete(ctx context.Context, turns []llm.Turn) (string, error) {
	system, rest := llm.SplitSystem(turns)
	if len(rest) == 0 {
		return "", errors.New("at least one non-system turn must be provided")
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: lo.Map(rest, func(t llm.Turn, _ int) anthropic.MessageParam {
			if t.Role == llm.RoleAssistant {
				return anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content))
			}
			return anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content))
		}),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: anthropic API call failed: %w", classify(err), err)
	}

	var text string
	for _, block := range message.Content {
		if textBlock, ok := block.AsAny().(anthropic.TextBlock); ok {
			text = textBlock.Text
			break
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: no text content in anthropic response", llm.ErrMalformedResponse)
	}
	return text, nil
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if kind := llm.KindFromStatus(apiErr.StatusCode); kind != nil {
			return kind
		}
		return llm.ErrMalformedResponse
	}
	// Transport failures, timeouts and cancellations.
	return llm.ErrUnavailable
}

var _ llm.Client = (*Client)(nil)
