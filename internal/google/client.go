package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jusunglee/chatrelay/internal/llm"
	"github.com/samber/lo"
	"google.golang.org/genai"
)

// Model represents a Google AI model identifier
type Model string

const (
	ModelGemini2Flash   Model = "gemini-2.0-flash"
	ModelGemini2_5Flash Model = "gemini-2.5-flash"
	ModelGemini2_5Pro   Model = "gemini-2.5-pro"
)

var DefaultModel Model = ModelGemini2Flash

type Client struct {
	client *genai.Client
	model  Model
}

func NewClient(ctx context.Context, apiKey, baseURL string, model Model) (*Client, error) {
	if model == "" {
		model = DefaultModel
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &Client{
		client: client,
		model:  model,
	}, nil
}

func (c *Client) Complete(ctx context.Context, turns []llm.Turn) (string, error) {
	system, rest := llm.SplitSystem(turns)
	if len(rest) == 0 {
		return "", errors.New("at least one non-system turn must be provided")
	}

	contents := lo.Map(rest, func(t llm.Turn, _ int) *genai.Content {
		role := string(genai.RoleUser)
		if t.Role == llm.RoleAssistant {
			role = string(genai.RoleModel)
		}
		return &genai.Content{Role: role, Parts: []*genai.Part{{Text: t.Content}}}
	})

	var config *genai.GenerateContentConfig
	if system != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		}
	}

	result, err := c.client.Models.GenerateContent(ctx, string(c.model), contents, config)
	if err != nil {
		return "", fmt.Errorf("%w: google API call failed: %w", classify(err), err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty response from google", llm.ErrMalformedResponse)
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: no text content in google response", llm.ErrMalformedResponse)
	}
	return text, nil
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if kind := llm.KindFromStatus(apiErr.Code); kind != nil {
			return kind
		}
		return llm.ErrMalformedResponse
	}
	return llm.ErrUnavailable
}

var _ llm.Client = (*Client)(nil)
