package llm

import (
	"context"
	"errors"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role    Role
	Content string
}

func SystemTurn(content string) Turn    { return Turn{Role: RoleSystem, Content: content} }
func UserTurn(content string) Turn      { return Turn{Role: RoleUser, Content: content} }
func AssistantTurn(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

// Client performs exactly one completion attempt per call. Errors are
// wrapped around one of the sentinel kinds below so callers can map them
// with errors.Is.
type Client interface {
	Complete(ctx context.Context, turns []Turn) (string, error)
}

var (
	ErrAuthentication    = errors.New("provider rejected credentials")
	ErrQuota             = errors.New("provider quota or rate limit exceeded")
	ErrUnavailable       = errors.New("provider unreachable or timed out")
	ErrMalformedResponse = errors.New("malformed provider response")
)

// KindFromStatus maps an HTTP status returned by a provider to one of the
// sentinel kinds. It returns nil for 2xx.
func KindFromStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 401 || status == 403:
		return ErrAuthentication
	case status == 429:
		return ErrQuota
	case status == 408 || status >= 500:
		return ErrUnavailable
	default:
		return ErrMalformedResponse
	}
}

// SplitSystem separates leading system turns from the conversation. Providers
// that take the system prompt out of band (Anthropic, Gemini) use this.
func SplitSystem(turns []Turn) (system string, rest []Turn) {
	i := 0
	for ; i < len(turns) && turns[i].Role == RoleSystem; i++ {
		if system != "" {
			system += "\n\n"
		}
		system += turns[i].Content
	}
	return system, turns[i:]
}
