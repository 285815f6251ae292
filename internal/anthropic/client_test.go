package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jusunglee/chatrelay/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("sk-ant-test", srv.URL+"/", ModelClaudeHaiku4_5)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

const okResponse = `{
	"id": "msg_01",
	"type": "message",
	"role": "assistant",
	"model": "claude-haiku-4-5",
	"content": [{"type": "text", "text": " hi there "}],
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 10, "output_tokens": 3}
}`

func TestCompleteSendsConversation(t *testing.T) {
	var got struct {
		System   []struct{ Text string } `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, okResponse)
	})

	text, err := c.Complete(context.Background(), []llm.Turn{
		llm.SystemTurn("be brief"),
		llm.UserTurn("hi"),
		llm.AssistantTurn("hey"),
		llm.UserTurn("again"),
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", text)

	require.Len(t, got.System, 1)
	assert.Equal(t, "be brief", got.System[0].Text)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.Equal(t, "user", got.Messages[2].Role)
}

func TestCompleteRequiresUserTurn(t *testing.T) {
	c := NewClient("k", "", "")
	_, err := c.Complete(context.Background(), []llm.Turn{llm.SystemTurn("only system")})
	assert.Error(t, err)
}

func TestCompleteClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, llm.ErrAuthentication},
		{"rate limited", http.StatusTooManyRequests, llm.ErrQuota},
		{"overloaded", 529, llm.ErrUnavailable},
		{"bad request", http.StatusBadRequest, llm.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				writeJSON(w, tt.status, `{"type":"error","error":{"type":"api_error","message":"nope"}}`)
			})

			_, err := c.Complete(context.Background(), []llm.Turn{llm.UserTurn("hi")})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, calls, "no retries")
		})
	}
}

func TestCompleteEmptyContentIsMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"msg","type":"message","role":"assistant","content":[],"usage":{}}`)
	})

	_, err := c.Complete(context.Background(), []llm.Turn{llm.UserTurn("hi")})
	assert.ErrorIs(t, err, llm.ErrMalformedResponse)
}

func TestCompleteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/"
	srv.Close()

	_, err := NewClient("k", url, "").Complete(context.Background(), []llm.Turn{llm.UserTurn("hi")})
	assert.ErrorIs(t, err, llm.ErrUnavailable)
}
