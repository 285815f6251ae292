package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jusunglee/chatrelay/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), "g-test", srv.URL+"/", ModelGemini2Flash)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func TestCompleteSendsConversation(t *testing.T) {
	var got struct {
		Contents []struct {
			Role string `json:"role"`
		} `json:"contents"`
		SystemInstruction *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"systemInstruction"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-2.0-flash:generateContent"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"hello "},{"text":"there "}]}}]}`)
	})

	text, err := c.Complete(context.Background(), []llm.Turn{
		llm.SystemTurn("be brief"),
		llm.UserTurn("hi"),
		llm.AssistantTurn("hey"),
		llm.UserTurn("again"),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)

	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "be brief", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 3)
	assert.Equal(t, "user", got.Contents[0].Role)
	assert.Equal(t, "model", got.Contents[1].Role)
	assert.Equal(t, "user", got.Contents[2].Role)
}

func TestCompleteClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"forbidden", http.StatusForbidden, llm.ErrAuthentication},
		{"resource exhausted", http.StatusTooManyRequests, llm.ErrQuota},
		{"bad request", http.StatusBadRequest, llm.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, fmt.Sprintf(`{"error":{"code":%d,"message":"nope"}}`, tt.status))
			})

			_, err := c.Complete(context.Background(), []llm.Turn{llm.UserTurn("hi")})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCompleteNoCandidatesIsMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"candidates":[]}`)
	})

	_, err := c.Complete(context.Background(), []llm.Turn{llm.UserTurn("hi")})
	assert.ErrorIs(t, err, llm.ErrMalformedResponse)
}
