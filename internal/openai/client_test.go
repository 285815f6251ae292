package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jusunglee/chatrelay/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "test-model"})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func TestNewClientDefaults(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)

	c, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultModel, c.model)
	assert.NotNil(t, c.httpClient)
}

func TestCompleteSendsRequest(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":" hello there "},"finish_reason":"stop"}]}`)
	})

	text, err := c.Complete(context.Background(), []llm.Turn{
		llm.SystemTurn("be brief"),
		llm.UserTurn("hi"),
		llm.AssistantTurn("hey"),
		llm.UserTurn("how are you"),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, []chatMessage{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hey"},
		{Role: "user", Content: "how are you"},
	}, got.Messages)
}

func TestCompleteClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, llm.ErrAuthentication},
		{"forbidden", http.StatusForbidden, `{}`, llm.ErrAuthentication},
		{"throttled", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit_error"}}`, llm.ErrQuota},
		{"server error", http.StatusBadGateway, `upstream`, llm.ErrUnavailable},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"unknown model","type":"invalid_request_error"}}`, llm.ErrMalformedResponse},
		{"not json", http.StatusOK, `<html>`, llm.ErrMalformedResponse},
		{"no choices", http.StatusOK, `{"choices":[]}`, llm.ErrMalformedResponse},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"  "},"finish_reason":"length"}]}`, llm.ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			_, err := c.Complete(context.Background(), []llm.Turn{llm.UserTurn("hi")})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCompleteMakesSingleAttempt(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusServiceUnavailable, `{}`)
	})
	_, err := c.Complete(context.Background(), []llm.Turn{llm.UserTurn("hi")})
	assert.ErrorIs(t, err, llm.ErrUnavailable)
	assert.Equal(t, 1, calls)
}

func TestCompleteNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := NewClient(Config{APIKey: "k", BaseURL: url})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), []llm.Turn{llm.UserTurn("hi")})
	assert.ErrorIs(t, err, llm.ErrUnavailable)
}

func TestCompleteTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Complete(ctx, []llm.Turn{llm.UserTurn("hi")})
	assert.ErrorIs(t, err, llm.ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCompleteRejectsEmptyTurns(t *testing.T) {
	c, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), nil)
	assert.Error(t, err)
}
