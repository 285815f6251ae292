// Package chat relays a user's message to a completion provider and returns
// the reply, enforcing a per-user rate limit, bounded conversation memory and
// input/output character ceilings.
//
// Reply blocks for the duration of the provider call. Callers running inside
// an event dispatch loop must invoke it from a worker goroutine.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/jusunglee/chatrelay/internal/llm"
	"github.com/jusunglee/chatrelay/internal/memory"
	"github.com/jusunglee/chatrelay/internal/metrics"
	"github.com/jusunglee/chatrelay/internal/ratelimit"
	"github.com/jusunglee/chatrelay/internal/textlimit"
)

// Fixed replies for each failure kind. Reply never returns an error.
const (
	MessageRateLimited    = "⏳ You're sending messages too quickly. Please wait a moment and try again."
	MessageAuthFailure    = "❌ The assistant is misconfigured right now. An operator has been notified."
	MessageProviderBusy   = "⏳ The assistant is over capacity. Please try again in a little while."
	MessageUnavailable    = "⚠️ Couldn't reach the assistant. Please try again shortly."
	MessageMalformed      = "❌ The assistant returned something I couldn't read. Please try again."
	MessageGenericFailure = "❌ Something went wrong. Please try again later."
	MessageNotConfigured  = "The assistant is not configured on this bot."
)

const (
	outcomeOK          = "ok"
	outcomeRateLimited = "rate_limited"
	outcomeAuth        = "auth_failure"
	outcomeQuota       = "provider_quota"
	outcomeUnavailable = "unavailable"
	outcomeMalformed   = "malformed"
	outcomeError       = "error"
)

type Adapter struct {
	cfg     Config
	client  llm.Client
	limiter *ratelimit.Limiter
	memory  *memory.Store
	log     *slog.Logger
	now     func() time.Time
}

func New(cfg Config, client llm.Client, log *slog.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chat config: %w", err)
	}
	if client == nil {
		return nil, errors.New("completion client is required")
	}

	limiter, err := ratelimit.New(cfg.RateLimitMaxRequests, cfg.RateLimitWindow)
	if err != nil {
		return nil, fmt.Errorf("creating rate limiter: %w", err)
	}
	store, err := memory.New(cfg.MemorySize)
	if err != nil {
		return nil, fmt.Errorf("creating memory store: %w", err)
	}
	store.OnEvict = func(n int) {
		metrics.MemoryEvictions.Add(float64(n))
	}

	a := &Adapter{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		memory:  store,
		log:     log.With("component", "chat", "provider", cfg.Provider),
		now:     time.Now,
	}
	store.Clock = func() time.Time { return a.now() }
	return a, nil
}

// Reply returns the assistant's answer to text, or a fixed notice if the
// user is rate limited or the provider call fails. A failed call leaves the
// user's history exactly as it was.
func (a *Adapter) Reply(ctx context.Context, userID int64, text string) string {
	log := a.log.With("user_id", userID)

	if !a.limiter.Admit(userID, a.now()) {
		metrics.RepliesTotal.WithLabelValues(outcomeRateLimited).Inc()
		log.DebugContext(ctx, "rate limited")
		return MessageRateLimited
	}

	userTurn := llm.UserTurn(textlimit.Truncate(text, a.cfg.MaxInputChars))

	history := a.memory.History(userID)
	turns := make([]llm.Turn, 0, len(history)+2)
	if a.cfg.SystemPrompt != "" {
		turns = append(turns, llm.SystemTurn(a.cfg.SystemPrompt))
	}
	turns = append(turns, history...)
	turns = append(turns, userTurn)

	output, err := a.complete(ctx, turns)
	if err != nil {
		return a.failure(ctx, log, err)
	}

	output = textlimit.Truncate(output, a.cfg.MaxOutputChars)
	a.memory.AppendExchange(userID, userTurn, llm.AssistantTurn(output))

	metrics.RepliesTotal.WithLabelValues(outcomeOK).Inc()
	log.DebugContext(ctx, "replied", "history_turns", len(history), "reply_chars", utf8.RuneCountInString(output))
	return output
}

func (a *Adapter) complete(ctx context.Context, turns []llm.Turn) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completion client panicked: %v", r)
		}
	}()

	if a.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	text, err = a.client.Complete(ctx, turns)
	metrics.LLMRequestDuration.WithLabelValues(a.cfg.Provider).Observe(time.Since(start).Seconds())

	if err != nil && !errors.Is(err, llm.ErrUnavailable) &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		err = fmt.Errorf("%w: %w", llm.ErrUnavailable, err)
	}
	return text, err
}

func (a *Adapter) failure(ctx context.Context, log *slog.Logger, err error) string {
	switch {
	case errors.Is(err, llm.ErrAuthentication):
		metrics.RepliesTotal.WithLabelValues(outcomeAuth).Inc()
		log.ErrorContext(ctx, "provider rejected credentials, check the api key", "error", err)
		return MessageAuthFailure
	case errors.Is(err, llm.ErrQuota):
		metrics.RepliesTotal.WithLabelValues(outcomeQuota).Inc()
		log.WarnContext(ctx, "provider throttled request", "error", err)
		return MessageProviderBusy
	case errors.Is(err, llm.ErrUnavailable):
		metrics.RepliesTotal.WithLabelValues(outcomeUnavailable).Inc()
		log.WarnContext(ctx, "provider unreachable", "error", err)
		return MessageUnavailable
	case errors.Is(err, llm.ErrMalformedResponse):
		metrics.RepliesTotal.WithLabelValues(outcomeMalformed).Inc()
		log.ErrorContext(ctx, "provider response did not match the expected contract", "error", err)
		return MessageMalformed
	default:
		metrics.RepliesTotal.WithLabelValues(outcomeError).Inc()
		log.ErrorContext(ctx, "completion failed", "error", err)
		return MessageGenericFailure
	}
}

// History returns a copy of the user's stored turns.
func (a *Adapter) History(userID int64) []llm.Turn {
	return a.memory.History(userID)
}

// Forget clears the user's conversation memory. The rate window is kept.
func (a *Adapter) Forget(userID int64) {
	a.memory.Reset(userID)
}

// Sweep drops state for users idle longer than IdleTTL and returns the number
// of entries removed across both stores.
func (a *Adapter) Sweep(now time.Time) int {
	defer func() {
		metrics.TrackedUsers.WithLabelValues("rate_limit").Set(float64(a.limiter.Users()))
		metrics.TrackedUsers.WithLabelValues("memory").Set(float64(a.memory.Users()))
	}()

	if a.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-a.cfg.IdleTTL)

	limiterRemoved := a.limiter.Sweep(now, a.cfg.IdleTTL)
	memoryRemoved := a.memory.Sweep(cutoff)
	metrics.IdleUsersSwept.WithLabelValues("rate_limit").Add(float64(limiterRemoved))
	metrics.IdleUsersSwept.WithLabelValues("memory").Add(float64(memoryRemoved))

	return limiterRemoved + memoryRemoved
}

// IdleTTL reports how long a silent user's state is retained.
func (a *Adapter) IdleTTL() time.Duration {
	return a.cfg.IdleTTL
}

// Disabled answers every message with MessageNotConfigured. It stands in for
// the adapter when no api key is configured.
type Disabled struct{}

func (Disabled) Reply(context.Context, int64, string) string { return MessageNotConfigured }
func (Disabled) Forget(int64)                                {}
func (Disabled) Sweep(time.Time) int                         { return 0 }
func (Disabled) IdleTTL() time.Duration                      { return 0 }
