package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/jusunglee/chatrelay/internal/anthropic"
	"github.com/jusunglee/chatrelay/internal/bot"
	"github.com/jusunglee/chatrelay/internal/chat"
	"github.com/jusunglee/chatrelay/internal/envsetup"
	"github.com/jusunglee/chatrelay/internal/google"
	"github.com/jusunglee/chatrelay/internal/health"
	"github.com/jusunglee/chatrelay/internal/llm"
	"github.com/jusunglee/chatrelay/internal/logger"
	"github.com/jusunglee/chatrelay/internal/openai"
	"github.com/jusunglee/chatrelay/internal/token"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/samber/lo"
)

func main() {
	if err := mainE(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func mainE() error {
	if envsetup.NeedsSetup() && len(os.Args) == 1 && os.Getenv("DISCORD_TOKEN") == "" && os.Getenv("DISCORD_TOKEN_FILE") == "" {
		ok, err := envsetup.Run()
		if err != nil {
			return fmt.Errorf("running setup wizard: %w", err)
		}
		if !ok {
			return errors.New("setup was not completed")
		}
	}
	_ = godotenv.Load()

	fs := ff.NewFlagSet("chatrelay")
	var (
		discordToken     = fs.StringLong("discord-token", "", "Discord bot token")
		discordTokenFile = fs.StringLong("discord-token-file", "", "File holding the Discord bot token")
		guildID          = fs.StringLong("guild-id", "", "Register commands to this guild only (instant updates)")
		provider         = fs.StringLong("llm-provider", "openai", "Completion provider: openai, anthropic or google")
		apiKey           = fs.StringLong("api-key", "", "Provider API key; the assistant is disabled when empty")
		model            = fs.StringLong("model", "", "Model name (provider default when empty)")
		baseURL          = fs.StringLong("base-url", "", "Provider base URL (provider default when empty)")
		systemPrompt     = fs.StringLong("system-prompt", "", "Instructions sent before every conversation")
		memorySize       = fs.IntLong("memory-size", chat.DefaultMemorySize, "Exchanges remembered per user (0 disables memory)")
		rateLimitMax     = fs.IntLong("rate-limit-max-requests", chat.DefaultRateLimitMaxRequests, "Messages allowed per user per window")
		rateLimitWindow  = fs.IntLong("rate-limit-window-seconds", chat.DefaultRateLimitWindowSeconds, "Rate limit window in seconds")
		maxInputChars    = fs.IntLong("max-input-chars", chat.DefaultMaxInputChars, "Characters of user input sent to the provider")
		maxOutputChars   = fs.IntLong("max-output-chars", chat.DefaultMaxOutputChars, "Characters of provider output returned to the user")
		requestTimeout   = fs.DurationLong("request-timeout", chat.DefaultRequestTimeout, "Timeout for a single completion call")
		idleTTL          = fs.DurationLong("idle-ttl", chat.DefaultIdleTTL, "Forget users idle for this long (0 keeps them forever)")
		numConsumers     = fs.IntLong("num-consumers", 4, "Number of reply workers")
		jobBufferSize    = fs.IntLong("job-buffer-size", 64, "Inbound messages buffered before replying busy")
		healthPort       = fs.IntLong("health-port", 8080, "Port for /health and /metrics")
		adminUserIDs     = fs.StringLong("admin-user-ids", "", "Comma-separated Discord user IDs allowed to /shutdown")
	)

	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVars()); err != nil {
		fmt.Printf("%s\n", ffhelp.Flags(fs))
		return fmt.Errorf("parsing flags: %w", err)
	}

	log := logger.New()

	tok, err := token.Resolve(*discordToken, *discordTokenFile)
	if err != nil {
		return fmt.Errorf("resolving discord token: %w", err)
	}
	if tok == "" {
		return errors.New("discord-token or discord-token-file is required")
	}

	admins, err := parseUserIDs(*adminUserIDs)
	if err != nil {
		return fmt.Errorf("parsing admin-user-ids: %w", err)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	cfg := chat.Config{
		APIKey:               *apiKey,
		Provider:             *provider,
		Model:                *model,
		BaseURL:              *baseURL,
		SystemPrompt:         *systemPrompt,
		MemorySize:           *memorySize,
		RateLimitMaxRequests: *rateLimitMax,
		RateLimitWindow:      time.Duration(*rateLimitWindow) * time.Second,
		MaxInputChars:        *maxInputChars,
		MaxOutputChars:       *maxOutputChars,
		RequestTimeout:       *requestTimeout,
		IdleTTL:              *idleTTL,
	}

	replier, err := newReplier(ctx, cfg, log)
	if err != nil {
		return err
	}

	dg, err := discordgo.New("Bot " + tok)
	if err != nil {
		return fmt.Errorf("creating Discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	healthServer := health.New(*healthPort, log)
	go func() {
		log.InfoContext(ctx, "starting health server", "port", *healthPort)
		if err := healthServer.Start(); err != nil {
			log.ErrorContext(ctx, "health server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		healthServer.Shutdown(shutdownCtx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received signal, shutting down", "signal", sig)
		cancel(errors.New("signal received"))
	}()

	b := bot.New(bot.NewLogger(log), bot.NewDiscordSession(dg), replier, bot.Config{
		NumConsumers:  int64(*numConsumers),
		JobBufferSize: *jobBufferSize,
		GuildID:       *guildID,
		AdminUserIDs:  admins,
	})
	return b.Run(ctx, cancel)
}

// newReplier builds the chat adapter for the configured provider, or a
// disabled replier that only answers with a notice when no API key is set.
func newReplier(ctx context.Context, cfg chat.Config, log *slog.Logger) (bot.Replier, error) {
	if cfg.APIKey == "" {
		log.WarnContext(ctx, "no api key configured, assistant disabled")
		return chat.Disabled{}, nil
	}

	var client llm.Client
	switch cfg.Provider {
	case "openai":
		c, err := openai.NewClient(openai.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
		if err != nil {
			return nil, fmt.Errorf("creating openai client: %w", err)
		}
		client = c
	case "anthropic":
		client = anthropic.NewClient(cfg.APIKey, cfg.BaseURL, anthropic.Model(cfg.Model))
	case "google":
		c, err := google.NewClient(ctx, cfg.APIKey, cfg.BaseURL, google.Model(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("creating google client: %w", err)
		}
		client = c
	default:
		return nil, fmt.Errorf("unknown llm-provider %q (want openai, anthropic or google)", cfg.Provider)
	}

	adapter, err := chat.New(cfg, client, log)
	if err != nil {
		return nil, fmt.Errorf("creating chat adapter: %w", err)
	}
	log.InfoContext(ctx, "assistant configured", "provider", cfg.Provider, "model", cfg.Model, "memory_size", cfg.MemorySize)
	return adapter, nil
}

func parseUserIDs(s string) ([]int64, error) {
	fields := lo.Compact(lo.Map(strings.Split(s, ","), func(f string, _ int) string {
		return strings.TrimSpace(f)
	}))
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", f, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
