package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/jusunglee/chatrelay/internal/metrics"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const (
	// Discord rejects messages longer than this many characters.
	maxMessageChars = 2000

	messageTextOnly = "I currently support text messages only."
	messageBusy     = "⏳ I'm handling a lot of messages right now. Please try again in a moment."
	messageGreeting = "Hello! Send me a message (mention me in a server, or DM me) and I'll pass it to the assistant. Use /forget to clear our conversation."
)

var minCleanerInterval = time.Minute

type Config struct {
	NumConsumers  int64
	JobBufferSize int
	GuildID       string
	AdminUserIDs  []int64
}

type Bot struct {
	log      Logger
	session  DiscordSession
	replier  Replier
	config   Config
	admins   map[int64]struct{}
	jobs     chan replyJob
	shutdown context.CancelCauseFunc
}

func New(log Logger, session DiscordSession, replier Replier, config Config) *Bot {
	if config.NumConsumers <= 0 {
		config.NumConsumers = 1
	}
	if config.JobBufferSize <= 0 {
		config.JobBufferSize = 1
	}
	return &Bot{
		log:     log,
		session: session,
		replier: replier,
		config:  config,
		admins: lo.SliceToMap(config.AdminUserIDs, func(id int64) (int64, struct{}) {
			return id, struct{}{}
		}),
		jobs: make(chan replyJob, config.JobBufferSize),
	}
}

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "start",
		Description: "Say hello and learn how to talk to the assistant",
	},
	{
		Name:        "forget",
		Description: "Clear your conversation history with the assistant",
	},
	{
		Name:        "shutdown",
		Description: "Stop the bot (operators only)",
	},
}

// Run connects to Discord and serves messages until ctx is done or an
// operator issues /shutdown, which cancels ctx through cancel.
func (b *Bot) Run(ctx context.Context, cancel context.CancelCauseFunc) error {
	b.shutdown = cancel

	b.session.AddHandler(b.handleMessage)
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.log.InfoContext(ctx, "connected to Discord", "username", r.User.Username, "discriminator", r.User.Discriminator)
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening Discord connection: %w", err)
	}

	if err := b.registerCommands(ctx); err != nil {
		b.session.Close()
		return fmt.Errorf("registering commands: %w", err)
	}

	var eg errgroup.Group

	b.log.InfoContext(ctx, "starting consumers", "count", b.config.NumConsumers)
	for i := range b.config.NumConsumers {
		eg.Go(func() error {
			b.runConsumer(ctx, i)
			return nil
		})
	}

	eg.Go(func() error {
		b.runCleaner(ctx)
		return nil
	})

	b.log.InfoContext(ctx, "bot is running, press Ctrl+C to stop")

	<-ctx.Done()
	b.log.Info("shutdown signal received", "cause", context.Cause(ctx))
	eg.Wait()
	b.session.Close()
	b.log.Info("shut down complete")

	return nil
}

func (b *Bot) registerCommands(ctx context.Context) error {
	guildID := b.config.GuildID
	if guildID != "" {
		b.log.InfoContext(ctx, "registering commands to guild", "guild_id", guildID)
	} else {
		b.log.InfoContext(ctx, "registering commands globally (may take up to 1 hour to propagate)")
	}

	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.GetUserID(), guildID, commands)
	if err != nil {
		return fmt.Errorf("bulk overwrite commands: %w", err)
	}
	b.log.InfoContext(ctx, "registered commands", "count", len(commands))
	return nil
}

type replyJob struct {
	userID    int64
	channelID string
	reference *discordgo.MessageReference
	text      string
}

func (b *Bot) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	b.onMessage(m.Message)
}

func (b *Bot) onMessage(m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return
	}
	botID := b.session.GetUserID()
	if m.Author.ID == botID {
		return
	}

	text := m.Content
	if m.GuildID != "" {
		// In servers only answer when addressed directly.
		if !mentions(m, botID) {
			return
		}
		text = stripMention(text, botID)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		// Attachments, stickers or a bare mention.
		b.sendNotice(m.ChannelID, messageTextOnly, m.Reference())
		return
	}

	userID, err := strconv.ParseInt(m.Author.ID, 10, 64)
	if err != nil {
		b.log.Warn("unparseable author id", "author_id", m.Author.ID, "error", err)
		return
	}

	b.enqueue(replyJob{
		userID:    userID,
		channelID: m.ChannelID,
		reference: m.Reference(),
		text:      text,
	})
}

// enqueue hands the job to a consumer without blocking the gateway. When the
// queue is full the user gets a busy notice instead of silence.
func (b *Bot) enqueue(job replyJob) {
	select {
	case b.jobs <- job:
		metrics.QueueDepth.Set(float64(len(b.jobs)))
	default:
		metrics.JobsDropped.Inc()
		b.log.Warn("job queue full, dropping message", "user_id", job.userID, "channel_id", job.channelID)
		b.sendNotice(job.channelID, messageBusy, job.reference)
	}
}

func (b *Bot) sendNotice(channelID, content string, reference *discordgo.MessageReference) {
	if _, err := b.session.ChannelMessageSendReply(channelID, content, reference); err != nil {
		b.log.Error("failed to send notice", "error", err, "channel_id", channelID)
	}
}

func (b *Bot) runConsumer(ctx context.Context, id int64) {
	log := b.log.With("consumer_id", id)
	for {
		select {
		case <-ctx.Done():
			log.Info("consumer stopped")
			return
		case job := <-b.jobs:
			metrics.QueueDepth.Set(float64(len(b.jobs)))
			if err := b.processJob(ctx, job); err != nil {
				log.ErrorContext(ctx, "processing reply", "error", err, "user_id", job.userID, "channel_id", job.channelID)
			}
		}
	}
}

func (b *Bot) processJob(ctx context.Context, job replyJob) error {
	if err := b.session.ChannelTyping(job.channelID); err != nil {
		b.log.WarnContext(ctx, "failed to send typing indicator", "error", err, "channel_id", job.channelID)
	}

	reply := b.replier.Reply(ctx, job.userID, job.text)
	if reply == "" {
		b.log.WarnContext(ctx, "empty reply, nothing to send", "user_id", job.userID)
		return nil
	}

	for _, chunk := range chunkMessage(reply, maxMessageChars) {
		if _, err := b.session.ChannelMessageSendReply(job.channelID, chunk, job.reference); err != nil {
			return fmt.Errorf("sending discord reply: %w", err)
		}
	}
	return nil
}

func (b *Bot) runCleaner(ctx context.Context) {
	ttl := b.replier.IdleTTL()
	if ttl <= 0 {
		return
	}
	interval := max(ttl/4, minCleanerInterval)

	for ctx.Err() == nil {
		sleepWithContext(ctx, interval)
		if ctx.Err() != nil {
			b.log.InfoContext(ctx, "context done, exiting cleaner")
			return
		}
		if removed := b.replier.Sweep(time.Now()); removed > 0 {
			b.log.InfoContext(ctx, "swept idle users", "removed", removed)
		}
	}
}

func sleepWithContext(ctx context.Context, dur time.Duration) {
	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-timer.C:
		return
	case <-ctx.Done():
		return
	}
}

type handlerResult struct {
	Response string
	Err      error
}

type userError struct {
	Err error
}

func (e *userError) Error() string {
	return e.Err.Error()
}

func (e *userError) Unwrap() error {
	return e.Err
}

func newUserError(err error) *userError {
	return &userError{Err: err}
}

func (b *Bot) handleInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	b.onCommand(i.Interaction)
}

func (b *Bot) onCommand(i *discordgo.Interaction) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := i.ApplicationCommandData().Name
	var result handlerResult

	switch cmd {
	case "start":
		result = handlerResult{Response: messageGreeting}
	case "forget":
		result = b.handleForget(i)
	case "shutdown":
		result = b.handleShutdown(i)
	default:
		result = handlerResult{Response: "Unknown command."}
	}

	b.respond(ctx, i, result.Response)

	if result.Err == nil {
		if cmd == "shutdown" {
			b.shutdown(errors.New("shutdown requested by operator"))
		}
		return
	}

	if _, ok := errors.AsType[*userError](result.Err); ok {
		b.log.WarnContext(ctx, "user error", "command", cmd, "error", result.Err, "channel_id", i.ChannelID)
	} else {
		b.log.ErrorContext(ctx, "command failed", "command", cmd, "error", result.Err, "channel_id", i.ChannelID)
	}
}

func (b *Bot) handleForget(i *discordgo.Interaction) handlerResult {
	userID, err := interactionUserID(i)
	if err != nil {
		return handlerResult{Response: "❌ Couldn't identify you, please try again.", Err: err}
	}
	b.replier.Forget(userID)
	return handlerResult{Response: "🧹 Done. I've forgotten our conversation."}
}

func (b *Bot) handleShutdown(i *discordgo.Interaction) handlerResult {
	userID, err := interactionUserID(i)
	if err != nil {
		return handlerResult{Response: "❌ Couldn't identify you.", Err: err}
	}
	if len(b.admins) == 0 || b.shutdown == nil {
		return handlerResult{
			Response: "❌ No operators are configured for this bot.",
			Err:      newUserError(errors.New("admin user ids not configured")),
		}
	}
	if _, ok := b.admins[userID]; !ok {
		return handlerResult{
			Response: "❌ Access denied. Only operators can shut the bot down.",
			Err:      newUserError(fmt.Errorf("user %d is not an operator", userID)),
		}
	}
	b.log.Warn("shutdown requested", "user_id", userID)
	return handlerResult{Response: "👋 Shutting down."}
}

func (b *Bot) respond(ctx context.Context, i *discordgo.Interaction, content string) {
	err := b.session.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.log.ErrorContext(ctx, "failed to respond to interaction", "error", err)
	}
}

func interactionUserID(i *discordgo.Interaction) (int64, error) {
	var user *discordgo.User
	switch {
	case i.Member != nil && i.Member.User != nil:
		user = i.Member.User
	case i.User != nil:
		user = i.User
	default:
		return 0, errors.New("interaction has no user")
	}
	id, err := strconv.ParseInt(user.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing user id %q: %w", user.ID, err)
	}
	return id, nil
}

func mentions(m *discordgo.Message, userID string) bool {
	return lo.ContainsBy(m.Mentions, func(u *discordgo.User) bool {
		return u != nil && u.ID == userID
	})
}

func stripMention(text, userID string) string {
	text = strings.ReplaceAll(text, "<@"+userID+">", "")
	return strings.ReplaceAll(text, "<@!"+userID+">", "")
}

// chunkMessage splits text into pieces of at most limit characters,
// preferring to break at a newline in the second half of a piece.
func chunkMessage(text string, limit int) []string {
	var chunks []string
	for utf8.RuneCountInString(text) > limit {
		runes := []rune(text)
		cut := limit
		for j := limit - 1; j >= limit/2; j-- {
			if runes[j] == '\n' {
				cut = j + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		text = string(runes[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
