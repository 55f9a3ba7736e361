// Package telegram relays lifecycle notifications to a Telegram chat and
// answers operator status queries.
package telegram

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/mixelka/otprelay/internal/formatter"
	"github.com/mixelka/otprelay/internal/notify"
	"github.com/mixelka/otprelay/pkg/models"
)

const sendTimeout = 10 * time.Second

// PendingLister lists pending requests without exposing key material
type PendingLister interface {
	Snapshot() []models.PendingRequest
}

// CursorLister lists the persisted source cursors
type CursorLister interface {
	ListCursors(ctx context.Context) ([]models.Cursor, error)
}

// Bot represents the Telegram bot
type Bot struct {
	bot       *bot.Bot
	chatID    int64
	topicID   int
	pending   PendingLister
	cursors   CursorLister
	formatter *formatter.TelegramFormatter
	logger    *slog.Logger
}

// BotDeps dependencies for creating a bot
type BotDeps struct {
	Token     string
	ChatID    int64
	TopicID   int // optional forum topic
	Pending   PendingLister
	Cursors   CursorLister // optional
	Formatter *formatter.TelegramFormatter
	Logger    *slog.Logger
	Options   []bot.Option
}

var _ notify.Sink = (*Bot)(nil)

// NewBot creates a new Telegram bot
func NewBot(deps BotDeps) (*Bot, error) {
	f := deps.Formatter
	if f == nil {
		f = formatter.NewTelegramFormatter()
	}
	b := &Bot{
		chatID:    deps.ChatID,
		topicID:   deps.TopicID,
		pending:   deps.Pending,
		cursors:   deps.Cursors,
		formatter: f,
		logger:    deps.Logger.With("component", "telegram_bot"),
	}

	opts := append([]bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
	}, deps.Options...)

	tgBot, err := bot.New(deps.Token, opts...)
	if err != nil {
		return nil, err
	}

	b.bot = tgBot
	b.registerHandlers()

	return b, nil
}

// registerHandlers registers command handlers
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypePrefix, b.handleStatus)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, b.handleHelp)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, b.handleHelp)
}

// Start starts long polling and blocks until ctx is done
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("starting telegram bot", "chat_id", b.chatID)
	b.bot.Start(ctx)
}

// Emit implements notify.Sink. Send failures are logged and dropped.
func (b *Bot) Emit(ctx context.Context, event models.LifecycleEvent) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	if _, err := b.sendMessage(sendCtx, b.chatID, b.topicID, b.formatter.FormatEvent(event)); err != nil {
		b.logger.Error("failed to send notification", "event", event.Type, "request_id", event.RequestID, "error", err)
	}
}

// defaultHandler handles unknown messages
func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *tgmodels.Update) {
	if update.Message == nil {
		return
	}

	if update.Message.Text != "" && update.Message.Text[0] == '/' {
		b.logger.Debug("unknown command", "text", update.Message.Text)
	}
}

// handleHelp handles /start and /help
func (b *Bot) handleHelp(ctx context.Context, tgBot *bot.Bot, update *tgmodels.Update) {
	msg := update.Message
	if !b.authorized(msg) {
		return
	}

	text := `<b>OTP relay</b>

Lifecycle notifications for pending one-time-code requests are posted here.

<b>Commands:</b>
/status - pending requests and source cursors`

	b.reply(ctx, msg, text)
}

// handleStatus handles /status
func (b *Bot) handleStatus(ctx context.Context, tgBot *bot.Bot, update *tgmodels.Update) {
	msg := update.Message
	if !b.authorized(msg) {
		return
	}

	status := formatter.Status{
		Pending: b.pending.Snapshot(),
		Now:     time.Now(),
	}
	if b.cursors != nil {
		cursors, err := b.cursors.ListCursors(ctx)
		if err != nil {
			b.logger.Error("failed to list cursors", "error", err)
			b.reply(ctx, msg, "Failed to load cursors")
			return
		}
		status.Cursors = cursors
	}

	b.reply(ctx, msg, b.formatter.FormatStatus(status))
}
