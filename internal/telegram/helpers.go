package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// authorized reports whether a command came from the configured chat
func (b *Bot) authorized(msg *tgmodels.Message) bool {
	if msg == nil {
		return false
	}
	if msg.Chat.ID != b.chatID {
		b.logger.Warn("ignoring command from foreign chat", "chat_id", msg.Chat.ID)
		return false
	}
	return true
}

// reply answers a command in the thread it came from
func (b *Bot) reply(ctx context.Context, msg *tgmodels.Message, text string) {
	if _, err := b.sendMessage(ctx, msg.Chat.ID, msg.MessageThreadID, text); err != nil {
		b.logger.Error("failed to send reply", "error", err)
	}
}

// sendMessage sends a message to a topic
func (b *Bot) sendMessage(ctx context.Context, chatID int64, topicID int, text string) (*tgmodels.Message, error) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	}

	if topicID != 0 {
		params.MessageThreadID = topicID
	}

	return b.bot.SendMessage(ctx, params)
}
