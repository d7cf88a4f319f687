package telegram

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/zipbot/internal/observability"
	"github.com/rs/zerolog"
)

// Handler implements plain text message handling
type Handler struct {
	bot    *Bot
	logger zerolog.Logger

	onMessage func(context.Context, MessageContext) error
}

// MessageContext contains message metadata
type MessageContext struct {
	ChatID    int64
	MessageID int
	UserID    int64
	Username  string
	Text      string
	Timestamp time.Time
	IsGroup   bool
	ReplyToID int
}

// NewHandler creates a new message handler
func NewHandler(bot *Bot) *Handler {
	return &Handler{
		bot:    bot,
		logger: bot.logger.With().Str("module", "handler").Logger(),
	}
}

// HandleMessage processes incoming text messages
func (h *Handler) HandleMessage(ctx context.Context, update tgbotapi.Update) error {
	if update.Message == nil {
		return nil
	}

	msg := update.Message

	mc := MessageContext{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Text:      ParseCaption(msg),
		Timestamp: time.Unix(int64(msg.Date), 0),
		IsGroup:   msg.Chat.IsGroup() || msg.Chat.IsSuperGroup(),
	}
	if msg.From != nil {
		mc.UserID = msg.From.ID
		mc.Username = msg.From.UserName
	}
	if msg.ReplyToMessage != nil {
		mc.ReplyToID = msg.ReplyToMessage.MessageID
	}

	reqLog := observability.LoggerFromContext(ctx, h.logger)
	reqLog.Debug().
		Int64("chat_id", mc.ChatID).
		Int64("user_id", mc.UserID).
		Bool("is_group", mc.IsGroup).
		Msg("Message received")

	if h.onMessage != nil {
		return h.onMessage(ctx, mc)
	}

	return nil
}

// SetOnMessage sets the message callback
func (h *Handler) SetOnMessage(callback func(context.Context, MessageContext) error) {
	h.onMessage = callback
}

// ParseCaption extracts the text of a message, falling back to its caption
func ParseCaption(msg *tgbotapi.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}
