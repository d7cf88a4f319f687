package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/zipbot/internal/config"
	"github.com/harun/zipbot/internal/logger"
	"github.com/harun/zipbot/internal/observability"
	"github.com/harun/zipbot/pkg/commandqueue"
	"github.com/rs/zerolog"
)

// Bot represents a Telegram bot instance
type Bot struct {
	api       *tgbotapi.BotAPI
	config    *config.TelegramConfig
	logger    zerolog.Logger
	queue     *commandqueue.CommandQueue
	allowlist map[int64]struct{}

	// Handlers
	messageHandler MessageHandler
	commandHandler CommandHandler
	mediaHandler   MediaHandler

	// State
	mu      sync.Mutex
	running bool
	updates tgbotapi.UpdatesChannel
	ctx     context.Context
	cancel  context.CancelFunc
}

// MessageHandler handles incoming text messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, update tgbotapi.Update) error
}

// CommandHandler handles bot commands
type CommandHandler interface {
	HandleCommand(ctx context.Context, update tgbotapi.Update) error
}

// MediaHandler handles media messages
type MediaHandler interface {
	HandleMedia(ctx context.Context, update tgbotapi.Update) error
}

// New creates a new Telegram bot instance and authenticates it with getMe
func New(cfg *config.TelegramConfig, log *logger.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram config is required")
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	var (
		api *tgbotapi.BotAPI
		err error
	)
	if cfg.APIEndpoint != "" {
		api, err = tgbotapi.NewBotAPIWithAPIEndpoint(cfg.BotToken, cfg.APIEndpoint)
	} else {
		api, err = tgbotapi.NewBotAPI(cfg.BotToken)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot := newBot(api, cfg, log.Component("telegram"))

	bot.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")

	return bot, nil
}

func newBot(api *tgbotapi.BotAPI, cfg *config.TelegramConfig, log zerolog.Logger) *Bot {
	allowlist := make(map[int64]struct{}, len(cfg.Allowlist))
	for _, id := range cfg.Allowlist {
		allowlist[id] = struct{}{}
	}

	return &Bot{
		api:       api,
		config:    cfg,
		logger:    log,
		queue:     commandqueue.New(log),
		allowlist: allowlist,
	}
}

// Start begins long polling and dispatches updates onto per-chat lanes
func (b *Bot) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("bot is already running")
	}

	b.logger.Info().Msg("Starting Telegram bot")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.config.PollTimeout
	u.AllowedUpdates = []string{"message"}

	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.updates = b.api.GetUpdatesChan(u)
	b.running = true

	go b.processUpdates(b.updates)

	b.logger.Info().Msg("Telegram bot started")

	return nil
}

// Stop stops polling and waits for queued updates to finish. A stopped bot
// cannot be started again.
func (b *Bot) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot is not running")
	}
	b.running = false
	b.mu.Unlock()

	b.logger.Info().Msg("Stopping Telegram bot")

	// Updates still arriving from the last poll are rejected with ErrClosed
	// and redelivered by Telegram on the next start.
	b.api.StopReceivingUpdates()
	b.queue.Drain()
	b.cancel()

	b.logger.Info().Msg("Telegram bot stopped")

	return nil
}

func (b *Bot) processUpdates(updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		err := b.Dispatch(b.ctx, update)
		if errors.Is(err, commandqueue.ErrClosed) {
			return
		}
		if err != nil {
			b.logger.Warn().
				Err(err).
				Int("update_id", update.UpdateID).
				Msg("Failed to dispatch update")
		}
	}
}

// Dispatch queues update on its chat's lane. Updates from one chat run in
// arrival order; different chats run concurrently.
func (b *Bot) Dispatch(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.From == nil {
		return nil
	}

	if !b.IsAllowed(msg.From.ID) {
		b.logger.Warn().
			Int64("user_id", msg.From.ID).
			Str("username", msg.From.UserName).
			Msg("Dropping update from user outside allowlist")
		return nil
	}

	requestID := observability.NewRequestID()
	ctx = observability.WithRequestID(ctx, requestID)
	lane := strconv.FormatInt(msg.Chat.ID, 10)

	_, err := b.queue.Submit(ctx, lane, func(ctx context.Context) error {
		return b.handleUpdate(ctx, update)
	})
	return err
}

// handleUpdate routes an update to the appropriate handler
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil {
		return nil
	}

	if msg.IsCommand() && b.commandHandler != nil {
		return b.commandHandler.HandleCommand(ctx, update)
	}

	if hasMedia(msg) && b.mediaHandler != nil {
		return b.mediaHandler.HandleMedia(ctx, update)
	}

	if b.messageHandler != nil {
		return b.messageHandler.HandleMessage(ctx, update)
	}

	return nil
}

// hasMedia checks if a message contains media
func hasMedia(msg *tgbotapi.Message) bool {
	return len(msg.Photo) > 0 ||
		msg.Video != nil ||
		msg.Audio != nil ||
		msg.Document != nil ||
		msg.Voice != nil
}

// IsAllowed reports whether userID may use the bot. An empty allowlist
// admits everyone.
func (b *Bot) IsAllowed(userID int64) bool {
	if len(b.allowlist) == 0 {
		return true
	}
	_, ok := b.allowlist[userID]
	return ok
}

// SendMessage sends a text message
func (b *Bot) SendMessage(chatID int64, text string) error {
	return b.send(tgbotapi.NewMessage(chatID, text))
}

// SendMessageWithReply sends a text message as a reply
func (b *Bot) SendMessageWithReply(chatID int64, text string, replyToMessageID int) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyToMessageID
	return b.send(msg)
}

// SendMessageWithKeyboard sends a text message together with a reply keyboard
func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.ReplyKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	return b.send(msg)
}

func (b *Bot) send(msg tgbotapi.MessageConfig) error {
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	b.logger.Debug().
		Int64("chat_id", msg.ChatID).
		Msg("Message sent")

	return nil
}

// SendDocument uploads r as a document called name, streaming it into the
// multipart request body.
func (b *Bot) SendDocument(ctx context.Context, chatID int64, name string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: name, Reader: r})
	if _, err := b.api.Send(doc); err != nil {
		return fmt.Errorf("failed to send document: %w", err)
	}

	reqLog := observability.LoggerFromContext(ctx, b.logger)
	reqLog.Info().
		Int64("chat_id", chatID).
		Str("name", name).
		Msg("Document sent")

	return nil
}

// SetMessageHandler sets the message handler
func (b *Bot) SetMessageHandler(handler MessageHandler) {
	b.messageHandler = handler
}

// SetCommandHandler sets the command handler
func (b *Bot) SetCommandHandler(handler CommandHandler) {
	b.commandHandler = handler
}

// SetMediaHandler sets the media handler
func (b *Bot) SetMediaHandler(handler MediaHandler) {
	b.mediaHandler = handler
}

// GetAPI returns the underlying bot API
func (b *Bot) GetAPI() *tgbotapi.BotAPI {
	return b.api
}

// Queue returns the lane queue updates run on
func (b *Bot) Queue() *commandqueue.CommandQueue {
	return b.queue
}

// IsRunning returns whether the bot is running
func (b *Bot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}
