package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/zipbot/internal/observability"
	"github.com/rs/zerolog"
)

// Commands dispatches bot commands to registered handlers
type Commands struct {
	bot      *Bot
	logger   zerolog.Logger
	handlers map[string]CommandFunc
}

// CommandFunc is a function that handles a command
type CommandFunc func(ctx context.Context, cmd CommandContext) error

// CommandContext contains command metadata
type CommandContext struct {
	ChatID    int64
	MessageID int
	UserID    int64
	Username  string
	Command   string
	Args      []string
	RawArgs   string
}

// NewCommands creates a new command handler
func NewCommands(bot *Bot) *Commands {
	return &Commands{
		bot:      bot,
		logger:   bot.logger.With().Str("module", "commands").Logger(),
		handlers: make(map[string]CommandFunc),
	}
}

// HandleCommand processes incoming commands
func (c *Commands) HandleCommand(ctx context.Context, update tgbotapi.Update) error {
	if update.Message == nil || !update.Message.IsCommand() {
		return nil
	}

	msg := update.Message
	command := msg.Command()
	args := strings.Fields(msg.CommandArguments())

	cmd := CommandContext{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Command:   command,
		Args:      args,
		RawArgs:   msg.CommandArguments(),
	}
	if msg.From != nil {
		cmd.UserID = msg.From.ID
		cmd.Username = msg.From.UserName
	}

	reqLog := observability.LoggerFromContext(ctx, c.logger)
	reqLog.Debug().
		Int64("chat_id", cmd.ChatID).
		Str("command", command).
		Strs("args", args).
		Msg("Command received")

	handler, exists := c.handlers[command]
	if !exists {
		return c.sendUnknownCommand(cmd)
	}

	return handler(ctx, cmd)
}

// Register registers a command handler
func (c *Commands) Register(command string, handler CommandFunc) {
	c.handlers[command] = handler
	c.logger.Debug().Str("command", command).Msg("Command registered")
}

// SetCommands publishes the bot's command list to Telegram
func (c *Commands) SetCommands(commands []tgbotapi.BotCommand) error {
	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := c.bot.api.Request(cfg); err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}

	c.logger.Info().Int("count", len(commands)).Msg("Bot commands updated")
	return nil
}

func (c *Commands) sendUnknownCommand(cmd CommandContext) error {
	text := fmt.Sprintf("Unknown command: /%s", cmd.Command)
	return c.bot.SendMessageWithReply(cmd.ChatID, text, cmd.MessageID)
}

// GetRegisteredCommands returns all registered commands, sorted
func (c *Commands) GetRegisteredCommands() []string {
	commands := make([]string, 0, len(c.handlers))
	for cmd := range c.handlers {
		commands = append(commands, cmd)
	}
	sort.Strings(commands)
	return commands
}
