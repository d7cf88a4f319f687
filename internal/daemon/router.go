package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/harun/zipbot/internal/observability"
	"github.com/harun/zipbot/internal/telegram"
	"github.com/harun/zipbot/pkg/archive"
	"github.com/harun/zipbot/pkg/conversation"
	"github.com/harun/zipbot/pkg/session"
	"github.com/rs/zerolog"
)

const helpText = `Send /start to begin collecting files.
Then send documents, photos, videos, audio or voice messages.
Use /setname to choose the ZIP file name and /zip to receive everything as one ZIP file.`

// Conversation is the part of the controller the router drives
type Conversation interface {
	Start(ctx context.Context, owner session.Owner) conversation.Result
	RequestNaming(ctx context.Context, owner session.Owner) conversation.Result
	Text(ctx context.Context, owner session.Owner, text string) conversation.Result
	Upload(ctx context.Context, owner session.Owner, filename string, r io.Reader) conversation.Result
	Assemble(ctx context.Context, owner session.Owner, d archive.Deliverer) conversation.Result
}

// Router translates Telegram events into conversation events and sends the
// replies back to the chat.
type Router struct {
	bot      *telegram.Bot
	commands *telegram.Commands
	handler  *telegram.Handler
	media    *telegram.Media
	conv     Conversation
	logger   zerolog.Logger
}

// NewRouter registers the command, text and media handlers on bot
func NewRouter(bot *telegram.Bot, conv Conversation, maxUploadSize int64, logger zerolog.Logger) *Router {
	r := &Router{
		bot:      bot,
		commands: telegram.NewCommands(bot),
		handler:  telegram.NewHandler(bot),
		media:    telegram.NewMedia(bot, maxUploadSize),
		conv:     conv,
		logger:   logger.With().Str("component", "router").Logger(),
	}

	r.commands.Register(telegram.CommandStart, r.handleStart)
	r.commands.Register(telegram.CommandSetName, r.handleSetName)
	r.commands.Register(telegram.CommandZip, r.handleZip)
	r.commands.Register(telegram.CommandHelp, r.handleHelp)
	r.handler.SetOnMessage(r.handleText)
	r.media.SetOnMedia(r.handleMedia)

	bot.SetCommandHandler(r.commands)
	bot.SetMessageHandler(r.handler)
	bot.SetMediaHandler(r.media)

	return r
}

// PublishCommands sets the command menu shown by Telegram clients
func (r *Router) PublishCommands() error {
	return r.commands.SetCommands(telegram.BotCommands())
}

func (r *Router) handleStart(ctx context.Context, cmd telegram.CommandContext) error {
	res := r.conv.Start(ctx, session.Owner(cmd.UserID))
	return r.bot.SendMessageWithKeyboard(cmd.ChatID, res.Reply, telegram.MainKeyboard())
}

func (r *Router) handleSetName(ctx context.Context, cmd telegram.CommandContext) error {
	res := r.conv.RequestNaming(ctx, session.Owner(cmd.UserID))
	return r.reply(ctx, cmd.ChatID, res)
}

func (r *Router) handleZip(ctx context.Context, cmd telegram.CommandContext) error {
	res := r.conv.Assemble(ctx, session.Owner(cmd.UserID), r.media.Deliverer(cmd.ChatID))
	return r.reply(ctx, cmd.ChatID, res)
}

func (r *Router) handleHelp(_ context.Context, cmd telegram.CommandContext) error {
	return r.bot.SendMessage(cmd.ChatID, helpText)
}

func (r *Router) handleText(ctx context.Context, msg telegram.MessageContext) error {
	res := r.conv.Text(ctx, session.Owner(msg.UserID), msg.Text)
	return r.reply(ctx, msg.ChatID, res)
}

func (r *Router) handleMedia(ctx context.Context, mc telegram.MediaContext) error {
	owner := session.Owner(mc.UserID)

	if r.media.TooLarge(mc.File) {
		observability.RecordUpload(0, false)
		return r.bot.SendMessage(mc.ChatID, fmt.Sprintf(conversation.ReplyTooLarge, mc.File.FileName, r.media.MaxSize()))
	}

	body := r.media.Stream(ctx, mc.File.FileID)
	defer body.Close()

	res := r.conv.Upload(ctx, owner, mc.File.FileName, body)
	if errors.Is(res.Err, telegram.ErrFileTooLarge) {
		res.Reply = fmt.Sprintf(conversation.ReplyTooLarge, mc.File.FileName, r.media.MaxSize())
	}
	return r.reply(ctx, mc.ChatID, res)
}

// reply sends the result's text. Ignored results send nothing.
func (r *Router) reply(ctx context.Context, chatID int64, res conversation.Result) error {
	if res.Status == conversation.StatusIgnored || res.Reply == "" {
		return nil
	}

	if res.Status == conversation.StatusError {
		reqLog := observability.LoggerFromContext(ctx, r.logger)
		reqLog.Debug().
			Int64("chat_id", chatID).
			Str("kind", res.Kind.String()).
			Err(res.Err).
			Msg("Conversation event failed")
	}

	return r.bot.SendMessage(chatID, res.Reply)
}
