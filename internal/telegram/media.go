package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/zipbot/internal/observability"
	"github.com/harun/zipbot/pkg/archive"
	"github.com/rs/zerolog"
)

// ErrFileTooLarge is returned when Telegram reports a file above the size limit
var ErrFileTooLarge = errors.New("file exceeds size limit")

// Media handles media downloads and uploads
type Media struct {
	bot     *Bot
	logger  zerolog.Logger
	maxSize int64

	onMedia func(context.Context, MediaContext) error
}

// MediaFile describes one file attached to a message
type MediaFile struct {
	FileID       string
	FileUniqueID string
	FileName     string
	FileSize     int64
	MimeType     string
	Type         string // photo, video, audio, document, voice
}

// MediaContext contains media message metadata
type MediaContext struct {
	ChatID    int64
	MessageID int
	UserID    int64
	Username  string
	Caption   string
	File      MediaFile
}

// NewMedia creates a new media handler. maxSize <= 0 disables the size check.
func NewMedia(bot *Bot, maxSize int64) *Media {
	return &Media{
		bot:     bot,
		logger:  bot.logger.With().Str("module", "media").Logger(),
		maxSize: maxSize,
	}
}

// HandleMedia processes media messages
func (m *Media) HandleMedia(ctx context.Context, update tgbotapi.Update) error {
	if update.Message == nil {
		return nil
	}

	msg := update.Message
	file, ok := ExtractMedia(msg)
	if !ok {
		return nil
	}

	mc := MediaContext{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Caption:   msg.Caption,
		File:      file,
	}
	if msg.From != nil {
		mc.UserID = msg.From.ID
		mc.Username = msg.From.UserName
	}

	reqLog := observability.LoggerFromContext(ctx, m.logger)
	reqLog.Debug().
		Str("file_id", file.FileID).
		Str("type", file.Type).
		Str("name", file.FileName).
		Int64("size", file.FileSize).
		Int64("chat_id", mc.ChatID).
		Msg("Media received")

	if m.onMedia != nil {
		return m.onMedia(ctx, mc)
	}

	return nil
}

// SetOnMedia sets the media callback
func (m *Media) SetOnMedia(callback func(context.Context, MediaContext) error) {
	m.onMedia = callback
}

// ExtractMedia returns the file attached to msg. Photos resolve to their
// largest size. Files without a name get one derived from their type.
func ExtractMedia(msg *tgbotapi.Message) (MediaFile, bool) {
	var f MediaFile

	switch {
	case msg.Document != nil:
		d := msg.Document
		f = MediaFile{FileID: d.FileID, FileUniqueID: d.FileUniqueID, FileName: d.FileName,
			FileSize: int64(d.FileSize), MimeType: d.MimeType, Type: "document"}
	case len(msg.Photo) > 0:
		p := msg.Photo[len(msg.Photo)-1]
		f = MediaFile{FileID: p.FileID, FileUniqueID: p.FileUniqueID,
			FileSize: int64(p.FileSize), MimeType: "image/jpeg", Type: "photo"}
	case msg.Video != nil:
		v := msg.Video
		f = MediaFile{FileID: v.FileID, FileUniqueID: v.FileUniqueID, FileName: v.FileName,
			FileSize: int64(v.FileSize), MimeType: v.MimeType, Type: "video"}
	case msg.Audio != nil:
		a := msg.Audio
		f = MediaFile{FileID: a.FileID, FileUniqueID: a.FileUniqueID, FileName: a.FileName,
			FileSize: int64(a.FileSize), MimeType: a.MimeType, Type: "audio"}
	case msg.Voice != nil:
		v := msg.Voice
		f = MediaFile{FileID: v.FileID, FileUniqueID: v.FileUniqueID,
			FileSize: int64(v.FileSize), MimeType: v.MimeType, Type: "voice"}
	default:
		return MediaFile{}, false
	}

	if f.FileName == "" {
		f.FileName = defaultFileName(f)
	}
	return f, true
}

var defaultExtensions = map[string]string{
	"photo": ".jpg",
	"video": ".mp4",
	"audio": ".mp3",
	"voice": ".ogg",
}

func defaultFileName(f MediaFile) string {
	id := f.FileUniqueID
	if id == "" {
		id = f.FileID
	}
	return f.Type + "_" + id + defaultExtensions[f.Type]
}

// TooLarge reports whether the size Telegram declared for f exceeds the limit
func (m *Media) TooLarge(f MediaFile) bool {
	return m.maxSize > 0 && f.FileSize > m.maxSize
}

// MaxSize returns the configured size limit in bytes
func (m *Media) MaxSize() int64 {
	return m.maxSize
}

// Download opens a stream of the file's contents. The caller must close it.
func (m *Media) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	file, err := m.bot.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	if m.maxSize > 0 && int64(file.FileSize) > m.maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFileTooLarge, file.FileSize, m.maxSize)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.fileURL(file), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := m.bot.api.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	reqLog := observability.LoggerFromContext(ctx, m.logger)
	reqLog.Debug().
		Str("file_id", fileID).
		Int("size", file.FileSize).
		Msg("File download started")

	return resp.Body, nil
}

func (m *Media) fileURL(file tgbotapi.File) string {
	if endpoint := m.bot.config.FileEndpoint; endpoint != "" {
		return fmt.Sprintf(endpoint, m.bot.api.Token, file.FilePath)
	}
	return file.Link(m.bot.api.Token)
}

// Deliverer returns an archive.Deliverer that sends archives to chatID as documents
func (m *Media) Deliverer(chatID int64) archive.Deliverer {
	return archive.DelivererFunc(func(ctx context.Context, name string, r io.Reader) error {
		return m.bot.SendDocument(ctx, chatID, name, r)
	})
}

// Stream returns a reader over the file that only contacts Telegram on the
// first Read, so a rejected upload never downloads anything.
func (m *Media) Stream(ctx context.Context, fileID string) io.ReadCloser {
	return &lazyDownload{open: func() (io.ReadCloser, error) {
		return m.Download(ctx, fileID)
	}}
}

type lazyDownload struct {
	open func() (io.ReadCloser, error)
	rc   io.ReadCloser
	err  error
}

func (l *lazyDownload) Read(p []byte) (int, error) {
	if l.rc == nil && l.err == nil {
		l.rc, l.err = l.open()
	}
	if l.err != nil {
		return 0, l.err
	}
	return l.rc.Read(p)
}

func (l *lazyDownload) Close() error {
	if l.rc != nil {
		return l.rc.Close()
	}
	return nil
}
