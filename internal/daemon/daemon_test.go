package daemon

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/zipbot/internal/config"
	"github.com/harun/zipbot/internal/logger"
	"github.com/harun/zipbot/internal/telegram"
	"github.com/harun/zipbot/pkg/blobstore"
	"github.com/harun/zipbot/pkg/conversation"
	"github.com/harun/zipbot/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, api *fakeTelegram) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Telegram.BotToken = testToken
	cfg.Telegram.APIEndpoint = api.apiEndpoint()
	cfg.Telegram.FileEndpoint = api.fileEndpoint()
	cfg.Telegram.PollTimeout = 0
	cfg.Storage.Backend = "memory"
	cfg.Storage.MaxUploadBytes = 1024
	return cfg
}

// createTestDaemon creates a daemon talking to a fake Bot API
func createTestDaemon(t *testing.T, mutate ...func(*config.Config)) (*Daemon, *fakeTelegram) {
	t.Helper()

	api := newFakeTelegram(t)
	cfg := testConfig(t, api)
	for _, m := range mutate {
		m(cfg)
	}

	log, err := logger.New(logger.Config{Level: "debug", Out: io.Discard})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = log.Close()
	})

	d, err := New(cfg, log)
	require.NoError(t, err)

	return d, api
}

// send dispatches update and waits until its chat lane is idle
func send(t *testing.T, d *Daemon, update tgbotapi.Update) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, d.telegramBot.Dispatch(ctx, update))

	lane := strconv.FormatInt(update.Message.Chat.ID, 10)
	require.NoError(t, d.telegramBot.Queue().Enqueue(ctx, lane, func(context.Context) error { return nil }))
}

func TestNew(t *testing.T) {
	d, _ := createTestDaemon(t)

	assert.NotNil(t, d.blobs)
	assert.NotNil(t, d.sessions)
	assert.NotNil(t, d.assembler)
	assert.NotNil(t, d.controller)
	assert.NotNil(t, d.janitor)
	assert.NotNil(t, d.telegramBot)
	assert.NotNil(t, d.router)
	assert.NotNil(t, d.lifecycle)
	assert.Nil(t, d.metricsServer)
}

func TestNewWithMetrics(t *testing.T) {
	d, _ := createTestDaemon(t, func(cfg *config.Config) {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Port = 9191
	})

	require.NotNil(t, d.metricsServer)
	assert.Equal(t, "127.0.0.1:9191", d.metricsServer.Addr)
}

func TestNewDiskBackend(t *testing.T) {
	d, _ := createTestDaemon(t, func(cfg *config.Config) {
		cfg.Storage.Backend = "disk"
		cfg.Storage.Dir = t.TempDir()
	})

	assert.NotNil(t, d.blobs)
}

func TestNewBotFailure(t *testing.T) {
	original := newTelegramBot
	t.Cleanup(func() { newTelegramBot = original })
	newTelegramBot = func(*config.TelegramConfig, *logger.Logger) (*telegram.Bot, error) {
		return nil, errors.New("unauthorized")
	}

	api := newFakeTelegram(t)
	log, err := logger.New(logger.Config{Level: "info", Out: io.Discard})
	require.NoError(t, err)

	_, err = New(testConfig(t, api), log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestDaemonStartStop(t *testing.T) {
	d, api := createTestDaemon(t)

	require.NoError(t, d.Start())

	status := d.Status()
	assert.True(t, status.Running)
	assert.True(t, d.telegramBot.IsRunning())
	assert.True(t, d.janitor.IsRunning())
	assert.Len(t, api.callsFor("setMyCommands"), 1)

	assert.Error(t, d.Start())

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, d.Stop())

	status = d.Status()
	assert.False(t, status.Running)
	assert.False(t, d.janitor.IsRunning())

	assert.Error(t, d.Stop())
}

func TestDaemonStopIsIdempotent(t *testing.T) {
	d, _ := createTestDaemon(t)

	assert.Error(t, d.Stop())
	assert.False(t, d.Status().Running)
}

func TestConversationFlow(t *testing.T) {
	d, api := createTestDaemon(t)
	const user, chat = int64(7), int64(70)

	api.addFile("doc-1", []byte("hello from a"))
	api.addFile("img-1", []byte("\xff\xd8jpeg"))

	send(t, d, commandUpdate(user, chat, "/start"))
	send(t, d, documentUpdate(user, chat, "doc-1", "a.txt", 12))
	send(t, d, photoUpdate(user, chat, "img-1", 6))
	send(t, d, commandUpdate(user, chat, "/setname"))
	send(t, d, textUpdate(user, chat, "report"))
	send(t, d, commandUpdate(user, chat, "/zip"))

	assert.Equal(t, []string{
		conversation.ReplySessionStarted,
		"Document received and stored! (1 files stored)",
		"Document received and stored! (2 files stored)",
		conversation.ReplyAskName,
		"ZIP file name set to: report",
		"ZIP file 'report.zip' created and sent!",
	}, api.texts(chat))

	starts := api.callsFor("sendMessage")
	assert.Contains(t, starts[0].ReplyMarkup, "/setname")
	assert.Contains(t, starts[0].ReplyMarkup, `"resize_keyboard":true`)

	docs := api.callsFor("sendDocument")
	require.Len(t, docs, 1)
	assert.Equal(t, chat, docs[0].ChatID)
	assert.Equal(t, "report.zip", docs[0].DocumentName)

	zr, err := zip.NewReader(bytes.NewReader(docs[0].Document), int64(len(docs[0].Document)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "a.txt", zr.File[0].Name)
	assert.Equal(t, "photo_img-1.jpg", zr.File[1].Name)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "hello from a", string(content))

	assert.Equal(t, 0, d.sessions.Len())
	staged, err := d.blobs.List(context.Background(), blobstore.StagingDir)
	require.NoError(t, err)
	assert.Empty(t, staged)
	archives, err := d.blobs.List(context.Background(), blobstore.ArchiveDir)
	require.NoError(t, err)
	assert.Empty(t, archives)
}

func TestConversationWithoutSession(t *testing.T) {
	d, api := createTestDaemon(t)
	const user, chat = int64(8), int64(80)

	api.addFile("doc-1", []byte("data"))

	send(t, d, commandUpdate(user, chat, "/zip"))
	send(t, d, commandUpdate(user, chat, "/setname"))
	send(t, d, textUpdate(user, chat, "just chatting"))
	send(t, d, documentUpdate(user, chat, "doc-1", "a.txt", 4))

	assert.Equal(t, []string{
		conversation.ReplyStartFirst,
		conversation.ReplyStartFirst,
		conversation.ReplyStartFirst,
	}, api.texts(chat))

	// The download is lazy, so a rejected upload never fetches the file
	assert.Empty(t, api.callsFor("getFile"))
}

func TestZipWithNoFiles(t *testing.T) {
	d, api := createTestDaemon(t)
	const user, chat = int64(9), int64(90)

	send(t, d, commandUpdate(user, chat, "/start"))
	send(t, d, commandUpdate(user, chat, "/zip"))

	assert.Equal(t, []string{
		conversation.ReplySessionStarted,
		conversation.ReplyNoFiles,
	}, api.texts(chat))
	assert.Equal(t, 1, d.sessions.Len())
	assert.Empty(t, api.callsFor("sendDocument"))
}

func TestDefaultArchiveName(t *testing.T) {
	d, api := createTestDaemon(t)
	const user, chat = int64(10), int64(100)

	api.addFile("doc-1", []byte("one"))

	send(t, d, commandUpdate(user, chat, "/start"))
	send(t, d, documentUpdate(user, chat, "doc-1", "one.txt", 3))
	send(t, d, commandUpdate(user, chat, "/zip"))

	docs := api.callsFor("sendDocument")
	require.Len(t, docs, 1)
	assert.Equal(t, "files.zip", docs[0].DocumentName)
}

func TestUploadTooLarge(t *testing.T) {
	d, api := createTestDaemon(t)
	const user, chat = int64(11), int64(110)

	send(t, d, commandUpdate(user, chat, "/start"))
	send(t, d, documentUpdate(user, chat, "big", "big.bin", 4096))

	texts := api.texts(chat)
	require.Len(t, texts, 2)
	assert.Equal(t, "big.bin is too large. The limit is 1024 bytes.", texts[1])
	assert.Empty(t, api.callsFor("getFile"))
}

func TestUploadDownloadFailure(t *testing.T) {
	d, api := createTestDaemon(t)
	const user, chat = int64(12), int64(120)

	send(t, d, commandUpdate(user, chat, "/start"))
	send(t, d, documentUpdate(user, chat, "missing", "gone.txt", 10))

	texts := api.texts(chat)
	require.Len(t, texts, 2)
	assert.Equal(t, "Could not store gone.txt. Please send it again.", texts[1])

	sess, err := d.sessions.Get(session.Owner(user))
	require.NoError(t, err)
	assert.Empty(t, sess.Files)
}

func TestHelpAndUnknownCommand(t *testing.T) {
	d, api := createTestDaemon(t)
	const user, chat = int64(13), int64(130)

	send(t, d, commandUpdate(user, chat, "/help"))
	send(t, d, commandUpdate(user, chat, "/unzip"))

	texts := api.texts(chat)
	require.Len(t, texts, 2)
	assert.Equal(t, helpText, texts[0])
	assert.Equal(t, "Unknown command: /unzip", texts[1])
}

func TestAllowlist(t *testing.T) {
	d, api := createTestDaemon(t, func(cfg *config.Config) {
		cfg.Telegram.Allowlist = []int64{14}
	})

	send(t, d, commandUpdate(14, 140, "/start"))
	send(t, d, commandUpdate(15, 150, "/start"))

	assert.Len(t, api.texts(140), 1)
	assert.Empty(t, api.texts(150))
	assert.Equal(t, 1, d.sessions.Len())
}

func TestUsersAreIsolated(t *testing.T) {
	d, api := createTestDaemon(t)

	api.addFile("a", []byte("alpha"))
	api.addFile("b", []byte("beta"))

	send(t, d, commandUpdate(1, 10, "/start"))
	send(t, d, commandUpdate(2, 20, "/start"))
	send(t, d, documentUpdate(1, 10, "a", "a.txt", 5))
	send(t, d, documentUpdate(2, 20, "b", "b.txt", 4))
	send(t, d, commandUpdate(1, 10, "/zip"))

	docs := api.callsFor("sendDocument")
	require.Len(t, docs, 1)
	zr, err := zip.NewReader(bytes.NewReader(docs[0].Document), int64(len(docs[0].Document)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "a.txt", zr.File[0].Name)

	sess, err := d.sessions.Get(2)
	require.NoError(t, err)
	assert.Len(t, sess.Files, 1)
}
