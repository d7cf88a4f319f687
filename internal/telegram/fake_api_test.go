package telegram

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/zipbot/internal/config"
	"github.com/harun/zipbot/internal/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testToken = "123456:test-token"

type apiCall struct {
	Method string
	Form   map[string]string
	File   []byte
	Name   string
}

type fakeAPI struct {
	server *httptest.Server
	files  map[string][]byte

	mu    sync.Mutex
	calls []apiCall
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	f := &fakeAPI{files: make(map[string][]byte)}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/file/bot"+testToken+"/") {
			data, ok := f.file(strings.TrimPrefix(r.URL.Path, "/file/bot"+testToken+"/"))
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write(data)
			return
		}

		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			require.NoError(t, r.ParseMultipartForm(32<<20))
		} else {
			require.NoError(t, r.ParseForm())
		}

		call := apiCall{
			Method: strings.TrimPrefix(r.URL.Path, "/bot"+testToken+"/"),
			Form:   make(map[string]string),
		}
		for k := range r.Form {
			call.Form[k] = r.Form.Get(k)
		}
		if file, header, err := r.FormFile("document"); err == nil {
			call.File, _ = io.ReadAll(file)
			call.Name = header.Filename
		}

		f.mu.Lock()
		f.calls = append(f.calls, call)
		f.mu.Unlock()

		var result interface{} = true
		switch call.Method {
		case "getMe":
			result = map[string]interface{}{"id": 999001, "is_bot": true, "first_name": "ZipTest", "username": "zip_test_bot"}
		case "getUpdates":
			time.Sleep(20 * time.Millisecond)
			result = []interface{}{}
		case "getFile":
			id := call.Form["file_id"]
			data, ok := f.file("documents/" + id)
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: invalid file_id"}`))
				return
			}
			result = map[string]interface{}{"file_id": id, "file_unique_id": id, "file_size": len(data), "file_path": "documents/" + id}
		case "sendMessage", "sendDocument":
			result = map[string]interface{}{"message_id": 1, "date": time.Now().Unix(), "chat": map[string]interface{}{"id": 1, "type": "private"}}
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "result": result}))
	}))
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeAPI) config() *config.TelegramConfig {
	return &config.TelegramConfig{
		BotToken:     testToken,
		APIEndpoint:  f.server.URL + "/bot%s/%s",
		FileEndpoint: f.server.URL + "/file/bot%s/%s",
	}
}

func (f *fakeAPI) addFile(fileID string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files["documents/"+fileID] = data
}

func (f *fakeAPI) file(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	return data, ok
}

func (f *fakeAPI) callsFor(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "debug", Out: io.Discard})
	require.NoError(t, err)
	return log
}

// newAPIBot creates a bot authenticated against the fake API
func newAPIBot(t *testing.T, api *fakeAPI) *Bot {
	t.Helper()
	bot, err := New(api.config(), testLogger(t))
	require.NoError(t, err)
	return bot
}

// createTestBot creates a bot that never talks to Telegram
func createTestBot(t *testing.T) *Bot {
	t.Helper()
	api := &tgbotapi.BotAPI{
		Self: tgbotapi.User{
			UserName: "testbot",
			ID:       123456789,
		},
	}
	return newBot(api, &config.TelegramConfig{}, zerolog.Nop())
}

func testMessage(userID, chatID int64) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, UserName: "testuser"},
		Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
		Date:      1234567890,
	}
}

func commandMessage(userID, chatID int64, text string) *tgbotapi.Message {
	msg := testMessage(userID, chatID)
	msg.Text = text
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])}}
	return msg
}
