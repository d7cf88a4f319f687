package daemon

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
)

const testToken = "123456:test-token"

type fakeTelegramCall struct {
	Method       string
	ChatID       int64
	Text         string
	ReplyMarkup  string
	DocumentName string
	Document     []byte
}

// fakeTelegram is an in-process Bot API serving just what zipbot calls
type fakeTelegram struct {
	server *httptest.Server

	mu            sync.Mutex
	nextMessageID int
	calls         []fakeTelegramCall
	files         map[string][]byte
}

func newFakeTelegram(t *testing.T) *fakeTelegram {
	t.Helper()

	f := &fakeTelegram{nextMessageID: 100, files: make(map[string][]byte)}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/file/bot"+testToken+"/") {
			f.serveFile(w, strings.TrimPrefix(r.URL.Path, "/file/bot"+testToken+"/"))
			return
		}

		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			require.NoError(t, r.ParseMultipartForm(32<<20))
		} else {
			require.NoError(t, r.ParseForm())
		}

		chatID, _ := strconv.ParseInt(r.FormValue("chat_id"), 10, 64)
		method := strings.TrimPrefix(r.URL.Path, "/bot"+testToken+"/")

		switch method {
		case "getMe":
			writeTelegramResponse(t, w, map[string]interface{}{
				"id":         999001,
				"is_bot":     true,
				"first_name": "ZipTest",
				"username":   "zip_test_bot",
			})
		case "getUpdates":
			time.Sleep(20 * time.Millisecond)
			writeTelegramResponse(t, w, []interface{}{})
		case "getFile":
			fileID := r.FormValue("file_id")
			f.mu.Lock()
			data, ok := f.files[fileID]
			f.mu.Unlock()
			if !ok {
				writeTelegramError(t, w, "Bad Request: invalid file_id")
				return
			}
			f.record(fakeTelegramCall{Method: method})
			writeTelegramResponse(t, w, map[string]interface{}{
				"file_id":        fileID,
				"file_unique_id": fileID,
				"file_size":      len(data),
				"file_path":      "documents/" + fileID,
			})
		case "sendMessage":
			f.record(fakeTelegramCall{
				Method:      method,
				ChatID:      chatID,
				Text:        r.FormValue("text"),
				ReplyMarkup: r.FormValue("reply_markup"),
			})
			writeTelegramResponse(t, w, f.message(chatID))
		case "sendDocument":
			file, header, err := r.FormFile("document")
			require.NoError(t, err)
			data, err := io.ReadAll(file)
			require.NoError(t, err)
			f.record(fakeTelegramCall{
				Method:       method,
				ChatID:       chatID,
				DocumentName: header.Filename,
				Document:     data,
			})
			writeTelegramResponse(t, w, f.message(chatID))
		default:
			f.record(fakeTelegramCall{Method: method})
			writeTelegramResponse(t, w, true)
		}
	}))
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeTelegram) apiEndpoint() string {
	return f.server.URL + "/bot%s/%s"
}

func (f *fakeTelegram) fileEndpoint() string {
	return f.server.URL + "/file/bot%s/%s"
}

func (f *fakeTelegram) addFile(fileID string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[fileID] = data
}

func (f *fakeTelegram) serveFile(w http.ResponseWriter, path string) {
	f.mu.Lock()
	data, ok := f.files[strings.TrimPrefix(path, "documents/")]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, nil)
		return
	}
	_, _ = w.Write(data)
}

func (f *fakeTelegram) message(chatID int64) map[string]interface{} {
	f.mu.Lock()
	f.nextMessageID++
	id := f.nextMessageID
	f.mu.Unlock()

	return map[string]interface{}{
		"message_id": id,
		"date":       time.Now().Unix(),
		"chat": map[string]interface{}{
			"id":   chatID,
			"type": "private",
		},
	}
}

func (f *fakeTelegram) record(call fakeTelegramCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeTelegram) callsFor(method string) []fakeTelegramCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []fakeTelegramCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTelegram) texts(chatID int64) []string {
	var out []string
	for _, c := range f.callsFor("sendMessage") {
		if c.ChatID == chatID {
			out = append(out, c.Text)
		}
	}
	return out
}

func writeTelegramResponse(t *testing.T, w http.ResponseWriter, result interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":     true,
		"result": result,
	}))
}

func writeTelegramError(t *testing.T, w http.ResponseWriter, description string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":          false,
		"error_code":  400,
		"description": description,
	}))
}

var nextMessageID = 1

func newMessage(userID, chatID int64) *tgbotapi.Message {
	nextMessageID++
	return &tgbotapi.Message{
		MessageID: nextMessageID,
		From:      &tgbotapi.User{ID: userID, UserName: "user" + strconv.FormatInt(userID, 10)},
		Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
		Date:      int(time.Now().Unix()),
	}
}

func commandUpdate(userID, chatID int64, text string) tgbotapi.Update {
	msg := newMessage(userID, chatID)
	msg.Text = text
	msg.Entities = []tgbotapi.MessageEntity{{
		Type:   "bot_command",
		Offset: 0,
		Length: len(strings.Fields(text)[0]),
	}}
	return tgbotapi.Update{Message: msg}
}

func textUpdate(userID, chatID int64, text string) tgbotapi.Update {
	msg := newMessage(userID, chatID)
	msg.Text = text
	return tgbotapi.Update{Message: msg}
}

func documentUpdate(userID, chatID int64, fileID, name string, size int) tgbotapi.Update {
	msg := newMessage(userID, chatID)
	msg.Document = &tgbotapi.Document{
		FileID:       fileID,
		FileUniqueID: fileID,
		FileName:     name,
		FileSize:     size,
	}
	return tgbotapi.Update{Message: msg}
}

func photoUpdate(userID, chatID int64, fileID string, size int) tgbotapi.Update {
	msg := newMessage(userID, chatID)
	msg.Photo = []tgbotapi.PhotoSize{
		{FileID: fileID + "-small", FileUniqueID: fileID + "-small", Width: 90, Height: 90, FileSize: 10},
		{FileID: fileID, FileUniqueID: fileID, Width: 800, Height: 600, FileSize: size},
	}
	return tgbotapi.Update{Message: msg}
}
