package telegram

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/otprelay/internal/notify"
	"github.com/mixelka/otprelay/pkg/models"
)

type sentMessage struct {
	chatID   string
	threadID string
	text     string
}

type fakeAPI struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/sendMessage") {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			f.mu.Lock()
			f.sent = append(f.sent, sentMessage{
				chatID:   r.FormValue("chat_id"),
				threadID: r.FormValue("message_thread_id"),
				text:     r.FormValue("text"),
			})
			f.mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":123,"type":"supergroup"}}}`))
	})
}

func (f *fakeAPI) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type staticPending []models.PendingRequest

func (s staticPending) Snapshot() []models.PendingRequest { return s }

type staticCursors []models.Cursor

func (s staticCursors) ListCursors(context.Context) ([]models.Cursor, error) { return s, nil }

func newTestBot(t *testing.T, api *fakeAPI) *Bot {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	b, err := NewBot(BotDeps{
		Token:   "123:test",
		ChatID:  123,
		TopicID: 7,
		Pending: staticPending{{
			RequestID:       "req-1",
			AcceptedSources: []string{models.SourceEmail},
			ExpiresAt:       time.Now().Add(time.Minute),
		}},
		Cursors: staticCursors{{Source: models.SourceEmail, HistoryID: "3:42"}},
		Logger:  slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		Options: []bot.Option{bot.WithServerURL(srv.URL), bot.WithSkipGetMe()},
	})
	require.NoError(t, err)
	return b
}

func TestEmit_SendsToConfiguredTopic(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(t, api)

	b.Emit(context.Background(), notify.NewEvent(models.EventDelivered, "req-1", models.SourceEmail, ""))

	sent := api.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "123", sent[0].chatID)
	assert.Equal(t, "7", sent[0].threadID)
	assert.Contains(t, sent[0].text, "Code delivered")
	assert.Contains(t, sent[0].text, "req-1")
}

func TestHandleStatus(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(t, api)

	update := &tgmodels.Update{Message: &tgmodels.Message{
		Text: "/status",
		Chat: tgmodels.Chat{ID: 123},
	}}
	b.handleStatus(context.Background(), b.bot, update)

	sent := api.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].text, "<b>Pending requests:</b> 1")
	assert.Contains(t, sent[0].text, "3:42")
}

func TestHandleStatus_IgnoresForeignChat(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(t, api)

	update := &tgmodels.Update{Message: &tgmodels.Message{
		Text: "/status",
		Chat: tgmodels.Chat{ID: 999},
	}}
	b.handleStatus(context.Background(), b.bot, update)

	assert.Empty(t, api.messages())
}
