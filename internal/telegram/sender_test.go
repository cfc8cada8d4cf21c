package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avetra/funnel-bot/internal/storage"
)

type fakeAPI struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) SendMediaGroup(tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	return nil, f.err
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitText("short", 4096))

	long := strings.Repeat("строка текста\n", 50)
	chunks := splitText(long, 100)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 100)
		assert.False(t, strings.HasPrefix(chunk, "\n"))
	}
	assert.Equal(t, strings.ReplaceAll(long, "\n", ""), strings.ReplaceAll(strings.Join(chunks, ""), "\n", ""))

	// No newline to cut on: hard split.
	solid := strings.Repeat("a", 250)
	chunks = splitText(solid, 100)
	assert.Equal(t, []string{strings.Repeat("a", 100), strings.Repeat("a", 100), strings.Repeat("a", 50)}, chunks)
}

func TestDataTypeFor(t *testing.T) {
	assert.Equal(t, "text", dataTypeFor("send_text"))
	assert.Equal(t, "photo", dataTypeFor("send_photo"))
	assert.Equal(t, "video_note", dataTypeFor("send_video_note"))
	assert.Equal(t, "photo_album", dataTypeFor("send_album"))
}

func TestSendTextSplitsLongMessages(t *testing.T) {
	api := &fakeAPI{}
	store := storage.NewMemoryStorage()
	sender := NewSender(api, store, zap.NewNop())

	long := strings.Repeat("x", maxMessageLen+10)
	require.NoError(t, sender.SendText(context.Background(), 100, long))
	assert.Len(t, api.sent, 2)
}

func TestSendTextLogsTraffic(t *testing.T) {
	api := &fakeAPI{}
	store := storage.NewMemoryStorage()
	sender := NewSender(api, store, zap.NewNop())

	require.NoError(t, sender.SendText(context.Background(), 100, "привет"))

	entries := store.TrafficEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "send_text", entries[0].Operation)
	assert.Equal(t, "text", entries[0].DataType)
	assert.Equal(t, int64(100), entries[0].UserID)
	assert.Equal(t, "ok", entries[0].Status)
}

func TestSendTextRecordsBlockedUser(t *testing.T) {
	api := &fakeAPI{err: &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}}
	store := storage.NewMemoryStorage()
	sender := NewSender(api, store, zap.NewNop())

	err := sender.SendText(context.Background(), 100, "привет")
	require.ErrorIs(t, err, ErrBlocked)

	blocked, err := store.IsBlocked(100)
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestSendTextOtherErrorsNotBlocked(t *testing.T) {
	api := &fakeAPI{err: errors.New("Bad Request: message is too long")}
	store := storage.NewMemoryStorage()
	sender := NewSender(api, store, zap.NewNop())

	err := sender.SendText(context.Background(), 100, "привет")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBlocked)

	blocked, err := store.IsBlocked(100)
	require.NoError(t, err)
	assert.False(t, blocked)
}
