package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const maxVoiceSize = 20 << 20

// handleVoice downloads the voice message, transcribes it and feeds the
// text into the normal chat path.
func (b *Bot) handleVoice(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID

	var fileID string
	var size int
	switch {
	case message.Voice != nil:
		fileID = message.Voice.FileID
		size = message.Voice.FileSize
	case message.Audio != nil:
		fileID = message.Audio.FileID
		size = message.Audio.FileSize
	}
	if size > maxVoiceSize {
		b.reply(ctx, chatID, "Голосовое сообщение слишком длинное. Запиши покороче, пожалуйста 🙂")
		return
	}

	path, err := b.downloadVoice(ctx, fileID)
	if err != nil {
		b.logger.Error("voice download failed", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(ctx, chatID, "Не удалось получить голосовое сообщение, попробуй ещё раз.")
		return
	}
	defer os.Remove(path)

	text, err := b.ai.Transcribe(ctx, path)
	if err != nil {
		b.logger.Error("transcription failed", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(ctx, chatID, "Не получилось распознать голосовое. Напиши текстом, пожалуйста 🙏")
		return
	}
	if text == "" {
		b.reply(ctx, chatID, "В голосовом не слышно слов. Попробуй записать ещё раз.")
		return
	}

	b.handleChat(ctx, chatID, userID, text)
}

func (b *Bot) downloadVoice(ctx context.Context, fileID string) (string, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "voice-*"+filepath.Ext(url))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save voice file: %w", err)
	}
	return tmp.Name(), nil
}
