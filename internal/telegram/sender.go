// Package telegram wraps outbound bot API calls with pacing, media
// caching and blocked-user bookkeeping.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/avetra/funnel-bot/internal/models"
	"github.com/avetra/funnel-bot/internal/storage"
)

// ErrBlocked is returned when the recipient has blocked the bot. The
// user is recorded so later sweeps skip them.
var ErrBlocked = errors.New("user blocked the bot")

const (
	maxMessageLen = 4096
	maxPhotoSize  = 10 << 20
	maxVideoSize  = 50 << 20

	// Bulk sends stay under the API's messages-per-second ceiling.
	sendsPerSecond = 25
)

// BotAPI is the subset of the bot client the sender uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
}

// Sender is the single outbound path for messages and media.
type Sender struct {
	api     BotAPI
	blocks  storage.BlockStore
	media   storage.MediaStore
	stats   storage.StatsStore
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewSender(api BotAPI, store storage.Storage, logger *zap.Logger) *Sender {
	return &Sender{
		api:     api,
		blocks:  store,
		media:   store,
		stats:   store,
		limiter: rate.NewLimiter(rate.Limit(sendsPerSecond), sendsPerSecond),
		logger:  logger,
	}
}

func isBlockedErr(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 403 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "bot was blocked") ||
		strings.Contains(msg, "user is deactivated") ||
		strings.Contains(msg, "chat not found")
}

func (s *Sender) send(ctx context.Context, chatID int64, msg tgbotapi.Chattable, op string, size int64) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := s.api.Send(msg)
	s.logTraffic(op, chatID, size, err)
	if err != nil {
		if isBlockedErr(err) {
			s.markBlocked(chatID, err)
			return fmt.Errorf("%w: %d", ErrBlocked, chatID)
		}
		return fmt.Errorf("send failed: %w", err)
	}
	return nil
}

func (s *Sender) markBlocked(chatID int64, cause error) {
	if err := s.blocks.BlockUser(chatID, cause.Error()); err != nil {
		s.logger.Error("failed to record blocked user",
			zap.Int64("user_id", chatID), zap.Error(err))
		return
	}
	s.bumpStats(models.DailyStats{BlockedUsers: 1})
	s.logger.Info("user marked blocked", zap.Int64("user_id", chatID))
}

// dataTypeFor maps an operation to the kind of payload it carries.
func dataTypeFor(op string) string {
	switch op {
	case "send_text":
		return "text"
	case "send_photo":
		return "photo"
	case "send_video_note":
		return "video_note"
	case "send_album":
		return "photo_album"
	}
	return op
}

func (s *Sender) logTraffic(op string, chatID int64, size int64, sendErr error) {
	entry := models.TrafficEntry{
		Operation: op,
		UserID:    chatID,
		DataType:  dataTypeFor(op),
		DataSize:  size,
		Status:    "ok",
		At:        time.Now(),
	}
	if sendErr != nil {
		entry.Status = "error"
		entry.Error = sendErr.Error()
	}
	if err := s.stats.LogTraffic(entry); err != nil {
		s.logger.Warn("failed to log traffic", zap.Error(err))
	}
}

func (s *Sender) bumpStats(delta models.DailyStats) {
	date := time.Now().Format("2006-01-02")
	if err := s.stats.BumpDailyStats(date, delta); err != nil {
		s.logger.Warn("failed to bump daily stats", zap.Error(err))
	}
}

// SendText delivers text, splitting messages that exceed the API limit.
func (s *Sender) SendText(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range splitText(text, maxMessageLen) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeHTML
		if err := s.send(ctx, chatID, msg, "send_text", int64(len(chunk))); err != nil {
			return err
		}
	}
	s.bumpStats(models.DailyStats{Messages: 1})
	return nil
}

// SendTextWithKeyboard delivers one message with an inline keyboard.
func (s *Sender) SendTextWithKeyboard(ctx context.Context, chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = keyboard
	if err := s.send(ctx, chatID, msg, "send_text", int64(len(text))); err != nil {
		return err
	}
	s.bumpStats(models.DailyStats{Messages: 1})
	return nil
}

// splitText cuts on newlines where possible so formatting survives.
func splitText(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// mediaFile resolves a local path to either a cached file id or an
// upload, enforcing the size ceiling.
func (s *Sender) mediaFile(path string, maxSize int64) (tgbotapi.RequestFileData, int64, bool, error) {
	if fileID, err := s.media.GetFileID(path); err == nil && fileID != "" {
		return tgbotapi.FileID(fileID), 0, true, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, false, fmt.Errorf("media file missing: %w", err)
	}
	if info.Size() > maxSize {
		return nil, 0, false, fmt.Errorf("media file %s too large: %d bytes", path, info.Size())
	}
	return tgbotapi.FilePath(path), info.Size(), false, nil
}

func (s *Sender) cacheFileID(path, kind string, size int64, msg tgbotapi.Message) {
	var fileID string
	switch {
	case len(msg.Photo) > 0:
		fileID = msg.Photo[len(msg.Photo)-1].FileID
	case msg.VideoNote != nil:
		fileID = msg.VideoNote.FileID
	case msg.Video != nil:
		fileID = msg.Video.FileID
	}
	if fileID == "" {
		return
	}
	if err := s.media.SaveFileID(path, fileID, kind, size); err != nil {
		s.logger.Warn("failed to cache file id", zap.String("path", path), zap.Error(err))
	}
}

// SendPhoto delivers a photo from a local path, reusing the cached file
// id after the first upload.
func (s *Sender) SendPhoto(ctx context.Context, chatID int64, path, caption string) error {
	file, size, cached, err := s.mediaFile(path, maxPhotoSize)
	if err != nil {
		return err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	photo := tgbotapi.NewPhoto(chatID, file)
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML

	msg, err := s.api.Send(photo)
	s.logTraffic("send_photo", chatID, size, err)
	if err != nil {
		if isBlockedErr(err) {
			s.markBlocked(chatID, err)
			return fmt.Errorf("%w: %d", ErrBlocked, chatID)
		}
		return fmt.Errorf("photo send failed: %w", err)
	}
	if !cached {
		s.cacheFileID(path, "photo", size, msg)
	}
	s.bumpStats(models.DailyStats{MediaSent: 1, BytesSent: size})
	return nil
}

// SendVideoNote delivers a round video message from a local path.
func (s *Sender) SendVideoNote(ctx context.Context, chatID int64, path string) error {
	file, size, cached, err := s.mediaFile(path, maxVideoSize)
	if err != nil {
		return err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	note := tgbotapi.NewVideoNote(chatID, 0, file)

	msg, err := s.api.Send(note)
	s.logTraffic("send_video_note", chatID, size, err)
	if err != nil {
		if isBlockedErr(err) {
			s.markBlocked(chatID, err)
			return fmt.Errorf("%w: %d", ErrBlocked, chatID)
		}
		return fmt.Errorf("video note send failed: %w", err)
	}
	if !cached {
		s.cacheFileID(path, "video_note", size, msg)
	}
	s.bumpStats(models.DailyStats{MediaSent: 1, BytesSent: size})
	return nil
}

// SendPhotoAlbum delivers photos as media groups of at most ten.
func (s *Sender) SendPhotoAlbum(ctx context.Context, chatID int64, paths []string) error {
	const groupLimit = 10

	for start := 0; start < len(paths); start += groupLimit {
		end := start + groupLimit
		if end > len(paths) {
			end = len(paths)
		}

		var (
			media []interface{}
			total int64
		)
		for _, path := range paths[start:end] {
			file, size, _, err := s.mediaFile(path, maxPhotoSize)
			if err != nil {
				return err
			}
			media = append(media, tgbotapi.NewInputMediaPhoto(file))
			total += size
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		_, err := s.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media))
		s.logTraffic("send_album", chatID, total, err)
		if err != nil {
			if isBlockedErr(err) {
				s.markBlocked(chatID, err)
				return fmt.Errorf("%w: %d", ErrBlocked, chatID)
			}
			return fmt.Errorf("album send failed: %w", err)
		}
		s.bumpStats(models.DailyStats{MediaSent: int64(end - start), BytesSent: total})
	}
	return nil
}
