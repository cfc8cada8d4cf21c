package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avetra/funnel-bot/internal/models"
)

// resolveAudience maps an audience name to its recipient ids.
func (b *Bot) resolveAudience(audience models.Audience) ([]int64, error) {
	switch audience {
	case models.AudienceAll:
		return b.store.AllUserIDs()
	case models.AudienceSubscribers:
		return b.store.ActiveSubscriberIDs(time.Now())
	case models.AudienceCourse:
		return b.store.CourseUserIDs()
	case models.AudiencePaid:
		return b.store.PaidUserIDs()
	case models.AudienceVIP:
		return b.store.VIPUserIDs()
	}
	return nil, fmt.Errorf("unknown audience %q", audience)
}

// handleBroadcast fans a message out to an audience:
// /broadcast <all|subscribers|course|paid|vip> <text>
func (b *Bot) handleBroadcast(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	args := strings.SplitN(strings.TrimSpace(message.CommandArguments()), " ", 2)
	if len(args) < 2 || args[1] == "" {
		b.reply(ctx, chatID, "Формат: /broadcast <all|subscribers|course|paid|vip> <текст>")
		return
	}

	audience := models.Audience(args[0])
	text := args[1]

	recipients, err := b.resolveAudience(audience)
	if err != nil {
		b.reply(ctx, chatID, "Неизвестная аудитория. Доступны: all, subscribers, course, paid, vip.")
		return
	}

	job := models.BroadcastJob{
		ID:          uuid.New().String(),
		AdminID:     message.From.ID,
		Audience:    audience,
		MessageText: text,
		MediaType:   "text",
		Recipients:  len(recipients),
		CreatedAt:   time.Now(),
	}
	if err := b.store.CreateBroadcast(job); err != nil {
		b.logger.Error("failed to record broadcast", zap.String("id", job.ID), zap.Error(err))
		b.reply(ctx, chatID, "Не удалось запустить рассылку.")
		return
	}

	b.reply(ctx, chatID, fmt.Sprintf("Рассылка запущена: %d получателей.", len(recipients)))
	go b.runBroadcast(ctx, job, recipients)
}

func (b *Bot) runBroadcast(ctx context.Context, job models.BroadcastJob, recipients []int64) {
	var sent, failed int
	for _, userID := range recipients {
		if ctx.Err() != nil {
			break
		}
		if blocked, err := b.store.IsBlocked(userID); err == nil && blocked {
			continue
		}

		if err := b.sender.SendText(ctx, userID, job.MessageText); err != nil {
			failed++
			continue
		}
		sent++

		// Persist progress occasionally so a crash does not lose the counts.
		if (sent+failed)%50 == 0 {
			if err := b.store.UpdateBroadcast(job.ID, sent, failed, nil); err != nil {
				b.logger.Warn("failed to update broadcast progress", zap.String("id", job.ID), zap.Error(err))
			}
		}
	}

	done := time.Now()
	if err := b.store.UpdateBroadcast(job.ID, sent, failed, &done); err != nil {
		b.logger.Error("failed to finish broadcast", zap.String("id", job.ID), zap.Error(err))
	}
	b.logger.Info("broadcast finished",
		zap.String("id", job.ID),
		zap.String("audience", string(job.Audience)),
		zap.Int("sent", sent),
		zap.Int("failed", failed))

	b.NotifyAdmins(ctx, fmt.Sprintf(
		"Рассылка завершена.\nАудитория: %s\nОтправлено: %d\nОшибок: %d", job.Audience, sent, failed))
}

// handleTestPromo previews a promo creative for the calling admin:
// /testpromo [creative]
func (b *Bot) handleTestPromo(ctx context.Context, message *tgbotapi.Message) {
	creative := strings.TrimSpace(message.CommandArguments())
	if creative == "" {
		creative = "intro"
	}
	if err := b.SendPromo(ctx, message.From.ID, creative); err != nil {
		b.logger.Error("test promo failed", zap.String("creative", creative), zap.Error(err))
		b.reply(ctx, message.Chat.ID, "Не удалось отправить тестовый промо.")
	}
}
