package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/avetra/funnel-bot/internal/models"
	"github.com/avetra/funnel-bot/internal/telegram"
)

// stageCreative is one step of the drip campaign: a text plus optional
// media out of the content directory.
type stageCreative struct {
	text      string
	photo     string
	videoNote string
}

var stageCreatives = map[int]stageCreative{
	1: {
		text: "Кажется, ты ненадолго отвлёкся 🙂\n\nЯ здесь, если остались вопросы. Просто напиши — разберёмся вместе.",
	},
	2: {
		text:  "Коротко о том, что внутри: персональный AI-наставник, который отвечает на твои вопросы 24/7 и помогает двигаться к результату каждый день.",
		photo: "stage_about.jpg",
	},
	3: {
		text: "Чем это помогает на практике:\n\n• план под твою цель\n• разбор ошибок без осуждения\n• поддержка в любой момент, когда руки опускаются",
	},
	4: {
		text:  "Не веришь на слово — посмотри, что пишут те, кто уже занимается 👇",
		photo: "stage_reviews.jpg",
	},
	5: {
		text: "Последнее, что я хотел показать: тарифы и цены. Выбирай свой формат, а если есть вопросы — я рядом 🙌",
	},
}

var promoCreatives = map[string]stageCreative{
	"intro": {
		text:      "Привет! Видел, ты заглядывал, но мы так и не начали. Держи короткое знакомство 👇",
		videoNote: "promo_intro.mp4",
	},
	"summer": {
		text:  "Лето — лучшее время начать. До конца месяца действует специальное предложение 🔥",
		photo: "promo_summer.jpg",
	},
	"autumn": {
		text:  "Новый сезон — новые цели. Посмотри, что мы подготовили к осени 👇",
		photo: "promo_autumn.jpg",
	},
}

// SendStage delivers one funnel stage. Stage five additionally shows the
// tariff menu so the funnel ends on the offer.
func (b *Bot) SendStage(ctx context.Context, userID int64, stage int) error {
	creative, ok := stageCreatives[stage]
	if !ok {
		return fmt.Errorf("no creative for stage %d", stage)
	}
	if err := b.deliverCreative(ctx, userID, creative); err != nil {
		return err
	}
	if stage == 5 {
		return b.sender.SendTextWithKeyboard(ctx, userID, tariffMenuText(b.prices), tariffKeyboard())
	}
	return nil
}

// SendPromo delivers the one-time nudge creative.
func (b *Bot) SendPromo(ctx context.Context, userID int64, creative string) error {
	c, ok := promoCreatives[creative]
	if !ok {
		c = promoCreatives["intro"]
	}
	return b.deliverCreative(ctx, userID, c)
}

func (b *Bot) deliverCreative(ctx context.Context, userID int64, c stageCreative) error {
	if c.videoNote != "" {
		path := filepath.Join(b.contentDir, c.videoNote)
		if _, err := os.Stat(path); err == nil {
			if err := b.sender.SendVideoNote(ctx, userID, path); err != nil {
				return err
			}
		} else {
			b.logger.Warn("video note asset missing", zap.String("path", path))
		}
	}
	if c.photo != "" {
		path := filepath.Join(b.contentDir, c.photo)
		if _, err := os.Stat(path); err == nil {
			return b.sender.SendPhoto(ctx, userID, path, c.text)
		}
		b.logger.Warn("photo asset missing", zap.String("path", path))
	}
	if c.text != "" {
		return b.sender.SendText(ctx, userID, c.text)
	}
	return nil
}

// PaymentSucceeded tells the payer their access is active.
func (b *Bot) PaymentSucceeded(ctx context.Context, userID int64, sub *models.Subscription) {
	text := fmt.Sprintf(
		"Оплата прошла успешно! ✅\n\nТариф: %s\nДоступ до: %s\n\nМожешь сразу писать мне — я готов помогать.",
		tariffTitle(sub.Tariff), sub.ExpiresAt.Format("02.01.2006"))
	if err := b.sender.SendText(ctx, userID, text); err != nil && !errors.Is(err, telegram.ErrBlocked) {
		b.logger.Error("failed to notify payer", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// PaymentFailed tells the payer the charge did not go through.
func (b *Bot) PaymentFailed(ctx context.Context, userID int64, status string) {
	text := "Оплата не прошла 😔\n\nПопробуй ещё раз или напиши в поддержку, если проблема повторяется."
	if err := b.sender.SendText(ctx, userID, text); err != nil && !errors.Is(err, telegram.ErrBlocked) {
		b.logger.Error("failed to notify payer",
			zap.Int64("user_id", userID),
			zap.String("status", status),
			zap.Error(err))
	}
}

// NotifyAdmins fans a service message out to the admin list.
func (b *Bot) NotifyAdmins(ctx context.Context, text string) {
	for _, adminID := range b.adminIDs {
		if err := b.sender.SendText(ctx, adminID, text); err != nil {
			b.logger.Warn("failed to notify admin", zap.Int64("admin_id", adminID), zap.Error(err))
		}
	}
}

func tariffTitle(t models.TariffKind) string {
	switch t {
	case models.TariffBasic:
		return "Базовый"
	case models.TariffVIP:
		return "VIP"
	case models.TariffCourse:
		return "Курс"
	}
	return string(t)
}
