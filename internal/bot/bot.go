// Package bot handles inbound Telegram updates: the entry flow, the AI
// chat, the referral program and the admin commands.
package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/avetra/funnel-bot/internal/assistant"
	"github.com/avetra/funnel-bot/internal/entitlements"
	"github.com/avetra/funnel-bot/internal/funnel"
	"github.com/avetra/funnel-bot/internal/getcourse"
	"github.com/avetra/funnel-bot/internal/models"
	"github.com/avetra/funnel-bot/internal/referral"
	"github.com/avetra/funnel-bot/internal/storage"
	"github.com/avetra/funnel-bot/internal/telegram"
)

// TariffPrices holds the per-tariff price and platform offer code.
type TariffPrices struct {
	Basic, VIP, Course             int
	OfferBasic, OfferVIP, OfferCrs string
}

func (p TariffPrices) For(t models.TariffKind) (int, string) {
	switch t {
	case models.TariffVIP:
		return p.VIP, p.OfferVIP
	case models.TariffCourse:
		return p.Course, p.OfferCrs
	}
	return p.Basic, p.OfferBasic
}

type Bot struct {
	api          *tgbotapi.BotAPI
	store        storage.Storage
	sender       *telegram.Sender
	tracker      *funnel.Tracker
	entitlements *entitlements.Service
	referrals    *referral.Service
	registry     *assistant.Registry
	ai           *assistant.Client
	commerce     *getcourse.Client
	prices       TariffPrices
	bonusUnit    int
	adminIDs     []int64
	contentDir   string
	logger       *zap.Logger
}

type Deps struct {
	Store        storage.Storage
	Sender       *telegram.Sender
	Tracker      *funnel.Tracker
	Entitlements *entitlements.Service
	Referrals    *referral.Service
	Registry     *assistant.Registry
	AI           *assistant.Client
	Commerce     *getcourse.Client
	Prices       TariffPrices
	BonusUnit    int
	AdminIDs     []int64
	ContentDir   string
}

func New(api *tgbotapi.BotAPI, deps Deps, logger *zap.Logger) *Bot {
	return &Bot{
		api:          api,
		store:        deps.Store,
		sender:       deps.Sender,
		tracker:      deps.Tracker,
		entitlements: deps.Entitlements,
		referrals:    deps.Referrals,
		registry:     deps.Registry,
		ai:           deps.AI,
		commerce:     deps.Commerce,
		prices:       deps.Prices,
		bonusUnit:    deps.BonusUnit,
		adminIDs:     deps.AdminIDs,
		contentDir:   deps.ContentDir,
		logger:       logger,
	}
}

// Start consumes the long-poll update stream until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			switch {
			case update.Message != nil:
				go b.handleMessage(ctx, update.Message)
			case update.CallbackQuery != nil:
				go b.handleCallback(ctx, update.CallbackQuery)
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	// Any non-entry interaction takes the user out of the drip campaign.
	if err := b.tracker.Disengage(userID); err != nil {
		b.logger.Error("failed to record activity", zap.Int64("user_id", userID), zap.Error(err))
	}

	if waiting, err := b.store.IsAwaitingReferrer(userID); err == nil && waiting {
		b.handleEmailInput(ctx, message)
		return
	}

	if message.Voice != nil || message.Audio != nil {
		b.handleVoice(ctx, message)
		return
	}

	if message.Text != "" {
		b.handleChat(ctx, message.Chat.ID, userID, message.Text)
		return
	}

	b.reply(ctx, message.Chat.ID, "Я понимаю текст и голосовые сообщения. Напиши или наговори свой вопрос 🙂")
}

func (b *Bot) isAdmin(userID int64) bool {
	for _, id := range b.adminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.sender.SendText(ctx, chatID, text); err != nil {
		b.logger.Warn("reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// SendDailyReport aggregates today's counters and traffic and fans the
// summary out to the admins.
func (b *Bot) SendDailyReport(ctx context.Context) error {
	date := time.Now().Format("2006-01-02")

	stats, err := b.store.GetDailyStats(date)
	if err != nil {
		return fmt.Errorf("failed to load daily stats: %w", err)
	}
	top, err := b.store.TopOperations(date, 5)
	if err != nil {
		return fmt.Errorf("failed to load traffic totals: %w", err)
	}
	subscribers, err := b.store.ActiveSubscriberIDs(time.Now())
	if err != nil {
		return fmt.Errorf("failed to count subscribers: %w", err)
	}

	report := fmt.Sprintf(
		"📊 Отчёт за %s\n\nНовых пользователей: %d\nСообщений: %d\nМедиа: %d\nТрафик: %.1f МБ\nОбращений к ассистенту: %d\nНовых блокировок: %d\nАктивных подписчиков: %d",
		date, stats.NewUsers, stats.Messages, stats.MediaSent, float64(stats.BytesSent)/(1<<20),
		stats.AssistantCalls, stats.BlockedUsers, len(subscribers))

	if len(top) > 0 {
		report += "\n\nТоп операций:"
		for _, op := range top {
			report += fmt.Sprintf("\n• %s — %d (%.1f МБ)", op.Operation, op.Count, float64(op.Bytes)/(1<<20))
		}
	}

	b.NotifyAdmins(ctx, report)
	return nil
}
