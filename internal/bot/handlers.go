package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/avetra/funnel-bot/internal/assistant"
	"github.com/avetra/funnel-bot/internal/models"
	"github.com/avetra/funnel-bot/internal/payments"
	"github.com/avetra/funnel-bot/internal/referral"
)

const welcomeText = `Привет! Я твой AI-наставник 🤖

Помогаю разобраться, с чего начать, и веду к результату шаг за шагом.

Выбери, что интересно, или просто напиши свой вопрос.`

const mainMenuText = "Главное меню. Чем могу помочь?"

// StartParam is the decoded deep-link payload of the /start command.
type StartParam struct {
	ReferrerID int64
	UTM        *models.UserUTM
}

// ParseStartParam decodes a deep-link payload. Referral links carry
// "r<id>" or "ref<id>"; anything else is treated as acquisition tags,
// either as "src", "src-med" or "src-med-camp" (underscores accepted
// for older links).
func ParseStartParam(userID int64, raw string) StartParam {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return StartParam{}
	}

	for _, prefix := range []string{"ref", "r"} {
		rest := strings.TrimPrefix(raw, prefix)
		if rest == raw || rest == "" {
			continue
		}
		if id, err := strconv.ParseInt(rest, 10, 64); err == nil && id > 0 {
			return StartParam{ReferrerID: id}
		}
	}

	sep := "-"
	if !strings.Contains(raw, "-") && strings.Contains(raw, "_") {
		sep = "_"
	}
	parts := strings.SplitN(raw, sep, 3)
	utm := &models.UserUTM{UserID: userID, Source: parts[0]}
	if len(parts) > 1 {
		utm.Medium = parts[1]
	}
	if len(parts) > 2 {
		utm.Campaign = parts[2]
	}
	return StartParam{UTM: utm}
}

func mainKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💳 Тарифы", "tariffs"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎁 Реферальная программа", "referral"),
			tgbotapi.NewInlineKeyboardButtonData("ℹ️ Мой доступ", "my_access"),
		),
	)
}

func tariffKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Базовый", "buy_basic"),
			tgbotapi.NewInlineKeyboardButtonData("VIP", "buy_vip"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Курс", "buy_course"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ В главное меню", "back_to_main"),
		),
	)
}

func tariffMenuText(p TariffPrices) string {
	return fmt.Sprintf(
		"Тарифы:\n\n• Базовый — %d ₽/мес: доступ к AI-наставнику\n• VIP — %d ₽/мес: наставник + разборы\n• Курс — %d ₽: полная программа\n\nБонусы реферальной программы списываются автоматически.",
		p.Basic, p.VIP, p.Course)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID

	switch message.Command() {
	case "start":
		b.handleStart(ctx, message)
	case "menu":
		if err := b.tracker.Disengage(userID); err != nil {
			b.logger.Error("failed to record activity", zap.Int64("user_id", userID), zap.Error(err))
		}
		b.sendMainMenu(ctx, message.Chat.ID)
	case "referral":
		b.showReferralMenu(ctx, message.Chat.ID, userID)
	case "report":
		if b.isAdmin(userID) {
			if err := b.SendDailyReport(ctx); err != nil {
				b.logger.Error("on-demand report failed", zap.Error(err))
				b.reply(ctx, message.Chat.ID, "Не удалось собрать отчёт.")
			}
		}
	case "broadcast":
		if b.isAdmin(userID) {
			b.handleBroadcast(ctx, message)
		}
	case "testpromo":
		if b.isAdmin(userID) {
			b.handleTestPromo(ctx, message)
		}
	default:
		b.reply(ctx, message.Chat.ID, "Не знаю такую команду. Напиши /start, чтобы начать сначала.")
	}
}

// handleStart is the entry interaction: it restarts the idle countdown
// without completing the funnel, so the drip campaign can still run.
func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID

	if err := b.tracker.Touch(userID); err != nil {
		b.logger.Error("failed to record entry", zap.Int64("user_id", userID), zap.Error(err))
	}
	if err := b.referrals.EnsureAccount(userID); err != nil {
		b.logger.Error("failed to ensure referral account", zap.Int64("user_id", userID), zap.Error(err))
	}

	param := ParseStartParam(userID, message.CommandArguments())
	if param.ReferrerID != 0 {
		b.registerReferral(ctx, message.Chat.ID, userID, param.ReferrerID)
	}
	if param.UTM != nil {
		if err := b.store.SaveUTM(*param.UTM); err != nil {
			b.logger.Warn("failed to save utm", zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	if err := b.sender.SendTextWithKeyboard(ctx, message.Chat.ID, welcomeText, mainKeyboard()); err != nil {
		b.logger.Warn("welcome send failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (b *Bot) registerReferral(ctx context.Context, chatID, userID, referrerID int64) {
	err := b.referrals.Register(userID, referrerID)
	switch {
	case err == nil:
		b.reply(ctx, chatID, "Ты пришёл по приглашению — бонус другу начислится после твоей первой оплаты 🎁")
	case errors.Is(err, referral.ErrSelfReferral),
		errors.Is(err, referral.ErrAlreadyReferred),
		errors.Is(err, referral.ErrReferrerUnknown):
		// Bad referral links degrade to a plain start.
	default:
		b.logger.Warn("referral registration failed",
			zap.Int64("user_id", userID),
			zap.Int64("referrer_id", referrerID),
			zap.Error(err))
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	// Callbacks for messages older than 48h arrive without the message.
	if query.Message == nil {
		return
	}
	userID := query.From.ID
	chatID := query.Message.Chat.ID

	// Ack the button press so the client stops the spinner.
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Debug("callback ack failed", zap.Error(err))
	}

	if query.Data != "back_to_main" {
		if err := b.tracker.Disengage(userID); err != nil {
			b.logger.Error("failed to record activity", zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	switch query.Data {
	case "back_to_main":
		// The disengage interaction: resets the countdown and ends the
		// drip campaign for this user permanently.
		if err := b.tracker.Disengage(userID); err != nil {
			b.logger.Error("failed to disengage", zap.Int64("user_id", userID), zap.Error(err))
		}
		b.sendMainMenu(ctx, chatID)
	case "tariffs":
		if err := b.sender.SendTextWithKeyboard(ctx, chatID, tariffMenuText(b.prices), tariffKeyboard()); err != nil {
			b.logger.Warn("tariff menu send failed", zap.Error(err))
		}
	case "buy_basic":
		b.handleBuy(ctx, chatID, userID, models.TariffBasic)
	case "buy_vip":
		b.handleBuy(ctx, chatID, userID, models.TariffVIP)
	case "buy_course":
		b.handleBuy(ctx, chatID, userID, models.TariffCourse)
	case "referral":
		b.showReferralMenu(ctx, chatID, userID)
	case "set_email":
		if err := b.store.SetAwaitingReferrer(userID, true); err != nil {
			b.logger.Error("failed to set email flow flag", zap.Int64("user_id", userID), zap.Error(err))
		}
		b.reply(ctx, chatID, "Отправь email, на который оформлены покупки — на него будут приходить бонусы.")
	case "my_access":
		b.showAccessStatus(ctx, chatID, userID)
	default:
		b.logger.Debug("unknown callback", zap.String("data", query.Data))
	}
}

func (b *Bot) sendMainMenu(ctx context.Context, chatID int64) {
	if err := b.sender.SendTextWithKeyboard(ctx, chatID, mainMenuText, mainKeyboard()); err != nil {
		b.logger.Warn("main menu send failed", zap.Error(err))
	}
}

func (b *Bot) showAccessStatus(ctx context.Context, chatID, userID int64) {
	status, err := b.entitlements.Status(userID)
	if err != nil {
		b.logger.Error("failed to load status", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(ctx, chatID, "Не получилось проверить доступ, попробуй чуть позже.")
		return
	}
	if status == nil || !status.IsActive {
		if err := b.sender.SendTextWithKeyboard(ctx, chatID,
			"У тебя пока нет активного доступа. Выбери тариф 👇", tariffKeyboard()); err != nil {
			b.logger.Warn("status send failed", zap.Error(err))
		}
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf(
		"Твой тариф: %s\nДоступ до: %s\nОсталось дней: %d",
		tariffTitle(status.Tariff), status.ExpiresAt.Format("02.01.2006"), status.DaysLeft))
}

func (b *Bot) showReferralMenu(ctx context.Context, chatID, userID int64) {
	acc, err := b.referrals.Account(userID)
	if err != nil {
		b.logger.Error("failed to load referral account", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(ctx, chatID, "Не получилось открыть реферальный кабинет, попробуй позже.")
		return
	}

	link := fmt.Sprintf("https://t.me/%s?start=r%d", b.api.Self.UserName, userID)
	text := fmt.Sprintf(
		"🎁 Реферальная программа\n\nТвоя ссылка:\n%s\n\nБаланс бонусов: %d ₽\n\nЗа каждого друга, который оплатит подписку, ты получаешь %d ₽. Бонусы автоматически уменьшают цену твоей следующей оплаты.",
		link, acc.Balance, b.bonusUnit)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📧 Указать email", "set_email"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ В главное меню", "back_to_main"),
		),
	)
	if err := b.sender.SendTextWithKeyboard(ctx, chatID, text, keyboard); err != nil {
		b.logger.Warn("referral menu send failed", zap.Error(err))
	}
}

func (b *Bot) handleEmailInput(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	email := strings.TrimSpace(message.Text)

	if err := b.referrals.SetEmail(userID, email); err != nil {
		b.reply(ctx, message.Chat.ID, "Это не похоже на email. Попробуй ещё раз, например: name@example.com")
		return
	}
	if err := b.store.SetAwaitingReferrer(userID, false); err != nil {
		b.logger.Error("failed to clear email flow flag", zap.Int64("user_id", userID), zap.Error(err))
	}
	b.reply(ctx, message.Chat.ID, "Email сохранён ✅")
}

// handleBuy builds a discounted payment link. The whole spendable part
// of the referral balance is applied as the discount.
func (b *Bot) handleBuy(ctx context.Context, chatID, userID int64, tariff models.TariffKind) {
	acc, err := b.referrals.Account(userID)
	if err != nil {
		b.logger.Error("failed to load referral account", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(ctx, chatID, "Не получилось подготовить оплату, попробуй позже.")
		return
	}
	if acc.Email == "" {
		if err := b.store.SetAwaitingReferrer(userID, true); err != nil {
			b.logger.Error("failed to set email flow flag", zap.Int64("user_id", userID), zap.Error(err))
		}
		b.reply(ctx, chatID, "Для оплаты нужен email. Отправь его одним сообщением 👇")
		return
	}

	price, offer := b.prices.For(tariff)
	discount := 0
	if b.bonusUnit > 0 && acc.Balance >= b.bonusUnit {
		discount = acc.Balance - acc.Balance%b.bonusUnit
		if discount > price {
			discount = price - price%b.bonusUnit
		}
	}

	token := payments.EncodeToken(userID, tariff, discount, time.Now().Unix())
	link, err := b.commerce.CreatePaymentLink(ctx, acc.Email, offer, price-discount, token)
	if err != nil {
		b.logger.Error("failed to create payment link",
			zap.Int64("user_id", userID),
			zap.String("tariff", string(tariff)),
			zap.Error(err))
		b.reply(ctx, chatID, "Платёжная система сейчас недоступна. Попробуй через пару минут.")
		return
	}

	text := fmt.Sprintf("Тариф: %s\nЦена: %d ₽", tariffTitle(tariff), price-discount)
	if discount > 0 {
		text += fmt.Sprintf(" (бонусами списано %d ₽)", discount)
	}
	text += "\n\nОплатить 👇\n" + link
	b.reply(ctx, chatID, text)
}

// handleChat is the AI conversation path behind the entitlement gate.
func (b *Bot) handleChat(ctx context.Context, chatID, userID int64, text string) {
	entitled, err := b.entitlements.IsEntitled(userID)
	if err != nil {
		b.logger.Error("entitlement check failed", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(ctx, chatID, "Что-то пошло не так, попробуй ещё раз.")
		return
	}
	if !entitled {
		if err := b.sender.SendTextWithKeyboard(ctx, chatID,
			"Чтобы общаться с наставником, нужен активный доступ. Выбери тариф 👇", tariffKeyboard()); err != nil {
			b.logger.Warn("gate message send failed", zap.Error(err))
		}
		return
	}

	threadID, err := b.registry.Ensure(ctx, userID)
	if err != nil {
		b.logger.Error("failed to ensure thread", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(ctx, chatID, "Наставник сейчас недоступен, попробуй через минуту 🙏")
		return
	}

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := b.api.Request(typing); err != nil {
		b.logger.Debug("typing action failed", zap.Error(err))
	}

	reply, err := b.ai.Exchange(ctx, threadID, text)
	if errors.Is(err, assistant.ErrRateLimited) {
		// One bounded retry after a short pause.
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
		reply, err = b.ai.Exchange(ctx, threadID, text)
	}
	if err != nil {
		if errors.Is(err, assistant.ErrRequestTooLarge) {
			// An overlong conversation keeps failing on the same
			// thread; start the user over.
			if resetErr := b.registry.Reset(userID); resetErr != nil {
				b.logger.Error("failed to reset thread", zap.Int64("user_id", userID), zap.Error(resetErr))
			}
		}
		b.reply(ctx, chatID, assistantFallback(err))
		b.logger.Warn("assistant exchange failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	b.bumpAssistantStats()
	b.reply(ctx, chatID, sanitizeAssistantReply(reply))
}

func (b *Bot) bumpAssistantStats() {
	date := time.Now().Format("2006-01-02")
	if err := b.store.BumpDailyStats(date, models.DailyStats{AssistantCalls: 1}); err != nil {
		b.logger.Warn("failed to bump assistant stats", zap.Error(err))
	}
}

func assistantFallback(err error) string {
	switch {
	case errors.Is(err, assistant.ErrTimeout):
		return "Наставник задумался дольше обычного 😅 Повтори вопрос, пожалуйста."
	case errors.Is(err, assistant.ErrRequestTooLarge):
		return "Сообщение получилось слишком длинным. Разбей его на части, и я отвечу."
	case errors.Is(err, assistant.ErrRateLimited):
		return "Сейчас слишком много вопросов одновременно. Подожди минутку и напиши снова."
	}
	return "Не получилось получить ответ. Попробуй ещё раз чуть позже 🙏"
}

// sanitizeAssistantReply strips markup the chat client cannot render.
func sanitizeAssistantReply(text string) string {
	replacer := strings.NewReplacer(
		"<br>", "\n", "<br/>", "\n", "<br />", "\n",
		"<p>", "", "</p>", "\n",
		"**", "", "##", "", "###", "",
	)
	return strings.TrimSpace(replacer.Replace(text))
}
