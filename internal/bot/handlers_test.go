package bot

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avetra/funnel-bot/internal/models"
)

func TestParseStartParamReferral(t *testing.T) {
	param := ParseStartParam(2, "r12345")
	require.Equal(t, int64(12345), param.ReferrerID)
	assert.Nil(t, param.UTM)

	param = ParseStartParam(2, "ref777")
	assert.Equal(t, int64(777), param.ReferrerID)
}

func TestParseStartParamUTM(t *testing.T) {
	param := ParseStartParam(2, "welcome2025-ads-june")
	require.NotNil(t, param.UTM)
	assert.Zero(t, param.ReferrerID)
	assert.Equal(t, models.UserUTM{UserID: 2, Source: "welcome2025", Medium: "ads", Campaign: "june"}, *param.UTM)

	// Older links used underscores.
	param = ParseStartParam(2, "w25_blog_post")
	require.NotNil(t, param.UTM)
	assert.Equal(t, models.UserUTM{UserID: 2, Source: "w25", Medium: "blog", Campaign: "post"}, *param.UTM)

	param = ParseStartParam(2, "youtube")
	require.NotNil(t, param.UTM)
	assert.Equal(t, "youtube", param.UTM.Source)
	assert.Empty(t, param.UTM.Medium)
}

func TestParseStartParamEdgeCases(t *testing.T) {
	assert.Equal(t, StartParam{}, ParseStartParam(2, ""))
	assert.Equal(t, StartParam{}, ParseStartParam(2, "   "))

	// A bare "r" or non-numeric tail is not a referral link.
	param := ParseStartParam(2, "react-course")
	assert.Zero(t, param.ReferrerID)
	require.NotNil(t, param.UTM)
	assert.Equal(t, "react", param.UTM.Source)

	param = ParseStartParam(2, "r")
	assert.Zero(t, param.ReferrerID)
}

func TestHandleCallbackWithoutMessage(t *testing.T) {
	// Callbacks on messages older than 48h carry no message; the handler
	// must drop them instead of panicking.
	b := &Bot{}
	assert.NotPanics(t, func() {
		b.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
			ID:   "stale",
			From: &tgbotapi.User{ID: 1},
			Data: "tariffs",
		})
	})
}

func TestSanitizeAssistantReply(t *testing.T) {
	in := "<p>Привет!</p>Вот план:<br>**шаг 1**<br/>шаг 2"
	assert.Equal(t, "Привет!\nВот план:\nшаг 1\nшаг 2", sanitizeAssistantReply(in))
	assert.Equal(t, "чистый текст", sanitizeAssistantReply("чистый текст"))
}

func TestTariffPricesFor(t *testing.T) {
	p := TariffPrices{Basic: 2990, VIP: 6990, Course: 19900, OfferBasic: "b30", OfferVIP: "v30", OfferCrs: "crs"}

	price, offer := p.For(models.TariffVIP)
	assert.Equal(t, 6990, price)
	assert.Equal(t, "v30", offer)

	price, offer = p.For(models.TariffBasic)
	assert.Equal(t, 2990, price)
	assert.Equal(t, "b30", offer)

	// Unknown kinds fall back to basic.
	price, _ = p.For(models.TariffNone)
	assert.Equal(t, 2990, price)
}
