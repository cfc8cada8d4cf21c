package getcourse

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCreatePaymentLink(t *testing.T) {
	var gotDeal dealRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/pl/api/deals", r.URL.Path)
		assert.Equal(t, "add", r.FormValue("action"))
		assert.Equal(t, "secret", r.FormValue("key"))

		raw, err := base64.StdEncoding.DecodeString(r.FormValue("params"))
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &gotDeal))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result":  map[string]any{"payment_link": "https://pay.example.com/d/1"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", "", zap.NewNop())

	link, err := client.CreatePaymentLink(context.Background(), "u@example.com", "basic_30", 2990, "bot_1_basic_0_1717000000")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/d/1", link)
	assert.Equal(t, "u@example.com", gotDeal.User.Email)
	assert.Equal(t, "basic_30", gotDeal.Deal.OfferCode)
	assert.Equal(t, "2990", gotDeal.Deal.DealCost)
	assert.Equal(t, "bot_1_basic_0_1717000000", gotDeal.Deal.DealComment)
}

func TestCreatePaymentLinkRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"result":  map[string]any{"error_message": "offer not found"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", "", zap.NewNop())

	_, err := client.CreatePaymentLink(context.Background(), "u@example.com", "missing", 100, "bot_1_basic_0_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offer not found")
}

func TestPushReferralBalance(t *testing.T) {
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient("", "", srv.URL, zap.NewNop())

	require.NoError(t, client.PushReferralBalance(context.Background(), "ref@example.com", 1500))
	assert.Equal(t, "ref@example.com", got["email"])
	assert.Equal(t, float64(1500), got["quantity"])
}

func TestPushReferralBalanceDisabled(t *testing.T) {
	client := NewClient("", "", "", zap.NewNop())
	assert.NoError(t, client.PushReferralBalance(context.Background(), "ref@example.com", 500))
}
