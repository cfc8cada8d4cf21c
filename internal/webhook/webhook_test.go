package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avetra/funnel-bot/internal/payments"
)

type stubReconciler struct {
	hooks   []payments.Webhook
	outcome payments.Outcome
	err     error
}

func (s *stubReconciler) Process(_ context.Context, hook payments.Webhook) (payments.Outcome, error) {
	s.hooks = append(s.hooks, hook)
	return s.outcome, s.err
}

func newTestServer(rec *stubReconciler) *Server {
	return NewServer(":0", rec, zap.NewNop())
}

func TestWebhookJSON(t *testing.T) {
	rec := &stubReconciler{outcome: payments.OutcomeGranted}
	srv := newTestServer(rec)

	body := `{"user_comment":"bot_1_basic_0_1717000000","status":"success"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/getcourse", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.http.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, rec.hooks, 1)
	assert.Equal(t, "bot_1_basic_0_1717000000", rec.hooks[0].UserComment)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "granted", resp["result"])
}

func TestWebhookForm(t *testing.T) {
	rec := &stubReconciler{outcome: payments.OutcomeDuplicate}
	srv := newTestServer(rec)

	form := url.Values{
		"comment":        {"bot_2_vip_500_1717000000"},
		"payment_status": {"paid"},
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook/getcourse", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	srv.http.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, rec.hooks, 1)
	assert.Equal(t, "bot_2_vip_500_1717000000", rec.hooks[0].Comment)
	assert.Equal(t, "paid", rec.hooks[0].PaymentStatus)
}

func TestWebhookBadJSONAcknowledged(t *testing.T) {
	rec := &stubReconciler{}
	srv := newTestServer(rec)

	req := httptest.NewRequest(http.MethodPost, "/webhook/getcourse", strings.NewReader("{broken"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.http.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, rec.hooks)
	assert.Contains(t, w.Body.String(), "ignored")
}

func TestWebhookProcessingError(t *testing.T) {
	rec := &stubReconciler{err: assert.AnError}
	srv := newTestServer(rec)

	req := httptest.NewRequest(http.MethodPost, "/webhook/getcourse",
		strings.NewReader(`{"status":"success"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.http.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&stubReconciler{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
