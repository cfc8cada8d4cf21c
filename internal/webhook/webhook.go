// Package webhook exposes the HTTP endpoint the payment platform calls
// back on.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/avetra/funnel-bot/internal/payments"
)

// Reconciler processes one decoded payment webhook.
type Reconciler interface {
	Process(ctx context.Context, hook payments.Webhook) (payments.Outcome, error)
}

type Server struct {
	http       *http.Server
	reconciler Reconciler
	logger     *zap.Logger
}

func NewServer(addr string, reconciler Reconciler, logger *zap.Logger) *Server {
	s := &Server{reconciler: reconciler, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Post("/webhook/getcourse", s.handleGetCourse)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleGetCourse accepts both JSON bodies and form posts: the platform
// switched formats over time and retries old deliveries.
func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	hook, err := decodeWebhook(r)
	if err != nil {
		// Unreadable payloads are acknowledged so the platform stops
		// retrying them.
		s.logger.Warn("undecodable webhook acknowledged", zap.Error(err))
		writeOutcome(w, payments.OutcomeIgnored)
		return
	}

	outcome, err := s.reconciler.Process(r.Context(), hook)
	if err != nil {
		s.logger.Error("webhook processing failed", zap.Error(err))
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}
	writeOutcome(w, outcome)
}

func decodeWebhook(r *http.Request) (payments.Webhook, error) {
	var hook payments.Webhook

	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		err := json.NewDecoder(r.Body).Decode(&hook)
		return hook, err
	}

	if err := r.ParseForm(); err != nil {
		return hook, err
	}
	hook.UserComment = r.PostFormValue("user_comment")
	hook.Comment = r.PostFormValue("comment")
	hook.CustomField = r.PostFormValue("custom_field")
	hook.UTMSource = r.PostFormValue("utm_source")
	hook.Status = r.PostFormValue("status")
	hook.PaymentStatus = r.PostFormValue("payment_status")
	return hook, nil
}

func writeOutcome(w http.ResponseWriter, outcome payments.Outcome) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"result": string(outcome)})
}
