// Package getcourse talks to the GetCourse commerce platform: order
// creation for payment links and referral balance export.
package getcourse

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

// Client is a thin HTTP wrapper over the platform's export API.
type Client struct {
	apiURL     string
	apiKey     string
	balanceURL string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(apiURL, apiKey, balanceURL string, logger *zap.Logger) *Client {
	return &Client{
		apiURL:     apiURL,
		apiKey:     apiKey,
		balanceURL: balanceURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

type dealRequest struct {
	User struct {
		Email string `json:"email"`
	} `json:"user"`
	Deal struct {
		OfferCode   string `json:"offer_code"`
		DealCost    string `json:"deal_cost"`
		DealComment string `json:"deal_comment"`
	} `json:"deal"`
	System struct {
		ReturnPaymentLink string `json:"return_payment_link"`
	} `json:"system"`
}

type dealResponse struct {
	Success bool `json:"success"`
	Result  struct {
		SuccessMessage string `json:"success_message"`
		PaymentLink    string `json:"payment_link"`
		ErrorMessage   string `json:"error_message"`
	} `json:"result"`
}

// CreatePaymentLink registers a deal and returns the hosted payment
// page URL. The token travels in the deal comment and comes back in the
// payment webhook.
func (c *Client) CreatePaymentLink(ctx context.Context, email, offerCode string, cost int, token string) (string, error) {
	var deal dealRequest
	deal.User.Email = email
	deal.Deal.OfferCode = offerCode
	deal.Deal.DealCost = strconv.Itoa(cost)
	deal.Deal.DealComment = token
	deal.System.ReturnPaymentLink = "1"

	payload, err := json.Marshal(deal)
	if err != nil {
		return "", fmt.Errorf("failed to encode deal: %w", err)
	}

	form := url.Values{
		"action": {"add"},
		"key":    {c.apiKey},
		"params": {base64.StdEncoding.EncodeToString(payload)},
	}

	endpoint := c.apiURL + "/pl/api/deals"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deal request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read deal response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deal request returned status %d", resp.StatusCode)
	}

	var parsed dealResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode deal response: %w", err)
	}
	if !parsed.Success || parsed.Result.PaymentLink == "" {
		return "", fmt.Errorf("deal rejected: %s", parsed.Result.ErrorMessage)
	}

	c.logger.Info("payment link created",
		zap.String("offer", offerCode),
		zap.Int("cost", cost))
	return parsed.Result.PaymentLink, nil
}

// PushReferralBalance mirrors a referrer's bonus balance into their
// platform account.
func (c *Client) PushReferralBalance(ctx context.Context, email string, balance int) error {
	if c.balanceURL == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"email":    email,
		"quantity": balance,
	})
	if err != nil {
		return fmt.Errorf("failed to encode balance update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.balanceURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("balance push failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("balance push returned status %d", resp.StatusCode)
	}
	return nil
}
