// Package assistant drives per-user AI sessions with a daily reset.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var (
	// ErrTimeout means the run did not finish within the configured window.
	ErrTimeout = errors.New("assistant run timed out")
	// ErrRequestTooLarge means the prompt exceeded the model's limits.
	ErrRequestTooLarge = errors.New("request too large for assistant")
	// ErrRateLimited means the provider refused the run for quota reasons.
	ErrRateLimited = errors.New("assistant rate limited")
	// ErrEmptyReply means the run finished but produced no text.
	ErrEmptyReply = errors.New("assistant returned no reply")
)

const (
	runPollInterval  = 2 * time.Second
	activeRunRetry   = 3 * time.Second
	defaultRunWindow = 60 * time.Second
)

// Client wraps the provider's Assistants API for a single assistant id.
type Client struct {
	api         *openai.Client
	assistantID string
	runWindow   time.Duration
	logger      *zap.Logger
}

func NewClient(apiKey, assistantID string, runWindow time.Duration, logger *zap.Logger) *Client {
	if runWindow <= 0 {
		runWindow = defaultRunWindow
	}
	return &Client{
		api:         openai.NewClient(apiKey),
		assistantID: assistantID,
		runWindow:   runWindow,
		logger:      logger,
	}
}

// CreateThread opens a fresh conversation thread.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	return thread.ID, nil
}

// Exchange posts the user's message to the thread, runs the assistant
// and returns its reply.
func (c *Client) Exchange(ctx context.Context, threadID, text string) (string, error) {
	if err := c.cancelActiveRun(ctx, threadID); err != nil {
		c.logger.Warn("failed to clear active run", zap.String("thread_id", threadID), zap.Error(err))
	}

	_, err := c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to post message: %w", err)
	}

	run, err := c.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: c.assistantID})
	if err != nil {
		// Another run can slip in between the cancel and the create.
		if strings.Contains(err.Error(), "already has an active run") {
			time.Sleep(activeRunRetry)
			run, err = c.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: c.assistantID})
		}
		if err != nil {
			return "", fmt.Errorf("failed to start run: %w", err)
		}
	}

	if err := c.waitForRun(ctx, threadID, run.ID); err != nil {
		return "", err
	}
	return c.lastAssistantReply(ctx, threadID, run.ID)
}

func (c *Client) waitForRun(ctx context.Context, threadID, runID string) error {
	deadline := time.Now().Add(c.runWindow)
	for {
		run, err := c.api.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return fmt.Errorf("failed to poll run: %w", err)
		}

		switch run.Status {
		case openai.RunStatusCompleted:
			return nil
		case openai.RunStatusFailed:
			return classifyRunFailure(run)
		case openai.RunStatusCancelled, openai.RunStatusExpired:
			return fmt.Errorf("run ended with status %s", run.Status)
		case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:
		default:
			return fmt.Errorf("run ended with status %s", run.Status)
		}

		if time.Now().After(deadline) {
			if _, err := c.api.CancelRun(ctx, threadID, runID); err != nil {
				c.logger.Warn("failed to cancel timed out run",
					zap.String("thread_id", threadID), zap.Error(err))
			}
			return ErrTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(runPollInterval):
		}
	}
}

func classifyRunFailure(run openai.Run) error {
	if run.LastError != nil {
		switch run.LastError.Code {
		case "rate_limit_exceeded":
			return ErrRateLimited
		case "invalid_request_error":
			return ErrRequestTooLarge
		}
		return fmt.Errorf("run failed: %s", run.LastError.Message)
	}
	return errors.New("run failed")
}

func (c *Client) lastAssistantReply(ctx context.Context, threadID, runID string) (string, error) {
	limit := 1
	msgs, err := c.api.ListMessage(ctx, threadID, &limit, nil, nil, nil, &runID)
	if err != nil {
		return "", fmt.Errorf("failed to list messages: %w", err)
	}

	for _, msg := range msgs.Messages {
		if msg.Role != string(openai.ChatMessageRoleAssistant) {
			continue
		}
		for _, part := range msg.Content {
			if part.Text != nil && part.Text.Value != "" {
				return part.Text.Value, nil
			}
		}
	}
	return "", ErrEmptyReply
}

// cancelActiveRun aborts a still-running exchange so the thread accepts
// a new message.
func (c *Client) cancelActiveRun(ctx context.Context, threadID string) error {
	limit := 1
	runs, err := c.api.ListRuns(ctx, threadID, openai.Pagination{Limit: &limit})
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	for _, run := range runs.Runs {
		switch run.Status {
		case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusRequiresAction:
			if _, err := c.api.CancelRun(ctx, threadID, run.ID); err != nil {
				return fmt.Errorf("failed to cancel run %s: %w", run.ID, err)
			}
		}
	}
	return nil
}

// Transcribe converts a downloaded voice file to text.
func (c *Client) Transcribe(ctx context.Context, filePath string) (string, error) {
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filePath,
		Language: "ru",
	})
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return resp.Text, nil
}
