package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/decodecollective/decode-backend/pkg/config"
	pkgerrors "github.com/decodecollective/decode-backend/pkg/errors"
	"github.com/decodecollective/decode-backend/pkg/logger"
)

// Client talks to the external delayed-callback service that fires the
// auction-close and payout-unlock callbacks back into this API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	callbackURL string
	maxRetries  uint64
	logg        *logger.Logger
}

type scheduleRequest struct {
	URL         string    `json:"url"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Body        any       `json:"body"`
}

type scheduleResponse struct {
	Handle string `json:"handle"`
}

// CallbackBody is the payload the scheduler delivers back to the API.
type CallbackBody struct {
	AuctionID     uuid.UUID `json:"auction_id"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Action        string    `json:"action,omitempty"`
}

// NewClient validates configuration and returns a scheduler client.
func NewClient(cfg config.SchedulerConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("scheduler base url is required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("scheduler token is required")
	}
	if strings.TrimSpace(cfg.CallbackURL) == "" {
		return nil, errors.New("scheduler callback url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		callbackURL: cfg.CallbackURL,
		maxRetries:  uint64(maxRetries),
		logg:        logg,
	}, nil
}

// Schedule registers a callback at runAt and returns the opaque handle the
// service assigned to it.
func (c *Client) Schedule(ctx context.Context, body CallbackBody, runAt time.Time) (string, error) {
	if body.AuctionID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "auction id is required")
	}
	body.ScheduledTime = runAt

	payload, err := json.Marshal(scheduleRequest{
		URL:         c.callbackURL,
		ScheduledAt: runAt,
		Body:        body,
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode schedule request")
	}

	var handle string
	err = c.withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/schedules", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("scheduler returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("scheduler rejected request: %d", resp.StatusCode)
		}

		var decoded scheduleResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return fmt.Errorf("decode schedule response: %w", err)
		}
		if decoded.Handle == "" {
			return errors.New("scheduler response missing handle")
		}
		handle = decoded.Handle
		return nil
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "schedule callback")
	}
	return handle, nil
}

// Cancel deletes a scheduled callback by handle. A handle the service no
// longer knows is treated as already cancelled.
func (c *Client) Cancel(ctx context.Context, handle string) error {
	if strings.TrimSpace(handle) == "" {
		return nil
	}

	err := c.withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/schedules/"+handle, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil
		case resp.StatusCode >= http.StatusInternalServerError:
			return retry.RetryableError(fmt.Errorf("scheduler returned %d", resp.StatusCode))
		case resp.StatusCode >= http.StatusBadRequest:
			return fmt.Errorf("scheduler rejected cancel: %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel scheduled callback")
	}
	return nil
}

func (c *Client) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewFibonacci(500*time.Millisecond))
	return retry.Do(ctx, backoff, fn)
}
