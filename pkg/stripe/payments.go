package stripe

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/decodecollective/decode-backend/pkg/errors"
)

// Intent is the gateway-agnostic view of a payment intent that callers get
// back from Authorize.
type Intent struct {
	ID     string
	Status string
}

const currency = string(stripe.CurrencyUSD)

// transientAttempts bounds the retry loop on idempotent gateway calls.
const transientAttempts = 3

// Authorize places a manual-capture hold for amount on the given payment
// method. The funds are reserved but not charged until Capture.
func (c *Client) Authorize(ctx context.Context, amount decimal.Decimal, paymentMethodID string, metadata map[string]string) (*Intent, error) {
	if c == nil || c.api == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client not initialized")
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "authorization amount must be positive")
	}
	if paymentMethodID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}

	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(amountToCents(amount)),
		Currency:      stripe.String(currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		PaymentMethod: stripe.String(paymentMethodID),
		Confirm:       stripe.Bool(true),
	}
	if len(metadata) > 0 {
		params.Metadata = metadata
	}

	pi, err := c.api.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, mapStripeError(err, "authorize payment")
	}
	if pi.Status != stripe.PaymentIntentStatusRequiresCapture {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayDecl, "authorization did not reach requires_capture").
			WithDetails(map[string]any{"intent_id": pi.ID, "status": string(pi.Status)})
	}
	return &Intent{ID: pi.ID, Status: string(pi.Status)}, nil
}

// Capture converts a hold into a charge. Capturing an intent that already
// succeeded is a no-op success so retried settlements degrade gracefully.
func (c *Client) Capture(ctx context.Context, intentID string) error {
	if c == nil || c.api == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "stripe client not initialized")
	}
	if intentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}

	pi, err := c.retrieve(ctx, intentID)
	if err != nil {
		return err
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return nil
	case stripe.PaymentIntentStatusCanceled:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot capture a cancelled payment intent").
			WithDetails(map[string]any{"intent_id": intentID})
	}

	if _, err := c.api.V1PaymentIntents.Capture(ctx, intentID, &stripe.PaymentIntentCaptureParams{}); err != nil {
		return mapStripeError(err, "capture payment")
	}
	return nil
}

// Cancel releases a hold. Cancelling an already-cancelled intent succeeds.
func (c *Client) Cancel(ctx context.Context, intentID string) error {
	if c == nil || c.api == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "stripe client not initialized")
	}
	if intentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}

	return c.withTransientRetry(ctx, func(ctx context.Context) error {
		pi, err := c.retrieve(ctx, intentID)
		if err != nil {
			return err
		}
		if pi.Status == stripe.PaymentIntentStatusCanceled {
			return nil
		}
		if _, err := c.api.V1PaymentIntents.Cancel(ctx, intentID, &stripe.PaymentIntentCancelParams{}); err != nil {
			return mapStripeError(err, "cancel payment")
		}
		return nil
	})
}

// Refund returns the captured funds for an intent. An already-refunded charge
// is treated as success.
func (c *Client) Refund(ctx context.Context, intentID, reason string) error {
	if c == nil || c.api == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "stripe client not initialized")
	}
	if intentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}

	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(intentID),
	}
	if reason != "" {
		params.AddMetadata("reason", reason)
	}

	return c.withTransientRetry(ctx, func(ctx context.Context) error {
		if _, err := c.api.V1Refunds.Create(ctx, params); err != nil {
			var sErr *stripe.Error
			if errors.As(err, &sErr) && sErr.Code == stripe.ErrorCodeChargeAlreadyRefunded {
				return nil
			}
			return mapStripeError(err, "refund payment")
		}
		return nil
	})
}

func (c *Client) retrieve(ctx context.Context, intentID string) (*stripe.PaymentIntent, error) {
	pi, err := c.api.V1PaymentIntents.Retrieve(ctx, intentID, &stripe.PaymentIntentRetrieveParams{})
	if err != nil {
		return nil, mapStripeError(err, "retrieve payment intent")
	}
	return pi, nil
}

func (c *Client) withTransientRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(transientAttempts, retry.NewFibonacci(250*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeDependency {
			return retry.RetryableError(err)
		}
		return err
	})
}

func mapStripeError(err error, op string) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		switch sErr.Type {
		case stripe.ErrorTypeCard:
			return pkgerrors.Wrap(pkgerrors.CodeGatewayDecl, err, op).
				WithDetails(map[string]any{"decline_code": string(sErr.Code)})
		case stripe.ErrorTypeInvalidRequest:
			if sErr.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
				return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, op)
			}
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, op)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func amountToCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.New(100, 0)).Round(0).IntPart()
}
