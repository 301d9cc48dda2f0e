package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/decodecollective/decode-backend/api/responses"
	stripewebhooks "github.com/decodecollective/decode-backend/internal/webhooks/stripe"
	pkgerrors "github.com/decodecollective/decode-backend/pkg/errors"
	"github.com/decodecollective/decode-backend/pkg/logger"
)

type StripeWebhookService interface {
	ProcessEvent(ctx context.Context, event stripe.Event) (*stripewebhooks.Result, error)
}

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhook verifies the delivery signature and hands the event to the
// dispatcher. Handler errors return 5xx so the gateway redelivers.
func StripeWebhook(svc StripeWebhookService, client stripeClient, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature"))
			return
		}

		result, err := svc.ProcessEvent(ctx, event)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			switch {
			case result.Duplicate:
				logg.Info(ctx, fmt.Sprintf("stripe event %s already processed", event.ID))
			case !result.Handled:
				logg.Info(ctx, fmt.Sprintf("stripe event %s acknowledged unhandled", event.ID))
			default:
				logg.Info(ctx, fmt.Sprintf("stripe event %s processed", event.ID))
			}
		}
		responses.WriteSuccess(w, map[string]bool{
			"duplicate": result.Duplicate,
			"handled":   result.Handled,
		})
	}
}
