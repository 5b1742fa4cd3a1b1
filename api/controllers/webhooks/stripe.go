package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// maxWebhookBody caps the payload read from Stripe.
const maxWebhookBody = 64 << 10

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (string, error)
	RecordDuplicate(eventType stripe.EventType)
}

type stripeWebhookGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

type ackResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}

// StripeWebhook verifies and dispatches checkout payment events. Every
// verified event is acknowledged with 200 unless its payload cannot be
// decoded; redeliveries of an already claimed event id are acknowledged
// without reprocessing.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard stripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
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
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}
		if len(payload) == 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "empty payload"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}

		if logg != nil {
			ctx = logg.WithEventID(ctx, event.ID)
			ctx = logg.WithField(ctx, "event_type", string(event.Type))
		}

		claimed, err := guard.Claim(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim webhook event"))
			return
		}
		if !claimed {
			svc.RecordDuplicate(event.Type)
			if logg != nil {
				logg.Info(ctx, "stripe.webhook.duplicate")
			}
			responses.WriteSuccess(w, ackResponse{Received: true, Outcome: "duplicate"})
			return
		}

		outcome, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			if releaseErr := guard.Release(ctx, event.ID); releaseErr != nil && logg != nil {
				logg.Error(ctx, "stripe.webhook.release_failed", releaseErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "outcome", outcome), "stripe.webhook.handled")
		}
		responses.WriteSuccess(w, ackResponse{Received: true, Outcome: outcome})
	}
}
