package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/decodecollective/decode-backend/api/responses"
	"github.com/decodecollective/decode-backend/pkg/db/models"
	pkgerrors "github.com/decodecollective/decode-backend/pkg/errors"
	"github.com/decodecollective/decode-backend/pkg/logger"
)

// NotificationService is the read surface the notifications route exposes.
type NotificationService interface {
	ListForRecipient(ctx context.Context, email string, limit int) ([]models.Notification, error)
}

// ListNotifications returns the most recent notification records for a
// recipient email.
func ListNotifications(svc NotificationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification service unavailable"))
			return
		}

		email := r.URL.Query().Get("email")
		if email == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "email query parameter is required"))
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer"))
				return
			}
			limit = parsed
		}

		notifications, err := svc.ListForRecipient(ctx, email, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications"))
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"notifications": notifications,
			"count":         len(notifications),
		})
	}
}
