package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/rafflepot-backend/api/responses"
	"github.com/angelmondragon/rafflepot-backend/api/validators"
	"github.com/angelmondragon/rafflepot-backend/internal/draws"
	"github.com/angelmondragon/rafflepot-backend/pkg/auth"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
)

type DrawService interface {
	RunDraw(ctx context.Context, principal auth.Principal, raffleID uuid.UUID) (*draws.DrawResult, error)
}

// AdminRunDraw selects a winner for the raffle and finalizes it.
func AdminRunDraw(svc DrawService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "draw service")
			return
		}
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}
		raffleID, err := validators.ParseUUIDParam(chi.URLParam(r, "raffleId"), "raffleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RunDraw(r.Context(), principal, raffleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
