package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rafflepot-backend/internal/draws"
	"github.com/angelmondragon/rafflepot-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/rafflepot-backend/pkg/errors"
)

type stubDrawService struct {
	result *draws.DrawResult
	err    error
	caller auth.Principal
}

func (s *stubDrawService) RunDraw(_ context.Context, principal auth.Principal, raffleID uuid.UUID) (*draws.DrawResult, error) {
	s.caller = principal
	if s.result != nil {
		s.result.RaffleID = raffleID
	}
	return s.result, s.err
}

func TestAdminRunDraw(t *testing.T) {
	raffleID := uuid.New()
	svc := &stubDrawService{result: &draws.DrawResult{
		WinnerUserID:        uuid.New(),
		WinningTicketNumber: "TKT-W1N",
		TicketCount:         3,
		DrawnAt:             time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}
	rec := httptest.NewRecorder()
	AdminRunDraw(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", "", &testAdmin, map[string]string{"raffleId": raffleID.String()}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.caller != testAdmin {
		t.Fatalf("principal not forwarded")
	}
	got := decodeData[draws.DrawResult](t, rec)
	if got.RaffleID != raffleID || got.WinningTicketNumber != "TKT-W1N" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestAdminRunDrawAlreadyFinalized(t *testing.T) {
	svc := &stubDrawService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "raffle has already been drawn").WithReason(draws.ReasonAlreadyFinalized)}
	rec := httptest.NewRecorder()
	AdminRunDraw(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", "", &testAdmin, map[string]string{"raffleId": uuid.NewString()}))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error.Details[pkgerrors.ReasonKey] != draws.ReasonAlreadyFinalized {
		t.Fatalf("unexpected details %v", body.Error.Details)
	}
}
