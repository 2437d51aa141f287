package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RaffleDrawnEvent announces a completed draw. It carries enough for the
// winner notice without a read back into the ledger.
type RaffleDrawnEvent struct {
	RaffleID            uuid.UUID       `json:"raffleId"`
	ItemID              uuid.UUID       `json:"itemId"`
	ItemName            string          `json:"itemName"`
	ItemValue           decimal.Decimal `json:"itemValue"`
	WinnerUserID        uuid.UUID       `json:"winnerUserId"`
	WinningTicketID     uuid.UUID       `json:"winningTicketId"`
	WinningTicketNumber string          `json:"winningTicketNumber"`
	TicketCount         int             `json:"ticketCount"`
	DrawnAt             time.Time       `json:"drawnAt"`
}
