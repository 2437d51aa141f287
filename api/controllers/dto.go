package controllers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
)

type transactionDTO struct {
	ID          uuid.UUID               `json:"id"`
	Type        enums.TransactionType   `json:"type"`
	Amount      decimal.Decimal         `json:"amount"`
	Status      enums.TransactionStatus `json:"status"`
	Reference   *string                 `json:"reference,omitempty"`
	Description *string                 `json:"description,omitempty"`
	Metadata    json.RawMessage         `json:"metadata,omitempty"`
	FailReason  *string                 `json:"failReason,omitempty"`
	CreatedAt   time.Time               `json:"createdAt"`
}

func newTransactionDTO(t *models.Transaction) transactionDTO {
	return transactionDTO{
		ID:          t.ID,
		Type:        t.Type,
		Amount:      t.Amount,
		Status:      t.Status,
		Reference:   t.Reference,
		Description: t.Description,
		Metadata:    t.Metadata,
		FailReason:  t.FailReason,
		CreatedAt:   t.CreatedAt,
	}
}

func newTransactionDTOs(rows []models.Transaction) []transactionDTO {
	out := make([]transactionDTO, 0, len(rows))
	for i := range rows {
		out = append(out, newTransactionDTO(&rows[i]))
	}
	return out
}

type ticketDTO struct {
	ID            uuid.UUID           `json:"id"`
	RaffleID      uuid.UUID           `json:"raffleId"`
	UserID        uuid.UUID           `json:"userId"`
	TicketNumber  string              `json:"ticketNumber"`
	Status        enums.TicketStatus  `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	AmountPaid    decimal.Decimal     `json:"amountPaid"`
	PointsPaid    int64               `json:"pointsPaid"`
	CreatedAt     time.Time           `json:"createdAt"`
}

func newTicketDTO(t *models.Ticket) ticketDTO {
	return ticketDTO{
		ID:            t.ID,
		RaffleID:      t.RaffleID,
		UserID:        t.UserID,
		TicketNumber:  t.TicketNumber,
		Status:        t.Status,
		PaymentMethod: t.PaymentMethod,
		AmountPaid:    t.AmountPaid,
		PointsPaid:    t.PointsPaid,
		CreatedAt:     t.CreatedAt,
	}
}

func newTicketDTOs(rows []models.Ticket) []ticketDTO {
	out := make([]ticketDTO, 0, len(rows))
	for i := range rows {
		out = append(out, newTicketDTO(&rows[i]))
	}
	return out
}

// withdrawalDTO never exposes the full account number.
type withdrawalDTO struct {
	ID              uuid.UUID              `json:"id"`
	UserID          uuid.UUID              `json:"userId"`
	Amount          decimal.Decimal        `json:"amount"`
	BankName        string                 `json:"bankName"`
	BankCode        string                 `json:"bankCode"`
	AccountName     string                 `json:"accountName"`
	AccountLast4    string                 `json:"accountLast4"`
	Status          enums.WithdrawalStatus `json:"status"`
	TransactionID   uuid.UUID              `json:"transactionId"`
	RejectionReason *string                `json:"rejectionReason,omitempty"`
	ProcessedBy     *uuid.UUID             `json:"processedBy,omitempty"`
	ProcessedAt     *time.Time             `json:"processedAt,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
}

func newWithdrawalDTO(w *models.Withdrawal) withdrawalDTO {
	last4 := w.AccountNumber
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}
	return withdrawalDTO{
		ID:              w.ID,
		UserID:          w.UserID,
		Amount:          w.Amount,
		BankName:        w.BankName,
		BankCode:        w.BankCode,
		AccountName:     w.AccountName,
		AccountLast4:    last4,
		Status:          w.Status,
		TransactionID:   w.TransactionID,
		RejectionReason: w.RejectionReason,
		ProcessedBy:     w.ProcessedBy,
		ProcessedAt:     w.ProcessedAt,
		CreatedAt:       w.CreatedAt,
	}
}

func newWithdrawalDTOs(rows []models.Withdrawal) []withdrawalDTO {
	out := make([]withdrawalDTO, 0, len(rows))
	for i := range rows {
		out = append(out, newWithdrawalDTO(&rows[i]))
	}
	return out
}
