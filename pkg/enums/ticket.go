package enums

import (
	"fmt"
	"strings"
)

// TicketStatus maps to the ticket_status enum in Postgres.
type TicketStatus string

const (
	TicketStatusActive TicketStatus = "ACTIVE"
	TicketStatusWon    TicketStatus = "WON"
	TicketStatusLost   TicketStatus = "LOST"
)

func (s TicketStatus) IsValid() bool {
	switch s {
	case TicketStatusActive, TicketStatusWon, TicketStatusLost:
		return true
	}
	return false
}

// PaymentMethod identifies which balance a ticket was paid from.
type PaymentMethod string

const (
	PaymentMethodWallet PaymentMethod = "wallet"
	PaymentMethodPoints PaymentMethod = "points"
)

func (m PaymentMethod) IsValid() bool {
	return m == PaymentMethodWallet || m == PaymentMethodPoints
}

// ParsePaymentMethod converts raw input into PaymentMethod. Matching is case-insensitive.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	method := PaymentMethod(strings.ToLower(strings.TrimSpace(value)))
	if !method.IsValid() {
		return "", fmt.Errorf("invalid payment method %q", value)
	}
	return method, nil
}
