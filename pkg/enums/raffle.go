package enums

import "fmt"

// RaffleStatus maps to the raffle_status enum in Postgres.
// COMPLETED and CANCELLED are terminal.
type RaffleStatus string

const (
	RaffleStatusScheduled RaffleStatus = "SCHEDULED"
	RaffleStatusActive    RaffleStatus = "ACTIVE"
	RaffleStatusCompleted RaffleStatus = "COMPLETED"
	RaffleStatusCancelled RaffleStatus = "CANCELLED"
)

var validRaffleStatuses = []RaffleStatus{
	RaffleStatusScheduled,
	RaffleStatusActive,
	RaffleStatusCompleted,
	RaffleStatusCancelled,
}

// IsValid reports whether the value matches the canonical raffle_status enum.
func (s RaffleStatus) IsValid() bool {
	for _, candidate := range validRaffleStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsOpen reports whether tickets may still be sold and a draw may still run.
func (s RaffleStatus) IsOpen() bool {
	return s == RaffleStatusScheduled || s == RaffleStatusActive
}

// ParseRaffleStatus converts raw input into RaffleStatus.
func ParseRaffleStatus(value string) (RaffleStatus, error) {
	for _, candidate := range validRaffleStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid raffle status %q", value)
}
