package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// sqliteUniqueColumns maps constraint names to the column list sqlite prints
// in "UNIQUE constraint failed: ..." since it never reports index names.
var sqliteUniqueColumns = map[string]string{
	"ux_users_user_number":             "users.user_number",
	"ux_users_email":                   "users.email",
	"ux_tickets_user_raffle":           "tickets.user_id, tickets.raffle_id",
	"ux_tickets_ticket_number":         "tickets.ticket_number",
	"ux_transactions_reference":        "transactions.reference",
	"ux_withdrawals_payout_reference":  "withdrawals.payout_reference",
	"ux_outbox_events_event_aggregate": "outbox_events.event_type, outbox_events.aggregate_type, outbox_events.aggregate_id",
}

// IsUniqueViolation reports whether the provided error is a unique violation.
// When constraintName is provided, only violations of that constraint match.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == pgUniqueViolation &&
			(constraintName == "" || pgxErr.ConstraintName == constraintName)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation &&
			(constraintName == "" || pqErr.Constraint == constraintName)
	}

	msg := err.Error()
	if idx := strings.Index(msg, "UNIQUE constraint failed: "); idx >= 0 {
		if constraintName == "" {
			return true
		}
		cols, ok := sqliteUniqueColumns[constraintName]
		if !ok {
			return false
		}
		failed := strings.TrimSpace(msg[idx+len("UNIQUE constraint failed: "):])
		return failed == cols
	}

	if !strings.Contains(msg, "duplicate key value") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

// IsRetryableTx reports whether Postgres aborted the transaction in a way a
// fresh attempt can resolve.
func IsRetryableTx(err error) bool {
	code := sqlState(err)
	return code == pgSerializationFailure || code == pgDeadlockDetected
}

func sqlState(err error) string {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
