package models

// All lists every persisted model in dependency order. Used by the sqlite
// dev bootstrap and by package tests that need a full schema.
func All() []any {
	return []any{
		&User{},
		&Item{},
		&Raffle{},
		&Ticket{},
		&Transaction{},
		&Withdrawal{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
