package enums

// OutboxAggregateType is the aggregate_type column of outbox rows.
type OutboxAggregateType string

const AggregateRaffle OutboxAggregateType = "raffle"

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateRaffle
}

// OutboxEventType is the event_type column of outbox rows and the
// event_type attribute of published messages.
type OutboxEventType string

const EventRaffleDrawn OutboxEventType = "raffle_drawn"

func (e OutboxEventType) IsValid() bool {
	return e == EventRaffleDrawn
}

// OutboxDLQErrorReason says why a row was moved to outbox_dlq.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable:
		return true
	}
	return false
}
