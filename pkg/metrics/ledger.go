package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts money-moving outcomes. A nil *LedgerMetrics is a no-op.
type LedgerMetrics struct {
	ticketsPurchased     *prometheus.CounterVec
	drawsCompleted       prometheus.Counter
	depositsSettled      *prometheus.CounterVec
	withdrawalsProcessed *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	ticketsPurchased := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tickets_purchased_total",
		Help: "Raffle tickets issued, by payment method.",
	}, []string{"method"})
	drawsCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "draws_completed_total",
		Help: "Raffle draws committed.",
	})
	depositsSettled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deposits_settled_total",
		Help: "Deposits moved out of PENDING, by resulting status.",
	}, []string{"status"})
	withdrawalsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawals_processed_total",
		Help: "Withdrawals moved out of PENDING or APPROVED, by resulting status.",
	}, []string{"status"})
	reg.MustRegister(ticketsPurchased, drawsCompleted, depositsSettled, withdrawalsProcessed)
	return &LedgerMetrics{
		ticketsPurchased:     ticketsPurchased,
		drawsCompleted:       drawsCompleted,
		depositsSettled:      depositsSettled,
		withdrawalsProcessed: withdrawalsProcessed,
	}
}

func (m *LedgerMetrics) TicketPurchased(method string) {
	if m == nil || m.ticketsPurchased == nil {
		return
	}
	m.ticketsPurchased.WithLabelValues(normalizeLabel(method)).Inc()
}

func (m *LedgerMetrics) DrawCompleted() {
	if m == nil || m.drawsCompleted == nil {
		return
	}
	m.drawsCompleted.Inc()
}

func (m *LedgerMetrics) DepositSettled(status string) {
	if m == nil || m.depositsSettled == nil {
		return
	}
	m.depositsSettled.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *LedgerMetrics) WithdrawalProcessed(status string) {
	if m == nil || m.withdrawalsProcessed == nil {
		return
	}
	m.withdrawalsProcessed.WithLabelValues(normalizeLabel(status)).Inc()
}
