package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA512 of the raw webhook body.
const SignatureHeader = "X-Paystack-Signature"

// Webhook event names handled by the platform.
const (
	EventChargeSuccess    = "charge.success"
	EventTransferSuccess  = "transfer.success"
	EventTransferFailed   = "transfer.failed"
	EventTransferReversed = "transfer.reversed"
)

// Sign returns the signature Paystack would send for payload.
func Sign(payload []byte, secretKey string) string {
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against the HMAC of payload in constant time.
func VerifySignature(payload []byte, header, secretKey string) bool {
	if secretKey == "" || header == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(Sign(payload, secretKey))
	return hmac.Equal(got, want)
}

// Event is a webhook delivery.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ChargeData is the data object of charge events and verify responses.
type ChargeData struct {
	ID              int64      `json:"id"`
	Reference       string     `json:"reference"`
	Status          string     `json:"status"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	GatewayResponse string     `json:"gateway_response"`
	PaidAt          *time.Time `json:"paid_at"`
}

func (d ChargeData) Verification() Verification {
	return Verification{
		Reference:       d.Reference,
		Status:          d.Status,
		AmountMinor:     d.Amount,
		Currency:        d.Currency,
		GatewayResponse: d.GatewayResponse,
		PaidAt:          d.PaidAt,
	}
}

// TransferData is the data object of transfer events.
type TransferData struct {
	ID           int64  `json:"id"`
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Reason       string `json:"reason"`
}

// ParseEvent decodes a webhook body.
func ParseEvent(payload []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("decode paystack event: %w", err)
	}
	if evt.Event == "" {
		return nil, fmt.Errorf("paystack event name missing")
	}
	return &evt, nil
}

// Charge decodes Data as a charge.
func (e Event) Charge() (*ChargeData, error) {
	var d ChargeData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return nil, fmt.Errorf("decode charge data: %w", err)
	}
	return &d, nil
}

// Transfer decodes Data as a transfer.
func (e Event) Transfer() (*TransferData, error) {
	var d TransferData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return nil, fmt.Errorf("decode transfer data: %w", err)
	}
	return &d, nil
}

// Key identifies a delivery for deduplication. Paystack retries a delivery
// with the same body, so event name plus object id and reference is stable.
func (e Event) Key() string {
	var probe struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
	}
	_ = json.Unmarshal(e.Data, &probe)
	return fmt.Sprintf("%s:%d:%s", e.Event, probe.ID, probe.Reference)
}
