// Package paystack is a thin client for the Paystack charge, transfer and
// webhook APIs.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/rafflepot-backend/pkg/config"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rafflepot-backend/pkg/errors"
)

const (
	defaultBaseURL          = "https://api.paystack.co"
	defaultTimeout          = 15 * time.Second
	errorBodyLimit    int64 = 1024
	recipientTypeNUBAN      = "nuban"
)

// Charge statuses reported by verify.
const (
	ChargeSuccess   = "success"
	ChargeFailed    = "failed"
	ChargeAbandoned = "abandoned"
	ChargeReversed  = "reversed"
)

var errSecretKeyRequired = errors.New("paystack secret key is required")

// Client calls the Paystack REST API with the account's secret key.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	secretKey   string
	callbackURL string
	currency    enums.Currency
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL points the client at another host, e.g. an httptest server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds a client from config.
func NewClient(cfg config.PaystackConfig, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" {
		return nil, errSecretKeyRequired
	}
	var currency enums.Currency
	if raw := strings.TrimSpace(cfg.Currency); raw != "" {
		parsed, err := enums.ParseCurrency(raw)
		if err != nil {
			return nil, err
		}
		currency = parsed
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     defaultBaseURL,
		secretKey:   key,
		callbackURL: strings.TrimSpace(cfg.CallbackURL),
		currency:    currency,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		c.baseURL = base
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// SecretKey is the key webhooks are signed with.
func (c *Client) SecretKey() string { return c.secretKey }

// ChargeRequest initializes a hosted checkout.
type ChargeRequest struct {
	Email       string
	AmountMinor int64
	Reference   string
	Metadata    map[string]any
}

// Charge is the hosted checkout Paystack created.
type Charge struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// Verification is the settled state of a charge.
type Verification struct {
	Reference       string
	Status          string
	AmountMinor     int64
	Currency        string
	GatewayResponse string
	PaidAt          *time.Time
}

// Succeeded reports whether the charge was paid.
func (v Verification) Succeeded() bool { return v.Status == ChargeSuccess }

// RecipientRequest registers a bank account for payouts.
type RecipientRequest struct {
	Name          string
	AccountNumber string
	BankCode      string
}

// TransferRequest sends money from the Paystack balance to a recipient.
type TransferRequest struct {
	AmountMinor   int64
	RecipientCode string
	Reference     string
	Reason        string
}

// Transfer is the queued payout.
type Transfer struct {
	TransferCode string
	Reference    string
	Status       string
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeCharge creates a checkout session for a deposit.
func (c *Client) InitializeCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if strings.TrimSpace(req.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	if req.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	body := map[string]any{
		"email":  req.Email,
		"amount": req.AmountMinor,
	}
	if req.Reference != "" {
		body["reference"] = req.Reference
	}
	if c.currency != "" {
		body["currency"] = c.currency.String()
	}
	if c.callbackURL != "" {
		body["callback_url"] = c.callbackURL
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, err
	}
	return &Charge{AuthorizationURL: data.AuthorizationURL, AccessCode: data.AccessCode, Reference: data.Reference}, nil
}

// VerifyCharge fetches the current state of a charge by reference.
func (c *Client) VerifyCharge(ctx context.Context, reference string) (*Verification, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	var data ChargeData
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(ref), nil, &data); err != nil {
		return nil, err
	}
	v := data.Verification()
	return &v, nil
}

// CreatePayoutRecipient registers a NUBAN bank account and returns its code.
func (c *Client) CreatePayoutRecipient(ctx context.Context, req RecipientRequest) (string, error) {
	if req.AccountNumber == "" || req.BankCode == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "account number and bank code are required")
	}
	body := map[string]any{
		"type":           recipientTypeNUBAN,
		"name":           req.Name,
		"account_number": req.AccountNumber,
		"bank_code":      req.BankCode,
	}
	if c.currency != "" {
		body["currency"] = c.currency.String()
	}
	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := c.do(ctx, http.MethodPost, "/transferrecipient", body, &data); err != nil {
		return "", err
	}
	if data.RecipientCode == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "paystack returned no recipient code")
	}
	return data.RecipientCode, nil
}

// SendPayout queues a transfer to a recipient.
func (c *Client) SendPayout(ctx context.Context, req TransferRequest) (*Transfer, error) {
	if req.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if req.RecipientCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient code is required")
	}
	body := map[string]any{
		"source":    "balance",
		"amount":    req.AmountMinor,
		"recipient": req.RecipientCode,
	}
	if req.Reference != "" {
		body["reference"] = req.Reference
	}
	if req.Reason != "" {
		body["reason"] = req.Reason
	}
	var data TransferData
	if err := c.do(ctx, http.MethodPost, "/transfer", body, &data); err != nil {
		return nil, err
	}
	return &Transfer{TransferCode: data.TransferCode, Reference: data.Reference, Status: data.Status}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "paystack client not configured")
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal paystack request")
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build paystack request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute paystack request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"paystack request failed")
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paystack response")
	}
	if !env.Status {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New(env.Message), "paystack rejected request")
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paystack data")
	}
	return nil
}
