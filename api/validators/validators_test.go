package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/rafflepot-backend/pkg/errors"
)

type rejectPayload struct {
	Reason string `json:"reason" validate:"required,max=10"`
}

func codeOf(t *testing.T, err error) pkgerrors.Code {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected coded error, got %v", err)
	}
	return typed.Code()
}

func TestDecodeJSONBody(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"reason":"fraud"}`, false},
		{"missing field", `{}`, true},
		{"too long", `{"reason":"this is far too long"}`, true},
		{"unknown field", `{"reason":"ok","extra":1}`, true},
		{"malformed", `{"reason":`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dest rejectPayload
			err := DecodeJSONBody(req, &dest)
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error")
			}
			if code := codeOf(t, err); code != pkgerrors.CodeValidation {
				t.Fatalf("expected validation code got %s", code)
			}
		})
	}
}

func TestDecodeJSONBodyFieldDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	var dest rejectPayload
	err := DecodeJSONBody(req, &dest)
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %#v", pkgerrors.As(err).Details())
	}
	if details["reason"] != "is required" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25", nil)
	got, err := ParseQueryInt(req, "limit", 50, 1, 100)
	if err != nil || got != 25 {
		t.Fatalf("expected 25 got %d (%v)", got, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	got, err = ParseQueryInt(req, "limit", 50, 1, 100)
	if err != nil || got != 50 {
		t.Fatalf("expected default 50 got %d (%v)", got, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	if _, err := ParseQueryInt(req, "limit", 50, 1, 100); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	got, err := ParseUUIDParam(" "+id.String()+" ", "raffleId")
	if err != nil || got != id {
		t.Fatalf("expected %s got %s (%v)", id, got, err)
	}
	for _, raw := range []string{"", "nope", uuid.Nil.String()} {
		if _, err := ParseUUIDParam(raw, "raffleId"); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestCleanText(t *testing.T) {
	cases := map[string]struct {
		in   string
		max  int
		want string
	}{
		"cut":            {"  account closed  ", 7, "account"},
		"no limit":       {" ok ", 0, "ok"},
		"control chars":  {"bad\x00 name\n", 0, "bad name"},
		"multibyte safe": {"\u00e9\u00e0\u00fc", 2, "\u00e9\u00e0"},
		"trailing space": {"ab cd", 3, "ab"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := CleanText(tc.in, tc.max); got != tc.want {
				t.Fatalf("CleanText(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
		})
	}
}

type moneyPayload struct {
	Amount decimal.Decimal `json:"amount" validate:"required,amount"`
	Method string          `json:"method" validate:"omitempty,payment_method"`
}

func TestAmountAndPaymentMethodTags(t *testing.T) {
	cases := []struct {
		body  string
		field string
	}{
		{`{"amount":"2500.50","method":"wallet"}`, ""},
		{`{"amount":100}`, ""},
		{`{"amount":"0"}`, "amount"},
		{`{"amount":"-1"}`, "amount"},
		{`{"amount":"10.005"}`, "amount"},
		{`{"amount":"10","method":"card"}`, "method"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
		var dest moneyPayload
		err := DecodeJSONBody(req, &dest)
		if tc.field == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.body, err)
			}
			continue
		}
		details, ok := pkgerrors.As(err).Details().(map[string]string)
		if !ok || details[tc.field] == "" {
			t.Fatalf("%s: expected %s detail, got %v", tc.body, tc.field, err)
		}
	}
}

func TestDecodeJSONBodyRejectsTrailingAndOversize(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"a"}{"reason":"b"}`))
	if err := DecodeJSONBody(req, &rejectPayload{}); err == nil {
		t.Fatalf("expected error for concatenated objects")
	}

	big := `{"reason":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	if err := DecodeJSONBody(req, &rejectPayload{}); err == nil {
		t.Fatalf("expected error for oversized body")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	err := DecodeJSONBody(req, &rejectPayload{})
	if err == nil || pkgerrors.As(err).Message() != "request body is empty" {
		t.Fatalf("expected empty body error, got %v", err)
	}
}
