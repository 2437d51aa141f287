package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/rafflepot-backend/api/middleware"
	"github.com/angelmondragon/rafflepot-backend/pkg/auth"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
)

var (
	testUser  = auth.Principal{UserID: uuid.MustParse("0f8d2b52-1c0e-4a55-9f0f-6b1f5a6f1a01"), Role: enums.UserRoleUser}
	testAdmin = auth.Principal{UserID: uuid.MustParse("9a3e4c7d-55b2-4c39-8d0e-2e1f3b4a5c02"), Role: enums.UserRoleAdmin}
)

func newRequest(method, target, body string, principal *auth.Principal, params map[string]string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := req.Context()
	if principal != nil {
		ctx = middleware.WithPrincipal(ctx, *principal)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Data
}
