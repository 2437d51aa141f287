package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/rafflepot-backend/api/responses"
	pkgerrors "github.com/angelmondragon/rafflepot-backend/pkg/errors"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/rafflepot-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"

	defaultReplayTTL  = 24 * time.Hour
	pendingTTL        = time.Minute
	maxIdempotencyKey = 128
	maxReplayBody     = 1 << 20
)

// ReplayStore is the redis surface the replay cache needs.
type ReplayStore interface {
	pkgredis.IdempotencyStore
	Swap(ctx context.Context, key, expected, next string, ttl time.Duration) (bool, error)
}

// replayEntry is what sits under an idempotency key. A pending entry holds
// only the fingerprint until the handler finishes.
type replayEntry struct {
	Fingerprint string `json:"fp"`
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"ct,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type replayCache struct {
	store ReplayStore
	ttl   time.Duration
	logg  *logger.Logger
}

// Idempotency makes money-moving requests safe to retry. The first request
// under a key claims it with a pending entry and runs; a duplicate arriving
// meanwhile gets 409, one arriving later gets the stored response replayed.
// Reusing a key with a different body is refused. Server errors release the
// key so the client can retry.
func Idempotency(store ReplayStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultReplayTTL
	}
	cache := &replayCache{store: store, ttl: ttl, logg: logg}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cache.serve(next, w, r)
		})
	}
}

func (c *replayCache) serve(next http.Handler, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	switch {
	case clientKey == "":
		c.fail(ctx, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
		return
	case len(clientKey) > maxIdempotencyKey:
		c.fail(ctx, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxReplayBody+1))
	if err != nil {
		c.fail(ctx, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
		return
	}
	if len(body) > maxReplayBody {
		c.fail(ctx, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	fp := fingerprint(r.Method, r.URL.Path, body)
	key := c.store.IdempotencyKey(requestScope(r), clientKey)
	pending, _ := json.Marshal(replayEntry{Fingerprint: fp, Pending: true})

	claimed, err := c.store.SetNX(ctx, key, string(pending), pendingTTL)
	if err != nil {
		c.fail(ctx, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
		return
	}
	if !claimed {
		c.replay(ctx, w, key, fp)
		return
	}

	rec := &captureWriter{ResponseWriter: w}
	next.ServeHTTP(rec, r)
	c.remember(ctx, key, string(pending), fp, rec)
}

func (c *replayCache) remember(ctx context.Context, key, pending, fp string, rec *captureWriter) {
	status := rec.status
	if status == 0 {
		status = http.StatusOK
	}
	if status >= http.StatusInternalServerError {
		if err := c.store.Del(ctx, key); err != nil {
			c.warn(ctx, key, "idempotency.release_failed", err)
		}
		return
	}

	final, err := json.Marshal(replayEntry{
		Fingerprint: fp,
		Status:      status,
		ContentType: rec.Header().Get("Content-Type"),
		Body:        rec.body.Bytes(),
	})
	if err != nil {
		c.warn(ctx, key, "idempotency.encode_failed", err)
		return
	}
	swapped, err := c.store.Swap(ctx, key, pending, string(final), c.ttl)
	if err != nil {
		c.warn(ctx, key, "idempotency.store_failed", err)
		return
	}
	if !swapped && c.logg != nil {
		c.logg.Warn(c.logg.WithField(ctx, "idempotency_key", key), "idempotency.pending_expired")
	}
}

func (c *replayCache) replay(ctx context.Context, w http.ResponseWriter, key, fp string) {
	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// claimed and released between our SETNX and GET
		c.fail(ctx, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is in progress"))
		return
	}
	if err != nil {
		c.fail(ctx, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}

	var entry replayEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.fail(ctx, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case entry.Fingerprint != fp:
		c.fail(ctx, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case entry.Pending:
		c.fail(ctx, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is in progress"))
	default:
		if entry.ContentType != "" {
			w.Header().Set("Content-Type", entry.ContentType)
		}
		w.Header().Set(ReplayedHeader, "true")
		w.WriteHeader(entry.Status)
		_, _ = w.Write(entry.Body)
	}
}

func (c *replayCache) fail(ctx context.Context, w http.ResponseWriter, err error) {
	responses.WriteError(ctx, c.logg, w, err)
}

func (c *replayCache) warn(ctx context.Context, key, msg string, err error) {
	if c.logg == nil {
		return
	}
	c.logg.Error(c.logg.WithField(ctx, "idempotency_key", key), msg, err)
}

// requestScope keeps keys per caller and route, so two users may pick the
// same key without colliding.
func requestScope(r *http.Request) string {
	return UserIDFromContext(r.Context()) + "|" + r.Method + "|" + r.URL.Path
}

func fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type captureWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *captureWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *captureWriter) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}
