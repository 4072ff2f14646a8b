package shared

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"paydesk/internal/transport/http/api"
	"paydesk/internal/transport/http/middleware"
)

const IdempotencyHeader = "Idempotency-Key"

// ReadBody buffers the request body so it can be hashed and then decoded.
func ReadBody(w http.ResponseWriter, r *http.Request, requestID string) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body is too large", requestID)
			return nil, false
		}
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return nil, false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, true
}

// Replay is the idempotency state of one request.
type Replay struct {
	store    middleware.Idempotency
	userID   int64
	endpoint string
	key      string
	hash     string
}

// CheckReplay looks up the Idempotency-Key of the request. When a response
// was stored for the same key and body it is written and done is true.
func CheckReplay(w http.ResponseWriter, r *http.Request, store middleware.Idempotency, endpoint string, body []byte) (replay Replay, done bool) {
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	user, ok := middleware.GetUser(r.Context())
	if key == "" || store == nil || !ok {
		return Replay{}, false
	}
	replay = Replay{store: store, userID: user.UserID, endpoint: endpoint, key: key, hash: middleware.RequestHash(body)}

	stored, found, err := store.Check(r.Context(), user.UserID, endpoint, key, replay.hash)
	if errors.Is(err, middleware.ErrIdempotencyConflict) {
		api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key was used with a different payload", middleware.GetRequestID(r.Context()))
		return Replay{}, true
	}
	if err != nil {
		slog.Warn("idempotency check failed", "endpoint", endpoint, "err", err)
		return replay, false
	}
	if found {
		api.Success(w, json.RawMessage(stored), middleware.GetRequestID(r.Context()))
		return Replay{}, true
	}
	return replay, false
}

// Save stores response for later replays. It is a no-op when the request
// carried no key.
func (rp Replay) Save(ctx context.Context, response any) {
	if rp.store == nil || rp.key == "" {
		return
	}
	encoded, err := json.Marshal(response)
	if err != nil {
		slog.Warn("idempotency response marshal failed", "endpoint", rp.endpoint, "err", err)
		return
	}
	if err := rp.store.Save(ctx, rp.userID, rp.endpoint, rp.key, rp.hash, encoded); err != nil {
		slog.Warn("idempotency save failed", "endpoint", rp.endpoint, "err", err)
	}
}

// DashboardCache is implemented by the reports service. Mutating handlers
// drop the cached dashboard after a successful write.
type DashboardCache interface {
	InvalidateDashboard(ctx context.Context)
}

func InvalidateDashboard(ctx context.Context, c DashboardCache) {
	if c != nil {
		c.InvalidateDashboard(ctx)
	}
}
