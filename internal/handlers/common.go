package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vietcart/storefront/internal/platform/httpx"
	"github.com/vietcart/storefront/internal/platform/observability"
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

const defaultMaxBodySize = 16 * 1024

// sessionID extracts the storefront session from the request header. Every
// cart and checkout endpoint is keyed by it.
func sessionID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(observability.SessionHeader))
}

// requireSession writes a 400 when the session header is absent or malformed.
func requireSession(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	sid := sessionID(r)
	if sid == "" {
		httpx.WriteError(ctx, w, httpx.NewError("session_required", "X-Session-ID header is required", http.StatusBadRequest))
		return "", false
	}
	if !validSessionID(sid) {
		httpx.WriteError(ctx, w, httpx.NewError("session_invalid", "X-Session-ID header is malformed", http.StatusBadRequest))
		return "", false
	}
	return sid, true
}

const maxSessionIDLength = 64

// validSessionID restricts sessions to the store key alphabet so an odd
// header answers 400 instead of surfacing as a storage failure.
func validSessionID(sid string) bool {
	if sid == "" || len(sid) > maxSessionIDLength || sid == "." || sid == ".." {
		return false
	}
	for _, r := range sid {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeStrict unmarshals the body rejecting unknown fields.
func decodeStrict(data []byte, dst any) error {
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errors.New("invalid JSON payload")
	}
	return nil
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
