package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/ayo6706/coinwallet/internal/api/problem"
	"github.com/ayo6706/coinwallet/internal/idempotency"
	"github.com/ayo6706/coinwallet/internal/observability"
	"go.uber.org/zap"
)

var idempotentMethods = map[string]struct{}{
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

type idempotencyKeyContext struct{}

// IdempotencyKeyFromContext returns the Idempotency-Key header seen by the
// middleware, for handlers that thread it into the ledger.
func IdempotencyKeyFromContext(r *http.Request) string {
	if v, ok := r.Context().Value(idempotencyKeyContext{}).(string); ok {
		return v
	}
	return ""
}

// IdempotencyMiddleware enforces the Idempotency-Key contract for mutating
// requests. The redis cache only short-circuits replays; the durable
// exactly-once guarantee lives in the ledger's unique transaction key, so a
// cache miss on a retried request still resolves correctly downstream.
func IdempotencyMiddleware(store *idempotency.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := idempotentMethods[r.Method]; !ok {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				observability.IncrementIdempotencyEvent("missing_key")
				problem.Write(w, r, http.StatusBadRequest, problem.Type("idempotency/missing-key"), http.StatusText(http.StatusBadRequest), "Idempotency-Key header is required")
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), http.StatusText(http.StatusBadRequest), "Failed to read request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			reqHash := hashRequest(r.Method, r.URL.Path, bodyBytes)
			if store != nil {
				rec, err := store.Lookup(r.Context(), key, reqHash)
				if err == nil {
					observability.IncrementIdempotencyEvent("replay")
					respondFromRecord(w, rec)
					return
				}
				if errors.Is(err, idempotency.ErrHashMismatch) {
					observability.IncrementIdempotencyEvent("hash_mismatch")
					problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/key-conflict"), http.StatusText(http.StatusConflict), "conflicting idempotency key")
					return
				}
				if !errors.Is(err, idempotency.ErrNotFound) {
					observability.IncrementIdempotencyEvent("lookup_error")
					logger.Warn("idempotency lookup failed", zap.Error(err))
				}
			}

			recorder := &bodyRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, withIdempotencyKey(r, key))

			if store == nil || recorder.status >= http.StatusInternalServerError {
				return
			}
			contentType := recorder.Header().Get("Content-Type")
			if contentType == "" {
				contentType = "application/json"
			}
			if recorder.status == 0 {
				recorder.status = http.StatusOK
			}
			store.Save(r.Context(), idempotency.Record{
				Key:         key,
				RequestHash: reqHash,
				Status:      recorder.status,
				Body:        recorder.body.Bytes(),
				ContentType: contentType,
			})
			observability.IncrementIdempotencyEvent("cached")
		})
	}
}

func withIdempotencyKey(r *http.Request, key string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), idempotencyKeyContext{}, key))
}

func hashRequest(method, path string, body []byte) string {
	sum := sha256.Sum256(append([]byte(method+"|"+path+"|"), body...))
	return hex.EncodeToString(sum[:])
}

type bodyRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (br *bodyRecorder) WriteHeader(code int) {
	br.status = code
	br.ResponseWriter.WriteHeader(code)
}

func (br *bodyRecorder) Write(b []byte) (int, error) {
	if br.status == 0 {
		br.status = http.StatusOK
	}
	br.body.Write(b)
	return br.ResponseWriter.Write(b)
}

func respondFromRecord(w http.ResponseWriter, rec *idempotency.Record) {
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("X-Idempotent-Replay", "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}
