package gateway

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/llamasearchai/llamaneuro/errors"
)

// maxBodyBytes bounds request bodies. Signal chunks at the largest
// supported window stay well under this.
const maxBodyBytes = 4 << 20

// getOrGenerateRequestID extracts the request ID from headers or
// generates one so log lines can be correlated across components.
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// statusRecorder captures the response code for metrics and logging.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.code = code
	sr.ResponseWriter.WriteHeader(code)
}

// instrument wraps a handler with CORS, request ID propagation, and
// request metrics. The route label is the registered pattern, not the
// raw URL, to keep metric cardinality bounded.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := getOrGenerateRequestID(r)
		w.Header().Set("X-Request-ID", reqID)

		if s.applyCORS(w, r) {
			return
		}

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r)

		s.requests.Add(1)
		if rec.code >= http.StatusInternalServerError {
			s.failures.Add(1)
		}
		s.touch()

		if s.metrics != nil {
			s.metrics.HTTPRequestsTotal.WithLabelValues(
				r.Method, route, strconv.Itoa(rec.code)).Inc()
			s.metrics.HTTPRequestDuration.WithLabelValues(
				r.Method, route).Observe(time.Since(start).Seconds())
		}
	}
}

// applyCORS sets CORS headers when the origin is allowed and answers
// preflight requests. Returns true when the request was fully handled.
func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin != "" && s.originAllowed(origin) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "3600")
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

// writeJSON writes v with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("response encode failed", "error", err)
	}
}

// writeError maps err to an HTTP status and writes the standard error
// body. Internal details are logged, not exposed.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusForError(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, code, map[string]any{
		"error":  sanitizeError(err, code),
		"status": code,
	})
}

// statusForError maps classified errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case stderrors.Is(err, errors.ErrRateLimited),
		stderrors.Is(err, errors.ErrResourceExhausted):
		return http.StatusTooManyRequests
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	case errors.IsTransient(err):
		if strings.Contains(strings.ToLower(err.Error()), "timeout") {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	case errors.IsFatal(err):
		return http.StatusInternalServerError
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found"):
		return http.StatusNotFound
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "permission"):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// sanitizeError keeps client-caused error text but hides server
// internals behind a generic message.
func sanitizeError(err error, code int) string {
	if code < http.StatusInternalServerError {
		return err.Error()
	}
	return "internal server error"
}

// decodeBody decodes a JSON request body into v with a size cap and
// strict field checking.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.WrapInvalid(err, "gateway", "decodeBody", "parse request body")
	}
	return nil
}
