package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"dualstore/internal/upload"
)

// responseRecorder captures what a handler sent so the request log can
// report it.
type responseRecorder struct {
	http.ResponseWriter
	status    int
	written   int64
	errorCode string
}

func (w *responseRecorder) WriteHeader(statusCode int) {
	if w.status == 0 {
		w.status = statusCode
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// setErrorCode is called by writeError with the JSON error code.
func (w *responseRecorder) setErrorCode(code string) {
	w.errorCode = code
}

type errorCodeSetter interface {
	setErrorCode(code string)
}

type requestLog struct {
	IP            string
	Method        string
	URL           string
	Proto         string
	ContentLength int64
	DurationMS    float64
	StatusCode    int
	BytesOut      int64
	ErrorCode     string
}

func (e requestLog) user() slog.Attr {
	return slog.Group("user", "ip", e.IP)
}

func (e requestLog) request() slog.Attr {
	attrs := []any{
		"proto", e.Proto,
		"method", e.Method,
		"url", e.URL,
		"bytes_in", e.ContentLength,
		"bytes_out", e.BytesOut,
		"duration_ms", e.DurationMS,
		"status_code", e.StatusCode,
	}
	if e.ErrorCode != "" {
		attrs = append(attrs, "error_code", e.ErrorCode)
	}
	return slog.Group("request", attrs...)
}

// level picks the log level for a finished request from its status.
func (e requestLog) level() slog.Level {
	switch {
	case e.StatusCode >= 500:
		return slog.LevelError
	case e.StatusCode >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// LogRequest is middleware that logs every request once it completes,
// including the declared body size and the error code of failed requests.
func LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w}

		start := time.Now()
		next.ServeHTTP(rec, r)

		entry := requestLog{
			IP:            r.RemoteAddr,
			Method:        r.Method,
			URL:           r.URL.String(),
			Proto:         r.Proto,
			ContentLength: r.ContentLength,
			DurationMS:    float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond),
			StatusCode:    rec.status,
			BytesOut:      rec.written,
			ErrorCode:     rec.errorCode,
		}

		slog.Log(r.Context(), entry.level(), "Request", entry.user(), entry.request())
	})
}

// RequireAuthentication is middleware that rejects requests the server's
// AuthEngine does not accept. It is a pass-through when no engine is set.
func (s *Server) RequireAuthentication(next http.Handler) http.Handler {
	if s.cfg.Authenticator == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, err := s.cfg.Authenticator.AuthenticateRequest(r.Context(), r)
		if err != nil {
			slog.Warn("Authentication error", "err", err)
		}
		if !ok || err != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="dualstore"`)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func SlashFix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Replace all occurrences of "//" with "/" in the URL path
		r.URL.Path = strings.ReplaceAll(r.URL.Path, "//", "/")

		if r.URL.Path != "/" && strings.HasSuffix(r.URL.Path, "/") {
			r.URL.Path = strings.TrimSuffix(r.URL.Path, "/")
		}

		next.ServeHTTP(w, r)
	})
}

func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					// we don't recover http.ErrAbortHandler so the response
					// to the client is aborted, this should not be logged
					panic(rvr)
				}

				slog.Error("Internal Error in HTTP handler", "error", rvr, "method", r.Method, "url", r.URL.String())
				writeError(w, http.StatusInternalServerError, upload.KindInternal, "We encountered an internal error. Please try again.")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
