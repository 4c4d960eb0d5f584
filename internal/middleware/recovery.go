package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/hemantsingh443/allchat-sub000/internal/frame"
	"github.com/hemantsingh443/allchat-sub000/internal/httputil"
)

// Recovery turns a handler panic into a 500. When the handler had already
// switched the response to a frame stream, the stream is closed with an
// internal_error frame instead, since headers are gone by then.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					"request_id", httputil.RequestID(r.Context()),
					"error", rec,
					"path", r.URL.Path,
					"method", r.Method,
					"stack", string(debug.Stack()),
				)

				if w.Header().Get("Content-Type") == frame.ContentType {
					_ = frame.NewWriter(w).Send(frame.Error{
						Message: "The response was interrupted by a server error.",
						Code:    frame.CodeInternal,
					})
					return
				}
				httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
