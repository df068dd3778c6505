package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/hongminglow/moviebox-be/internal/http/respond"
)

// Recovery converts a panicking handler into a JSON 500 and keeps serving.
// When the handler had already started its response the panic is only logged.
func Recovery(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Error("panic recovered",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Any("error", rec),
				zap.ByteString("stack", debug.Stack()),
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.Bool("response_started", rw.wroteHeader),
			)
			if rw.wroteHeader {
				return
			}
			respond.Error(w, http.StatusInternalServerError, "Internal server error")
		}()

		next.ServeHTTP(rw, r)
	})
}
