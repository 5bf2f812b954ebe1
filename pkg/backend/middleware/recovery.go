package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/desenyon/infiniteidea-sub000/internal/logging"
)

// Recovery turns a handler panic into a 500 response.
func Recovery(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered", logging.Fields{
						"request_id": GetRequestID(r.Context()),
						"panic":      err,
						"stack":      string(debug.Stack()),
					})

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]interface{}{
						"success": false,
						"error": map[string]string{
							"code":    "INTERNAL_ERROR",
							"message": "An internal error occurred",
						},
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
