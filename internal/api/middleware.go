package api

import (
	"crypto/subtle"
	"net/http"

	"coursepulse/internal/types"
)

// adminKeyHeader carries the static admin API key on every request.
const adminKeyHeader = "X-Admin-Key"

// RequireAdminKey rejects requests that do not carry the configured admin
// API key. Comparison is constant-time.
func RequireAdminKey(key types.SecretString) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(adminKeyHeader)
			if presented == "" {
				Error(w, r, types.NewAppError(
					types.ErrCodeAuthTokenMissing,
					"admin API key required",
					nil,
				))
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key.Unmask())) != 1 {
				Error(w, r, types.NewAppError(
					types.ErrCodeAuthTokenInvalid,
					"invalid admin API key",
					nil,
				))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
