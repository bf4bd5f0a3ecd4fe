package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"pixelgate-gateway/internal/verify"
	"pixelgate-gateway/pkg/logging/logging"
)

// VerifyHuman rejects requests whose verification token does not check out.
// A verifier error counts as a rejection.
func VerifyHuman(verifier verify.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := logging.L(ctx)

			token := r.Header.Get(verify.TokenHeader)
			ok, err := verifier.Verify(ctx, token, r.RemoteAddr)
			if err != nil {
				logger.Warn("verification check failed", zap.Error(err))
				ok = false
			}
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"verification_required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
