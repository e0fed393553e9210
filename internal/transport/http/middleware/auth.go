package httpmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/pawmart/chat-service/internal/domain"
	"github.com/pawmart/chat-service/pkg/httputil"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// Auth requires a Bearer token and resolves it to an Identity before
// any room or session operation runs.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") || len(h) <= 7 {
				httputil.Error(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			ident, err := verifier.Verify(strings.TrimSpace(h[7:]))
			if err != nil {
				httputil.Error(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyIdentity, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromCtx(ctx context.Context) (domain.Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity).(domain.Identity)
	return v, ok
}
