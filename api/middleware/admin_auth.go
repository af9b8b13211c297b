package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-provisioner/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
)

const anonymousActor = "anonymous"

// AdminAuth requires the shared operator token as a bearer credential. An
// empty token disables the check and marks requests as anonymous.
func AdminAuth(token string, logg *logger.Logger) func(http.Handler) http.Handler {
	expected := strings.TrimSpace(token)
	actor := anonymousActor
	if expected != "" {
		sum := sha256.Sum256([]byte(expected))
		actor = "operator:" + hex.EncodeToString(sum[:4])
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected != "" {
				raw := strings.TrimSpace(r.Header.Get("Authorization"))
				if raw == "" {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
					return
				}
				presented := raw
				if strings.HasPrefix(strings.ToLower(presented), "bearer ") {
					presented = strings.TrimSpace(presented[7:])
				}
				if subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials"))
					return
				}
			}

			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithField(ctx, "actor", actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type actorKey struct{}

// WithActor stamps the operator identity used to scope idempotency keys.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the identity set by AdminAuth, or "" outside it.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}
