package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-provisioner/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-provisioner/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// claimTTL bounds how long a crashed request can block its key.
	claimTTL = 10 * time.Minute
)

const claimMarker = "in-flight"

type idempotentRoute struct {
	method   string
	segments []string
	ttl      time.Duration
}

func route(method, pattern string, ttl time.Duration) idempotentRoute {
	return idempotentRoute{method: method, segments: splitPath(pattern), ttl: ttl}
}

// Steps that create external resources keep their records for a week.
var idempotentRoutes = []idempotentRoute{
	route(http.MethodPost, "/api/admin/v1/plans", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/admin/v1/merchants", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/admin/v1/merchants/{id}/status", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/admin/v1/merchants/{id}/subscription/cancel", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/admin/v1/merchants/{id}/domain", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/admin/v1/deployments/{id}/redeploy", defaultIdempotencyTTL),
	route(http.MethodPost, "/api/admin/v1/merchants/{id}/subscription", criticalIdempotencyTTL),
	route(http.MethodPost, "/api/admin/v1/merchants/{id}/subscription/renew", criticalIdempotencyTTL),
	route(http.MethodPost, "/api/admin/v1/merchants/{id}/database", criticalIdempotencyTTL),
	route(http.MethodPost, "/api/admin/v1/merchants/{id}/deployment", criticalIdempotencyTTL),
	route(http.MethodPost, "/api/admin/v1/merchants/{id}/provision", criticalIdempotencyTTL),
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body"`
	BodyHash    string `json:"bodyHash"`
}

type idempotencyGuard struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
}

// Idempotency makes the mutating admin routes safe to retry. The first
// request carrying an Idempotency-Key claims it; later requests with the
// same key and body get the recorded response back, a different body is
// rejected, and a retry while the first is still running gets a 409.
// 5xx outcomes release the claim so the operation can be resumed.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	g := &idempotencyGuard{store: store, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			ttl, ok := lookupTTL(r.Method, r.URL.Path)
			if !ok || g.store == nil || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			g.serve(w, r, next, clientKey, ttl)
		})
	}
}

func (g *idempotencyGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler, clientKey string, ttl time.Duration) {
	ctx := r.Context()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	bodyHash := digest(body)
	key := g.store.IdempotencyKey(ActorFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, clientKey)

	claimed, err := g.store.SetNX(ctx, key, claimMarker, claimTTL)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
		return
	}
	if !claimed {
		g.replay(w, r, key, bodyHash)
		return
	}

	capture := &responseCapture{ResponseWriter: w}
	next.ServeHTTP(capture, r)

	status := capture.statusCode()
	if status >= http.StatusInternalServerError {
		if err := g.store.Del(ctx, key); err != nil {
			g.logg.Error(ctx, "release idempotency key", err)
		}
		return
	}

	payload, err := json.Marshal(storedResponse{
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
		BodyHash:    bodyHash,
	})
	if err == nil {
		err = g.store.Set(ctx, key, string(payload), ttl)
	}
	if err != nil {
		g.logg.Error(ctx, "record idempotent response", err)
	}
}

func (g *idempotencyGuard) replay(w http.ResponseWriter, r *http.Request, key, bodyHash string) {
	ctx := r.Context()
	raw, err := g.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// expired between the claim attempt and the read
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key expired, retry the request"))
		return
	case err != nil:
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	case raw == claimMarker:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this idempotency key is still in progress"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if stored.BodyHash != bodyHash {
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func lookupTTL(method, path string) (time.Duration, bool) {
	segments := splitPath(path)
	for _, rt := range idempotentRoutes {
		if rt.method == method && rt.matches(segments) {
			return rt.ttl, true
		}
	}
	return 0, false
}

func (rt idempotentRoute) matches(segments []string) bool {
	if len(segments) != len(rt.segments) {
		return false
	}
	for i, want := range rt.segments {
		if strings.HasPrefix(want, "{") {
			continue
		}
		if segments[i] != want {
			return false
		}
	}
	return true
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
