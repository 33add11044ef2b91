package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Request headers read by the API.
const (
	HeaderTenantID = "tenantid"
	HeaderUserID   = "userid"
)

type ctxKey int

const (
	ctxAPIID ctxKey = iota
	ctxTenant
	ctxActor
)

var errNoToken = errors.New("missing bearer token")

// withAPI tags the request with the api id reported in the envelope.
func withAPI(id string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxAPIID, id)))
		})
	}
}

// requireTenant rejects requests without a tenantid header.
func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.TrimSpace(r.Header.Get(HeaderTenantID))
		if tenant == "" {
			writeFailure(w, apiID(r.Context()), http.StatusBadRequest, CodeBadRequest, "tenantId is missing in headers")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxTenant, tenant)))
	})
}

// Authenticator resolves the acting user. With a secret it requires an HS256
// bearer token and reads the sub or userId claim; without one it trusts the
// userid header.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(strings.TrimSpace(secret))}
}

// Middleware stores the actor in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil || len(a.secret) == 0 {
			actor := strings.TrimSpace(r.Header.Get(HeaderUserID))
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxActor, actor)))
			return
		}

		actor, err := a.actor(r)
		if err != nil {
			writeFailure(w, apiID(r.Context()), http.StatusUnauthorized, CodeUnauthorized, "Unauthorized: "+err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxActor, actor)))
	})
}

func (a *Authenticator) actor(r *http.Request) (string, error) {
	raw := ""
	if authz := strings.TrimSpace(r.Header.Get("Authorization")); strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		raw = strings.TrimSpace(authz[7:])
	}
	if raw == "" {
		return "", errNoToken
	}

	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	for _, name := range []string{"sub", "userId"} {
		if v, ok := claims[name].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return "", errors.New("token has no sub or userId claim")
}

func apiID(ctx context.Context) string {
	id, _ := ctx.Value(ctxAPIID).(string)
	return id
}

func tenantID(ctx context.Context) string {
	t, _ := ctx.Value(ctxTenant).(string)
	return t
}

func actorID(ctx context.Context) string {
	a, _ := ctx.Value(ctxActor).(string)
	return a
}
