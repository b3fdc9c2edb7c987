package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/iurnickita/importcredit/internal/auth/config"
	"github.com/iurnickita/importcredit/internal/token"
)

type Auth interface {
	Middleware(h http.HandlerFunc) http.HandlerFunc
	RequireRole(h http.HandlerFunc, roles ...string) http.HandlerFunc
}

type ctxKey struct{}

var ErrNoToken = errors.New("bearer token required")

// Actor is the caller taken from the bearer token.
type Actor struct {
	ID   string
	Role string
}

type auth struct {
	secret string
}

func NewAuth(cfg config.Config) Auth {
	return &auth{secret: cfg.TokenSecret}
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(ctxKey{}).(Actor)
	return actor, ok
}

func (a *auth) Middleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// получение пользователя из токена
		actor, err := a.getActor(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		// передаём управление хендлеру
		h.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	}
}

// RequireRole lets through only actors with one of roles. It runs after Middleware.
func (a *auth) RequireRole(h http.HandlerFunc, roles ...string) http.HandlerFunc {
	return a.Middleware(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())
		if !slices.Contains(roles, actor.Role) {
			http.Error(w, "role "+actor.Role+" is not allowed", http.StatusForbidden)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func (a *auth) getActor(r *http.Request) (Actor, error) {
	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return Actor{}, ErrNoToken
	}
	claims, err := token.GetClaims(tokenString, a.secret)
	if err != nil {
		return Actor{}, err
	}
	return Actor{ID: claims.ActorID, Role: claims.Role}, nil
}
