package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftlend/crypto"
	"nftlend/gateway/auth"
)

// HeaderActor names the acting address when authentication is disabled.
const HeaderActor = "X-Actor"

type AuthConfig struct {
	Enabled bool
	Token   auth.Config
}

type contextKey string

const (
	ContextKeyActor  contextKey = "gateway.actor"
	ContextKeyScopes contextKey = "gateway.scopes"
)

type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	nowFn  func() time.Time
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{cfg: cfg, logger: logger, nowFn: time.Now}
}

// Middleware resolves the acting address and enforces requiredScopes. With
// authentication disabled the X-Actor header is trusted and every scope is
// granted; this mode is for local networks only.
func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.cfg.Enabled {
				actor, err := crypto.ParseAddress(r.Header.Get(HeaderActor))
				if err != nil {
					http.Error(w, "missing or invalid "+HeaderActor+" header", http.StatusUnauthorized)
					return
				}
				ctx := context.WithValue(r.Context(), ContextKeyActor, actor)
				ctx = context.WithValue(ctx, ContextKeyScopes, requiredScopes)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			tokenString := extractBearer(r.Header.Get("Authorization"))
			if tokenString == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := auth.Parse(a.cfg.Token, tokenString, a.nowFn)
			if err != nil {
				a.logger.Warn("token validation failed", "error", err)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			actor, err := claims.Actor()
			if err != nil {
				a.logger.Warn("token subject rejected", "error", err)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			scopes := claims.Scopes()
			if !hasScopes(scopes, requiredScopes) {
				http.Error(w, "insufficient scope", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyActor, actor)
			ctx = context.WithValue(ctx, ContextKeyScopes, scopes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFrom returns the address the request acts for.
func ActorFrom(ctx context.Context) (ethcommon.Address, bool) {
	actor, ok := ctx.Value(ContextKeyActor).(ethcommon.Address)
	return actor, ok
}

func ScopesFrom(ctx context.Context) []string {
	scopes, _ := ctx.Value(ContextKeyScopes).([]string)
	return scopes
}

func hasScopes(scopes []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
