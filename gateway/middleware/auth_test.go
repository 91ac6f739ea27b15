package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"nftlend/gateway/auth"
)

var testActor = ethcommon.HexToAddress("0x00000000000000000000000000000000000000a1")

func echoActor(t *testing.T, got *ethcommon.Address, scopes *[]string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFrom(r.Context())
		require.True(t, ok)
		*got = actor
		*scopes = ScopesFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestDisabledAuthTrustsActorHeader(t *testing.T) {
	authn := NewAuthenticator(AuthConfig{}, nil)
	var actor ethcommon.Address
	var scopes []string
	handler := authn.Middleware(auth.ScopeAdmin)(echoActor(t, &actor, &scopes))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(HeaderActor, testActor.Hex())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, testActor, actor)
	require.Equal(t, []string{auth.ScopeAdmin}, scopes)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerAuthEnforcesScopes(t *testing.T) {
	cfg := auth.Config{Secret: []byte("secret"), Issuer: "nftlend", Audience: "gateway"}
	authn := NewAuthenticator(AuthConfig{Enabled: true, Token: cfg}, nil)
	var actor ethcommon.Address
	var scopes []string
	handler := authn.Middleware(auth.ScopeAdmin)(echoActor(t, &actor, &scopes))

	send := func(header string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	issue := func(c auth.Config, scopes ...string) string {
		token, err := auth.Issue(c, testActor, scopes, time.Hour, time.Now())
		require.NoError(t, err)
		return token
	}

	require.Equal(t, http.StatusUnauthorized, send(""))
	require.Equal(t, http.StatusUnauthorized, send("Basic abc"))
	require.Equal(t, http.StatusUnauthorized, send("Bearer not-a-token"))

	wrongSecret := cfg
	wrongSecret.Secret = []byte("other")
	require.Equal(t, http.StatusUnauthorized, send("Bearer "+issue(wrongSecret, auth.ScopeAdmin)))
	require.Equal(t, http.StatusForbidden, send("Bearer "+issue(cfg)))
	require.Equal(t, http.StatusNoContent, send("bearer "+issue(cfg, auth.ScopeAdmin, "ops")))
	require.Equal(t, testActor, actor)
	require.ElementsMatch(t, []string{auth.ScopeAdmin, "ops"}, scopes)
}
