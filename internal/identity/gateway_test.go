package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGitHub serves the subset of the API the gateway touches.
func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":12345,"login":"octocat","name":"","email":"","avatar_url":"https://example.com/a.png"}`))
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"email":"secondary@example.com","primary":false},{"email":"primary@example.com","primary":true}]`))
	})
	mux.HandleFunc("/user/repos", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"name":"project","full_name":"octocat/project","private":true,"clone_url":"https://example.com/octocat/project.git","default_branch":"main"}]`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	server := fakeGitHub(t)
	return NewGateway("client-id", "client-secret", "http://localhost/auth/github/callback",
		WithAPIBaseURL(server.URL))
}

func TestResolvePrincipal(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)

	principal, err := g.ResolvePrincipal(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), principal.ID)
	assert.Equal(t, "octocat", principal.Login)
	assert.Equal(t, "octocat", principal.Name, "empty name falls back to login")
	assert.Equal(t, "primary@example.com", principal.Email)
	assert.Equal(t, "good-token", principal.Token)
}

func TestResolvePrincipalBadToken(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)

	_, err := g.ResolvePrincipal(context.Background(), "bad-token")
	require.Error(t, err)
}

func TestResolvePrincipalNoreplyFallback(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"login":"ghost","name":"Ghost"}`))
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	g := NewGateway("id", "secret", "", WithAPIBaseURL(server.URL))

	principal, err := g.ResolvePrincipal(context.Background(), "any")
	require.NoError(t, err)
	assert.Equal(t, "7+ghost@users.noreply.github.com", principal.Email)
}

func TestListRepos(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)

	repos, err := g.ListRepos(context.Background(), "good-token")
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "project", repos[0].Name)
	assert.True(t, repos[0].Private)
	assert.Equal(t, "main", repos[0].DefaultBranch)
}

func TestAuthCodeURL(t *testing.T) {
	t.Parallel()

	g := NewGateway("client-id", "secret", "http://localhost/auth/github/callback")

	url := g.AuthCodeURL("state-value")
	assert.Contains(t, url, "client_id=client-id")
	assert.Contains(t, url, "state=state-value")
	assert.Contains(t, url, "scope=read%3Auser+user%3Aemail+repo")
}

func TestTokenFromRequest(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: TokenCookie, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", TokenFromRequest(r))

	// The header wins over the cookie.
	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", TokenFromRequest(r))
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t)

	var got Principal
	handler := Middleware(g)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		got = p
		w.WriteHeader(http.StatusOK)
	}))

	// No credential.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Invalid credential.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid credential.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "octocat", got.Login)
}
