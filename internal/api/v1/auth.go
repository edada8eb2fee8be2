package v1

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gitionhq/gition-server/internal/identity"
	"github.com/gitionhq/gition-server/internal/logger"
)

const (
	stateCookie    = "oauth_state"
	stateLifetime  = 10 * time.Minute
	sessionMaxAge  = 7 * 24 * time.Hour
	callbackSuffix = "/auth/callback"
)

// AuthRouter creates a router for the GitHub OAuth login flow.
func AuthRouter(deps *Dependencies) http.Handler {
	rr := NewRoutes(deps)
	r := chi.NewRouter()
	r.Get("/github", rr.beginLogin)
	r.Get("/github/callback", rr.finishLogin)
	return r
}

// beginLogin redirects the browser to GitHub's consent screen. The random
// state is pinned in a short-lived cookie and checked on the way back.
func (rr *Routes) beginLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateLifetime.Seconds()),
		HttpOnly: true,
		Secure:   rr.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, rr.deps.Gateway.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// finishLogin completes the exchange and hands the session back to the
// frontend. The token only ever lives in the cookie; it is not persisted.
func (rr *Routes) finishLogin(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookie)
	if err != nil || state == "" || cookie.Value != state {
		rr.writeErrorResponse(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	// State is single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		rr.writeErrorResponse(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	token, err := rr.deps.Gateway.Exchange(r.Context(), code)
	if err != nil {
		logger.Errorf("OAuth exchange failed: %v", err)
		rr.writeErrorResponse(w, "token exchange failed", http.StatusBadGateway)
		return
	}

	principal, err := rr.deps.Gateway.ResolvePrincipal(r.Context(), token)
	if err != nil {
		logger.Errorf("Failed to resolve GitHub identity: %v", err)
		rr.writeErrorResponse(w, "failed to resolve identity", http.StatusBadGateway)
		return
	}

	if rr.deps.Metadata != nil {
		if _, created, err := rr.deps.Metadata.GetOrCreateUser(r.Context(), principal); err != nil {
			logger.Errorf("Failed to upsert user %s: %v", principal.Login, err)
		} else if created {
			logger.Infof("Registered new user %s", principal.Login)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     identity.TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   rr.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})

	userJSON, err := json.Marshal(principal)
	if err != nil {
		rr.writeErrorResponse(w, "failed to encode user", http.StatusInternalServerError)
		return
	}
	target := strings.TrimSuffix(rr.deps.FrontendURL, "/") + callbackSuffix +
		"?user=" + url.QueryEscape(string(userJSON))
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

func (rr *Routes) secureCookies() bool {
	return strings.HasPrefix(rr.deps.FrontendURL, "https://")
}
