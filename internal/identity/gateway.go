// Package identity resolves the caller's principal from a GitHub OAuth
// credential. The rest of the server treats it as an opaque gateway: hand it
// a token, get a principal back. Tokens stay in memory for the lifetime of a
// request; they are never persisted and never logged.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

const defaultAPIBaseURL = "https://api.github.com"

// Principal is an authenticated GitHub user. Token is the credential the
// principal presented; it is deliberately excluded from serialization.
type Principal struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	Token     string `json:"-"`
}

// RemoteRepo is one repository visible to the principal on the hosting side.
type RemoteRepo struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	FullName        string `json:"full_name"`
	Description     string `json:"description"`
	Private         bool   `json:"private"`
	HTMLURL         string `json:"html_url"`
	CloneURL        string `json:"clone_url"`
	SSHURL          string `json:"ssh_url"`
	Language        string `json:"language"`
	StargazersCount int    `json:"stargazers_count"`
	DefaultBranch   string `json:"default_branch"`
}

// Gateway exchanges OAuth codes for tokens and resolves principals against
// the GitHub API.
type Gateway struct {
	oauth      *oauth2.Config
	apiBaseURL string
	client     *http.Client
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithAPIBaseURL points the gateway at a different API host. Tests use it to
// target a local server.
func WithAPIBaseURL(url string) Option {
	return func(g *Gateway) {
		g.apiBaseURL = url
	}
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		g.client = client
	}
}

// NewGateway creates a Gateway for the given OAuth app. The repo scope is
// required so clones of private repositories work with the same token.
func NewGateway(clientID, clientSecret, redirectURL string, opts ...Option) *Gateway {
	g := &Gateway{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"read:user", "user:email", "repo"},
			Endpoint:     githuboauth.Endpoint,
		},
		apiBaseURL: defaultAPIBaseURL,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AuthCodeURL returns the authorization page URL for the OAuth flow.
func (g *Gateway) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token.
func (g *Gateway) Exchange(ctx context.Context, code string) (string, error) {
	if g.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	}

	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("code exchange failed: %w", err)
	}
	return token.AccessToken, nil
}

// ResolvePrincipal fetches the user behind the token, including a usable
// email address. Users hiding their email get the standard noreply form.
func (g *Gateway) ResolvePrincipal(ctx context.Context, token string) (Principal, error) {
	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := g.get(ctx, token, "/user", &user); err != nil {
		return Principal{}, err
	}

	principal := Principal{
		ID:        user.ID,
		Login:     user.Login,
		Name:      user.Name,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		Token:     token,
	}
	if principal.Name == "" {
		principal.Name = user.Login
	}

	if principal.Email == "" {
		var emails []struct {
			Email   string `json:"email"`
			Primary bool   `json:"primary"`
		}
		// The emails endpoint can fail on tokens without the scope;
		// the noreply fallback still gives a usable address.
		if err := g.get(ctx, token, "/user/emails", &emails); err == nil {
			for _, e := range emails {
				if e.Primary {
					principal.Email = e.Email
					break
				}
			}
		}
	}
	if principal.Email == "" {
		principal.Email = fmt.Sprintf("%d+%s@users.noreply.github.com", user.ID, user.Login)
	}

	return principal, nil
}

// ListRepos returns every repository the token can see, owned and
// collaborated alike.
func (g *Gateway) ListRepos(ctx context.Context, token string) ([]RemoteRepo, error) {
	var repos []RemoteRepo
	if err := g.get(ctx, token, "/user/repos?per_page=100&sort=updated", &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

func (g *Gateway) get(ctx context.Context, token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("identity provider returned %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode identity provider response: %w", err)
	}
	return nil
}
