package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gitionhq/gition-server/internal/identity"
)

// ErrRepoNotFound is returned when a repository record does not exist for
// the user.
var ErrRepoNotFound = errors.New("repository record not found")

// User is one authenticated user's record.
type User struct {
	ID        int64     `json:"id"`
	GitHubID  int64     `json:"github_id"`
	Login     string    `json:"login"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository is one synced repository record.
type Repository struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	GitHubRepoID    int64     `json:"github_repo_id"`
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	Description     string    `json:"description"`
	Private         bool      `json:"is_private"`
	HTMLURL         string    `json:"html_url"`
	CloneURL        string    `json:"clone_url"`
	SSHURL          string    `json:"ssh_url"`
	Language        string    `json:"language"`
	StargazersCount int       `json:"stargazers_count"`
	DefaultBranch   string    `json:"default_branch"`
	SyncedAt        time.Time `json:"synced_at"`
}

// Store runs the user/repository queries against the metadata database.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an established connection.
func NewStore(conn *Connection) *Store {
	return &Store{db: conn.DB}
}

const upsertUserQuery = `
INSERT INTO users (github_id, login, name, email, avatar_url)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (github_id) DO UPDATE SET
    login      = EXCLUDED.login,
    name       = EXCLUDED.name,
    email      = EXCLUDED.email,
    avatar_url = EXCLUDED.avatar_url,
    updated_at = now()
RETURNING id, github_id, login, name, email, avatar_url, created_at, updated_at, (xmax = 0)
`

// GetOrCreateUser upserts the principal's record, refreshing the profile
// fields on every login. The bool reports whether the user was newly created.
func (s *Store) GetOrCreateUser(ctx context.Context, principal identity.Principal) (User, bool, error) {
	var (
		user    User
		created bool
	)
	err := s.db.QueryRowContext(ctx, upsertUserQuery,
		principal.ID, principal.Login, principal.Name, principal.Email, principal.AvatarURL,
	).Scan(
		&user.ID, &user.GitHubID, &user.Login, &user.Name, &user.Email,
		&user.AvatarURL, &user.CreatedAt, &user.UpdatedAt, &created,
	)
	if err != nil {
		return User{}, false, fmt.Errorf("failed to upsert user %s: %w", principal.Login, err)
	}
	return user, created, nil
}

const upsertRepoQuery = `
INSERT INTO repositories (user_id, github_repo_id, name, full_name, description,
    is_private, html_url, clone_url, ssh_url, language, stargazers_count, default_branch)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (user_id, github_repo_id) DO UPDATE SET
    name             = EXCLUDED.name,
    full_name        = EXCLUDED.full_name,
    description      = EXCLUDED.description,
    is_private       = EXCLUDED.is_private,
    html_url         = EXCLUDED.html_url,
    clone_url        = EXCLUDED.clone_url,
    ssh_url          = EXCLUDED.ssh_url,
    language         = EXCLUDED.language,
    stargazers_count = EXCLUDED.stargazers_count,
    default_branch   = EXCLUDED.default_branch,
    synced_at        = now()
`

// SyncRepos upserts the user's remote repository listing and returns how many
// records were written.
func (s *Store) SyncRepos(ctx context.Context, userID int64, repos []identity.RemoteRepo) (int, error) {
	synced := 0
	for _, repo := range repos {
		defaultBranch := repo.DefaultBranch
		if defaultBranch == "" {
			defaultBranch = "main"
		}

		_, err := s.db.ExecContext(ctx, upsertRepoQuery,
			userID, repo.ID, repo.Name, repo.FullName, repo.Description,
			repo.Private, repo.HTMLURL, repo.CloneURL, repo.SSHURL,
			repo.Language, repo.StargazersCount, defaultBranch,
		)
		if err != nil {
			return synced, fmt.Errorf("failed to sync repository %s: %w", repo.FullName, err)
		}
		synced++
	}
	return synced, nil
}

const selectRepoColumns = `
SELECT id, user_id, github_repo_id, name, full_name, COALESCE(description, ''),
       is_private, COALESCE(html_url, ''), COALESCE(clone_url, ''), COALESCE(ssh_url, ''),
       COALESCE(language, ''), stargazers_count, default_branch, synced_at
FROM repositories
`

// ListRepos returns the user's repository records, most recently synced
// first.
func (s *Store) ListRepos(ctx context.Context, userID int64) ([]Repository, error) {
	rows, err := s.db.QueryContext(ctx,
		selectRepoColumns+"WHERE user_id = $1 ORDER BY synced_at DESC, name", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	defer rows.Close()

	var repos []Repository
	for rows.Next() {
		repo, err := scanRepo(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate repositories: %w", err)
	}
	return repos, nil
}

// GetRepoByName returns the user's repository record with that name.
func (s *Store) GetRepoByName(ctx context.Context, userID int64, name string) (Repository, error) {
	row := s.db.QueryRowContext(ctx,
		selectRepoColumns+"WHERE user_id = $1 AND name = $2", userID, name)

	repo, err := scanRepo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Repository{}, fmt.Errorf("%w: %s", ErrRepoNotFound, name)
	}
	if err != nil {
		return Repository{}, err
	}
	return repo, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepo(row rowScanner) (Repository, error) {
	var repo Repository
	err := row.Scan(
		&repo.ID, &repo.UserID, &repo.GitHubRepoID, &repo.Name, &repo.FullName,
		&repo.Description, &repo.Private, &repo.HTMLURL, &repo.CloneURL,
		&repo.SSHURL, &repo.Language, &repo.StargazersCount, &repo.DefaultBranch,
		&repo.SyncedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Repository{}, err
	}
	if err != nil {
		return Repository{}, fmt.Errorf("failed to scan repository row: %w", err)
	}
	return repo, nil
}
