// Package git is a thin adapter over go-git. It translates go-git errors into
// the typed errors the rest of the server works with and keeps transport
// credentials out of every message it returns. No business logic lives here.
package git

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

const defaultRemote = "origin"

// Client defines the interface for the git operations the working-copy
// manager relies on.
type Client interface {
	// Clone clones the repository at url into path.
	Clone(ctx context.Context, path, url string, auth *Auth) error

	// IsRepository reports whether path contains a valid git repository.
	IsRepository(path string) bool

	// Pull fetches and merges the upstream of the currently checked-out
	// branch. Other branches are not touched.
	Pull(ctx context.Context, path string, auth *Auth) error

	// Fetch refreshes remote-tracking refs from origin.
	Fetch(ctx context.Context, path string, auth *Auth) error

	// CurrentBranch returns the checked-out branch short name, or the
	// empty string when HEAD is detached or unborn.
	CurrentBranch(path string) (string, error)

	// LocalBranches lists local branches.
	LocalBranches(path string) ([]BranchRef, error)

	// RemoteBranches lists remote-tracking branches, skipping symbolic
	// HEAD refs and de-duplicating by short name (first occurrence wins).
	RemoteBranches(path string) ([]BranchRef, error)

	// HasLocalBranch reports whether a local branch of that name exists.
	HasLocalBranch(path, name string) (bool, error)

	// CreateTrackingBranch creates a local branch tracking origin/<name>.
	// Returns ErrBranchNotFound when the remote branch does not exist and
	// ErrBranchExists when the local branch already does.
	CreateTrackingBranch(path, name string) error

	// Checkout switches the working tree to an existing local branch.
	Checkout(path, name string) error

	// Log returns up to maxCount commits reachable from HEAD, newest
	// first.
	Log(path string, maxCount int) ([]Commit, error)
}

// defaultClient implements Client using go-git
type defaultClient struct{}

// NewClient creates a new go-git backed Client
func NewClient() Client {
	return &defaultClient{}
}

func (*defaultClient) Clone(ctx context.Context, path, url string, auth *Auth) error {
	_, err := gogit.PlainCloneContext(ctx, path, false, &gogit.CloneOptions{
		URL:  url,
		Auth: auth.basic(),
	})
	if err != nil {
		return transportError("clone failed", err, auth)
	}
	return nil
}

func (*defaultClient) IsRepository(path string) bool {
	_, err := gogit.PlainOpen(path)
	return err == nil
}

func (*defaultClient) Pull(ctx context.Context, path string, auth *Auth) error {
	repo, err := open(path)
	if err != nil {
		return err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	err = wt.PullContext(ctx, &gogit.PullOptions{
		RemoteName: defaultRemote,
		Auth:       auth.basic(),
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return transportError("pull failed", err, auth)
	}
	return nil
}

func (*defaultClient) Fetch(ctx context.Context, path string, auth *Auth) error {
	repo, err := open(path)
	if err != nil {
		return err
	}

	err = repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: defaultRemote,
		Auth:       auth.basic(),
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return transportError("fetch failed", err, auth)
	}
	return nil
}

func (*defaultClient) CurrentBranch(path string) (string, error) {
	repo, err := open(path)
	if err != nil {
		return "", err
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD reference: %w", err)
	}

	if !head.Name().IsBranch() {
		// Detached HEAD
		return "", nil
	}
	return head.Name().Short(), nil
}

func (c *defaultClient) LocalBranches(path string) ([]BranchRef, error) {
	repo, err := open(path)
	if err != nil {
		return nil, err
	}

	current, err := c.CurrentBranch(path)
	if err != nil {
		return nil, err
	}

	iter, err := repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}

	var branches []BranchRef
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		branches = append(branches, BranchRef{
			Name:          name,
			Kind:          BranchKindLocal,
			IsCurrent:     name == current,
			CommitSHA:     abbrev(ref.Hash()),
			CommitMessage: commitSummary(repo, ref.Hash()),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate branches: %w", err)
	}
	return branches, nil
}

func (*defaultClient) RemoteBranches(path string) ([]BranchRef, error) {
	repo, err := open(path)
	if err != nil {
		return nil, err
	}

	iter, err := repo.References()
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}

	seen := make(map[string]bool)
	var branches []BranchRef
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if !ref.Name().IsRemote() {
			return nil
		}
		if strings.HasSuffix(ref.Name().String(), "/HEAD") {
			return nil
		}

		// refs/remotes/origin/feature/x shortens to origin/feature/x;
		// dropping the remote segment leaves the branch name.
		name := ref.Name().Short()
		if _, branch, found := strings.Cut(name, "/"); found {
			name = branch
		}

		if seen[name] {
			return nil
		}
		seen[name] = true

		branches = append(branches, BranchRef{
			Name:          name,
			Kind:          BranchKindRemote,
			CommitSHA:     abbrev(ref.Hash()),
			CommitMessage: commitSummary(repo, ref.Hash()),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate references: %w", err)
	}
	return branches, nil
}

func (*defaultClient) HasLocalBranch(path, name string) (bool, error) {
	repo, err := open(path)
	if err != nil {
		return false, err
	}

	_, err = repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to resolve branch %s: %w", name, err)
	}
	return true, nil
}

func (c *defaultClient) CreateTrackingBranch(path, name string) error {
	repo, err := open(path)
	if err != nil {
		return err
	}

	exists, err := c.HasLocalBranch(path, name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrBranchExists, name)
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName(defaultRemote, name), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve remote branch %s: %w", name, err)
	}

	localRef := plumbing.NewBranchReferenceName(name)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(localRef, remoteRef.Hash())); err != nil {
		return fmt.Errorf("failed to create local branch %s: %w", name, err)
	}

	// Record the upstream so later pulls on this branch merge from origin.
	err = repo.CreateBranch(&config.Branch{
		Name:   name,
		Remote: defaultRemote,
		Merge:  localRef,
	})
	if err != nil && !errors.Is(err, gogit.ErrBranchExists) {
		return fmt.Errorf("failed to configure tracking for %s: %w", name, err)
	}
	return nil
}

func (*defaultClient) Checkout(path, name string) error {
	repo, err := open(path)
	if err != nil {
		return err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	err = wt.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
	})
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("failed to checkout %s: %w", name, err)
	}
	return nil
}

func (*defaultClient) Log(path string, maxCount int) ([]Commit, error) {
	repo, err := open(path)
	if err != nil {
		return nil, err
	}

	iter, err := repo.Log(&gogit.LogOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to read commit log: %w", err)
	}

	var commits []Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if len(commits) >= maxCount {
			return storer.ErrStop
		}
		commits = append(commits, projectCommit(c))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate commits: %w", err)
	}
	return commits, nil
}

// projectCommit flattens a go-git commit into the wire shape.
func projectCommit(c *object.Commit) Commit {
	commit := Commit{
		SHA:         abbrev(c.Hash),
		FullSHA:     c.Hash.String(),
		Message:     firstLine(c.Message),
		Author:      c.Author.Name,
		AuthorEmail: c.Author.Email,
		Date:        c.Committer.When.UTC().Format(time.RFC3339),
	}

	// Stats need a tree diff; a failure there degrades to zero counts
	// rather than dropping the commit from the listing.
	if stats, err := c.Stats(); err == nil {
		commit.Stats.Files = len(stats)
		for _, s := range stats {
			commit.Stats.Insertions += s.Addition
			commit.Stats.Deletions += s.Deletion
		}
	}
	return commit
}

func open(path string) (*gogit.Repository, error) {
	repo, err := gogit.PlainOpen(path)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	return repo, nil
}

func commitSummary(repo *gogit.Repository, hash plumbing.Hash) string {
	commit, err := repo.CommitObject(hash)
	if err != nil {
		return ""
	}
	return firstLine(commit.Message)
}

func firstLine(message string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	return strings.TrimSpace(line)
}

func abbrev(hash plumbing.Hash) string {
	return hash.String()[:7]
}

func transportError(op string, err error, auth *Auth) error {
	secret := ""
	if auth != nil {
		secret = auth.Token
	}
	return fmt.Errorf("%w: %s: %s", ErrTransport, op, Scrub(err.Error(), secret))
}
