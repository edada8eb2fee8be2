// Package workingcopy orchestrates git primitives and the storage layout into
// the working-copy lifecycle: clone, reclone, pull, status, delete, checkout
// and branch sync for one (owner, repo) pair per on-disk clone.
//
// Concurrency contract: mutating operations against the same pair are
// serialized with an exclusive per-pair lock backed by a file lock, so two
// server processes sharing a storage root cannot corrupt a clone either.
// Read-only operations take the shared half of the in-process lock. Pairs
// never block each other.
package workingcopy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/gitionhq/gition-server/internal/git"
	"github.com/gitionhq/gition-server/internal/logger"
	"github.com/gitionhq/gition-server/internal/storage"
)

// ErrNotCloned is returned by read operations when no working copy exists for
// the pair. Mutating operations report the same condition through
// OutcomeNotCloned instead.
var ErrNotCloned = errors.New("repository not cloned")

// BranchList is the combined branch view of a working copy: local branches
// first, then remote-tracking branches de-duplicated by short name. A remote
// branch whose name matches a local branch stays in the list with HasLocal
// set; both entries appear.
type BranchList struct {
	CurrentBranch string          `json:"current_branch,omitempty"`
	Branches      []git.BranchRef `json:"branches"`
}

// Manager owns the working-copy lifecycle. The filesystem is the sole source
// of truth: existence checks always go to disk, never to cached state.
type Manager struct {
	resolver *storage.Resolver
	git      git.Client
	locks    *storage.LockRegistry
	lockDir  string
}

// NewManager creates a Manager over the given storage layout. The lock
// registry is shared with readers of the same working copies so reads and
// mutations exclude each other.
func NewManager(resolver *storage.Resolver, client git.Client, locks *storage.LockRegistry) *Manager {
	return &Manager{
		resolver: resolver,
		git:      client,
		locks:    locks,
		lockDir:  filepath.Join(resolver.Root(), ".gition", "locks"),
	}
}

// Clone clones url into the pair's working copy. Idempotent: an existing
// valid clone yields OutcomeAlreadyExists untouched. A leftover directory
// without a valid repository inside is treated as a crashed previous clone
// and removed first. After a successful clone, local tracking branches are
// populated from the already-fresh remote refs.
func (m *Manager) Clone(ctx context.Context, url string, auth *git.Auth, owner, repo string) (CloneResult, error) {
	path, err := m.resolver.RepoPath(owner, repo)
	if err != nil {
		return CloneResult{}, err
	}

	unlock, err := m.lockPair(owner, repo)
	if err != nil {
		return CloneResult{}, err
	}
	defer unlock()

	return m.cloneLocked(ctx, url, auth, path), nil
}

// Reclone deletes the working copy and clones it again as one locked unit.
// If the delete fails the clone is not attempted.
func (m *Manager) Reclone(ctx context.Context, url string, auth *git.Auth, owner, repo string) (CloneResult, error) {
	path, err := m.resolver.RepoPath(owner, repo)
	if err != nil {
		return CloneResult{}, err
	}

	unlock, err := m.lockPair(owner, repo)
	if err != nil {
		return CloneResult{}, err
	}
	defer unlock()

	if _, err := os.Stat(path); err == nil {
		if err := os.RemoveAll(path); err != nil {
			return CloneResult{
				Outcome: OutcomeFailed,
				Message: fmt.Sprintf("failed to remove existing working copy: %v", err),
			}, nil
		}
	}

	return m.cloneLocked(ctx, url, auth, path), nil
}

func (m *Manager) cloneLocked(ctx context.Context, url string, auth *git.Auth, path string) CloneResult {
	if m.git.IsRepository(path) {
		return CloneResult{Outcome: OutcomeAlreadyExists, Path: path}
	}

	// A directory without a repository inside is a partial clone from a
	// crashed attempt; clear it so the retry starts clean.
	if _, err := os.Stat(path); err == nil {
		if err := os.RemoveAll(path); err != nil {
			return CloneResult{
				Outcome: OutcomeFailed,
				Message: fmt.Sprintf("failed to clear stale directory: %v", err),
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return CloneResult{
			Outcome: OutcomeFailed,
			Message: fmt.Sprintf("failed to create parent directory: %v", err),
		}
	}

	if err := m.git.Clone(ctx, path, url, auth); err != nil {
		// Leave nothing behind so a retried clone starts clean.
		if rmErr := os.RemoveAll(path); rmErr != nil {
			logger.Errorf("failed to clean up partial clone at %s: %v", path, rmErr)
		}
		return CloneResult{Outcome: OutcomeFailed, Message: err.Error()}
	}

	// The clone just fetched every remote ref, so the sync can skip the
	// fetch. A failure here does not undo the clone.
	synced, err := m.syncLocked(ctx, path, true, auth)
	if err != nil {
		logger.Warnf("branch sync after clone of %s failed: %v", path, err)
	}

	return CloneResult{Outcome: OutcomeCreated, Path: path, BranchesSynced: synced}
}

// Pull fetches and merges the upstream of the currently checked-out branch.
func (m *Manager) Pull(ctx context.Context, auth *git.Auth, owner, repo string) (PullResult, error) {
	path, err := m.resolver.RepoPath(owner, repo)
	if err != nil {
		return PullResult{}, err
	}

	unlock, err := m.lockPair(owner, repo)
	if err != nil {
		return PullResult{}, err
	}
	defer unlock()

	if !m.git.IsRepository(path) {
		return PullResult{Outcome: OutcomeNotCloned}, nil
	}

	if err := m.git.Pull(ctx, path, auth); err != nil {
		return PullResult{Outcome: OutcomeFailed, Message: err.Error()}, nil
	}
	return PullResult{Outcome: OutcomeUpdated}, nil
}

// Exists reports whether a valid working copy is on disk for the pair. The
// answer is recomputed from disk on every call.
func (m *Manager) Exists(owner, repo string) (bool, error) {
	path, err := m.resolver.RepoPath(owner, repo)
	if err != nil {
		return false, err
	}

	mu := m.locks.Get(owner, repo)
	mu.RLock()
	defer mu.RUnlock()

	return m.git.IsRepository(path), nil
}

// Delete removes the working copy recursively. Branch notes attached to the
// pair are not touched; they live outside the working copy.
func (m *Manager) Delete(owner, repo string) (DeleteResult, error) {
	path, err := m.resolver.RepoPath(owner, repo)
	if err != nil {
		return DeleteResult{}, err
	}

	unlock, err := m.lockPair(owner, repo)
	if err != nil {
		return DeleteResult{}, err
	}
	defer unlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DeleteResult{Outcome: OutcomeNotFound}, nil
	}

	if err := os.RemoveAll(path); err != nil {
		return DeleteResult{
			Outcome: OutcomeFailed,
			Message: fmt.Sprintf("failed to remove working copy: %v", err),
		}, nil
	}
	return DeleteResult{Outcome: OutcomeDeleted}, nil
}

// Checkout switches the working copy to branch. A branch that exists only on
// the remote gets a local tracking branch first. After a successful switch
// the branch is pulled to sync it; a pull failure does not fail the checkout
// and is reported as a warning.
func (m *Manager) Checkout(ctx context.Context, auth *git.Auth, owner, repo, branch string) (CheckoutResult, error) {
	path, err := m.resolver.RepoPath(owner, repo)
	if err != nil {
		return CheckoutResult{}, err
	}

	unlock, err := m.lockPair(owner, repo)
	if err != nil {
		return CheckoutResult{}, err
	}
	defer unlock()

	if !m.git.IsRepository(path) {
		return CheckoutResult{Outcome: OutcomeNotCloned}, nil
	}

	hasLocal, err := m.git.HasLocalBranch(path, branch)
	if err != nil {
		return CheckoutResult{Outcome: OutcomeFailed, Message: err.Error()}, nil
	}

	created := false
	if !hasLocal {
		err := m.git.CreateTrackingBranch(path, branch)
		switch {
		case errors.Is(err, git.ErrBranchNotFound):
			return CheckoutResult{Outcome: OutcomeBranchNotFound, Message: err.Error()}, nil
		case err != nil:
			return CheckoutResult{Outcome: OutcomeFailed, Message: err.Error()}, nil
		}
		created = true
	}

	if err := m.git.Checkout(path, branch); err != nil {
		if errors.Is(err, git.ErrBranchNotFound) {
			return CheckoutResult{Outcome: OutcomeBranchNotFound, Message: err.Error()}, nil
		}
		return CheckoutResult{Outcome: OutcomeFailed, Message: err.Error()}, nil
	}

	result := CheckoutResult{
		Outcome:         OutcomeSwitched,
		CurrentBranch:   branch,
		CreatedTracking: created,
	}

	if err := m.git.Pull(ctx, path, auth); err != nil {
		result.PullWarning = err.Error()
	} else {
		result.Pulled = true
	}
	return result, nil
}

// SyncBranches creates a local tracking branch for every remote branch that
// has no same-named local counterpart. Existing local branches are never
// overwritten. With skipFetch set, refs on disk are trusted as current.
func (m *Manager) SyncBranches(ctx context.Context, auth *git.Auth, owner, repo string, skipFetch bool) (SyncResult, error) {
	path, err := m.resolver.RepoPath(owner, repo)
	if err != nil {
		return SyncResult{}, err
	}

	unlock, err := m.lockPair(owner, repo)
	if err != nil {
		return SyncResult{}, err
	}
	defer unlock()

	if !m.git.IsRepository(path) {
		return SyncResult{Outcome: OutcomeNotCloned}, nil
	}

	created, err := m.syncLocked(ctx, path, skipFetch, auth)
	if err != nil {
		return SyncResult{Outcome: OutcomeFailed, Created: created, Message: err.Error()}, nil
	}
	return SyncResult{Outcome: OutcomeUpdated, Created: created}, nil
}

func (m *Manager) syncLocked(ctx context.Context, path string, skipFetch bool, auth *git.Auth) (int, error) {
	if !skipFetch {
		// Stale refs only mean some branches are missed this round;
		// sync proceeds against what is cached.
		if err := m.git.Fetch(ctx, path, auth); err != nil {
			logger.Warnf("fetch before branch sync of %s failed: %v", path, err)
		}
	}

	remotes, err := m.git.RemoteBranches(path)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, ref := range remotes {
		has, err := m.git.HasLocalBranch(path, ref.Name)
		if err != nil {
			return created, err
		}
		if has {
			continue
		}

		err = m.git.CreateTrackingBranch(path, ref.Name)
		if errors.Is(err, git.ErrBranchExists) {
			continue
		}
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// Branches lists local and remote branches. Remote refs are refreshed with a
// fetch first; a fetch failure is non-fatal and the listing proceeds against
// cached refs. The fetch mutates refs on disk, so the exclusive lock is held
// for the whole call.
func (m *Manager) Branches(ctx context.Context, auth *git.Auth, owner, repo string) (BranchList, error) {
	path, err := m.resolver.RepoPath(owner, repo)
	if err != nil {
		return BranchList{}, err
	}

	unlock, err := m.lockPair(owner, repo)
	if err != nil {
		return BranchList{}, err
	}
	defer unlock()

	if !m.git.IsRepository(path) {
		return BranchList{}, ErrNotCloned
	}

	if err := m.git.Fetch(ctx, path, auth); err != nil {
		logger.Warnf("fetch before branch listing of %s failed: %v", path, err)
	}

	locals, err := m.git.LocalBranches(path)
	if err != nil {
		return BranchList{}, err
	}

	remotes, err := m.git.RemoteBranches(path)
	if err != nil {
		return BranchList{}, err
	}

	localNames := make(map[string]bool, len(locals))
	for _, ref := range locals {
		localNames[ref.Name] = true
	}
	for i := range remotes {
		remotes[i].HasLocal = localNames[remotes[i].Name]
	}

	current, err := m.git.CurrentBranch(path)
	if err != nil {
		return BranchList{}, err
	}

	list := BranchList{
		CurrentBranch: current,
		Branches:      make([]git.BranchRef, 0, len(locals)+len(remotes)),
	}
	list.Branches = append(list.Branches, locals...)
	list.Branches = append(list.Branches, remotes...)
	return list, nil
}

// Commits returns up to limit commits of the currently checked-out branch,
// newest first.
func (m *Manager) Commits(owner, repo string, limit int) ([]git.Commit, error) {
	path, err := m.resolver.RepoPath(owner, repo)
	if err != nil {
		return nil, err
	}

	mu := m.locks.Get(owner, repo)
	mu.RLock()
	defer mu.RUnlock()

	if !m.git.IsRepository(path) {
		return nil, ErrNotCloned
	}

	if limit <= 0 {
		limit = 50
	}
	return m.git.Log(path, limit)
}

// lockPair takes the exclusive in-process lock for the pair plus a file lock
// shared with other processes on the same storage root. The returned func
// releases both.
func (m *Manager) lockPair(owner, repo string) (func(), error) {
	mu := m.locks.Get(owner, repo)
	mu.Lock()

	if err := os.MkdirAll(m.lockDir, 0o750); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	// Identifiers were validated by the resolver, so they are safe in a
	// file name.
	fl := flock.New(filepath.Join(m.lockDir, owner+"--"+repo+".lock"))
	if err := fl.Lock(); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("failed to acquire file lock: %w", err)
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			logger.Errorf("failed to release file lock for %s/%s: %v", owner, repo, err)
		}
		mu.Unlock()
	}, nil
}
