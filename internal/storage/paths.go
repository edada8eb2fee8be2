// Package storage maps (owner, repository) pairs to locations under the
// configured storage root and guards concurrent access to them. The path
// layout is part of the operational contract: a working copy always lives at
// {root}/{owner}/{repo}.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

var (
	// ErrInvalidIdentifier is returned when an owner or repository
	// identifier is empty or contains path separators or "..".
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrPathTraversal is returned when a resolved path would land outside
	// the storage root.
	ErrPathTraversal = errors.New("path traversal detected")
)

// Resolver turns identifiers into absolute filesystem paths strictly inside
// the storage root. It performs no I/O beyond symlink resolution and holds no
// state besides the root, so a single instance is safe for concurrent use.
type Resolver struct {
	root string
}

// NewResolver creates a Resolver rooted at the given directory. The root is
// made absolute once so every derived path comparison is stable.
func NewResolver(root string) (*Resolver, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage root is required")
	}

	abs, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve storage root: %w", err)
	}

	return &Resolver{root: abs}, nil
}

// Root returns the absolute storage root.
func (r *Resolver) Root() string {
	return r.root
}

// RepoPath resolves the working-copy root for an (owner, repo) pair. Both
// identifiers are validated before any path is built; the result is always
// {root}/{owner}/{repo}.
func (r *Resolver) RepoPath(owner, repo string) (string, error) {
	if err := validateIdentifier(owner); err != nil {
		return "", fmt.Errorf("owner %q: %w", owner, err)
	}
	if err := validateIdentifier(repo); err != nil {
		return "", fmt.Errorf("repository %q: %w", repo, err)
	}

	return filepath.Join(r.root, owner, repo), nil
}

// SubPath resolves a caller-supplied path relative to a working copy. The
// sub path is attacker-controlled input, so it is re-validated on every call:
// lexical traversal outside the working copy is rejected outright, and
// symlinks are resolved scoped to the working-copy root so a link cannot
// escape it either.
func (r *Resolver) SubPath(owner, repo, sub string) (string, error) {
	repoRoot, err := r.RepoPath(owner, repo)
	if err != nil {
		return "", err
	}

	if sub == "" {
		return repoRoot, nil
	}

	clean := filepath.Clean(sub)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, sub)
	}

	resolved, err := securejoin.SecureJoin(repoRoot, clean)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, sub)
	}

	return resolved, nil
}

func validateIdentifier(s string) error {
	if strings.TrimSpace(s) == "" {
		return ErrInvalidIdentifier
	}
	if strings.ContainsAny(s, `/\`) || strings.Contains(s, "..") {
		return ErrInvalidIdentifier
	}
	return nil
}
