package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFixtureRepo initializes a repository with a single commit on master and
// returns its path. Tests clone from it over the filesystem, so no network is
// involved.
func newFixtureRepo(t *testing.T) (string, *gogit.Repository) {
	t.Helper()

	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	addCommit(t, dir, repo, "README.md", "# fixture\n", "Initial commit")
	return dir, repo
}

func addCommit(t *testing.T, dir string, repo *gogit.Repository, name, content, message string) plumbing.Hash {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(name)
	require.NoError(t, err)

	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  "Test Author",
			Email: "author@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)
	return hash
}

// addBranch creates a branch with one extra commit and switches back to the
// branch that was checked out before.
func addBranch(t *testing.T, dir string, repo *gogit.Repository, name string) {
	t.Helper()

	head, err := repo.Head()
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Create: true,
	}))
	addCommit(t, dir, repo, name+".txt", "content for "+name+"\n", "Add "+name)
	require.NoError(t, wt.Checkout(&gogit.CheckoutOptions{Branch: head.Name()}))
}

func cloneFixture(t *testing.T, upstream string) string {
	t.Helper()

	dest := t.TempDir()
	require.NoError(t, NewClient().Clone(context.Background(), dest, upstream, nil))
	return dest
}

func TestCloneAndCurrentBranch(t *testing.T) {
	t.Parallel()

	upstream, _ := newFixtureRepo(t)
	client := NewClient()

	dest := cloneFixture(t, upstream)
	assert.True(t, client.IsRepository(dest))

	branch, err := client.CurrentBranch(dest)
	require.NoError(t, err)
	assert.Equal(t, "master", branch)
}

func TestIsRepositoryOnPlainDirectory(t *testing.T) {
	t.Parallel()

	client := NewClient()
	assert.False(t, client.IsRepository(t.TempDir()))
}

func TestCurrentBranchOnEmptyRepository(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	branch, err := NewClient().CurrentBranch(dir)
	require.NoError(t, err)
	assert.Empty(t, branch)
}

func TestCurrentBranchOnNonRepository(t *testing.T) {
	t.Parallel()

	_, err := NewClient().CurrentBranch(t.TempDir())
	require.ErrorIs(t, err, ErrNotRepository)
}

func TestLocalBranches(t *testing.T) {
	t.Parallel()

	upstream, _ := newFixtureRepo(t)
	client := NewClient()
	dest := cloneFixture(t, upstream)

	branches, err := client.LocalBranches(dest)
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, "master", branches[0].Name)
	assert.Equal(t, BranchKindLocal, branches[0].Kind)
	assert.True(t, branches[0].IsCurrent)
	assert.Len(t, branches[0].CommitSHA, 7)
	assert.Equal(t, "Initial commit", branches[0].CommitMessage)
}

func TestRemoteBranches(t *testing.T) {
	t.Parallel()

	upstream, repo := newFixtureRepo(t)
	addBranch(t, upstream, repo, "feature/search")
	client := NewClient()
	dest := cloneFixture(t, upstream)

	branches, err := client.RemoteBranches(dest)
	require.NoError(t, err)

	names := make(map[string]BranchRef)
	for _, b := range branches {
		assert.Equal(t, BranchKindRemote, b.Kind)
		names[b.Name] = b
	}
	assert.Contains(t, names, "master")
	assert.Contains(t, names, "feature/search")
	assert.NotContains(t, names, "HEAD")
	assert.Equal(t, "Add feature/search", names["feature/search"].CommitMessage)
}

func TestCreateTrackingBranchAndCheckout(t *testing.T) {
	t.Parallel()

	upstream, repo := newFixtureRepo(t)
	addBranch(t, upstream, repo, "develop")
	client := NewClient()
	dest := cloneFixture(t, upstream)

	has, err := client.HasLocalBranch(dest, "develop")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, client.CreateTrackingBranch(dest, "develop"))

	has, err = client.HasLocalBranch(dest, "develop")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, client.Checkout(dest, "develop"))
	branch, err := client.CurrentBranch(dest)
	require.NoError(t, err)
	assert.Equal(t, "develop", branch)

	// The checked-out tree must match the branch tip.
	assert.FileExists(t, filepath.Join(dest, "develop.txt"))
}

func TestCreateTrackingBranchAlreadyExists(t *testing.T) {
	t.Parallel()

	upstream, repo := newFixtureRepo(t)
	addBranch(t, upstream, repo, "develop")
	client := NewClient()
	dest := cloneFixture(t, upstream)

	require.NoError(t, client.CreateTrackingBranch(dest, "develop"))
	err := client.CreateTrackingBranch(dest, "develop")
	require.ErrorIs(t, err, ErrBranchExists)
}

func TestCreateTrackingBranchUnknownRemote(t *testing.T) {
	t.Parallel()

	upstream, _ := newFixtureRepo(t)
	client := NewClient()
	dest := cloneFixture(t, upstream)

	err := client.CreateTrackingBranch(dest, "no-such-branch")
	require.ErrorIs(t, err, ErrBranchNotFound)
}

func TestCheckoutUnknownBranch(t *testing.T) {
	t.Parallel()

	upstream, _ := newFixtureRepo(t)
	dest := cloneFixture(t, upstream)

	err := NewClient().Checkout(dest, "no-such-branch")
	require.ErrorIs(t, err, ErrBranchNotFound)
}

func TestPullFastForward(t *testing.T) {
	t.Parallel()

	upstream, repo := newFixtureRepo(t)
	client := NewClient()
	dest := cloneFixture(t, upstream)

	addCommit(t, upstream, repo, "second.txt", "more\n", "Second commit")

	require.NoError(t, client.Pull(context.Background(), dest, nil))

	commits, err := client.Log(dest, 10)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "Second commit", commits[0].Message)

	// Pulling again is a no-op, not an error.
	require.NoError(t, client.Pull(context.Background(), dest, nil))
}

func TestFetchUpdatesRemoteRefs(t *testing.T) {
	t.Parallel()

	upstream, repo := newFixtureRepo(t)
	client := NewClient()
	dest := cloneFixture(t, upstream)

	addBranch(t, upstream, repo, "hotfix")
	require.NoError(t, client.Fetch(context.Background(), dest, nil))

	branches, err := client.RemoteBranches(dest)
	require.NoError(t, err)
	names := make([]string, 0, len(branches))
	for _, b := range branches {
		names = append(names, b.Name)
	}
	assert.Contains(t, names, "hotfix")
}

func TestLogLimitAndStats(t *testing.T) {
	t.Parallel()

	upstream, repo := newFixtureRepo(t)
	addCommit(t, upstream, repo, "a.txt", "one\ntwo\n", "Second commit")
	addCommit(t, upstream, repo, "b.txt", "three\n", "Third commit")
	client := NewClient()
	dest := cloneFixture(t, upstream)

	commits, err := client.Log(dest, 2)
	require.NoError(t, err)
	require.Len(t, commits, 2)

	newest := commits[0]
	assert.Equal(t, "Third commit", newest.Message)
	assert.Len(t, newest.SHA, 7)
	assert.Equal(t, newest.SHA, newest.FullSHA[:7])
	assert.Equal(t, "Test Author", newest.Author)
	assert.Equal(t, "author@example.com", newest.AuthorEmail)
	assert.Equal(t, 1, newest.Stats.Files)
	assert.Equal(t, 1, newest.Stats.Insertions)

	_, err = time.Parse(time.RFC3339, newest.Date)
	assert.NoError(t, err)
}

func TestCloneFailureScrubsToken(t *testing.T) {
	t.Parallel()

	client := NewClient()
	err := client.Clone(context.Background(), t.TempDir(), "https://127.0.0.1:1/example/repo.git", &Auth{
		Token: "ghp_supersecret",
	})
	require.ErrorIs(t, err, ErrTransport)
	assert.NotContains(t, err.Error(), "ghp_supersecret")
}

func TestFirstLine(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Subject", firstLine("Subject\n\nBody text\n"))
	assert.Equal(t, "Subject", firstLine("  Subject  "))
	assert.Empty(t, firstLine(""))
}
