package notes

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), ".gition", "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	note, err := store.Create("alice", "project", "main", "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, note.ID)
	assert.Equal(t, "main", note.BranchName)
	assert.Equal(t, "main", note.Title, "title defaults to branch name")
	assert.Empty(t, note.Content)
	assert.True(t, note.Metadata.CreatedFromBranch)
	assert.True(t, note.Metadata.BranchExists)
	assert.Equal(t, note.CreatedAt, note.UpdatedAt)

	got, err := store.Get("alice", "project", "main")
	require.NoError(t, err)
	assert.Equal(t, note.ID, got.ID)
}

func TestCreateExistingReturnsCurrentNote(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	first, err := store.Create("alice", "project", "main", "Custom", "body")
	require.NoError(t, err)

	second, err := store.Create("alice", "project", "main", "Other", "ignored")
	require.ErrorIs(t, err, ErrNoteExists)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Custom", second.Title)
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Get("alice", "project", "missing")
	require.ErrorIs(t, err, ErrNoteNotFound)
}

func TestUpdatePatchesFields(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	created, err := store.Create("alice", "project", "main", "", "original")
	require.NoError(t, err)

	title := "New title"
	updated, err := store.Update("alice", "project", "main", &title, nil)
	require.NoError(t, err)
	assert.Equal(t, "New title", updated.Title)
	assert.Equal(t, "original", updated.Content, "nil content leaves the field alone")
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	_, err = store.Update("alice", "project", "missing", &title, nil)
	require.ErrorIs(t, err, ErrNoteNotFound)
}

func TestListSortedByUpdatedAtDescending(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Create("alice", "project", "old", "", "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = store.Create("alice", "project", "new", "", "")
	require.NoError(t, err)

	listed, err := store.List("alice", "project")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "new", listed[0].BranchName)
	assert.Equal(t, "old", listed[1].BranchName)
}

func TestListSkipsCorruptedRecords(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Create("alice", "project", "good", "", "")
	require.NoError(t, err)

	// Sneak a malformed record in next to the valid one.
	err = store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName("alice", "project")).Put([]byte("bad"), []byte("{not json"))
	})
	require.NoError(t, err)

	listed, err := store.List("alice", "project")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "good", listed[0].BranchName)
}

func TestListEmptyPair(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	listed, err := store.List("nobody", "nothing")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestEnsureCreatesOnce(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	note, created, err := store.Ensure("alice", "project", "feature/x")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "feature/x", note.Title)

	again, created, err := store.Ensure("alice", "project", "feature/x")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, note.ID, again.ID)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Create("alice", "project", "main", "", "")
	require.NoError(t, err)

	require.NoError(t, store.Delete("alice", "project", "main"))
	_, err = store.Get("alice", "project", "main")
	require.ErrorIs(t, err, ErrNoteNotFound)

	require.ErrorIs(t, store.Delete("alice", "project", "main"), ErrNoteNotFound)
}

// Notes are stored outside working copies, so pairs are isolated and notes
// survive anything that happens to the clone directory.
func TestPairsAreIsolated(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Create("alice", "project", "main", "", "")
	require.NoError(t, err)

	_, err = store.Get("bob", "project", "main")
	require.ErrorIs(t, err, ErrNoteNotFound)
}
