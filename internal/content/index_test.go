package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	gogit "github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitionhq/gition-server/internal/git"
	"github.com/gitionhq/gition-server/internal/storage"
)

const (
	testOwner = "alice"
	testRepo  = "project"
)

func newTestIndex(t *testing.T) (*Index, string) {
	t.Helper()

	resolver, err := storage.NewResolver(t.TempDir())
	require.NoError(t, err)
	ix := NewIndex(resolver, git.NewClient(), storage.NewLockRegistry())

	repoRoot, err := resolver.RepoPath(testOwner, testRepo)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(repoRoot, 0o750))
	_, err = gogit.PlainInit(repoRoot, false)
	require.NoError(t, err)

	return ix, repoRoot
}

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestListDirectoryOrderingAndShape(t *testing.T) {
	t.Parallel()

	ix, root := newTestIndex(t)
	writeFile(t, root, "README.md", []byte("# hello\n"))
	writeFile(t, root, "zz.txt", []byte("z\n"))
	writeFile(t, root, "src/main.go", []byte("package main\n"))
	writeFile(t, root, "Assets/logo.png", []byte{0xff, 0xd8})

	entries, err := ix.ListDirectory(testOwner, testRepo, "")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	// Directories first, then files, each group case-insensitive. The
	// control directory never appears.
	assert.Equal(t, []string{"Assets", "src", "README.md", "zz.txt"}, names)

	for _, e := range entries {
		if e.Type == "directory" {
			assert.Nil(t, e.Size)
		} else {
			require.NotNil(t, e.Size)
			assert.Positive(t, *e.Size)
		}
	}
}

func TestListDirectorySubPath(t *testing.T) {
	t.Parallel()

	ix, root := newTestIndex(t)
	writeFile(t, root, "src/main.go", []byte("package main\n"))

	entries, err := ix.ListDirectory(testOwner, testRepo, "src")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "main.go", entries[0].Name)
	assert.Equal(t, "src/main.go", entries[0].Path)
}

func TestListDirectoryErrors(t *testing.T) {
	t.Parallel()

	ix, root := newTestIndex(t)
	writeFile(t, root, "file.txt", []byte("x\n"))

	_, err := ix.ListDirectory(testOwner, testRepo, "missing")
	require.ErrorIs(t, err, ErrPathNotFound)

	_, err = ix.ListDirectory(testOwner, testRepo, "file.txt")
	require.ErrorIs(t, err, ErrPathNotFound)

	_, err = ix.ListDirectory(testOwner, testRepo, "../../etc")
	require.ErrorIs(t, err, storage.ErrPathTraversal)
}

func TestListDirectoryNotCloned(t *testing.T) {
	t.Parallel()

	resolver, err := storage.NewResolver(t.TempDir())
	require.NoError(t, err)
	ix := NewIndex(resolver, git.NewClient(), storage.NewLockRegistry())

	_, err = ix.ListDirectory(testOwner, testRepo, "")
	require.ErrorIs(t, err, ErrNotCloned)
}

func TestReadFileText(t *testing.T) {
	t.Parallel()

	ix, root := newTestIndex(t)
	writeFile(t, root, "README.md", []byte("# hello\n"))

	result, err := ix.ReadFile(testOwner, testRepo, "README.md")
	require.NoError(t, err)
	assert.False(t, result.Binary)
	require.NotNil(t, result.Content)
	assert.Equal(t, "# hello\n", *result.Content)
	assert.Equal(t, int64(8), result.Size)
}

func TestReadFileBinaryByExtension(t *testing.T) {
	t.Parallel()

	ix, root := newTestIndex(t)
	writeFile(t, root, "logo.PNG", []byte{0x89, 0x50, 0x4e, 0x47})

	result, err := ix.ReadFile(testOwner, testRepo, "logo.PNG")
	require.NoError(t, err)
	assert.True(t, result.Binary)
	assert.Nil(t, result.Content)
	assert.Equal(t, int64(4), result.Size)
}

func TestReadFileBinaryByContent(t *testing.T) {
	t.Parallel()

	ix, root := newTestIndex(t)
	// Extension not on the denylist; the bytes are not valid UTF-8.
	writeFile(t, root, "blob.dat", []byte{0xff, 0xfe, 0x00, 0x01})

	result, err := ix.ReadFile(testOwner, testRepo, "blob.dat")
	require.NoError(t, err)
	assert.True(t, result.Binary)
	assert.Nil(t, result.Content)
}

func TestReadFileErrors(t *testing.T) {
	t.Parallel()

	ix, root := newTestIndex(t)
	writeFile(t, root, "src/main.go", []byte("package main\n"))

	_, err := ix.ReadFile(testOwner, testRepo, "missing.txt")
	require.ErrorIs(t, err, ErrPathNotFound)

	_, err = ix.ReadFile(testOwner, testRepo, "src")
	require.ErrorIs(t, err, ErrPathNotFound)

	_, err = ix.ReadFile(testOwner, testRepo, "../../../etc/passwd")
	require.ErrorIs(t, err, storage.ErrPathTraversal)
}

func TestSearchFilenameSuppressesContentScan(t *testing.T) {
	t.Parallel()

	ix, root := newTestIndex(t)
	// Both the name and every line match; only the filename hit may be
	// emitted.
	writeFile(t, root, "config.txt", []byte("config one\nconfig two\n"))

	results, err := ix.Search(testOwner, testRepo, "config", true, 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "filename", results[0].Type)
	assert.Equal(t, "config.txt", results[0].Path)
	assert.Zero(t, results[0].Line)
}

func TestSearchContentMatches(t *testing.T) {
	t.Parallel()

	ix, root := newTestIndex(t)
	writeFile(t, root, "notes.md", []byte("first line\nTODO: fix the Widget\nlast line\n"))

	results, err := ix.Search(testOwner, testRepo, "widget", true, 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "content", results[0].Type)
	assert.Equal(t, "notes.md", results[0].Path)
	assert.Equal(t, 2, results[0].Line)
	assert.Equal(t, "TODO: fix the Widget", results[0].Context)
}

func TestSearchStopsAtMaxResults(t *testing.T) {
	t.Parallel()

	ix, root := newTestIndex(t)
	writeFile(t, root, "log.txt", []byte(strings.Repeat("needle here\n", 20)))

	results, err := ix.Search(testOwner, testRepo, "needle", true, 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearchSkipsBinaryAndControlDir(t *testing.T) {
	t.Parallel()

	ix, root := newTestIndex(t)
	writeFile(t, root, "image.png", []byte("needle inside binary"))
	writeFile(t, root, ".git/marker.txt", []byte("needle inside control dir"))
	writeFile(t, root, "plain.txt", []byte("needle inside text\n"))

	results, err := ix.Search(testOwner, testRepo, "needle", true, 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "plain.txt", results[0].Path)
}

func TestSearchWithoutContentScan(t *testing.T) {
	t.Parallel()

	ix, root := newTestIndex(t)
	writeFile(t, root, "needle.txt", []byte("nothing relevant\n"))
	writeFile(t, root, "other.txt", []byte("a needle in the body\n"))

	results, err := ix.Search(testOwner, testRepo, "needle", false, 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "filename", results[0].Type)
	assert.Equal(t, "needle.txt", results[0].Path)
}

func TestSearchLongLineSnippet(t *testing.T) {
	t.Parallel()

	ix, root := newTestIndex(t)
	line := strings.Repeat("a", 150) + " needle " + strings.Repeat("b", 150)
	writeFile(t, root, "long.txt", []byte(line+"\n"))

	results, err := ix.Search(testOwner, testRepo, "needle", true, 50)
	require.NoError(t, err)
	require.Len(t, results, 1)

	snippet := results[0].Context
	assert.True(t, strings.HasPrefix(snippet, "..."))
	assert.True(t, strings.HasSuffix(snippet, "..."))
	assert.Contains(t, snippet, "needle")
	assert.Less(t, len(snippet), len(line))
}

func TestSearchSnippetWithLengthChangingFold(t *testing.T) {
	t.Parallel()

	ix, root := newTestIndex(t)
	// "İ" lowercases to two runes, so an index computed on the lowercased
	// line would drift off the match in the original bytes.
	line := strings.Repeat("İ", 150) + " needle " + strings.Repeat("b", 150)
	writeFile(t, root, "turkish.txt", []byte(line+"\n"))

	results, err := ix.Search(testOwner, testRepo, "needle", true, 50)
	require.NoError(t, err)
	require.Len(t, results, 1)

	snippet := results[0].Context
	assert.Contains(t, snippet, "needle")
	assert.True(t, utf8.ValidString(snippet))
}

func TestFoldIndexMatchesOriginalBytes(t *testing.T) {
	t.Parallel()

	start, end := foldIndex("İİ Needle tail", "needle")
	assert.Equal(t, 5, start)
	assert.Equal(t, 11, end)

	start, _ = foldIndex("no match here", "needle")
	assert.Equal(t, -1, start)
}

func TestSearchNotCloned(t *testing.T) {
	t.Parallel()

	resolver, err := storage.NewResolver(t.TempDir())
	require.NoError(t, err)
	ix := NewIndex(resolver, git.NewClient(), storage.NewLockRegistry())

	_, err = ix.Search(testOwner, testRepo, "x", true, 10)
	require.ErrorIs(t, err, ErrNotCloned)
}
