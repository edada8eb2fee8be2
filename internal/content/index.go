// Package content serves read-only views of a working copy's tree: directory
// listings, file reads with binary detection, and substring search. Every
// externally supplied path goes through the storage resolver, and all
// operations hold the pair's shared lock so a checkout cannot swap the tree
// mid-read.
package content

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gitionhq/gition-server/internal/git"
	"github.com/gitionhq/gition-server/internal/storage"
)

var (
	// ErrNotCloned is returned when no working copy exists for the pair.
	ErrNotCloned = errors.New("repository not cloned")

	// ErrPathNotFound is returned when the requested path does not exist
	// inside the working copy.
	ErrPathNotFound = errors.New("path not found")
)

// binaryExtensions are skipped during content search and served without
// content on reads.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".webm": true, ".wav": true,
	".pyc": true, ".o": true, ".a": true,
}

const (
	// snippetMaxLen is the longest line served verbatim as a search
	// snippet; longer lines are windowed around the match.
	snippetMaxLen = 200
	snippetMargin = 50

	defaultMaxResults = 50
)

// Entry is one item in a directory listing. Size is nil for directories.
type Entry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size *int64 `json:"size"`
	Path string `json:"path"`
}

// FileContent is the result of a file read. Binary files carry a nil Content
// but still report their size; binary detection is not an error.
type FileContent struct {
	Path    string  `json:"path"`
	Binary  bool    `json:"binary"`
	Size    int64   `json:"size"`
	Content *string `json:"content"`
}

// SearchResult is one search hit, either a filename match or a content match
// with a line number and a context snippet.
type SearchResult struct {
	Type    string `json:"type"`
	Path    string `json:"path"`
	Name    string `json:"name"`
	Match   string `json:"match"`
	Line    int    `json:"line,omitempty"`
	Context string `json:"context,omitempty"`
}

// Index reads working-copy trees. It shares the lock registry with the
// working-copy manager so reads exclude mutations on the same pair.
type Index struct {
	resolver *storage.Resolver
	git      git.Client
	locks    *storage.LockRegistry
}

// NewIndex creates an Index over the given storage layout.
func NewIndex(resolver *storage.Resolver, client git.Client, locks *storage.LockRegistry) *Index {
	return &Index{resolver: resolver, git: client, locks: locks}
}

// ListDirectory lists one directory of the working copy, control directory
// excluded. Ordering is part of the contract: directories before files, then
// case-insensitive by name.
func (ix *Index) ListDirectory(owner, repo, sub string) ([]Entry, error) {
	repoRoot, target, unlock, err := ix.resolveLocked(owner, repo, sub)
	if err != nil {
		return nil, err
	}
	defer unlock()

	info, err := os.Stat(target)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, sub)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", sub, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrPathNotFound, sub)
	}

	dirents, err := os.ReadDir(target)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		if strings.HasPrefix(d.Name(), ".git") {
			continue
		}

		rel, err := filepath.Rel(repoRoot, filepath.Join(target, d.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to relativize %s: %w", d.Name(), err)
		}

		entry := Entry{
			Name: d.Name(),
			Type: "file",
			Path: filepath.ToSlash(rel),
		}
		if d.IsDir() {
			entry.Type = "directory"
		} else if fi, err := d.Info(); err == nil {
			size := fi.Size()
			entry.Size = &size
		}
		entries = append(entries, entry)
	}

	sortEntries(entries)
	return entries, nil
}

// ReadFile reads one file. Files with a known binary extension, or whose
// bytes are not valid UTF-8, are reported as binary with nil content.
func (ix *Index) ReadFile(owner, repo, sub string) (FileContent, error) {
	_, target, unlock, err := ix.resolveLocked(owner, repo, sub)
	if err != nil {
		return FileContent{}, err
	}
	defer unlock()

	info, err := os.Stat(target)
	if os.IsNotExist(err) {
		return FileContent{}, fmt.Errorf("%w: %s", ErrPathNotFound, sub)
	}
	if err != nil {
		return FileContent{}, fmt.Errorf("failed to stat %s: %w", sub, err)
	}
	if info.IsDir() {
		return FileContent{}, fmt.Errorf("%w: %s is a directory", ErrPathNotFound, sub)
	}

	result := FileContent{Path: filepath.ToSlash(sub), Size: info.Size()}

	if binaryExtensions[strings.ToLower(filepath.Ext(target))] {
		result.Binary = true
		return result, nil
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return FileContent{}, fmt.Errorf("failed to read %s: %w", sub, err)
	}
	if !utf8.Valid(data) {
		result.Binary = true
		return result, nil
	}

	text := string(data)
	result.Content = &text
	return result, nil
}

// Search walks the whole working copy looking for a case-insensitive
// substring. A filename hit yields one result and suppresses the content scan
// of that file; otherwise text files are scanned line by line. The walk stops
// the moment maxResults hits are collected; partial results are expected.
func (ix *Index) Search(owner, repo, query string, searchContent bool, maxResults int) ([]SearchResult, error) {
	repoRoot, _, unlock, err := ix.resolveLocked(owner, repo, "")
	if err != nil {
		return nil, err
	}
	defer unlock()

	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	queryLower := strings.ToLower(query)

	var results []SearchResult
	err = filepath.WalkDir(repoRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// An unreadable entry never fails the whole search.
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".git") {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(repoRoot, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if strings.Contains(strings.ToLower(d.Name()), queryLower) {
			results = append(results, SearchResult{
				Type:  "filename",
				Path:  rel,
				Name:  d.Name(),
				Match: d.Name(),
			})
			if len(results) >= maxResults {
				return filepath.SkipAll
			}
			return nil
		}

		if !searchContent || binaryExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		if full := ix.scanFile(path, rel, d.Name(), query, queryLower, maxResults, &results); full {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return results, nil
}

// scanFile appends one content result per matching line and reports whether
// the result budget is exhausted. Unreadable files are skipped silently.
func (*Index) scanFile(path, rel, name, query, queryLower string, maxResults int, results *[]SearchResult) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if !strings.Contains(strings.ToLower(line), queryLower) {
			continue
		}

		*results = append(*results, SearchResult{
			Type:    "content",
			Path:    rel,
			Name:    name,
			Match:   query,
			Line:    lineNum,
			Context: snippet(line, query),
		})
		if len(*results) >= maxResults {
			return true
		}
	}
	return false
}

// snippet serves a short line verbatim; a long line is windowed around the
// first match with ellipsis markers where the window falls short of the
// line's ends.
func snippet(line, query string) string {
	context := strings.TrimSpace(line)
	if len(context) <= snippetMaxLen {
		return context
	}

	start, end := foldIndex(line, query)
	if start < 0 {
		start, end = 0, 0
	}
	lo := max(0, start-snippetMargin)
	hi := min(len(line), end+snippetMargin)

	// Window edges must not split a rune.
	for lo > 0 && !utf8.RuneStart(line[lo]) {
		lo--
	}
	for hi < len(line) && !utf8.RuneStart(line[hi]) {
		hi++
	}

	context = strings.TrimSpace(line[lo:hi])
	if lo > 0 {
		context = "..." + context
	}
	if hi < len(line) {
		context += "..."
	}
	return context
}

// foldIndex locates the first case-insensitive occurrence of query in s and
// returns its byte bounds within s, or (-1, -1). The bounds index s itself,
// which keeps them valid when case folding changes a rune's encoded length
// (lowercasing s first would skew every offset past such a rune).
func foldIndex(s, query string) (int, int) {
	for i := 0; i < len(s); {
		if n := foldPrefixLen(s[i:], query); n >= 0 {
			return i, i + n
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return -1, -1
}

// foldPrefixLen reports how many bytes of s case-insensitively match query,
// or -1 when s does not start with query.
func foldPrefixLen(s, query string) int {
	n := 0
	for _, qr := range query {
		r, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 || unicode.ToLower(r) != unicode.ToLower(qr) {
			return -1
		}
		n += size
	}
	return n
}

// sortEntries orders directories before files, then case-insensitively by
// name.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		iDir := entries[i].Type == "directory"
		jDir := entries[j].Type == "directory"
		if iDir != jDir {
			return iDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}

// resolveLocked validates the pair and sub path, takes the shared lock, and
// checks a working copy is present. The caller releases the lock via the
// returned func.
func (ix *Index) resolveLocked(owner, repo, sub string) (repoRoot, target string, unlock func(), err error) {
	repoRoot, err = ix.resolver.RepoPath(owner, repo)
	if err != nil {
		return "", "", nil, err
	}
	target, err = ix.resolver.SubPath(owner, repo, sub)
	if err != nil {
		return "", "", nil, err
	}

	mu := ix.locks.Get(owner, repo)
	mu.RLock()

	if !ix.git.IsRepository(repoRoot) {
		mu.RUnlock()
		return "", "", nil, ErrNotCloned
	}
	return repoRoot, target, mu.RUnlock, nil
}
