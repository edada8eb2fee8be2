// Package notes persists branch notes: small user-editable documents attached
// to an (owner, repo, branch) triple. Notes live in a bolt database outside
// every working copy, so deleting or recloning a repository never loses them;
// a note outlives the branch it was created from.
package notes

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/gitionhq/gition-server/internal/logger"
)

var (
	// ErrNoteNotFound is returned when no note exists for the branch.
	ErrNoteNotFound = errors.New("branch note not found")

	// ErrNoteExists is returned by Create when the branch already has a
	// note. The existing note accompanies the error.
	ErrNoteExists = errors.New("branch note already exists")
)

// Metadata is the small flag bag attached to every note.
type Metadata struct {
	CreatedFromBranch bool `json:"created_from_branch"`
	BranchExists      bool `json:"branch_exists"`
}

// BranchNote is one note document. Title defaults to the branch name.
type BranchNote struct {
	ID         string    `json:"id"`
	BranchName string    `json:"branch_name"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Metadata   Metadata  `json:"metadata"`
}

// Store is a bolt-backed note store. One bucket per (owner, repo) pair, one
// key per branch name, JSON values. Safe for concurrent use; bolt serializes
// writers internally.
type Store struct {
	db *bolt.DB
}

// Open opens (and creates if needed) the note database at path. The open
// times out instead of blocking forever when another process holds the file.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create notes directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open notes database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func bucketName(owner, repo string) []byte {
	return []byte(owner + "/" + repo)
}

// Create creates a note for the branch. When one already exists it is
// returned alongside ErrNoteExists and nothing is written.
func (s *Store) Create(owner, repo, branch, title, content string) (BranchNote, error) {
	if title == "" {
		title = branch
	}

	now := time.Now().UTC()
	note := BranchNote{
		ID:         uuid.NewString(),
		BranchName: branch,
		Title:      title,
		Content:    content,
		CreatedAt:  now,
		UpdatedAt:  now,
		Metadata: Metadata{
			CreatedFromBranch: true,
			BranchExists:      true,
		},
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(owner, repo))
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}

		if existing := b.Get([]byte(branch)); existing != nil {
			if err := json.Unmarshal(existing, &note); err != nil {
				return fmt.Errorf("existing note for %q is corrupted: %w", branch, err)
			}
			return ErrNoteExists
		}

		data, err := json.Marshal(note)
		if err != nil {
			return fmt.Errorf("failed to encode note: %w", err)
		}
		return b.Put([]byte(branch), data)
	})
	if err != nil {
		return note, err
	}
	return note, nil
}

// Get returns the note for the branch.
func (s *Store) Get(owner, repo, branch string) (BranchNote, error) {
	var note BranchNote
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(owner, repo))
		if b == nil {
			return ErrNoteNotFound
		}

		data := b.Get([]byte(branch))
		if data == nil {
			return ErrNoteNotFound
		}

		if err := json.Unmarshal(data, &note); err != nil {
			return fmt.Errorf("note for %q is corrupted: %w", branch, err)
		}
		return nil
	})
	return note, err
}

// Update patches the note's title and/or content. Nil fields are left as
// they are; UpdatedAt always advances.
func (s *Store) Update(owner, repo, branch string, title, content *string) (BranchNote, error) {
	var note BranchNote
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(owner, repo))
		if b == nil {
			return ErrNoteNotFound
		}

		data := b.Get([]byte(branch))
		if data == nil {
			return ErrNoteNotFound
		}
		if err := json.Unmarshal(data, &note); err != nil {
			return fmt.Errorf("note for %q is corrupted: %w", branch, err)
		}

		if title != nil {
			note.Title = *title
		}
		if content != nil {
			note.Content = *content
		}
		note.UpdatedAt = time.Now().UTC()

		updated, err := json.Marshal(note)
		if err != nil {
			return fmt.Errorf("failed to encode note: %w", err)
		}
		return b.Put([]byte(branch), updated)
	})
	return note, err
}

// List returns every note of the pair, most recently updated first. A
// corrupted record is logged and skipped; it never fails the whole listing.
func (s *Store) List(owner, repo string) ([]BranchNote, error) {
	var result []BranchNote
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(owner, repo))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var note BranchNote
			if err := json.Unmarshal(v, &note); err != nil {
				logger.Warnf("skipping corrupted note %s/%s %q: %v", owner, repo, k, err)
				return nil
			}
			result = append(result, note)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

// Ensure returns the branch's note, creating it with defaults when absent.
// The bool reports whether a new note was created. Called on every checkout.
func (s *Store) Ensure(owner, repo, branch string) (BranchNote, bool, error) {
	note, err := s.Create(owner, repo, branch, "", "")
	if errors.Is(err, ErrNoteExists) {
		return note, false, nil
	}
	if err != nil {
		return BranchNote{}, false, err
	}
	return note, true, nil
}

// Delete removes the note. Notes are never deleted automatically; branch
// deletion keeps them as a historical record.
func (s *Store) Delete(owner, repo, branch string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(owner, repo))
		if b == nil {
			return ErrNoteNotFound
		}
		if b.Get([]byte(branch)) == nil {
			return ErrNoteNotFound
		}
		return b.Delete([]byte(branch))
	})
}
