package git

import (
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Branch kinds as they appear in listings.
const (
	BranchKindLocal  = "local"
	BranchKindRemote = "remote"
)

// Auth carries a transient bearer credential for transport authentication.
// The token is handed to the git transport as HTTP basic auth and is never
// embedded into a URL, written to disk, or logged.
type Auth struct {
	// Username is the basic-auth user. GitHub accepts any non-empty value
	// when a token is used as the password.
	Username string

	// Token is the secret. Error messages crossing the package boundary
	// have it replaced with a placeholder (see Scrub).
	Token string
}

func (a *Auth) basic() *githttp.BasicAuth {
	if a == nil || a.Token == "" {
		return nil
	}

	username := a.Username
	if username == "" {
		username = "token"
	}
	return &githttp.BasicAuth{Username: username, Password: a.Token}
}

// BranchRef is a named branch pointer, local or remote-tracking.
type BranchRef struct {
	Name          string `json:"name"`
	Kind          string `json:"type"`
	IsCurrent     bool   `json:"is_current"`
	HasLocal      bool   `json:"has_local,omitempty"`
	CommitSHA     string `json:"commit_sha"`
	CommitMessage string `json:"commit_message"`
}

// Commit is a read-only projection of a git commit.
type Commit struct {
	SHA         string      `json:"sha"`
	FullSHA     string      `json:"full_sha"`
	Message     string      `json:"message"`
	Author      string      `json:"author"`
	AuthorEmail string      `json:"author_email"`
	Date        string      `json:"date"`
	Stats       CommitStats `json:"stats"`
}

// CommitStats summarizes the change footprint of a commit.
type CommitStats struct {
	Files      int `json:"files"`
	Insertions int `json:"insertions"`
	Deletions  int `json:"deletions"`
}
