package git

import (
	"errors"
	"strings"
)

var (
	// ErrNotRepository indicates the path does not contain a valid git
	// control directory.
	ErrNotRepository = errors.New("not a git repository")

	// ErrBranchNotFound indicates the requested branch exists neither
	// locally nor on the remote.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrBranchExists indicates a local branch of that name already exists.
	ErrBranchExists = errors.New("branch already exists")

	// ErrTransport wraps network and authentication failures from the
	// underlying git transport. Callers may retry; the adapter never does.
	ErrTransport = errors.New("git transport failure")
)

// Scrub replaces every occurrence of the credential in a message with a
// placeholder. Applied to every error string built from a transport failure
// before it leaves this package.
func Scrub(message, secret string) string {
	if secret == "" {
		return message
	}
	return strings.ReplaceAll(message, secret, "***")
}
