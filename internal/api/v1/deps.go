// Package v1 provides the REST API handlers for the gition working-copy
// service.
package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gitionhq/gition-server/internal/content"
	"github.com/gitionhq/gition-server/internal/identity"
	"github.com/gitionhq/gition-server/internal/logger"
	"github.com/gitionhq/gition-server/internal/metadata"
	"github.com/gitionhq/gition-server/internal/notes"
	"github.com/gitionhq/gition-server/internal/storage"
	"github.com/gitionhq/gition-server/internal/workingcopy"
)

// Dependencies bundles everything the handlers need. Metadata may be nil when
// the server runs without a relational store; the affected endpoints degrade
// gracefully.
type Dependencies struct {
	Manager  *workingcopy.Manager
	Index    *content.Index
	Notes    *notes.Store
	Gateway  *identity.Gateway
	Metadata *metadata.Store

	// FrontendURL is where the OAuth callback sends the browser.
	FrontendURL string
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes defines the routes for the API with dependency injection
type Routes struct {
	deps *Dependencies
}

// NewRoutes creates a new Routes instance with the provided dependencies
func NewRoutes(deps *Dependencies) *Routes {
	return &Routes{deps: deps}
}

// owner returns the storage owner identifier of the principal. Working
// copies are keyed by the stable numeric account ID, not the mutable login.
func owner(p identity.Principal) string {
	return strconv.FormatInt(p.ID, 10)
}

func (*Routes) writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

func (rr *Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	rr.writeJSONResponse(w, statusCode, ErrorResponse{Error: message})
}

// writeDomainError maps typed domain errors onto HTTP statuses. Unknown
// errors are logged and reported as a plain 500 without internal detail.
func (rr *Routes) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidIdentifier),
		errors.Is(err, storage.ErrPathTraversal):
		rr.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, workingcopy.ErrNotCloned),
		errors.Is(err, content.ErrNotCloned):
		rr.writeErrorResponse(w, "repository not cloned", http.StatusNotFound)
	case errors.Is(err, content.ErrPathNotFound):
		rr.writeErrorResponse(w, "path not found", http.StatusNotFound)
	case errors.Is(err, notes.ErrNoteNotFound):
		rr.writeErrorResponse(w, "branch note not found", http.StatusNotFound)
	case errors.Is(err, notes.ErrNoteExists):
		rr.writeErrorResponse(w, "branch note already exists", http.StatusConflict)
	case errors.Is(err, metadata.ErrRepoNotFound):
		rr.writeErrorResponse(w, "repository record not found", http.StatusNotFound)
	default:
		logger.Errorf("Unhandled API error: %v", err)
		rr.writeErrorResponse(w, "internal server error", http.StatusInternalServerError)
	}
}

func decodeBody(r *http.Request, into any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(into)
}
