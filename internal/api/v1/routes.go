package v1

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gitionhq/gition-server/internal/git"
	"github.com/gitionhq/gition-server/internal/identity"
	"github.com/gitionhq/gition-server/internal/logger"
	"github.com/gitionhq/gition-server/internal/workingcopy"
)

// Router creates the authenticated API router. Every route below resolves
// the caller through the identity gateway; the working-copy owner is always
// derived from the authenticated principal, never from request input.
func Router(deps *Dependencies) http.Handler {
	rr := NewRoutes(deps)
	r := chi.NewRouter()
	r.Use(identity.Middleware(deps.Gateway))

	r.Get("/repos", rr.listRepos)

	r.Route("/git", func(r chi.Router) {
		r.Post("/clone", rr.cloneRepo)
		r.Post("/reclone", rr.recloneRepo)
		r.Post("/pull", rr.pullRepo)
		r.Get("/status", rr.repoStatus)
		r.Delete("/repo", rr.deleteRepo)
		r.Get("/files", rr.listFiles)
		r.Get("/file", rr.readFile)
		r.Get("/search", rr.searchRepo)
		r.Get("/commits", rr.listCommits)
		r.Get("/branches", rr.listBranches)
		r.Post("/branches/sync", rr.syncBranches)
		r.Post("/checkout", rr.checkoutBranch)
	})

	r.Route("/pages", func(r chi.Router) {
		r.Get("/", rr.listNotes)
		r.Post("/", rr.createNote)
		r.Get("/detail", rr.getNote)
		r.Put("/", rr.updateNote)
		r.Delete("/", rr.deleteNote)
	})

	return r
}

// maxListLimit caps caller-supplied result budgets so a single request
// cannot demand an unbounded walk or commit log.
const maxListLimit = 100

// limitParam parses an optional positive integer query parameter, capped at
// maxListLimit. Absent means zero, letting the callee apply its default.
func limitParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return min(n, maxListLimit), nil
}

// outcomeStatus maps an expected-condition outcome onto an HTTP status. The
// result body still carries the outcome tag so clients can branch on it.
func outcomeStatus(o workingcopy.Outcome) int {
	switch o {
	case workingcopy.OutcomeNotFound,
		workingcopy.OutcomeNotCloned,
		workingcopy.OutcomeBranchNotFound:
		return http.StatusNotFound
	case workingcopy.OutcomeFailed:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

func principalOf(r *http.Request) identity.Principal {
	p, _ := identity.PrincipalFromContext(r.Context())
	return p
}

// repoParam reads the mandatory repo_name query parameter. A missing value
// short-circuits the handler with a 400.
func (rr *Routes) repoParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.URL.Query().Get("repo_name")
	if name == "" {
		rr.writeErrorResponse(w, "repo_name is required", http.StatusBadRequest)
		return "", false
	}
	return name, true
}

func (rr *Routes) listRepos(w http.ResponseWriter, r *http.Request) {
	principal := principalOf(r)
	repos, err := rr.deps.Gateway.ListRepos(r.Context(), principal.Token)
	if err != nil {
		logger.Errorf("Failed to list GitHub repos for %s: %v", principal.Login, err)
		rr.writeErrorResponse(w, "failed to list repositories", http.StatusBadGateway)
		return
	}

	// The relational mirror is advisory. A sync failure must not hide the
	// live listing from the caller.
	if rr.deps.Metadata != nil {
		user, _, err := rr.deps.Metadata.GetOrCreateUser(r.Context(), principal)
		if err != nil {
			logger.Errorf("Failed to upsert user %s: %v", principal.Login, err)
		} else if _, err := rr.deps.Metadata.SyncRepos(r.Context(), user.ID, repos); err != nil {
			logger.Errorf("Failed to sync repos for %s: %v", principal.Login, err)
		}
	}

	rr.writeJSONResponse(w, http.StatusOK, map[string]any{
		"repos": repos,
		"count": len(repos),
	})
}

type cloneRequest struct {
	CloneURL string `json:"clone_url"`
	RepoName string `json:"repo_name"`
}

func (rr *Routes) cloneRepo(w http.ResponseWriter, r *http.Request) {
	rr.runClone(w, r, rr.deps.Manager.Clone)
}

func (rr *Routes) recloneRepo(w http.ResponseWriter, r *http.Request) {
	rr.runClone(w, r, rr.deps.Manager.Reclone)
}

func (rr *Routes) runClone(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, url string, auth *git.Auth, owner, repo string) (workingcopy.CloneResult, error),
) {
	var req cloneRequest
	if err := decodeBody(r, &req); err != nil {
		rr.writeErrorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.CloneURL == "" || req.RepoName == "" {
		rr.writeErrorResponse(w, "clone_url and repo_name are required", http.StatusBadRequest)
		return
	}

	principal := principalOf(r)
	result, err := op(r.Context(), req.CloneURL, &git.Auth{Token: principal.Token}, owner(principal), req.RepoName)
	if err != nil {
		rr.writeDomainError(w, err)
		return
	}
	rr.writeJSONResponse(w, outcomeStatus(result.Outcome), result)
}

type repoRequest struct {
	RepoName string `json:"repo_name"`
}

func (rr *Routes) pullRepo(w http.ResponseWriter, r *http.Request) {
	var req repoRequest
	if err := decodeBody(r, &req); err != nil || req.RepoName == "" {
		rr.writeErrorResponse(w, "repo_name is required", http.StatusBadRequest)
		return
	}

	principal := principalOf(r)
	result, err := rr.deps.Manager.Pull(r.Context(), &git.Auth{Token: principal.Token}, owner(principal), req.RepoName)
	if err != nil {
		rr.writeDomainError(w, err)
		return
	}
	rr.writeJSONResponse(w, outcomeStatus(result.Outcome), result)
}

func (rr *Routes) repoStatus(w http.ResponseWriter, r *http.Request) {
	repo, ok := rr.repoParam(w, r)
	if !ok {
		return
	}
	cloned, err := rr.deps.Manager.Exists(owner(principalOf(r)), repo)
	if err != nil {
		rr.writeDomainError(w, err)
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, map[string]any{"cloned": cloned})
}

func (rr *Routes) deleteRepo(w http.ResponseWriter, r *http.Request) {
	repo, ok := rr.repoParam(w, r)
	if !ok {
		return
	}
	result, err := rr.deps.Manager.Delete(owner(principalOf(r)), repo)
	if err != nil {
		rr.writeDomainError(w, err)
		return
	}
	rr.writeJSONResponse(w, outcomeStatus(result.Outcome), result)
}

func (rr *Routes) listFiles(w http.ResponseWriter, r *http.Request) {
	repo, ok := rr.repoParam(w, r)
	if !ok {
		return
	}
	entries, err := rr.deps.Index.ListDirectory(owner(principalOf(r)), repo, r.URL.Query().Get("path"))
	if err != nil {
		rr.writeDomainError(w, err)
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, map[string]any{"entries": entries})
}

func (rr *Routes) readFile(w http.ResponseWriter, r *http.Request) {
	repo, ok := rr.repoParam(w, r)
	if !ok {
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		rr.writeErrorResponse(w, "path is required", http.StatusBadRequest)
		return
	}
	file, err := rr.deps.Index.ReadFile(owner(principalOf(r)), repo, path)
	if err != nil {
		rr.writeDomainError(w, err)
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, file)
}

func (rr *Routes) searchRepo(w http.ResponseWriter, r *http.Request) {
	repo, ok := rr.repoParam(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		rr.writeErrorResponse(w, "q is required", http.StatusBadRequest)
		return
	}
	searchContent := r.URL.Query().Get("search_content") != "false"
	maxResults, err := limitParam(r, "max_results")
	if err != nil {
		rr.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	results, err := rr.deps.Index.Search(owner(principalOf(r)), repo, query, searchContent, maxResults)
	if err != nil {
		rr.writeDomainError(w, err)
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

func (rr *Routes) listCommits(w http.ResponseWriter, r *http.Request) {
	repo, ok := rr.repoParam(w, r)
	if !ok {
		return
	}
	limit, err := limitParam(r, "max_count")
	if err != nil {
		rr.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	commits, err := rr.deps.Manager.Commits(owner(principalOf(r)), repo, limit)
	if err != nil {
		rr.writeDomainError(w, err)
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, map[string]any{"commits": commits})
}

func (rr *Routes) listBranches(w http.ResponseWriter, r *http.Request) {
	repo, ok := rr.repoParam(w, r)
	if !ok {
		return
	}
	principal := principalOf(r)
	list, err := rr.deps.Manager.Branches(r.Context(), &git.Auth{Token: principal.Token}, owner(principal), repo)
	if err != nil {
		rr.writeDomainError(w, err)
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, list)
}

func (rr *Routes) syncBranches(w http.ResponseWriter, r *http.Request) {
	var req repoRequest
	if err := decodeBody(r, &req); err != nil || req.RepoName == "" {
		rr.writeErrorResponse(w, "repo_name is required", http.StatusBadRequest)
		return
	}

	principal := principalOf(r)
	result, err := rr.deps.Manager.SyncBranches(r.Context(), &git.Auth{Token: principal.Token}, owner(principal), req.RepoName, false)
	if err != nil {
		rr.writeDomainError(w, err)
		return
	}
	rr.writeJSONResponse(w, outcomeStatus(result.Outcome), result)
}

type checkoutRequest struct {
	RepoName   string `json:"repo_name"`
	BranchName string `json:"branch_name"`
}

func (rr *Routes) checkoutBranch(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		rr.writeErrorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.RepoName == "" || req.BranchName == "" {
		rr.writeErrorResponse(w, "repo_name and branch_name are required", http.StatusBadRequest)
		return
	}

	principal := principalOf(r)
	result, err := rr.deps.Manager.Checkout(r.Context(), &git.Auth{Token: principal.Token}, owner(principal), req.RepoName, req.BranchName)
	if err != nil {
		rr.writeDomainError(w, err)
		return
	}

	// Every checked-out branch gets a note record so the frontend always
	// has something to render. Failure here must not fail the checkout.
	if result.Outcome == workingcopy.OutcomeSwitched {
		if _, _, err := rr.deps.Notes.Ensure(owner(principal), req.RepoName, req.BranchName); err != nil {
			logger.Warnf("Failed to ensure note for %s/%s@%s: %v", owner(principal), req.RepoName, req.BranchName, err)
		}
	}
	rr.writeJSONResponse(w, outcomeStatus(result.Outcome), result)
}
