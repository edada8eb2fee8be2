package v1

import (
	"net/http"
)

type noteCreateRequest struct {
	RepoName   string `json:"repo_name"`
	BranchName string `json:"branch_name"`
	Title      string `json:"title"`
	Content    string `json:"content"`
}

type noteUpdateRequest struct {
	RepoName   string  `json:"repo_name"`
	BranchName string  `json:"branch_name"`
	Title      *string `json:"title"`
	Content    *string `json:"content"`
}

// branchParam reads the mandatory branch_name query parameter.
func (rr *Routes) branchParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.URL.Query().Get("branch_name")
	if name == "" {
		rr.writeErrorResponse(w, "branch_name is required", http.StatusBadRequest)
		return "", false
	}
	return name, true
}

func (rr *Routes) listNotes(w http.ResponseWriter, r *http.Request) {
	repo, ok := rr.repoParam(w, r)
	if !ok {
		return
	}
	list, err := rr.deps.Notes.List(owner(principalOf(r)), repo)
	if err != nil {
		rr.writeDomainError(w, err)
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, map[string]any{
		"pages": list,
		"count": len(list),
	})
}

func (rr *Routes) getNote(w http.ResponseWriter, r *http.Request) {
	repo, ok := rr.repoParam(w, r)
	if !ok {
		return
	}
	branch, ok := rr.branchParam(w, r)
	if !ok {
		return
	}
	note, err := rr.deps.Notes.Get(owner(principalOf(r)), repo, branch)
	if err != nil {
		rr.writeDomainError(w, err)
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, note)
}

func (rr *Routes) createNote(w http.ResponseWriter, r *http.Request) {
	var req noteCreateRequest
	if err := decodeBody(r, &req); err != nil {
		rr.writeErrorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.RepoName == "" || req.BranchName == "" {
		rr.writeErrorResponse(w, "repo_name and branch_name are required", http.StatusBadRequest)
		return
	}
	note, err := rr.deps.Notes.Create(owner(principalOf(r)), req.RepoName, req.BranchName, req.Title, req.Content)
	if err != nil {
		rr.writeDomainError(w, err)
		return
	}
	rr.writeJSONResponse(w, http.StatusCreated, note)
}

func (rr *Routes) updateNote(w http.ResponseWriter, r *http.Request) {
	var req noteUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		rr.writeErrorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.RepoName == "" || req.BranchName == "" {
		rr.writeErrorResponse(w, "repo_name and branch_name are required", http.StatusBadRequest)
		return
	}
	note, err := rr.deps.Notes.Update(owner(principalOf(r)), req.RepoName, req.BranchName, req.Title, req.Content)
	if err != nil {
		rr.writeDomainError(w, err)
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, note)
}

func (rr *Routes) deleteNote(w http.ResponseWriter, r *http.Request) {
	repo, ok := rr.repoParam(w, r)
	if !ok {
		return
	}
	branch, ok := rr.branchParam(w, r)
	if !ok {
		return
	}
	if err := rr.deps.Notes.Delete(owner(principalOf(r)), repo, branch); err != nil {
		rr.writeDomainError(w, err)
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}
