package workingcopy

// Outcome discriminates the result of a manager operation. Expected
// conditions (already cloned, branch missing, transport failure) are reported
// through outcomes rather than errors; errors are reserved for invalid
// arguments and infrastructure failures.
type Outcome string

const (
	OutcomeCreated        Outcome = "created"
	OutcomeAlreadyExists  Outcome = "already_exists"
	OutcomeUpdated        Outcome = "updated"
	OutcomeDeleted        Outcome = "deleted"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeNotCloned      Outcome = "not_cloned"
	OutcomeBranchNotFound Outcome = "branch_not_found"
	OutcomeSwitched       Outcome = "switched"
	OutcomeFailed         Outcome = "failed"
)

// CloneResult reports the outcome of clone and reclone.
type CloneResult struct {
	Outcome Outcome `json:"status"`
	Path    string  `json:"path,omitempty"`
	Message string  `json:"message,omitempty"`

	// BranchesSynced counts the local tracking branches created from
	// remote refs right after a successful clone.
	BranchesSynced int `json:"branches_synced,omitempty"`
}

// PullResult reports the outcome of pull.
type PullResult struct {
	Outcome Outcome `json:"status"`
	Message string  `json:"message,omitempty"`
}

// DeleteResult reports the outcome of delete.
type DeleteResult struct {
	Outcome Outcome `json:"status"`
	Message string  `json:"message,omitempty"`
}

// CheckoutResult reports the outcome of checkout. A pull after a successful
// switch is best-effort: when it fails the switch still succeeded and the
// failure surfaces in PullWarning.
type CheckoutResult struct {
	Outcome         Outcome `json:"status"`
	CurrentBranch   string  `json:"current_branch,omitempty"`
	CreatedTracking bool    `json:"created_tracking,omitempty"`
	Pulled          bool    `json:"pulled,omitempty"`
	PullWarning     string  `json:"pull_warning,omitempty"`
	Message         string  `json:"message,omitempty"`
}

// SyncResult reports the outcome of syncing local branches from remote refs.
type SyncResult struct {
	Outcome Outcome `json:"status"`
	Created int     `json:"created"`
	Message string  `json:"message,omitempty"`
}
