package engine

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
)

// Forget statuses.
const (
	StatusDeleted    = "deleted"
	StatusCandidates = "candidates"
	StatusNotFound   = "not_found"
)

// ForgetInput selects memories for deletion. Exactly one of ID, Query,
// or ConfirmIDs should be set.
type ForgetInput struct {
	Owner      string  `json:"owner"`
	ID         int64   `json:"id,omitempty"`
	Query      string  `json:"query,omitempty"`
	ConfirmIDs []int64 `json:"confirm_ids,omitempty"`
}

// ForgetResult reports deletions or deletion candidates. A query never
// deletes; it returns candidates the caller must confirm by id.
type ForgetResult struct {
	Status     string         `json:"status"`
	Deleted    []int64        `json:"deleted,omitempty"`
	NotFound   []int64        `json:"not_found,omitempty"`
	Candidates []RecallResult `json:"candidates,omitempty"`
}

// Forget runs the deletion pipeline. Delete-by-query is a two-call
// protocol: the first call only surfaces candidates, a second call with
// confirmed ids removes them. Cross-owner ids report as not found.
func (e *Engine) Forget(ctx context.Context, in ForgetInput) (*ForgetResult, error) {
	if in.Owner == "" {
		return nil, fmt.Errorf("owner required")
	}

	switch {
	case in.Query != "":
		candidates, err := e.Recall(ctx, in.Owner, in.Query, 10, RecallFilters{})
		if err != nil {
			return nil, fmt.Errorf("find candidates: %w", err)
		}
		if len(candidates) == 0 {
			return &ForgetResult{Status: StatusNotFound}, nil
		}
		return &ForgetResult{Status: StatusCandidates, Candidates: candidates}, nil

	case len(in.ConfirmIDs) > 0:
		return e.deleteByIDs(in.Owner, in.ConfirmIDs)

	case in.ID > 0:
		return e.deleteByIDs(in.Owner, []int64{in.ID})

	default:
		return nil, fmt.Errorf("forget requires an id, query, or confirm_ids")
	}
}

// deleteByIDs removes the owner's memories in one transaction, then
// cleans both derived indexes and invalidates cached read state.
// Foreign-key cascades take dependent refs and edge provenance with
// the rows.
func (e *Engine) deleteByIDs(owner string, ids []int64) (*ForgetResult, error) {
	deleted, missing, err := e.db.DeleteMemories(owner, ids)
	if err != nil {
		return nil, fmt.Errorf("delete memories: %w", err)
	}

	for _, id := range deleted {
		if err := e.db.RemoveFromIndex(id); err != nil {
			log.Warn("lexical index removal failed", "memory", id, "error", err)
		}
		// Not every record has an embedding; absence is fine.
		if err := e.db.DeleteVector(id); err != nil {
			log.Warn("vector removal failed", "memory", id, "error", err)
		}
	}

	if len(deleted) > 0 {
		e.invalidate(owner)
	}

	status := StatusDeleted
	if len(deleted) == 0 {
		status = StatusNotFound
	}
	return &ForgetResult{Status: status, Deleted: deleted, NotFound: missing}, nil
}
