package engine

import (
	"context"

	"github.com/usemanusai/tce/model"
)

// Store persists workflow aggregates and their audit trails. Implementations
// must hand out deep copies: the engine's coordinating goroutine is the only
// writer of a running workflow, and callers must never share its reference.
type Store interface {
	// Create persists a new workflow. Returns CONFLICT if the ID exists.
	Create(ctx context.Context, wf model.Workflow) error

	// Get retrieves a snapshot of a workflow by ID. Returns NOT_FOUND if it
	// does not exist.
	Get(ctx context.Context, id string) (model.Workflow, error)

	// Update persists an updated workflow with optimistic locking. The
	// version must match the stored version; CONFLICT otherwise.
	Update(ctx context.Context, wf model.Workflow) error

	// List returns workflow snapshots matching the filters, newest first.
	List(ctx context.Context, filters ListFilters) ([]model.Workflow, error)

	// Delete removes a workflow and its audit trail.
	Delete(ctx context.Context, id string) error

	// AppendEvent adds an entry to a workflow's audit trail.
	AppendEvent(ctx context.Context, event model.WorkflowEvent) error

	// Events retrieves the audit trail for a workflow, ordered by timestamp.
	Events(ctx context.Context, workflowID string) ([]model.WorkflowEvent, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error
}

// ListFilters are optional filters for listing workflows.
type ListFilters struct {
	Status string
	Mode   model.Mode
	Limit  int
	Offset int
}
