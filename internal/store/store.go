package store

import (
	"context"
	"errors"

	"github.com/AhsanAkhlaq/skewplay/internal/model"
)

// Collection names, used for change notifications and snapshot streams.
const (
	CollectionDatasets  = "datasets"
	CollectionWorkflows = "workflows"
)

// Sentinel errors for missing records.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrDatasetNotFound  = errors.New("dataset not found")
	ErrWorkflowNotFound = errors.New("workflow not found")
)

// Stats holds aggregate pipeline statistics for one user.
type Stats struct {
	Workflows         int            `json:"workflows"`
	WorkflowsByStatus map[string]int `json:"workflows_by_status"`
	Datasets          int            `json:"datasets"`
	DatasetBytes      int64          `json:"dataset_bytes"`
	AvgExecSeconds    float64        `json:"avg_exec_seconds"`
}

// NotifyFunc is invoked after every successful write with the collection and
// owner affected. It feeds the snapshot subscription stream; writes never
// fail because of it.
type NotifyFunc func(collection, ownerID string)

// Store defines the persistence operations for users, datasets and workflows.
// All writes assign updated_at server-side at commit time.
type Store interface {
	CreateUser(ctx context.Context, u *model.UserProfile) error
	GetUser(ctx context.Context, uid string) (*model.UserProfile, error)
	// AddStorageUsed atomically adjusts a user's storage counter by delta,
	// which may be negative. This is the increment primitive behind quota
	// commit/release; it is not a lock.
	AddStorageUsed(ctx context.Context, uid string, delta int64) error
	AddExperimentsRun(ctx context.Context, uid string, delta int) error

	CreateDataset(ctx context.Context, d *model.Dataset) error
	GetDataset(ctx context.Context, id string) (*model.Dataset, error)
	ListDatasets(ctx context.Context, ownerID string) ([]*model.Dataset, error)
	RenameDataset(ctx context.Context, id, fileName string) error
	SetDatasetAnalysis(ctx context.Context, id string, a *model.Analysis) error
	DeleteDataset(ctx context.Context, id string) error

	CreateWorkflow(ctx context.Context, w *model.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*model.Workflow, error)
	ListWorkflows(ctx context.Context, ownerID string) ([]*model.Workflow, error)
	CountWorkflows(ctx context.Context, ownerID string) (int, error)
	UpdateWorkflow(ctx context.Context, w *model.Workflow) error
	UpdateWorkflowStatus(ctx context.Context, id, status string) error
	// FinishWorkflowRun atomically writes the run outcome fields and nothing
	// else, so edits made while the run was in flight survive.
	FinishWorkflowRun(ctx context.Context, id, status string, results *model.RunResults, artifacts *model.RunArtifacts, errMsg string) error
	DeleteWorkflow(ctx context.Context, id string) error

	GetStats(ctx context.Context, ownerID string) (*Stats, error)
	SetNotify(fn NotifyFunc)
	Close() error
}
