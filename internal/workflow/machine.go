// Package workflow owns the Workflow entity: its state machine, its
// configuration mutation rules, and the orchestration of pipeline runs
// against the compute engine.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AhsanAkhlaq/skewplay/internal/dataset"
	"github.com/AhsanAkhlaq/skewplay/internal/model"
	"github.com/AhsanAkhlaq/skewplay/internal/session"
	"github.com/AhsanAkhlaq/skewplay/internal/store"
)

// ErrInvalidTransition is returned when a status change is not in the
// transition graph or a guard is unmet.
var ErrInvalidTransition = errors.New("invalid workflow transition")

// ErrWorkflowLimit is returned when creating a workflow would exceed the
// user's tier limit.
var ErrWorkflowLimit = errors.New("workflow limit reached for tier")

// Machine enforces the workflow transition graph and configuration rules.
type Machine struct {
	store    store.Store
	datasets *dataset.Registry
	logger   *slog.Logger
}

// NewMachine creates a workflow state machine.
func NewMachine(s store.Store, d *dataset.Registry, logger *slog.Logger) *Machine {
	return &Machine{store: s, datasets: d, logger: logger}
}

// Create registers a new workflow in draft status. The dataset reference, if
// given, must name an existing dataset owned by the user or a sample.
func (m *Machine) Create(ctx context.Context, sess *session.Context, name, datasetID string, cfg model.PipelineConfig) (*model.Workflow, error) {
	profile, err := sess.Profile()
	if err != nil {
		return nil, err
	}

	if limit := model.WorkflowLimit(profile.Tier); limit > 0 {
		n, err := m.store.CountWorkflows(ctx, profile.UID)
		if err != nil {
			return nil, fmt.Errorf("count workflows: %w", err)
		}
		if n >= limit {
			return nil, fmt.Errorf("%w: %d of %d in use", ErrWorkflowLimit, n, limit)
		}
	}

	if datasetID != "" {
		if _, err := m.datasets.Resolve(ctx, profile.UID, datasetID); err != nil {
			return nil, err
		}
	}

	w := &model.Workflow{
		ID:        model.NewID(),
		OwnerID:   profile.UID,
		DatasetID: datasetID,
		Name:      name,
		Status:    model.StatusDraft,
		Config:    cfg,
	}
	if err := m.store.CreateWorkflow(ctx, w); err != nil {
		return nil, fmt.Errorf("persist workflow: %w", err)
	}
	return w, nil
}

// Get returns a workflow owned by the session user.
func (m *Machine) Get(ctx context.Context, sess *session.Context, id string) (*model.Workflow, error) {
	uid, err := sess.UserID()
	if err != nil {
		return nil, err
	}
	return m.getOwned(ctx, uid, id)
}

// List returns the user's workflows, newest first.
func (m *Machine) List(ctx context.Context, sess *session.Context) ([]*model.Workflow, error) {
	uid, err := sess.UserID()
	if err != nil {
		return nil, err
	}
	return m.store.ListWorkflows(ctx, uid)
}

// UpdateConfig merges a partial configuration into the workflow field by
// field. Edits are rejected while a run is in flight.
func (m *Machine) UpdateConfig(ctx context.Context, sess *session.Context, id string, patch model.ConfigPatch) (*model.Workflow, error) {
	uid, err := sess.UserID()
	if err != nil {
		return nil, err
	}

	w, err := m.getOwned(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	if model.RunInFlight(w.Status) {
		return nil, fmt.Errorf("%w: config locked while status is %q", ErrInvalidTransition, w.Status)
	}

	w.Config = model.MergeConfig(w.Config, patch)
	if err := m.store.UpdateWorkflow(ctx, w); err != nil {
		return nil, fmt.Errorf("persist config: %w", err)
	}
	return w, nil
}

// Rename updates the workflow's display name.
func (m *Machine) Rename(ctx context.Context, sess *session.Context, id, name string) (*model.Workflow, error) {
	uid, err := sess.UserID()
	if err != nil {
		return nil, err
	}

	w, err := m.getOwned(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	w.Name = name
	if err := m.store.UpdateWorkflow(ctx, w); err != nil {
		return nil, fmt.Errorf("persist rename: %w", err)
	}
	return w, nil
}

// BindDataset points the workflow at a dataset, validating the reference.
// Rejected while a run is in flight.
func (m *Machine) BindDataset(ctx context.Context, sess *session.Context, id, datasetID string) (*model.Workflow, error) {
	uid, err := sess.UserID()
	if err != nil {
		return nil, err
	}

	w, err := m.getOwned(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	if model.RunInFlight(w.Status) {
		return nil, fmt.Errorf("%w: dataset locked while status is %q", ErrInvalidTransition, w.Status)
	}

	if datasetID != "" {
		if _, err := m.datasets.Resolve(ctx, uid, datasetID); err != nil {
			return nil, err
		}
	}
	w.DatasetID = datasetID
	if err := m.store.UpdateWorkflow(ctx, w); err != nil {
		return nil, fmt.Errorf("persist dataset binding: %w", err)
	}
	return w, nil
}

// Transition moves a workflow along the status graph. Completed and Failed
// are reserved for the run lifecycle and cannot be set directly.
func (m *Machine) Transition(ctx context.Context, sess *session.Context, id, next string) (*model.Workflow, error) {
	uid, err := sess.UserID()
	if err != nil {
		return nil, err
	}

	w, err := m.getOwned(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	if err := guardTransition(w, next); err != nil {
		return nil, err
	}
	if next == model.StatusCompleted || next == model.StatusFailed {
		return nil, fmt.Errorf("%w: %q is set by run completion only", ErrInvalidTransition, next)
	}

	if err := m.store.UpdateWorkflowStatus(ctx, id, next); err != nil {
		return nil, fmt.Errorf("persist transition: %w", err)
	}
	w.Status = next
	return w, nil
}

// Delete removes a workflow regardless of status.
func (m *Machine) Delete(ctx context.Context, sess *session.Context, id string) error {
	uid, err := sess.UserID()
	if err != nil {
		return err
	}
	if _, err := m.getOwned(ctx, uid, id); err != nil {
		return err
	}
	if err := m.store.DeleteWorkflow(ctx, id); err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	return nil
}

// guardTransition checks the edge exists and its entry guards hold.
func guardTransition(w *model.Workflow, next string) error {
	if !model.ValidTransition(w.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.Status, next)
	}
	if next == model.StatusTraining || next == model.StatusPreprocessing {
		if w.DatasetID == "" {
			return fmt.Errorf("%w: no dataset bound", ErrInvalidTransition)
		}
		if w.Config.Model.Algorithm == "" {
			return fmt.Errorf("%w: no model algorithm configured", ErrInvalidTransition)
		}
	}
	return nil
}

// getOwned fetches a workflow and hides other users' records behind not-found.
func (m *Machine) getOwned(ctx context.Context, uid, id string) (*model.Workflow, error) {
	w, err := m.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.OwnerID != uid {
		return nil, store.ErrWorkflowNotFound
	}
	return w, nil
}
