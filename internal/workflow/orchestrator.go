package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AhsanAkhlaq/skewplay/internal/dataset"
	"github.com/AhsanAkhlaq/skewplay/internal/engine"
	"github.com/AhsanAkhlaq/skewplay/internal/model"
	"github.com/AhsanAkhlaq/skewplay/internal/session"
	"github.com/AhsanAkhlaq/skewplay/internal/store"
)

// DefaultRunTimeout bounds a pipeline run when no timeout is configured.
const DefaultRunTimeout = 10 * time.Minute

var (
	runsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skewplay_runs_started_total",
		Help: "Total number of pipeline runs started.",
	})
	runsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skewplay_runs_finished_total",
		Help: "Total number of pipeline runs finished, by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(runsStarted)
	prometheus.MustRegister(runsFinished)
}

// Orchestrator drives workflows through pipeline execution. A run cannot be
// cancelled once started; the engine job continues server-side regardless of
// who is watching.
type Orchestrator struct {
	store      store.Store
	datasets   *dataset.Registry
	engine     engine.Engine
	logger     *slog.Logger
	runTimeout time.Duration
	wg         sync.WaitGroup
}

// NewOrchestrator creates a pipeline orchestrator. A runTimeout of 0 uses
// DefaultRunTimeout.
func NewOrchestrator(s store.Store, d *dataset.Registry, e engine.Engine, logger *slog.Logger, runTimeout time.Duration) *Orchestrator {
	if runTimeout <= 0 {
		runTimeout = DefaultRunTimeout
	}
	return &Orchestrator{
		store:      s,
		datasets:   d,
		engine:     e,
		logger:     logger,
		runTimeout: runTimeout,
	}
}

// Start validates the run guards, persists the first in-flight status so
// other observers see the run immediately, and launches execution in a
// goroutine. The status check-then-set is advisory, not a distributed lock:
// within one process a second Start observes the in-flight status and is
// rejected, which is the guarantee the original design made.
func (o *Orchestrator) Start(ctx context.Context, sess *session.Context, workflowID string) (*model.Workflow, error) {
	uid, err := sess.UserID()
	if err != nil {
		return nil, err
	}

	w, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if w.OwnerID != uid {
		return nil, store.ErrWorkflowNotFound
	}

	if model.RunInFlight(w.Status) {
		return nil, fmt.Errorf("%w: run already in flight (status %q)", ErrInvalidTransition, w.Status)
	}
	if err := guardTransition(w, model.StatusPreprocessing); err != nil {
		return nil, err
	}

	d, err := o.datasets.Resolve(ctx, uid, w.DatasetID)
	if err != nil {
		return nil, err
	}
	targetCol := ""
	if d.Analysis != nil {
		targetCol = d.Analysis.TargetColumn
	}

	if err := o.store.UpdateWorkflowStatus(ctx, w.ID, model.StatusPreprocessing); err != nil {
		return nil, fmt.Errorf("persist run start: %w", err)
	}
	w.Status = model.StatusPreprocessing
	runsStarted.Inc()

	// Execute on a copy so the caller's value stays race-free.
	wCopy := *w
	req := engine.RunRequest{
		FileName:  d.EngineFileName(),
		TargetCol: targetCol,
		Config:    w.Config,
	}
	o.wg.Go(func() {
		o.execute(&wCopy, req)
	})

	return w, nil
}

// Wait blocks until all in-flight runs complete.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// execute walks the workflow through the pipeline stages around the engine's
// single synchronous run call and lands it in completed or failed.
func (o *Orchestrator) execute(w *model.Workflow, req engine.RunRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), o.runTimeout)
	defer cancel()

	// Stage labels shown while the one engine call is in flight. These are
	// not independently resumable stages; a best-effort persist is enough.
	for _, stage := range []string{model.StatusBalancing, model.StatusTraining} {
		if err := o.store.UpdateWorkflowStatus(ctx, w.ID, stage); err != nil {
			o.logger.Error("failed to persist stage", "workflow_id", w.ID, "stage", stage, "error", err)
			o.finishFailed(w, fmt.Sprintf("failed to enter %s: %v", stage, err))
			return
		}
		w.Status = stage
	}

	result, err := o.engine.Run(ctx, req)
	if err != nil {
		errMsg := err.Error()
		if ctx.Err() == context.DeadlineExceeded {
			errMsg = fmt.Sprintf("run timed out after %s", o.runTimeout)
		}
		o.finishFailed(w, errMsg)
		return
	}

	w.Status = model.StatusCompleted
	w.Results = &result.Results
	w.Artifacts = &result.Artifacts
	w.Error = ""
	// Outcome-only write; a rename or rebind made during the run survives.
	if err := o.store.FinishWorkflowRun(context.Background(), w.ID, w.Status, w.Results, w.Artifacts, ""); err != nil {
		o.logger.Error("failed to persist completed run", "workflow_id", w.ID, "error", err)
		runsFinished.WithLabelValues("failed").Inc()
		return
	}
	runsFinished.WithLabelValues("completed").Inc()

	// Secondary write; drift is logged, not corrected.
	if err := o.store.AddExperimentsRun(context.Background(), w.OwnerID, 1); err != nil {
		o.logger.Error("failed to bump experiments counter", "user_id", w.OwnerID, "error", err)
	}
}

// finishFailed lands the workflow in failed with the error retained and the
// config untouched, so the user can edit and re-run.
func (o *Orchestrator) finishFailed(w *model.Workflow, errMsg string) {
	w.Status = model.StatusFailed
	w.Error = errMsg
	w.Results = nil
	w.Artifacts = nil
	if err := o.store.FinishWorkflowRun(context.Background(), w.ID, w.Status, nil, nil, errMsg); err != nil {
		o.logger.Error("failed to persist failed run", "workflow_id", w.ID, "error", err)
	}
	runsFinished.WithLabelValues("failed").Inc()
}
