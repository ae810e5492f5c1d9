// Package dataset owns the Dataset lifecycle: upload, listing, reanalysis,
// rename and delete, with quota enforcement on the upload and delete paths.
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/AhsanAkhlaq/skewplay/internal/engine"
	"github.com/AhsanAkhlaq/skewplay/internal/model"
	"github.com/AhsanAkhlaq/skewplay/internal/quota"
	"github.com/AhsanAkhlaq/skewplay/internal/session"
	"github.com/AhsanAkhlaq/skewplay/internal/store"
)

// ErrSampleReadOnly is returned for mutations attempted on sample datasets.
var ErrSampleReadOnly = errors.New("sample datasets are read-only")

// sampleOwner marks datasets belonging to the global sample set.
const sampleOwner = "system"

// samplesTTL bounds how long the sample listing is served from cache.
const samplesTTL = 5 * time.Minute

// Registry coordinates dataset operations between the store, the quota
// ledger and the compute engine.
type Registry struct {
	store  store.Store
	ledger *quota.Ledger
	engine engine.Engine
	logger *slog.Logger

	mu          sync.Mutex
	samples     []*model.Dataset
	samplesFrom time.Time
}

// NewRegistry creates a dataset registry.
func NewRegistry(s store.Store, l *quota.Ledger, e engine.Engine, logger *slog.Logger) *Registry {
	return &Registry{
		store:  s,
		ledger: l,
		engine: e,
		logger: logger,
	}
}

// List returns the user's own datasets followed by the global samples, each
// group ordered by creation time descending.
func (r *Registry) List(ctx context.Context, sess *session.Context) ([]*model.Dataset, error) {
	uid, err := sess.UserID()
	if err != nil {
		return nil, err
	}

	owned, err := r.store.ListDatasets(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list owned datasets: %w", err)
	}

	samples, err := r.Samples(ctx)
	if err != nil {
		// The owned listing is still useful when the engine is down.
		r.logger.Warn("sample listing unavailable", "error", err)
		return owned, nil
	}
	return append(owned, samples...), nil
}

// Samples returns the global read-only sample set, served from a short-lived
// cache to spare the engine.
func (r *Registry) Samples(ctx context.Context) ([]*model.Dataset, error) {
	r.mu.Lock()
	if r.samples != nil && time.Since(r.samplesFrom) < samplesTTL {
		cached := r.samples
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	raw, err := r.engine.Samples(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch samples: %w", err)
	}

	samples := make([]*model.Dataset, 0, len(raw))
	for _, s := range raw {
		d := &model.Dataset{
			ID:          model.SampleID(s.FileName),
			OwnerID:     sampleOwner,
			FileName:    s.FileName,
			SizeBytes:   s.SizeBytes,
			StoragePath: s.StoragePath,
			IsSample:    true,
		}
		// The engine may list samples it has not analyzed yet; an empty
		// analysis block would read as a real one downstream.
		if s.Analysis.Type != "" {
			analysis := s.Analysis
			d.Analysis = &analysis
		}
		samples = append(samples, d)
	}

	r.mu.Lock()
	r.samples = samples
	r.samplesFrom = time.Now()
	r.mu.Unlock()
	return samples, nil
}

// Upload reserves quota, sends the file to the engine for storage and
// analysis, persists the dataset record and commits the quota. A persist
// failure after the engine stored the file orphans the remote copy; that is
// accepted rather than rolled back.
func (r *Registry) Upload(ctx context.Context, sess *session.Context, fileName string, sizeBytes int64, content io.Reader, targetCol string) (*model.Dataset, error) {
	// Reload the cached profile so the pre-flight check sees the latest
	// storage counter.
	if err := sess.Refresh(ctx, r.store); err != nil {
		return nil, err
	}
	profile, err := sess.Profile()
	if err != nil {
		return nil, err
	}

	if err := r.ledger.Reserve(profile, sizeBytes); err != nil {
		return nil, err
	}

	result, err := r.engine.Upload(ctx, engine.UploadRequest{
		UserID:    profile.UID,
		FileName:  fileName,
		TargetCol: targetCol,
		Content:   content,
	})
	if err != nil {
		return nil, fmt.Errorf("engine upload: %w", err)
	}

	analysis := result.Analysis
	d := &model.Dataset{
		ID:          model.NewID(),
		OwnerID:     profile.UID,
		FileName:    result.FileName,
		SizeBytes:   result.SizeBytes,
		StoragePath: result.StoragePath,
		Analysis:    &analysis,
	}
	if err := r.store.CreateDataset(ctx, d); err != nil {
		return nil, fmt.Errorf("persist dataset: %w", err)
	}

	r.ledger.Commit(ctx, profile.UID, result.SizeBytes)
	return d, nil
}

// Reanalyze re-runs the engine's analysis on the stored file with a new
// target column and overwrites only the analysis block.
func (r *Registry) Reanalyze(ctx context.Context, sess *session.Context, id, targetCol string) (*model.Dataset, error) {
	uid, err := sess.UserID()
	if err != nil {
		return nil, err
	}

	d, err := r.getOwned(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	if d.IsSample {
		return nil, ErrSampleReadOnly
	}

	analysis, err := r.engine.Reanalyze(ctx, uid, d.EngineFileName(), targetCol)
	if err != nil {
		return nil, fmt.Errorf("engine reanalyze: %w", err)
	}

	if err := r.store.SetDatasetAnalysis(ctx, id, analysis); err != nil {
		return nil, fmt.Errorf("persist analysis: %w", err)
	}
	d.Analysis = analysis
	return d, nil
}

// Rename updates a dataset's display name, the only mutation permitted after
// analysis is attached.
func (r *Registry) Rename(ctx context.Context, sess *session.Context, id, fileName string) (*model.Dataset, error) {
	uid, err := sess.UserID()
	if err != nil {
		return nil, err
	}

	d, err := r.getOwned(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	if d.IsSample {
		return nil, ErrSampleReadOnly
	}

	if err := r.store.RenameDataset(ctx, id, fileName); err != nil {
		return nil, fmt.Errorf("rename dataset: %w", err)
	}
	d.FileName = fileName
	return d, nil
}

// Delete removes a non-sample dataset and releases its quota contribution.
func (r *Registry) Delete(ctx context.Context, sess *session.Context, id string) error {
	uid, err := sess.UserID()
	if err != nil {
		return err
	}

	d, err := r.getOwned(ctx, uid, id)
	if err != nil {
		return err
	}
	if d.IsSample {
		return ErrSampleReadOnly
	}

	if err := r.store.DeleteDataset(ctx, id); err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	r.ledger.Release(ctx, uid, d.SizeBytes)
	return nil
}

// Resolve returns a dataset visible to the user: owned, or a sample.
// Orchestration uses it to bind a workflow's dataset reference.
func (r *Registry) Resolve(ctx context.Context, uid, id string) (*model.Dataset, error) {
	d, err := r.store.GetDataset(ctx, id)
	if err == nil {
		if d.OwnerID != uid && !d.IsSample {
			return nil, store.ErrDatasetNotFound
		}
		return d, nil
	}
	if !errors.Is(err, store.ErrDatasetNotFound) {
		return nil, err
	}

	// Samples live engine-side, not in the store.
	samples, serr := r.Samples(ctx)
	if serr != nil {
		return nil, err
	}
	for _, s := range samples {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, store.ErrDatasetNotFound
}

// Details returns the engine's descriptive payload for a dataset.
func (r *Registry) Details(ctx context.Context, sess *session.Context, id string) (json.RawMessage, error) {
	uid, err := sess.UserID()
	if err != nil {
		return nil, err
	}
	d, err := r.Resolve(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	return r.engine.DatasetDetails(ctx, uid, d.EngineFileName())
}

// EDA returns the engine's exploratory analysis payload for a dataset.
func (r *Registry) EDA(ctx context.Context, sess *session.Context, id string) (json.RawMessage, error) {
	uid, err := sess.UserID()
	if err != nil {
		return nil, err
	}
	d, err := r.Resolve(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	return r.engine.PerformEDA(ctx, uid, d.EngineFileName())
}

// getOwned fetches a dataset and hides other users' records behind not-found.
func (r *Registry) getOwned(ctx context.Context, uid, id string) (*model.Dataset, error) {
	d, err := r.store.GetDataset(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrDatasetNotFound) {
			// The id may name a sample; surface it so mutations can be
			// rejected with the right error.
			samples, serr := r.Samples(ctx)
			if serr == nil {
				for _, s := range samples {
					if s.ID == id {
						return s, nil
					}
				}
			}
		}
		return nil, err
	}
	if d.OwnerID != uid && !d.IsSample {
		return nil, store.ErrDatasetNotFound
	}
	return d, nil
}
