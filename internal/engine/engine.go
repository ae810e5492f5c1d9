// Package engine is the client for the remote compute engine that analyzes
// datasets and executes pipeline runs. Engine payloads are validated against
// explicit schemas at this boundary and converted to typed values before they
// enter the core.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/AhsanAkhlaq/skewplay/internal/model"
)

// ErrUnavailable is returned when the engine cannot be reached or times out.
var ErrUnavailable = errors.New("compute engine unavailable")

// ErrBadResponse is returned when the engine replies with a payload that
// fails schema validation.
var ErrBadResponse = errors.New("malformed compute engine response")

// UploadRequest carries a dataset file to the engine's /upload endpoint.
type UploadRequest struct {
	UserID    string
	FileName  string
	TargetCol string // optional; engine picks the last column when empty
	Content   io.Reader
}

// UploadResult is the engine's record of a stored and analyzed file.
type UploadResult struct {
	FileName    string
	StoragePath string
	SizeBytes   int64
	Analysis    model.Analysis
}

// RunRequest submits a configured pipeline over a stored file.
type RunRequest struct {
	FileName  string
	TargetCol string
	Config    model.PipelineConfig
}

// RunResult holds the metrics and artifacts of a completed run.
type RunResult struct {
	Results   model.RunResults
	Artifacts model.RunArtifacts
}

// Sample describes one entry of the global read-only sample set.
type Sample struct {
	FileName    string
	StoragePath string
	SizeBytes   int64
	Analysis    model.Analysis
}

// Engine is the compute engine contract used by the core. Implementations
// must be safe for concurrent use.
type Engine interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)
	Reanalyze(ctx context.Context, userID, fileName, targetCol string) (*model.Analysis, error)
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
	Samples(ctx context.Context) ([]Sample, error)
	// DatasetDetails and PerformEDA return descriptive payloads that are
	// opaque to the core and passed through to callers unchanged.
	DatasetDetails(ctx context.Context, userID, fileName string) (json.RawMessage, error)
	PerformEDA(ctx context.Context, userID, fileName string) (json.RawMessage, error)
}
