package model

import "time"

// Workflow status constants.
const (
	StatusDraft         = "draft"
	StatusPreprocessing = "preprocessing"
	StatusBalancing     = "balancing"
	StatusTraining      = "training"
	StatusCompleted     = "completed"
	StatusFailed        = "failed"
)

// Subscription tier constants.
const (
	TierBasic    = "basic"
	TierAdvanced = "advanced"
)

// Dataset analysis type constants.
const (
	AnalysisBinary     = "binary"
	AnalysisMulticlass = "multiclass"
	AnalysisRegression = "regression"
)

// Preprocessing scaling constants.
const (
	ScalingMinMax   = "minmax"
	ScalingStandard = "standard"
	ScalingRobust   = "robust"
	ScalingNone     = "none"
)

// Preprocessing encoding constants.
const (
	EncodingOneHot = "onehot"
	EncodingLabel  = "label"
	EncodingTarget = "target"
	EncodingNone   = "none"
)

// Imbalance technique constants.
const (
	TechniqueSMOTE       = "smote"
	TechniqueADASYN      = "adasyn"
	TechniqueRandomUnder = "random_under"
	TechniqueTomekLinks  = "tomek_links"
	TechniqueNone        = "none"
)

// Model algorithm constants.
const (
	AlgorithmRandomForest       = "random_forest"
	AlgorithmXGBoost            = "xgboost"
	AlgorithmLogisticRegression = "logistic_regression"
	AlgorithmSVM                = "svm"
)

// Per-tier limits. A workflow limit of 0 means unlimited.
const (
	StorageLimitBasic    = 1 << 30  // 1 GiB
	StorageLimitAdvanced = 10 << 30 // 10 GiB

	WorkflowLimitBasic    = 5
	WorkflowLimitAdvanced = 0
)

// StorageLimit returns the storage quota in bytes for a tier.
// Unknown tiers get the basic limit.
func StorageLimit(tier string) int64 {
	if tier == TierAdvanced {
		return StorageLimitAdvanced
	}
	return StorageLimitBasic
}

// WorkflowLimit returns the maximum number of concurrent workflows for a tier,
// or 0 for unlimited.
func WorkflowLimit(tier string) int {
	if tier == TierAdvanced {
		return WorkflowLimitAdvanced
	}
	return WorkflowLimitBasic
}

// validTransitions maps each workflow status to the set of statuses it may
// transition to. Terminal statuses keep re-run edges back into the pipeline.
var validTransitions = map[string]map[string]bool{
	StatusDraft: {
		StatusPreprocessing: true,
		StatusTraining:      true,
	},
	StatusPreprocessing: {
		StatusBalancing: true,
		StatusFailed:    true,
	},
	StatusBalancing: {
		StatusTraining: true,
		StatusFailed:   true,
	},
	StatusTraining: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
	StatusCompleted: {
		StatusDraft:         true,
		StatusPreprocessing: true,
		StatusTraining:      true,
	},
	StatusFailed: {
		StatusDraft:         true,
		StatusPreprocessing: true,
		StatusTraining:      true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// RunInFlight reports whether a status means a pipeline run is currently
// executing. Config edits are rejected while a run is in flight.
func RunInFlight(status string) bool {
	return status == StatusPreprocessing || status == StatusBalancing || status == StatusTraining
}

// UsageStats tracks a user's consumed resources.
type UsageStats struct {
	StorageUsedBytes int64 `json:"storage_used_bytes"`
	ExperimentsRun   int   `json:"experiments_run"`
}

// UserProfile represents a registered user. Identity issuance is owned by the
// auth collaborator; the core reads the profile and adjusts usage counters.
type UserProfile struct {
	UID         string     `json:"uid"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Tier        string     `json:"tier"`
	UsageStats  UsageStats `json:"usage_stats"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Analysis holds the compute engine's profile of a dataset's target column.
type Analysis struct {
	Type            string             `json:"type"`
	TargetColumn    string             `json:"target_column"`
	ImbalanceRatios map[string]float64 `json:"imbalance_ratios,omitempty"`
	Anomalies       []string           `json:"anomalies,omitempty"`
	RowCount        int                `json:"row_count"`
}

// Dataset represents a registered data file. Samples are global, read-only,
// and exempt from quota accounting.
type Dataset struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	FileName    string    `json:"file_name"`
	SizeBytes   int64     `json:"size_bytes"`
	StoragePath string    `json:"storage_path"`
	IsSample    bool      `json:"is_sample"`
	Analysis    *Analysis `json:"analysis,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EntityID implements the sync entity identity.
func (d *Dataset) EntityID() string { return d.ID }

// Revision returns the server-assigned write time used to order sync merges.
func (d *Dataset) Revision() time.Time { return d.UpdatedAt }

// EngineFileName returns the on-disk file name the compute engine expects:
// the trailing path segment of the storage path. Uploads are stored under a
// timestamped name that differs from the display file name, so this mapping
// must be exact.
func (d *Dataset) EngineFileName() string {
	p := d.StoragePath
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

// PreprocessingConfig controls the preprocessing stage.
type PreprocessingConfig struct {
	Scaling    string  `json:"scaling"`
	Encoding   string  `json:"encoding"`
	SplitRatio float64 `json:"split_ratio"`
}

// ImbalanceConfig controls the imbalance-mitigation stage.
type ImbalanceConfig struct {
	Technique string         `json:"technique"`
	Params    map[string]any `json:"params,omitempty"`
}

// ModelConfig controls the training stage.
type ModelConfig struct {
	Algorithm       string         `json:"algorithm"`
	Hyperparameters map[string]any `json:"hyperparameters,omitempty"`
}

// PipelineConfig is the full three-stage pipeline configuration.
type PipelineConfig struct {
	Preprocessing PreprocessingConfig `json:"preprocessing"`
	Imbalance     ImbalanceConfig     `json:"imbalance"`
	Model         ModelConfig         `json:"model"`
}

// RunResults holds the evaluation metrics of a completed run.
type RunResults struct {
	Accuracy        float64 `json:"accuracy"`
	F1              float64 `json:"f1"`
	Precision       float64 `json:"precision"`
	Recall          float64 `json:"recall"`
	ExecTimeSeconds float64 `json:"exec_time_seconds"`
}

// RunArtifacts holds named output references produced by a completed run.
type RunArtifacts struct {
	ProcessedPath string `json:"processed_path,omitempty"`
	BalancedPath  string `json:"balanced_path,omitempty"`
	ModelPath     string `json:"model_path,omitempty"`
	ReportURL     string `json:"report_url,omitempty"`
}

// Workflow represents a configured multi-stage pipeline over a dataset.
type Workflow struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	DatasetID string         `json:"dataset_id,omitempty"`
	Name      string         `json:"name"`
	Status    string         `json:"status"`
	Config    PipelineConfig `json:"config"`
	Artifacts *RunArtifacts  `json:"artifacts,omitempty"`
	Results   *RunResults    `json:"results,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// EntityID implements the sync entity identity.
func (w *Workflow) EntityID() string { return w.ID }

// Revision returns the server-assigned write time used to order sync merges.
func (w *Workflow) Revision() time.Time { return w.UpdatedAt }
