package model

// PreprocessingPatch is a partial update to PreprocessingConfig.
type PreprocessingPatch struct {
	Scaling    *string  `json:"scaling,omitempty"`
	Encoding   *string  `json:"encoding,omitempty"`
	SplitRatio *float64 `json:"split_ratio,omitempty"`
}

// ImbalancePatch is a partial update to ImbalanceConfig. Params entries are
// merged key-by-key rather than replacing the whole map.
type ImbalancePatch struct {
	Technique *string        `json:"technique,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// ModelPatch is a partial update to ModelConfig.
type ModelPatch struct {
	Algorithm       *string        `json:"algorithm,omitempty"`
	Hyperparameters map[string]any `json:"hyperparameters,omitempty"`
}

// ConfigPatch is a partial update to PipelineConfig. Nil sections and nil
// fields leave the existing values untouched.
type ConfigPatch struct {
	Preprocessing *PreprocessingPatch `json:"preprocessing,omitempty"`
	Imbalance     *ImbalancePatch     `json:"imbalance,omitempty"`
	Model         *ModelPatch         `json:"model,omitempty"`
}

// Empty reports whether the patch carries no changes at all.
func (p ConfigPatch) Empty() bool {
	return p.Preprocessing == nil && p.Imbalance == nil && p.Model == nil
}

// MergeConfig applies a patch to a config field-by-field and returns the
// result. Unspecified fields keep their current values; map-valued fields
// merge per key.
func MergeConfig(cfg PipelineConfig, p ConfigPatch) PipelineConfig {
	if p.Preprocessing != nil {
		if p.Preprocessing.Scaling != nil {
			cfg.Preprocessing.Scaling = *p.Preprocessing.Scaling
		}
		if p.Preprocessing.Encoding != nil {
			cfg.Preprocessing.Encoding = *p.Preprocessing.Encoding
		}
		if p.Preprocessing.SplitRatio != nil {
			cfg.Preprocessing.SplitRatio = *p.Preprocessing.SplitRatio
		}
	}
	if p.Imbalance != nil {
		if p.Imbalance.Technique != nil {
			cfg.Imbalance.Technique = *p.Imbalance.Technique
		}
		cfg.Imbalance.Params = mergeMap(cfg.Imbalance.Params, p.Imbalance.Params)
	}
	if p.Model != nil {
		if p.Model.Algorithm != nil {
			cfg.Model.Algorithm = *p.Model.Algorithm
		}
		cfg.Model.Hyperparameters = mergeMap(cfg.Model.Hyperparameters, p.Model.Hyperparameters)
	}
	return cfg
}

// mergeMap overlays patch entries onto a copy of base. The base map is never
// mutated so callers can hold the pre-merge config safely.
func mergeMap(base, patch map[string]any) map[string]any {
	if len(patch) == 0 {
		return base
	}
	merged := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}
