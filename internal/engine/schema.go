package engine

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Engine response schemas. The engine is a separate service with its own
// release cadence; validating here keeps loosely-shaped payloads from
// leaking into the core.
const analysisSchema = `{
	"type": "object",
	"required": ["type", "targetCol", "imbalanceRatios", "anomalies", "rowCount"],
	"properties": {
		"type": {"enum": ["binary", "multiclass", "regression"]},
		"targetCol": {"type": "string"},
		"imbalanceRatios": {
			"type": "object",
			"additionalProperties": {"type": "number"}
		},
		"anomalies": {
			"type": "array",
			"items": {"type": "string"}
		},
		"rowCount": {"type": "integer", "minimum": 0}
	}
}`

const uploadSchema = `{
	"type": "object",
	"required": ["fileName", "storagePath", "sizeBytes", "type", "targetCol", "imbalanceRatios", "anomalies", "rowCount"],
	"properties": {
		"fileName": {"type": "string", "minLength": 1},
		"storagePath": {"type": "string", "minLength": 1},
		"sizeBytes": {"type": "integer", "minimum": 0},
		"type": {"enum": ["binary", "multiclass", "regression"]},
		"targetCol": {"type": "string"},
		"imbalanceRatios": {
			"type": "object",
			"additionalProperties": {"type": "number"}
		},
		"anomalies": {
			"type": "array",
			"items": {"type": "string"}
		},
		"rowCount": {"type": "integer", "minimum": 0}
	}
}`

const runSchema = `{
	"type": "object",
	"required": ["results", "artifacts"],
	"properties": {
		"results": {
			"type": "object",
			"required": ["accuracy", "f1", "precision", "recall", "execTimeSeconds"],
			"properties": {
				"accuracy": {"type": "number"},
				"f1": {"type": "number"},
				"precision": {"type": "number"},
				"recall": {"type": "number"},
				"execTimeSeconds": {"type": "number"}
			}
		},
		"artifacts": {
			"type": "object",
			"properties": {
				"processedPath": {"type": "string"},
				"balancedPath": {"type": "string"},
				"modelPath": {"type": "string"},
				"reportUrl": {"type": "string"}
			}
		}
	}
}`

const samplesSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["fileName", "storagePath", "sizeBytes"],
		"properties": {
			"fileName": {"type": "string", "minLength": 1},
			"storagePath": {"type": "string", "minLength": 1},
			"sizeBytes": {"type": "integer", "minimum": 0}
		}
	}
}`

// responseSchemas holds the compiled schema per endpoint.
type responseSchemas struct {
	upload    *jsonschema.Schema
	reanalyze *jsonschema.Schema
	run       *jsonschema.Schema
	samples   *jsonschema.Schema
}

func compileSchemas() (*responseSchemas, error) {
	c := jsonschema.NewCompiler()
	sources := map[string]string{
		"urn:skewplay:upload":    uploadSchema,
		"urn:skewplay:reanalyze": analysisSchema,
		"urn:skewplay:run":       runSchema,
		"urn:skewplay:samples":   samplesSchema,
	}
	for url, src := range sources {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", url, err)
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", url, err)
		}
	}

	rs := &responseSchemas{}
	var err error
	if rs.upload, err = c.Compile("urn:skewplay:upload"); err != nil {
		return nil, fmt.Errorf("compile upload schema: %w", err)
	}
	if rs.reanalyze, err = c.Compile("urn:skewplay:reanalyze"); err != nil {
		return nil, fmt.Errorf("compile reanalyze schema: %w", err)
	}
	if rs.run, err = c.Compile("urn:skewplay:run"); err != nil {
		return nil, fmt.Errorf("compile run schema: %w", err)
	}
	if rs.samples, err = c.Compile("urn:skewplay:samples"); err != nil {
		return nil, fmt.Errorf("compile samples schema: %w", err)
	}
	return rs, nil
}

// validate checks a raw response body against a schema.
func validate(sch *jsonschema.Schema, body []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrBadResponse, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}
