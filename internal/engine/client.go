package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/AhsanAkhlaq/skewplay/internal/model"
)

const maxResponseBytes = 8 << 20 // 8 MB

// HTTPClientOptions configures an HTTPClient. Zero values pick defaults.
type HTTPClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// HTTPClient talks to the compute engine over HTTP with multipart form
// requests, as the engine expects.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	schemas    *responseSchemas
}

// Compile-time interface satisfaction check.
var _ Engine = (*HTTPClient)(nil)

// NewHTTPClient creates a compute engine client.
func NewHTTPClient(opts HTTPClientOptions) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	schemas, err := compileSchemas()
	if err != nil {
		return nil, fmt.Errorf("compile response schemas: %w", err)
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		schemas:    schemas,
	}, nil
}

// Wire shapes use the engine's camelCase field names; they never leave this
// package untranslated.
type wireAnalysis struct {
	Type            string             `json:"type"`
	TargetCol       string             `json:"targetCol"`
	ImbalanceRatios map[string]float64 `json:"imbalanceRatios"`
	Anomalies       []string           `json:"anomalies"`
	RowCount        int                `json:"rowCount"`
}

type wireUpload struct {
	wireAnalysis
	FileName    string `json:"fileName"`
	StoragePath string `json:"storagePath"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type wireRun struct {
	Results struct {
		Accuracy        float64 `json:"accuracy"`
		F1              float64 `json:"f1"`
		Precision       float64 `json:"precision"`
		Recall          float64 `json:"recall"`
		ExecTimeSeconds float64 `json:"execTimeSeconds"`
	} `json:"results"`
	Artifacts struct {
		ProcessedPath string `json:"processedPath"`
		BalancedPath  string `json:"balancedPath"`
		ModelPath     string `json:"modelPath"`
		ReportURL     string `json:"reportUrl"`
	} `json:"artifacts"`
}

// Upload sends a dataset file for storage and analysis.
func (c *HTTPClient) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", req.FileName)
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(fw, req.Content); err != nil {
		return nil, fmt.Errorf("copy upload content: %w", err)
	}
	fields := map[string]string{"userId": req.UserID}
	if req.TargetCol != "" {
		fields["targetCol"] = req.TargetCol
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finish upload form: %w", err)
	}

	body, err := c.post(ctx, "/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	if err := validate(c.schemas.upload, body); err != nil {
		return nil, err
	}

	var wire wireUpload
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return &UploadResult{
		FileName:    wire.FileName,
		StoragePath: wire.StoragePath,
		SizeBytes:   wire.SizeBytes,
		Analysis:    wire.wireAnalysis.toModel(),
	}, nil
}

// Reanalyze recomputes a stored file's analysis with a new target column.
func (c *HTTPClient) Reanalyze(ctx context.Context, userID, fileName, targetCol string) (*model.Analysis, error) {
	body, err := c.postFields(ctx, "/reanalyze", map[string]string{
		"userId":    userID,
		"fileName":  fileName,
		"targetCol": targetCol,
	})
	if err != nil {
		return nil, err
	}
	if err := validate(c.schemas.reanalyze, body); err != nil {
		return nil, err
	}

	var wire wireAnalysis
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	analysis := wire.toModel()
	return &analysis, nil
}

// Run executes a configured pipeline and blocks until the engine responds.
func (c *HTTPClient) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	config, err := json.Marshal(req.Config)
	if err != nil {
		return nil, fmt.Errorf("encode pipeline config: %w", err)
	}

	body, err := c.postFields(ctx, "/run", map[string]string{
		"fileName":  req.FileName,
		"targetCol": req.TargetCol,
		"config":    string(config),
	})
	if err != nil {
		return nil, err
	}
	if err := validate(c.schemas.run, body); err != nil {
		return nil, err
	}

	var wire wireRun
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return &RunResult{
		Results: model.RunResults{
			Accuracy:        wire.Results.Accuracy,
			F1:              wire.Results.F1,
			Precision:       wire.Results.Precision,
			Recall:          wire.Results.Recall,
			ExecTimeSeconds: wire.Results.ExecTimeSeconds,
		},
		Artifacts: model.RunArtifacts{
			ProcessedPath: wire.Artifacts.ProcessedPath,
			BalancedPath:  wire.Artifacts.BalancedPath,
			ModelPath:     wire.Artifacts.ModelPath,
			ReportURL:     wire.Artifacts.ReportURL,
		},
	}, nil
}

// Samples lists the global sample dataset descriptors.
func (c *HTTPClient) Samples(ctx context.Context) ([]Sample, error) {
	body, err := c.get(ctx, "/samples")
	if err != nil {
		return nil, err
	}
	if err := validate(c.schemas.samples, body); err != nil {
		return nil, err
	}

	var wire []wireUpload
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	samples := make([]Sample, 0, len(wire))
	for _, w := range wire {
		samples = append(samples, Sample{
			FileName:    w.FileName,
			StoragePath: w.StoragePath,
			SizeBytes:   w.SizeBytes,
			Analysis:    w.wireAnalysis.toModel(),
		})
	}
	return samples, nil
}

// DatasetDetails fetches the engine's descriptive payload for a file.
func (c *HTTPClient) DatasetDetails(ctx context.Context, userID, fileName string) (json.RawMessage, error) {
	return c.postFields(ctx, "/dataset-details", map[string]string{
		"userId":   userID,
		"fileName": fileName,
	})
}

// PerformEDA fetches the engine's exploratory analysis payload for a file.
func (c *HTTPClient) PerformEDA(ctx context.Context, userID, fileName string) (json.RawMessage, error) {
	return c.postFields(ctx, "/perform-eda", map[string]string{
		"userId":   userID,
		"fileName": fileName,
	})
}

func (w wireAnalysis) toModel() model.Analysis {
	return model.Analysis{
		Type:            w.Type,
		TargetColumn:    w.TargetCol,
		ImbalanceRatios: w.ImbalanceRatios,
		Anomalies:       w.Anomalies,
		RowCount:        w.RowCount,
	}
}

// postFields posts a multipart form containing only text fields.
func (c *HTTPClient) postFields(ctx context.Context, path string, fields map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finish form: %w", err)
	}
	return c.post(ctx, path, mw.FormDataContentType(), &buf)
}

func (c *HTTPClient) post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req)
}

func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("engine %s %s: status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
