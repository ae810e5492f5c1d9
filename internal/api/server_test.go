package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AhsanAkhlaq/skewplay/internal/dataset"
	"github.com/AhsanAkhlaq/skewplay/internal/engine"
	"github.com/AhsanAkhlaq/skewplay/internal/model"
	"github.com/AhsanAkhlaq/skewplay/internal/quota"
	"github.com/AhsanAkhlaq/skewplay/internal/store"
	"github.com/AhsanAkhlaq/skewplay/internal/sync"
	"github.com/AhsanAkhlaq/skewplay/internal/workflow"
)

// stubEngine is an in-memory compute engine for API tests.
type stubEngine struct {
	runDelay time.Duration
	runErr   error
}

func (e *stubEngine) Upload(_ context.Context, req engine.UploadRequest) (*engine.UploadResult, error) {
	size, err := io.Copy(io.Discard, req.Content)
	if err != nil {
		return nil, err
	}
	return &engine.UploadResult{
		FileName:    req.FileName,
		StoragePath: "http://engine/uploads/20240101_" + req.FileName,
		SizeBytes:   size,
		Analysis: model.Analysis{
			Type:            model.AnalysisBinary,
			TargetColumn:    req.TargetCol,
			ImbalanceRatios: map[string]float64{"0": 0.9, "1": 0.1},
			RowCount:        100,
		},
	}, nil
}

func (e *stubEngine) Reanalyze(_ context.Context, _, _, targetCol string) (*model.Analysis, error) {
	return &model.Analysis{Type: model.AnalysisMulticlass, TargetColumn: targetCol, RowCount: 100}, nil
}

func (e *stubEngine) Run(ctx context.Context, _ engine.RunRequest) (*engine.RunResult, error) {
	select {
	case <-time.After(e.runDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.runErr != nil {
		return nil, e.runErr
	}
	return &engine.RunResult{
		Results:   model.RunResults{Accuracy: 0.91, F1: 0.89, Precision: 0.9, Recall: 0.88, ExecTimeSeconds: 3.2},
		Artifacts: model.RunArtifacts{ModelPath: "m.pkl"},
	}, nil
}

func (e *stubEngine) Samples(_ context.Context) ([]engine.Sample, error) {
	return []engine.Sample{{
		FileName:    "iris.csv",
		StoragePath: "http://engine/samples/iris.csv",
		SizeBytes:   4096,
		Analysis:    model.Analysis{Type: model.AnalysisMulticlass, TargetColumn: "species", RowCount: 150},
	}}, nil
}

func (e *stubEngine) DatasetDetails(_ context.Context, _, _ string) (json.RawMessage, error) {
	return json.RawMessage(`{"columns":["a","b"]}`), nil
}

func (e *stubEngine) PerformEDA(_ context.Context, _, _ string) (json.RawMessage, error) {
	return json.RawMessage(`{"charts":[]}`), nil
}

type testServer struct {
	srv    *Server
	http   *httptest.Server
	store  *store.SQLiteStore
	engine *stubEngine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	eng := &stubEngine{}
	ledger := quota.NewLedger(s, logger)
	datasets := dataset.NewRegistry(s, ledger, eng, logger)
	machine := workflow.NewMachine(s, datasets, logger)
	orchestrator := workflow.NewOrchestrator(s, datasets, eng, logger, 5*time.Second)
	broker := sync.NewBroker()
	s.SetNotify(sync.NewFeed(s, broker, logger).Notify)

	srv := NewServer(":0", s, datasets, machine, orchestrator, broker, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	t.Cleanup(orchestrator.Wait)

	return &testServer{srv: srv, http: ts, store: s, engine: eng}
}

func (ts *testServer) createUser(t *testing.T, uid, tier string) {
	t.Helper()
	err := ts.store.CreateUser(context.Background(), &model.UserProfile{UID: uid, Tier: tier})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
}

// do sends a JSON request with the identity header set.
func (ts *testServer) do(t *testing.T, method, path, uid string, body any) *http.Response {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.http.URL+path, buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if uid != "" {
		req.Header.Set(userIDHeader, uid)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// upload sends a multipart dataset upload of the given payload size.
func (ts *testServer) upload(t *testing.T, uid, fileName string, size int, targetCol string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(bytes.Repeat([]byte("x"), size)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if targetCol != "" {
		if err := mw.WriteField("target_col", targetCol); err != nil {
			t.Fatalf("write target_col: %v", err)
		}
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, ts.http.URL+"/v1/datasets", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(userIDHeader, uid)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.http.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody[healthResponse](t, resp)
	if body.Status != "ok" || body.Service != serviceName {
		t.Errorf("health payload = %+v, want ok from %s", body, serviceName)
	}
}

func TestPanicRecovery(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.Router().Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	resp, err := http.Get(ts.http.URL + "/panic")
	if err != nil {
		t.Fatalf("GET /panic: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestCORSHeaders(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.http.URL+"/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /healthz: %v", err)
	}
	defer resp.Body.Close()

	if v := resp.Header.Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", v, "*")
	}
}

func TestUnknownUserRejected(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/v1/datasets", "ghost", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for unknown uid", resp.StatusCode)
	}
}

func TestMissingIdentityRejected(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/v1/profile", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without identity header", resp.StatusCode)
	}
}

var errEngineDown = errors.New("engine down")
