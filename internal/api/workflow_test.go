package api

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/AhsanAkhlaq/skewplay/internal/model"
)

func workflowBody(name, datasetID string) map[string]any {
	return map[string]any{
		"name":       name,
		"dataset_id": datasetID,
		"config": map[string]any{
			"preprocessing": map[string]any{"scaling": "standard", "encoding": "onehot", "split_ratio": 0.8},
			"imbalance":     map[string]any{"technique": "smote"},
			"model":         map[string]any{"algorithm": "random_forest"},
		},
	}
}

// waitForWorkflowStatus polls the API until the workflow reaches the wanted
// status or the deadline passes.
func waitForWorkflowStatus(t *testing.T, ts *testServer, uid, id, want string) model.Workflow {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last model.Workflow
	for time.Now().Before(deadline) {
		last = decodeBody[model.Workflow](t, ts.do(t, http.MethodGet, "/v1/workflows/"+id, uid, nil))
		if last.Status == want {
			return last
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("workflow %s never reached %q, stuck at %q", id, want, last.Status)
	return last
}

func TestCreateWorkflow(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1", model.TierBasic)
	d := decodeBody[model.Dataset](t, ts.upload(t, "u1", "churn.csv", 100, "churned"))

	resp := ts.do(t, http.MethodPost, "/v1/workflows", "u1", workflowBody("baseline", d.ID))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	wf := decodeBody[model.Workflow](t, resp)
	if wf.Status != model.StatusDraft || wf.DatasetID != d.ID {
		t.Errorf("workflow = %+v", wf)
	}
}

func TestCreateWorkflowTierLimit(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1", model.TierBasic)

	for i := 0; i < model.WorkflowLimitBasic; i++ {
		resp := ts.do(t, http.MethodPost, "/v1/workflows", "u1", workflowBody(fmt.Sprintf("w%d", i), ""))
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create %d: status = %d", i, resp.StatusCode)
		}
	}

	resp := ts.do(t, http.MethodPost, "/v1/workflows", "u1", workflowBody("overflow", ""))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403 at the tier limit", resp.StatusCode)
	}
}

func TestUpdateWorkflowConfigMerge(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1", model.TierBasic)
	wf := decodeBody[model.Workflow](t, ts.do(t, http.MethodPost, "/v1/workflows", "u1", workflowBody("baseline", "")))

	patch := map[string]any{"imbalance": map[string]any{"technique": "adasyn"}}
	updated := decodeBody[model.Workflow](t, ts.do(t, http.MethodPatch, "/v1/workflows/"+wf.ID+"/config", "u1", patch))
	if updated.Config.Imbalance.Technique != model.TechniqueADASYN {
		t.Errorf("technique = %q, want adasyn", updated.Config.Imbalance.Technique)
	}
	if updated.Config.Model.Algorithm != model.AlgorithmRandomForest {
		t.Error("unpatched config section was overwritten")
	}
	if updated.Config.Preprocessing.SplitRatio != 0.8 {
		t.Error("unpatched split ratio was overwritten")
	}
}

func TestUpdateWorkflowRenameAndBind(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1", model.TierBasic)
	d := decodeBody[model.Dataset](t, ts.upload(t, "u1", "churn.csv", 100, "churned"))
	wf := decodeBody[model.Workflow](t, ts.do(t, http.MethodPost, "/v1/workflows", "u1", workflowBody("old name", "")))

	updated := decodeBody[model.Workflow](t, ts.do(t, http.MethodPatch, "/v1/workflows/"+wf.ID, "u1",
		map[string]any{"name": "new name", "dataset_id": d.ID}))
	if updated.Name != "new name" || updated.DatasetID != d.ID {
		t.Errorf("workflow = %+v", updated)
	}
}

func TestRunWorkflowCompletes(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1", model.TierBasic)
	d := decodeBody[model.Dataset](t, ts.upload(t, "u1", "churn.csv", 100, "churned"))
	wf := decodeBody[model.Workflow](t, ts.do(t, http.MethodPost, "/v1/workflows", "u1", workflowBody("baseline", d.ID)))

	resp := ts.do(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/run", "u1", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	started := decodeBody[model.Workflow](t, resp)
	if !model.RunInFlight(started.Status) {
		t.Errorf("status = %q, want an in-flight status", started.Status)
	}

	done := waitForWorkflowStatus(t, ts, "u1", wf.ID, model.StatusCompleted)
	if done.Results == nil || done.Results.Accuracy != 0.91 {
		t.Errorf("results = %+v", done.Results)
	}
	if done.Artifacts == nil || done.Artifacts.ModelPath != "m.pkl" {
		t.Errorf("artifacts = %+v", done.Artifacts)
	}
}

func TestRunWorkflowWithoutDatasetRejected(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1", model.TierBasic)
	wf := decodeBody[model.Workflow](t, ts.do(t, http.MethodPost, "/v1/workflows", "u1", workflowBody("no data", "")))

	resp := ts.do(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/run", "u1", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestRunWorkflowTwiceConflicts(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.runDelay = 300 * time.Millisecond
	ts.createUser(t, "u1", model.TierBasic)
	d := decodeBody[model.Dataset](t, ts.upload(t, "u1", "churn.csv", 100, "churned"))
	wf := decodeBody[model.Workflow](t, ts.do(t, http.MethodPost, "/v1/workflows", "u1", workflowBody("baseline", d.ID)))

	first := ts.do(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/run", "u1", nil)
	first.Body.Close()
	if first.StatusCode != http.StatusAccepted {
		t.Fatalf("first run: status = %d", first.StatusCode)
	}

	second := ts.do(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/run", "u1", nil)
	defer second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Errorf("second run: status = %d, want 409", second.StatusCode)
	}
}

func TestRunWorkflowEngineFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.runErr = errEngineDown
	ts.createUser(t, "u1", model.TierBasic)
	d := decodeBody[model.Dataset](t, ts.upload(t, "u1", "churn.csv", 100, "churned"))
	wf := decodeBody[model.Workflow](t, ts.do(t, http.MethodPost, "/v1/workflows", "u1", workflowBody("doomed", d.ID)))

	resp := ts.do(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/run", "u1", nil)
	resp.Body.Close()

	done := waitForWorkflowStatus(t, ts, "u1", wf.ID, model.StatusFailed)
	if done.Error == "" {
		t.Error("failed run lost its error message")
	}
	if done.Config.Model.Algorithm != model.AlgorithmRandomForest {
		t.Error("config changed across failed run")
	}
}

func TestTransitionCompletedRejected(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1", model.TierBasic)
	wf := decodeBody[model.Workflow](t, ts.do(t, http.MethodPost, "/v1/workflows", "u1", workflowBody("baseline", "")))

	resp := ts.do(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/transition", "u1", map[string]string{"status": model.StatusCompleted})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409 for direct completed", resp.StatusCode)
	}
}

func TestDeleteWorkflow(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1", model.TierBasic)
	wf := decodeBody[model.Workflow](t, ts.do(t, http.MethodPost, "/v1/workflows", "u1", workflowBody("doomed", "")))

	resp := ts.do(t, http.MethodDelete, "/v1/workflows/"+wf.ID, "u1", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	getResp := ts.do(t, http.MethodGet, "/v1/workflows/"+wf.ID, "u1", nil)
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 after delete", getResp.StatusCode)
	}
}
