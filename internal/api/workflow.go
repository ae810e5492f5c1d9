package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AhsanAkhlaq/skewplay/internal/model"
)

// createWorkflowRequest is the JSON body for POST /v1/workflows.
type createWorkflowRequest struct {
	Name      string               `json:"name"`
	DatasetID string               `json:"dataset_id"`
	Config    model.PipelineConfig `json:"config"`
}

// listWorkflowsResponse wraps the workflow listing.
type listWorkflowsResponse struct {
	Workflows []*model.Workflow `json:"workflows"`
	Total     int               `json:"total"`
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	wf, err := s.machine.Create(r.Context(), s.session(r), req.Name, req.DatasetID, req.Config)
	if err != nil {
		s.writeDomainError(w, err, "failed to create workflow")
		return
	}
	s.writeJSON(w, http.StatusCreated, wf)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.machine.List(r.Context(), s.session(r))
	if err != nil {
		s.writeDomainError(w, err, "failed to list workflows")
		return
	}
	if workflows == nil {
		workflows = []*model.Workflow{}
	}
	s.writeJSON(w, http.StatusOK, listWorkflowsResponse{Workflows: workflows, Total: len(workflows)})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.machine.Get(r.Context(), s.session(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get workflow")
		return
	}
	s.writeJSON(w, http.StatusOK, wf)
}

// updateWorkflowRequest is the JSON body for PATCH /v1/workflows/{id}.
// Omitted fields are left unchanged.
type updateWorkflowRequest struct {
	Name      *string `json:"name"`
	DatasetID *string `json:"dataset_id"`
}

func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req updateWorkflowRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == nil && req.DatasetID == nil {
		s.writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	id := chi.URLParam(r, "id")
	sess := s.session(r)
	var (
		wf  *model.Workflow
		err error
	)
	if req.Name != nil {
		if *req.Name == "" {
			s.writeError(w, http.StatusBadRequest, "name must not be empty")
			return
		}
		wf, err = s.machine.Rename(r.Context(), sess, id, *req.Name)
		if err != nil {
			s.writeDomainError(w, err, "failed to rename workflow")
			return
		}
	}
	if req.DatasetID != nil {
		wf, err = s.machine.BindDataset(r.Context(), sess, id, *req.DatasetID)
		if err != nil {
			s.writeDomainError(w, err, "failed to bind dataset")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleUpdateWorkflowConfig(w http.ResponseWriter, r *http.Request) {
	var patch model.ConfigPatch
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if patch.Empty() {
		s.writeError(w, http.StatusBadRequest, "empty config patch")
		return
	}

	wf, err := s.machine.UpdateConfig(r.Context(), s.session(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeDomainError(w, err, "failed to update config")
		return
	}
	s.writeJSON(w, http.StatusOK, wf)
}

// transitionWorkflowRequest is the JSON body for POST /v1/workflows/{id}/transition.
type transitionWorkflowRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleTransitionWorkflow(w http.ResponseWriter, r *http.Request) {
	var req transitionWorkflowRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Status == "" {
		s.writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	wf, err := s.machine.Transition(r.Context(), s.session(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.writeDomainError(w, err, "failed to transition workflow")
		return
	}
	s.writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.orchestrator.Start(r.Context(), s.session(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to start run")
		return
	}
	// The run continues in the background; the response carries the
	// workflow already marked in flight.
	s.writeJSON(w, http.StatusAccepted, wf)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.machine.Delete(r.Context(), s.session(r), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err, "failed to delete workflow")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
