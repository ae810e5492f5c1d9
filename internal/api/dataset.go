package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AhsanAkhlaq/skewplay/internal/model"
)

const (
	maxBodySize = 1 << 20 // 1 MB for JSON bodies

	// The transport cap must never reject a file the quota could admit, so
	// it sits above the largest tier limit with room for multipart framing.
	maxUploadSize = model.StorageLimitAdvanced + (1 << 20)
)

// listDatasetsResponse wraps the merged owned-plus-samples listing.
type listDatasetsResponse struct {
	Datasets []*model.Dataset `json:"datasets"`
	Total    int              `json:"total"`
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.datasets.List(r.Context(), s.session(r))
	if err != nil {
		s.writeDomainError(w, err, "failed to list datasets")
		return
	}
	if datasets == nil {
		datasets = []*model.Dataset{}
	}
	s.writeJSON(w, http.StatusOK, listDatasetsResponse{Datasets: datasets, Total: len(datasets)})
}

func (s *Server) handleListSamples(w http.ResponseWriter, r *http.Request) {
	samples, err := s.datasets.Samples(r.Context())
	if err != nil {
		s.writeDomainError(w, err, "failed to list samples")
		return
	}
	if samples == nil {
		samples = []*model.Dataset{}
	}
	s.writeJSON(w, http.StatusOK, listDatasetsResponse{Datasets: samples, Total: len(samples)})
}

func (s *Server) handleUploadDataset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		s.writeError(w, http.StatusBadRequest, "uploaded file has no name")
		return
	}

	d, err := s.datasets.Upload(r.Context(), s.session(r), header.Filename, header.Size, file, r.FormValue("target_col"))
	if err != nil {
		s.writeDomainError(w, err, "failed to upload dataset")
		return
	}
	s.writeJSON(w, http.StatusCreated, d)
}

// renameDatasetRequest is the JSON body for PATCH /v1/datasets/{id}.
type renameDatasetRequest struct {
	FileName string `json:"file_name"`
}

func (s *Server) handleRenameDataset(w http.ResponseWriter, r *http.Request) {
	var req renameDatasetRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.FileName == "" {
		s.writeError(w, http.StatusBadRequest, "file_name is required")
		return
	}

	d, err := s.datasets.Rename(r.Context(), s.session(r), chi.URLParam(r, "id"), req.FileName)
	if err != nil {
		s.writeDomainError(w, err, "failed to rename dataset")
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

// reanalyzeDatasetRequest is the JSON body for POST /v1/datasets/{id}/reanalyze.
type reanalyzeDatasetRequest struct {
	TargetCol string `json:"target_col"`
}

func (s *Server) handleReanalyzeDataset(w http.ResponseWriter, r *http.Request) {
	var req reanalyzeDatasetRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TargetCol == "" {
		s.writeError(w, http.StatusBadRequest, "target_col is required")
		return
	}

	d, err := s.datasets.Reanalyze(r.Context(), s.session(r), chi.URLParam(r, "id"), req.TargetCol)
	if err != nil {
		s.writeDomainError(w, err, "failed to reanalyze dataset")
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDatasetDetails(w http.ResponseWriter, r *http.Request) {
	payload, err := s.datasets.Details(r.Context(), s.session(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get dataset details")
		return
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleDatasetEDA(w http.ResponseWriter, r *http.Request) {
	payload, err := s.datasets.EDA(r.Context(), s.session(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to run exploratory analysis")
		return
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := s.datasets.Delete(r.Context(), s.session(r), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err, "failed to delete dataset")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
