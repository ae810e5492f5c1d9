package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Workflows      int            `json:"workflows"`
	ByStatus       map[string]int `json:"by_status"`
	Datasets       int            `json:"datasets"`
	DatasetBytes   int64          `json:"dataset_bytes"`
	AvgExecSeconds float64        `json:"avg_exec_seconds"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	uid, err := s.session(r).UserID()
	if err != nil {
		s.writeDomainError(w, err, "failed to get stats")
		return
	}

	stats, err := s.store.GetStats(r.Context(), uid)
	if err != nil {
		s.writeDomainError(w, err, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Workflows:      stats.Workflows,
		ByStatus:       stats.WorkflowsByStatus,
		Datasets:       stats.Datasets,
		DatasetBytes:   stats.DatasetBytes,
		AvgExecSeconds: stats.AvgExecSeconds,
	})
}
