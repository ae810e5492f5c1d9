package api

import (
	"encoding/json"
	"net/http"
)

// serviceName identifies the service in the health payload so probes
// pointed at the wrong deployment fail loudly.
const serviceName = "skewplay"

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(healthResponse{Status: "ok", Service: serviceName}); err != nil {
		s.logger.Error("encode healthz response", "error", err)
	}
}
