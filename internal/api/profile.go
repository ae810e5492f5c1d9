package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AhsanAkhlaq/skewplay/internal/model"
	"github.com/AhsanAkhlaq/skewplay/internal/store"
)

// registerProfileRequest is the JSON body for POST /v1/profile. The uid comes
// from the identity header, so registration needs no body uid field.
type registerProfileRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Tier        string `json:"tier"`
}

func (s *Server) handleRegisterProfile(w http.ResponseWriter, r *http.Request) {
	uid := r.Header.Get(userIDHeader)
	if uid == "" {
		s.writeError(w, http.StatusBadRequest, "X-User-Id header is required")
		return
	}

	var req registerProfileRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Tier == "" {
		req.Tier = model.TierBasic
	}
	if req.Tier != model.TierBasic && req.Tier != model.TierAdvanced {
		s.writeError(w, http.StatusBadRequest, "tier must be basic or advanced")
		return
	}

	if _, err := s.store.GetUser(r.Context(), uid); err == nil {
		s.writeError(w, http.StatusConflict, "profile already exists")
		return
	} else if !errors.Is(err, store.ErrUserNotFound) {
		s.writeDomainError(w, err, "failed to check profile")
		return
	}

	profile := &model.UserProfile{
		UID:         uid,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Tier:        req.Tier,
	}
	if err := s.store.CreateUser(r.Context(), profile); err != nil {
		s.writeDomainError(w, err, "failed to create profile")
		return
	}
	s.writeJSON(w, http.StatusCreated, profile)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.session(r).Profile()
	if err != nil {
		s.writeDomainError(w, err, "failed to get profile")
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}
