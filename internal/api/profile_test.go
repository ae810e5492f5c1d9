package api

import (
	"net/http"
	"testing"

	"github.com/AhsanAkhlaq/skewplay/internal/model"
)

func TestRegisterProfile(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/v1/profile", "u1", map[string]string{
		"email":        "u1@example.com",
		"display_name": "User One",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	created := decodeBody[model.UserProfile](t, resp)
	if created.UID != "u1" || created.Tier != model.TierBasic {
		t.Errorf("profile = %+v, want basic tier default", created)
	}

	// Registration is one-shot.
	dup := ts.do(t, http.MethodPost, "/v1/profile", "u1", map[string]string{"email": "u1@example.com"})
	defer dup.Body.Close()
	if dup.StatusCode != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", dup.StatusCode)
	}
}

func TestRegisterProfileRejectsBadTier(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/v1/profile", "u1", map[string]string{"tier": "platinum"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetProfile(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "u1", model.TierAdvanced)

	profile := decodeBody[model.UserProfile](t, ts.do(t, http.MethodGet, "/v1/profile", "u1", nil))
	if profile.UID != "u1" || profile.Tier != model.TierAdvanced {
		t.Errorf("profile = %+v", profile)
	}
}
