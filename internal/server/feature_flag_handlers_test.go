package server

import (
	"net/http"
	"testing"

	"atrium/internal/featureflags"
)

func TestJoinClubHandlerKillSwitch(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	s.featureFlags = featureflags.NewManager("disable_joins=on")

	owner := createTestUser(t, s.db, false)
	member := createTestUser(t, s.db, false)
	club := createTestClub(t, s.db, owner.ID)
	tier := createTestTier(t, s.db, club.ID, "Gold", 1500)

	app := testApp(member.ID, false)
	app.Post("/api/clubs/:id/join", s.JoinClub)

	target := "/api/clubs/" + itoa(club.ID) + "/join"
	resp, err := app.Test(jsonRequest(t, http.MethodPost, target, map[string]any{"tier_id": tier.ID}))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestGetFeatureFlagsHandler(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	s.featureFlags = featureflags.NewManager("disable_joins=off,batch_gating=100%")

	user := createTestUser(t, s.db, false)
	app := testApp(user.ID, false)
	app.Get("/api/flags", s.GetFeatureFlags)

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/api/flags", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Raw       map[string]string `json:"raw"`
		Evaluated map[string]bool   `json:"evaluated"`
	}
	decodeBody(t, resp, &body)
	if body.Raw["batch_gating"] != "100%" {
		t.Fatalf("unexpected raw flags: %+v", body.Raw)
	}
	if !body.Evaluated["batch_gating"] || body.Evaluated["disable_joins"] {
		t.Fatalf("unexpected evaluation: %+v", body.Evaluated)
	}
}
