package server

import (
	"net/http"
	"testing"

	"atrium/internal/ledger"
	"atrium/internal/models"
)

func TestCreateClubHandler(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	owner := createTestUser(t, s.db, false)

	app := testApp(owner.ID, false)
	app.Post("/api/clubs", s.CreateClub)

	body := map[string]any{
		"name":        "Night Owls Painting",
		"description": "Late night painting sessions",
		"tiers": []map[string]any{
			{"name": "Gold", "price_cents": 1500, "joinable": true},
			{"name": "Silver", "price_cents": 500, "joinable": true},
		},
	}
	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/clubs", body))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var club models.Club
	decodeBody(t, resp, &club)
	if club.Slug != "night-owls-painting" {
		t.Fatalf("expected slug night-owls-painting, got %s", club.Slug)
	}
	if club.OwnerUserID != owner.ID {
		t.Fatalf("expected owner %d, got %d", owner.ID, club.OwnerUserID)
	}

	var tierCount int64
	if err := s.db.Model(&models.ClubTier{}).Where("club_id = ?", club.ID).Count(&tierCount).Error; err != nil {
		t.Fatalf("count tiers: %v", err)
	}
	if tierCount != 2 {
		t.Fatalf("expected 2 tiers, got %d", tierCount)
	}
}

func TestCreateClubHandlerRejectsBadBody(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	owner := createTestUser(t, s.db, false)

	app := testApp(owner.ID, false)
	app.Post("/api/clubs", s.CreateClub)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/clubs", map[string]any{"name": ""}))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetClubBySlugHandler(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	owner := createTestUser(t, s.db, false)
	club := createTestClub(t, s.db, owner.ID)

	app := testApp(0, false)
	app.Get("/api/clubs/:slug", s.GetClubBySlug)

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/api/clubs/"+club.Slug, nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var got models.Club
	decodeBody(t, resp, &got)
	if got.ID != club.ID {
		t.Fatalf("expected club %d, got %d", club.ID, got.ID)
	}

	resp, err = app.Test(jsonRequest(t, http.MethodGet, "/api/clubs/no-such-club", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestJoinClubHandler(t *testing.T) {
	t.Parallel()

	s, ledgerMock := newTestServer(t)
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
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var membership models.ClubMembership
	decodeBody(t, resp, &membership)
	if membership.Status != models.ClubMembershipStatusActive {
		t.Fatalf("expected active membership, got %s", membership.Status)
	}

	if len(ledgerMock.Debits) != 1 {
		t.Fatalf("expected 1 ledger debit, got %d", len(ledgerMock.Debits))
	}
	if ledgerMock.Debits[0].AmountCents != 1500 {
		t.Fatalf("expected 1500 cents debited, got %d", ledgerMock.Debits[0].AmountCents)
	}
}

func TestJoinClubHandlerRequiresTier(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	owner := createTestUser(t, s.db, false)
	member := createTestUser(t, s.db, false)
	club := createTestClub(t, s.db, owner.ID)

	app := testApp(member.ID, false)
	app.Post("/api/clubs/:id/join", s.JoinClub)

	target := "/api/clubs/" + itoa(club.ID) + "/join"
	resp, err := app.Test(jsonRequest(t, http.MethodPost, target, map[string]any{}))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUpdateClubHandlerForbidsStranger(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	owner := createTestUser(t, s.db, false)
	stranger := createTestUser(t, s.db, false)
	club := createTestClub(t, s.db, owner.ID)

	app := testApp(stranger.ID, false)
	app.Put("/api/clubs/:id", s.UpdateClub)

	name := "Renamed"
	target := "/api/clubs/" + itoa(club.ID)
	resp, err := app.Test(jsonRequest(t, http.MethodPut, target, map[string]any{"name": name}))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestDeleteClubHandlerRefunds(t *testing.T) {
	t.Parallel()

	s, ledgerMock := newTestServer(t)
	owner := createTestUser(t, s.db, false)
	club := createTestClub(t, s.db, owner.ID)
	ledgerMock.SetBalance(ledger.AccountTypeClub, club.ID, 4200)

	app := testApp(owner.ID, false)
	app.Delete("/api/clubs/:id", s.DeleteClub)

	resp, err := app.Test(jsonRequest(t, http.MethodDelete, "/api/clubs/"+itoa(club.ID), nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if len(ledgerMock.Credits) != 1 || ledgerMock.Credits[0].AmountCents != 4200 {
		t.Fatalf("expected refund credit of 4200, got %+v", ledgerMock.Credits)
	}

	var count int64
	if err := s.db.Model(&models.Club{}).Where("id = ?", club.ID).Count(&count).Error; err != nil {
		t.Fatalf("count clubs: %v", err)
	}
	if count != 0 {
		t.Fatal("expected club to be deleted")
	}
}

func TestGetClubMembersHandlerForbidsNonContributor(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	owner := createTestUser(t, s.db, false)
	stranger := createTestUser(t, s.db, false)
	club := createTestClub(t, s.db, owner.ID)

	app := testApp(stranger.ID, false)
	app.Get("/api/clubs/:id/members", s.GetClubMembers)

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/api/clubs/"+itoa(club.ID)+"/members", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}
