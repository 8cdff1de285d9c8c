package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"atrium/internal/config"
	"atrium/internal/database"
	"atrium/internal/ledger"
	"atrium/internal/models"
	"atrium/internal/repository"
	"atrium/internal/service"
)

// newTestServer wires a Server against an in-memory database with real
// repositories and a mock ledger. Prometheus middleware stays nil so tests
// can run in parallel without fighting over collector registration.
func newTestServer(t *testing.T) (*Server, *ledger.Mock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}

	ledgerMock := ledger.NewMock()

	clubRepo := repository.NewClubRepository(db)
	tierRepo := repository.NewTierRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	accessRepo := repository.NewEntityAccessRepository(db)
	resourceRepo := repository.NewResourceRepository(db)

	s := &Server{
		config:         &config.Config{JWTSecret: "test-secret", Port: "0"},
		db:             db,
		clubRepo:       clubRepo,
		tierRepo:       tierRepo,
		membershipRepo: membershipRepo,
		accessRepo:     accessRepo,
		resourceRepo:   resourceRepo,
	}
	s.permissions = service.NewPermissionService(clubRepo)
	s.clubService = service.NewClubService(db, clubRepo, tierRepo, membershipRepo, accessRepo, resourceRepo, s.permissions, ledgerMock)
	s.tierService = service.NewTierService(db, tierRepo, clubRepo, membershipRepo, accessRepo, resourceRepo, s.permissions)
	s.entitlements = service.NewEntitlementService(db, accessRepo, tierRepo, resourceRepo, clubRepo, s.permissions)
	s.projections = service.NewProjectionService(accessRepo, clubRepo, tierRepo, resourceRepo)

	return s, ledgerMock
}

// testApp builds a Fiber app that injects the given user's identity the way
// the auth middleware would, then lets the caller register routes.
func testApp(userID uint, moderator bool) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", userID)
		c.Locals("isModerator", moderator)
		return c.Next()
	})
	return app
}

var testSeq atomic.Uint64

func testN() uint64 { return testSeq.Add(1) }

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }

func createTestUser(t *testing.T, db *gorm.DB, moderator bool) models.User {
	t.Helper()
	n := testN()
	user := models.User{
		Username:    fmt.Sprintf("user-%d", n),
		Email:       fmt.Sprintf("user-%d@example.com", n),
		IsModerator: moderator,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func createTestClub(t *testing.T, db *gorm.DB, ownerID uint) models.Club {
	t.Helper()
	n := testN()
	club := models.Club{
		Name:        fmt.Sprintf("Club %d", n),
		Slug:        fmt.Sprintf("club-%d", n),
		OwnerUserID: ownerID,
	}
	if err := db.Create(&club).Error; err != nil {
		t.Fatalf("create club: %v", err)
	}
	return club
}

func createTestTier(t *testing.T, db *gorm.DB, clubID uint, name string, priceCents int64) models.ClubTier {
	t.Helper()
	tier := models.ClubTier{
		ClubID:     clubID,
		Name:       name,
		PriceCents: priceCents,
		Currency:   "usd",
		Joinable:   true,
	}
	if err := db.Create(&tier).Error; err != nil {
		t.Fatalf("create tier: %v", err)
	}
	return tier
}

func createTestArticle(t *testing.T, db *gorm.DB, ownerID uint) models.Article {
	t.Helper()
	article := models.Article{Title: fmt.Sprintf("Article %d", testN()), UserID: ownerID}
	if err := db.Create(&article).Error; err != nil {
		t.Fatalf("create article: %v", err)
	}
	return article
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
