package service

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"atrium/internal/database"
	"atrium/internal/ledger"
	"atrium/internal/models"
	"atrium/internal/repository"
)

// fixture wires the services against an in-memory database with real
// repositories, so transaction behavior is exercised for real.
type fixture struct {
	db           *gorm.DB
	clubs        repository.ClubRepository
	tiers        repository.TierRepository
	memberships  repository.MembershipRepository
	access       repository.EntityAccessRepository
	resources    repository.ResourceRepository
	permissions  *PermissionService
	entitlements *EntitlementService
	tierSvc      *TierService
	clubSvc      *ClubService
	projections  *ProjectionService
	ledger       *ledger.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	f := &fixture{
		db:          db,
		clubs:       repository.NewClubRepository(db),
		tiers:       repository.NewTierRepository(db),
		memberships: repository.NewMembershipRepository(db),
		access:      repository.NewEntityAccessRepository(db),
		resources:   repository.NewResourceRepository(db),
		ledger:      ledger.NewMock(),
	}
	f.permissions = NewPermissionService(f.clubs)
	f.entitlements = NewEntitlementService(db, f.access, f.tiers, f.resources, f.clubs, f.permissions)
	f.tierSvc = NewTierService(db, f.tiers, f.clubs, f.memberships, f.access, f.resources, f.permissions)
	f.clubSvc = NewClubService(db, f.clubs, f.tiers, f.memberships, f.access, f.resources, f.permissions, f.ledger)
	f.projections = NewProjectionService(f.access, f.clubs, f.tiers, f.resources)
	return f
}

func (f *fixture) createUser(t *testing.T, moderator bool) models.User {
	t.Helper()
	user := models.User{
		Username:    fmt.Sprintf("user-%d", f.nextID(t)),
		Email:       fmt.Sprintf("user-%d@example.com", f.nextID(t)),
		IsModerator: moderator,
	}
	require.NoError(t, f.db.Create(&user).Error)
	return user
}

func (f *fixture) createClub(t *testing.T, ownerID uint) models.Club {
	t.Helper()
	n := f.nextID(t)
	club := models.Club{
		Name:        fmt.Sprintf("Club %d", n),
		Slug:        fmt.Sprintf("club-%d", n),
		OwnerUserID: ownerID,
	}
	require.NoError(t, f.db.Create(&club).Error)
	return club
}

func (f *fixture) createTier(t *testing.T, clubID uint, name string, priceCents int64) models.ClubTier {
	t.Helper()
	tier := models.ClubTier{
		ClubID:     clubID,
		Name:       name,
		PriceCents: priceCents,
		Currency:   "usd",
		Joinable:   true,
	}
	require.NoError(t, f.db.Create(&tier).Error)
	return tier
}

func (f *fixture) createArticle(t *testing.T, ownerID uint) models.ResourceRef {
	t.Helper()
	article := models.Article{Title: fmt.Sprintf("Article %d", f.nextID(t)), UserID: ownerID}
	require.NoError(t, f.db.Create(&article).Error)
	return models.ResourceRef{EntityID: article.ID, EntityType: models.EntityTypeArticle}
}

func (f *fixture) addAdmin(t *testing.T, clubID, userID uint, perms ...models.ClubAdminPermission) {
	t.Helper()
	admin := models.ClubAdmin{ClubID: clubID, UserID: userID, Permissions: perms}
	require.NoError(t, f.db.Create(&admin).Error)
}

func (f *fixture) addMembership(t *testing.T, clubID, userID, tierID uint, status models.ClubMembershipStatus) {
	t.Helper()
	m := models.ClubMembership{ClubID: clubID, UserID: userID, TierID: tierID, Status: status}
	require.NoError(t, f.db.Create(&m).Error)
}

func (f *fixture) grantRows(t *testing.T, ref models.ResourceRef) []models.EntityAccess {
	t.Helper()
	var rows []models.EntityAccess
	require.NoError(t, f.db.
		Where("access_to_id = ? AND access_to_type = ?", ref.EntityID, ref.EntityType).
		Find(&rows).Error)
	return rows
}

func (f *fixture) availability(t *testing.T, ref models.ResourceRef) models.Availability {
	t.Helper()
	var article models.Article
	require.NoError(t, f.db.First(&article, ref.EntityID).Error)
	return article.Availability
}

var fixtureCounter atomic.Uint64

func (f *fixture) nextID(t *testing.T) uint {
	t.Helper()
	return uint(fixtureCounter.Add(1))
}

func principalFor(user models.User) models.Principal {
	return models.Principal{UserID: user.ID, IsModerator: user.IsModerator}
}

// assertValidationError asserts that err is an AppError with code VALIDATION_ERROR.
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok, "expected *models.AppError, got %T", err)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

// assertUnauthorizedError asserts that err is an AppError with code UNAUTHORIZED.
func assertUnauthorizedError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok, "expected *models.AppError, got %T", err)
	require.Equal(t, "UNAUTHORIZED", appErr.Code)
}

// assertNotFoundError asserts that err is an AppError with code NOT_FOUND.
func assertNotFoundError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok, "expected *models.AppError, got %T", err)
	require.Equal(t, "NOT_FOUND", appErr.Code)
}
