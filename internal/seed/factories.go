// Package seed provides helpers to create test and demo data for the
// application database. These helpers are intended for development and
// testing only.
package seed

import (
	"fmt"
	"math/rand"
	"time"

	"atrium/internal/billing"
	"atrium/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by seed presets and tests.
type Factory struct {
	db  *gorm.DB
	rnd *rand.Rand
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB) *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	return &Factory{
		db:  db,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateUser constructs and persists a sample user. Optional override
// functions may modify the generated user before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	user := &models.User{
		Username: gofakeit.Username() + fmt.Sprintf("%d", gofakeit.Number(100, 999)),
		Email:    gofakeit.Email(),
	}

	for _, override := range overrides {
		override(user)
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateClub persists a club owned by the given user, with a spread of
// priced tiers.
func (f *Factory) CreateClub(owner *models.User, overrides ...func(*models.Club)) (*models.Club, []models.ClubTier, error) {
	name := fmt.Sprintf("%s %s Club", gofakeit.AdjectiveDescriptive(), gofakeit.NounAbstract())
	club := &models.Club{
		Name:        name,
		Slug:        fmt.Sprintf("%s-%d", slug.Make(name), gofakeit.Number(100, 9999)),
		Description: gofakeit.Sentence(12),
		OwnerUserID: owner.ID,
	}

	for _, override := range overrides {
		override(club)
	}

	if err := f.db.Create(club).Error; err != nil {
		return nil, nil, err
	}

	tierNames := []string{"Supporter", "Insider", "Patron"}
	numTiers := 1 + f.rnd.Intn(len(tierNames))
	tiers := make([]models.ClubTier, 0, numTiers)
	for i := 0; i < numTiers; i++ {
		tiers = append(tiers, models.ClubTier{
			ClubID:      club.ID,
			Name:        tierNames[i],
			Description: gofakeit.Sentence(8),
			PriceCents:  int64((i + 1) * 500),
			Currency:    "usd",
			Joinable:    true,
		})
	}
	if err := f.db.Create(&tiers).Error; err != nil {
		return nil, nil, err
	}

	return club, tiers, nil
}

// CreateMembership persists an active membership joining the user to a tier,
// with billing dates spread over the last couple of months.
func (f *Factory) CreateMembership(user *models.User, tier *models.ClubTier) (*models.ClubMembership, error) {
	started := time.Now().UTC().Add(-time.Duration(f.rnd.Intn(60*24)) * time.Hour)
	m := &models.ClubMembership{
		ClubID:        tier.ClubID,
		UserID:        user.ID,
		TierID:        tier.ID,
		Status:        models.ClubMembershipStatusActive,
		StartedAt:     started,
		NextBillingAt: billing.NextBillingDate(started),
	}
	if err := f.db.Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// CreateResource persists one gate-able resource of a random kind owned by
// the given user and returns its reference.
func (f *Factory) CreateResource(owner *models.User) (models.ResourceRef, error) {
	title := gofakeit.Sentence(4)
	switch f.rnd.Intn(3) {
	case 0:
		mv := models.ModelVersion{Name: title, UserID: owner.ID, Availability: models.AvailabilityPublic}
		if err := f.db.Create(&mv).Error; err != nil {
			return models.ResourceRef{}, err
		}
		return models.ResourceRef{EntityID: mv.ID, EntityType: models.EntityTypeModelVersion}, nil
	case 1:
		article := models.Article{Title: title, UserID: owner.ID, Availability: models.AvailabilityPublic}
		if err := f.db.Create(&article).Error; err != nil {
			return models.ResourceRef{}, err
		}
		return models.ResourceRef{EntityID: article.ID, EntityType: models.EntityTypeArticle}, nil
	default:
		post := models.Post{Title: title, UserID: owner.ID, Availability: models.AvailabilityPublic}
		if err := f.db.Create(&post).Error; err != nil {
			return models.ResourceRef{}, err
		}
		return models.ResourceRef{EntityID: post.ID, EntityType: models.EntityTypePost}, nil
	}
}

// GateResource gates a resource behind the given club (club-wide) and flips
// its availability to private, preserving the zero-grants-means-public
// invariant the engine maintains.
func (f *Factory) GateResource(ref models.ResourceRef, clubID uint, addedBy uint) error {
	row := models.EntityAccess{
		AccessToID:   ref.EntityID,
		AccessToType: ref.EntityType,
		AccessorID:   clubID,
		AccessorType: models.AccessorTypeClub,
		AddedByID:    &addedBy,
	}
	if err := f.db.Create(&row).Error; err != nil {
		return err
	}

	model, ok := resourceModel(ref.EntityType)
	if !ok {
		return fmt.Errorf("unknown entity type %q", ref.EntityType)
	}
	return f.db.Model(model).
		Where("id = ?", ref.EntityID).
		Update("availability", models.AvailabilityPrivate).Error
}

func resourceModel(t models.EntityType) (any, bool) {
	switch t {
	case models.EntityTypeModelVersion:
		return &models.ModelVersion{}, true
	case models.EntityTypeArticle:
		return &models.Article{}, true
	case models.EntityTypePost:
		return &models.Post{}, true
	}
	return nil, false
}
