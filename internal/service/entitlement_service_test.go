package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atrium/internal/models"
)

func TestEntitlementService_Grant_GatesAndReplaces(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, false)
	club := f.createClub(t, owner.ID)
	gold := f.createTier(t, club.ID, "Gold", 500)
	silver := f.createTier(t, club.ID, "Silver", 200)
	ref := f.createArticle(t, owner.ID)

	// Club-wide grant flips the resource private.
	err := f.entitlements.Grant(ctx, principalFor(owner), ref, []ClubScope{{ClubID: club.ID}})
	require.NoError(t, err)
	rows := f.grantRows(t, ref)
	require.Len(t, rows, 1)
	assert.Equal(t, models.AccessorTypeClub, rows[0].AccessorType)
	assert.Equal(t, club.ID, rows[0].AccessorID)
	assert.Equal(t, models.AvailabilityPrivate, f.availability(t, ref))

	// Re-granting with tier scope replaces the club-wide row.
	err = f.entitlements.Grant(ctx, principalFor(owner), ref, []ClubScope{
		{ClubID: club.ID, TierIDs: []uint{gold.ID, silver.ID}},
	})
	require.NoError(t, err)
	rows = f.grantRows(t, ref)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, models.AccessorTypeClubTier, row.AccessorType)
	}
	assert.Equal(t, models.AvailabilityPrivate, f.availability(t, ref))
}

func TestEntitlementService_Grant_EmptyScopeUngates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, false)
	club := f.createClub(t, owner.ID)
	tier := f.createTier(t, club.ID, "Gold", 500)
	ref := f.createArticle(t, owner.ID)

	require.NoError(t, f.entitlements.Grant(ctx, principalFor(owner), ref, []ClubScope{
		{ClubID: club.ID, TierIDs: []uint{tier.ID}},
	}))
	require.NoError(t, f.entitlements.Grant(ctx, principalFor(owner), ref, nil))

	assert.Empty(t, f.grantRows(t, ref))
	assert.Equal(t, models.AvailabilityPublic, f.availability(t, ref))
}

func TestEntitlementService_Grant_LeavesOtherClubsAlone(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, false)
	clubA := f.createClub(t, owner.ID)
	clubB := f.createClub(t, owner.ID)
	tierB := f.createTier(t, clubB.ID, "Gold", 500)
	ref := f.createArticle(t, owner.ID)

	require.NoError(t, f.entitlements.Grant(ctx, principalFor(owner), ref, []ClubScope{
		{ClubID: clubA.ID},
		{ClubID: clubB.ID, TierIDs: []uint{tierB.ID}},
	}))

	// Narrowing club A must not disturb club B's tier grant.
	require.NoError(t, f.entitlements.UpdateScope(ctx, principalFor(owner), ref, clubA.ID, nil))
	rows := f.grantRows(t, ref)
	require.Len(t, rows, 2)

	// Revoking club A leaves club B's grant, so the resource stays private.
	require.NoError(t, f.entitlements.Revoke(ctx, principalFor(owner), ref, clubA.ID))
	rows = f.grantRows(t, ref)
	require.Len(t, rows, 1)
	assert.Equal(t, tierB.ID, rows[0].AccessorID)
	assert.Equal(t, models.AvailabilityPrivate, f.availability(t, ref))

	// Revoking the last club flips it public.
	require.NoError(t, f.entitlements.Revoke(ctx, principalFor(owner), ref, clubB.ID))
	assert.Empty(t, f.grantRows(t, ref))
	assert.Equal(t, models.AvailabilityPublic, f.availability(t, ref))
}

func TestEntitlementService_Grant_RejectsWholeBatchOnForeignClub(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, false)
	stranger := f.createUser(t, false)
	ownClub := f.createClub(t, owner.ID)
	foreignClub := f.createClub(t, stranger.ID)
	ref := f.createArticle(t, owner.ID)

	err := f.entitlements.Grant(ctx, principalFor(owner), ref, []ClubScope{
		{ClubID: ownClub.ID},
		{ClubID: foreignClub.ID},
	})
	assertUnauthorizedError(t, err)

	// All or nothing: the valid half must not have been applied.
	assert.Empty(t, f.grantRows(t, ref))
	assert.Equal(t, models.AvailabilityPublic, f.availability(t, ref))
}

func TestEntitlementService_Grant_TierMustBelongToClub(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, false)
	clubA := f.createClub(t, owner.ID)
	clubB := f.createClub(t, owner.ID)
	tierB := f.createTier(t, clubB.ID, "Gold", 500)
	ref := f.createArticle(t, owner.ID)

	err := f.entitlements.Grant(ctx, principalFor(owner), ref, []ClubScope{
		{ClubID: clubA.ID, TierIDs: []uint{tierB.ID}},
	})
	assertNotFoundError(t, err)
	assert.Empty(t, f.grantRows(t, ref))
}

func TestEntitlementService_Grant_DeletedTierLeavesNoOrphan(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, false)
	club := f.createClub(t, owner.ID)
	gold := f.createTier(t, club.ID, "Gold", 500)
	ref := f.createArticle(t, owner.ID)

	_, err := f.tierSvc.ReplaceTiers(ctx, principalFor(owner), club.ID, ReplaceTiersInput{
		DeleteIDs: []uint{gold.ID},
	})
	require.NoError(t, err)

	// The tier set is re-read under the club lock, so a grant naming a
	// tier that no longer exists must fail before any row is written.
	err = f.entitlements.Grant(ctx, principalFor(owner), ref, []ClubScope{
		{ClubID: club.ID, TierIDs: []uint{gold.ID}},
	})
	assertNotFoundError(t, err)
	assert.Empty(t, f.grantRows(t, ref))
	assert.Equal(t, models.AvailabilityPublic, f.availability(t, ref))
}

func TestEntitlementService_Grant_RequiresResourceOwner(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, false)
	other := f.createUser(t, false)
	club := f.createClub(t, other.ID)
	ref := f.createArticle(t, owner.ID)

	err := f.entitlements.Grant(ctx, principalFor(other), ref, []ClubScope{{ClubID: club.ID}})
	assertUnauthorizedError(t, err)
}

func TestEntitlementService_Grant_AdminOfClubMayGate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	clubOwner := f.createUser(t, false)
	author := f.createUser(t, false)
	club := f.createClub(t, clubOwner.ID)
	f.addAdmin(t, club.ID, author.ID, models.ClubAdminPermissionManageResources)
	ref := f.createArticle(t, author.ID)

	err := f.entitlements.Grant(ctx, principalFor(author), ref, []ClubScope{{ClubID: club.ID}})
	require.NoError(t, err)
	assert.Len(t, f.grantRows(t, ref), 1)
}

func TestEntitlementService_Moderator_CanUngateForeignClubs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, false)
	moderator := f.createUser(t, true)
	club := f.createClub(t, owner.ID)
	ref := f.createArticle(t, owner.ID)

	require.NoError(t, f.entitlements.Grant(ctx, principalFor(owner), ref, []ClubScope{{ClubID: club.ID}}))
	require.NoError(t, f.entitlements.Grant(ctx, principalFor(moderator), ref, nil))

	assert.Empty(t, f.grantRows(t, ref))
	assert.Equal(t, models.AvailabilityPublic, f.availability(t, ref))
}

func TestEntitlementService_Ungate_OnlyTouchesContributedClubs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	author := f.createUser(t, false)
	other := f.createUser(t, false)
	ownClub := f.createClub(t, author.ID)
	foreignClub := f.createClub(t, other.ID)
	ref := f.createArticle(t, author.ID)

	require.NoError(t, f.entitlements.Grant(ctx, principalFor(author), ref, []ClubScope{{ClubID: ownClub.ID}}))
	// The foreign club's owner also gates the resource they were granted
	// admin rights over.
	f.addAdmin(t, foreignClub.ID, author.ID)
	require.NoError(t, f.db.Create(&models.EntityAccess{
		AccessToID:   ref.EntityID,
		AccessToType: ref.EntityType,
		AccessorID:   foreignClub.ID,
		AccessorType: models.AccessorTypeClub,
	}).Error)
	require.NoError(t, f.db.Where("club_id = ? AND user_id = ?", foreignClub.ID, author.ID).
		Delete(&models.ClubAdmin{}).Error)

	// Author no longer contributes to the foreign club, so ungating only
	// removes their own club's row.
	require.NoError(t, f.entitlements.Grant(ctx, principalFor(author), ref, nil))
	rows := f.grantRows(t, ref)
	require.Len(t, rows, 1)
	assert.Equal(t, foreignClub.ID, rows[0].AccessorID)
	assert.Equal(t, models.AvailabilityPrivate, f.availability(t, ref))
}

func TestEntitlementService_UserGrants_SurviveClubUngate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, false)
	fan := f.createUser(t, false)
	club := f.createClub(t, owner.ID)
	ref := f.createArticle(t, owner.ID)

	require.NoError(t, f.entitlements.Grant(ctx, principalFor(owner), ref, []ClubScope{{ClubID: club.ID}}))
	require.NoError(t, f.entitlements.GrantToUser(ctx, principalFor(owner), ref, fan.ID))

	// Ungating the clubs leaves the direct user grant, so the resource
	// stays private.
	require.NoError(t, f.entitlements.Grant(ctx, principalFor(owner), ref, nil))
	rows := f.grantRows(t, ref)
	require.Len(t, rows, 1)
	assert.Equal(t, models.AccessorTypeUser, rows[0].AccessorType)
	assert.Equal(t, models.AvailabilityPrivate, f.availability(t, ref))

	// Removing the last grant flips it public.
	require.NoError(t, f.entitlements.RevokeFromUser(ctx, principalFor(owner), ref, fan.ID))
	assert.Empty(t, f.grantRows(t, ref))
	assert.Equal(t, models.AvailabilityPublic, f.availability(t, ref))
}

func TestEntitlementService_Grant_DuplicateRequestIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, false)
	club := f.createClub(t, owner.ID)
	tier := f.createTier(t, club.ID, "Gold", 500)
	ref := f.createArticle(t, owner.ID)

	scopes := []ClubScope{{ClubID: club.ID, TierIDs: []uint{tier.ID, tier.ID}}}
	require.NoError(t, f.entitlements.Grant(ctx, principalFor(owner), ref, scopes))
	require.NoError(t, f.entitlements.Grant(ctx, principalFor(owner), ref, scopes))

	assert.Len(t, f.grantRows(t, ref), 1)
}

func TestEntitlementService_Grant_InvalidEntityType(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	err := f.entitlements.Grant(context.Background(), models.Principal{UserID: 1},
		models.ResourceRef{EntityID: 1, EntityType: "comment"}, nil)
	assertValidationError(t, err)
}

func TestMergeScopes(t *testing.T) {
	t.Parallel()

	t.Run("club-wide swallows tier scopes", func(t *testing.T) {
		t.Parallel()
		merged, clubIDs, err := mergeScopes([]ClubScope{
			{ClubID: 1, TierIDs: []uint{10}},
			{ClubID: 1},
		})
		require.NoError(t, err)
		assert.Equal(t, []uint{1}, clubIDs)
		require.Len(t, merged, 1)
		assert.Empty(t, merged[0].TierIDs)
	})

	t.Run("tier lists union and dedupe", func(t *testing.T) {
		t.Parallel()
		merged, _, err := mergeScopes([]ClubScope{
			{ClubID: 2, TierIDs: []uint{10, 11}},
			{ClubID: 2, TierIDs: []uint{11, 12}},
		})
		require.NoError(t, err)
		require.Len(t, merged, 1)
		assert.Equal(t, []uint{10, 11, 12}, merged[0].TierIDs)
	})

	t.Run("zero club id rejected", func(t *testing.T) {
		t.Parallel()
		_, _, err := mergeScopes([]ClubScope{{ClubID: 0}})
		assertValidationError(t, err)
	})

	t.Run("too many clubs rejected", func(t *testing.T) {
		t.Parallel()
		scopes := make([]ClubScope, maxGrantClubs+1)
		for i := range scopes {
			scopes[i] = ClubScope{ClubID: uint(i + 1)}
		}
		_, _, err := mergeScopes(scopes)
		assertValidationError(t, err)
	})
}
