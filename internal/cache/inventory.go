package cache

import (
	"context"
	"fmt"
	"time"

	"atrium/internal/models"
)

const (
	UserKeyPrefix         = "user:%d"
	ClubKeyPrefix         = "club:%s"
	ClubTiersKeyPrefix    = "club:%d:tiers"
	EntityGatingKeyPrefix = "gating:%s:%d"
)

const (
	UserTTL         = 5 * time.Minute
	ClubTTL         = 10 * time.Minute
	ClubTiersTTL    = 5 * time.Minute
	EntityGatingTTL = 2 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func ClubKey(slug string) string {
	return fmt.Sprintf(ClubKeyPrefix, slug)
}

func ClubTiersKey(clubID uint) string {
	return fmt.Sprintf(ClubTiersKeyPrefix, clubID)
}

func EntityGatingKey(ref models.ResourceRef) string {
	return fmt.Sprintf(EntityGatingKeyPrefix, ref.EntityType, ref.EntityID)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

func InvalidateClub(ctx context.Context, slug string) {
	Invalidate(ctx, ClubKey(slug))
}

func InvalidateClubTiers(ctx context.Context, clubID uint) {
	Invalidate(ctx, ClubTiersKey(clubID))
}

func InvalidateEntityGating(ctx context.Context, ref models.ResourceRef) {
	Invalidate(ctx, EntityGatingKey(ref))
}
