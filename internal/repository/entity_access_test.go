package repository

import (
	"context"
	"regexp"
	"testing"

	"atrium/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestEntityAccessRepository_ListForEntity(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewEntityAccessRepository(db)
	ctx := context.Background()

	ref := models.ResourceRef{EntityID: 7, EntityType: models.EntityTypeArticle}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "entity_access" WHERE access_to_id = $1 AND access_to_type = $2`)).
		WithArgs(7, "article").
		WillReturnRows(sqlmock.NewRows([]string{"access_to_id", "access_to_type", "accessor_id", "accessor_type"}).
			AddRow(7, "article", 3, "club").
			AddRow(7, "article", 12, "club_tier"))

	rows, err := repo.ListForEntity(ctx, ref)
	assert.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.AccessorTypeClub, rows[0].AccessorType)
	assert.Equal(t, uint(12), rows[1].AccessorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityAccessRepository_CountForEntity(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewEntityAccessRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "entity_access" WHERE access_to_id = $1 AND access_to_type = $2`)).
		WithArgs(7, "post").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountForEntity(ctx, models.ResourceRef{EntityID: 7, EntityType: models.EntityTypePost})
	assert.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityAccessRepository_DeleteScoped(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewEntityAccessRepository(db)
	ctx := context.Background()

	ref := models.ResourceRef{EntityID: 9, EntityType: models.EntityTypeModelVersion}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "entity_access"`)).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	err := repo.DeleteScoped(ctx, ref, AccessorScope{ClubIDs: []uint{1, 2}, TierIDs: []uint{10, 11}})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityAccessRepository_DeleteScoped_EmptyScopeIsNoop(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewEntityAccessRepository(db)

	err := repo.DeleteScoped(context.Background(),
		models.ResourceRef{EntityID: 9, EntityType: models.EntityTypePost}, AccessorScope{})
	assert.NoError(t, err)
	// No SQL at all must have been issued.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityAccessRepository_BulkCreate(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewEntityAccessRepository(db)
	ctx := context.Background()

	addedBy := uint(42)
	rows := []models.EntityAccess{
		{AccessToID: 9, AccessToType: models.EntityTypePost, AccessorID: 1, AccessorType: models.AccessorTypeClub, AddedByID: &addedBy},
		{AccessToID: 9, AccessToType: models.EntityTypePost, AccessorID: 10, AccessorType: models.AccessorTypeClubTier, AddedByID: &addedBy},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "entity_access"`)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.BulkCreate(ctx, rows)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityAccessRepository_BulkCreate_EmptyIsNoop(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewEntityAccessRepository(db)

	err := repo.BulkCreate(context.Background(), nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityAccessRepository_DeleteUserGrant(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewEntityAccessRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "entity_access" WHERE access_to_id = $1 AND access_to_type = $2 AND accessor_id = $3 AND accessor_type = $4`)).
		WithArgs(5, "article", 42, "user").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.DeleteUserGrant(context.Background(),
		models.ResourceRef{EntityID: 5, EntityType: models.EntityTypeArticle}, 42)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityAccessRepository_ListByAccessors(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewEntityAccessRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "entity_access"`)).
		WillReturnRows(sqlmock.NewRows([]string{"access_to_id", "access_to_type", "accessor_id", "accessor_type"}).
			AddRow(4, "post", 2, "club"))

	rows, err := repo.ListByAccessors(context.Background(), AccessorScope{ClubIDs: []uint{2}})
	assert.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint(4), rows[0].AccessToID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
