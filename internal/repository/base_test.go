package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"atrium/internal/database"
	"atrium/internal/models"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func TestReadDB_PrefersReplicaOutsideTransaction(t *testing.T) {
	primary := openSQLite(t)
	replica := openSQLite(t)

	database.SetReadDB(replica)
	t.Cleanup(func() { database.SetReadDB(nil) })

	assert.Same(t, replica, readDB(primary))
}

func TestReadDB_TransactionBypassesReplica(t *testing.T) {
	primary := openSQLite(t)
	replica := openSQLite(t)

	database.SetReadDB(replica)
	t.Cleanup(func() { database.SetReadDB(nil) })

	ctx := context.Background()
	err := primary.Transaction(func(tx *gorm.DB) error {
		assert.Same(t, tx, readDB(tx))

		// A read through the repository must see this transaction's own
		// uncommitted writes, which the replica can never hold.
		tier := models.ClubTier{ClubID: 1, Name: "Gold", PriceCents: 500, Currency: "usd", Joinable: true}
		if err := tx.Create(&tier).Error; err != nil {
			return err
		}
		tiers, err := NewTierRepository(primary).WithTx(tx).ListByClubs(ctx, []uint{1}, TierFilter{})
		if err != nil {
			return err
		}
		assert.Len(t, tiers, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestReadDB_FallsBackToPrimary(t *testing.T) {
	primary := openSQLite(t)
	database.SetReadDB(nil)

	assert.Same(t, primary, readDB(primary))
}
