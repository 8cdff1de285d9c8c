// Package repository contains the data access layer for atrium.
package repository

import (
	"gorm.io/gorm"

	"atrium/internal/database"
)

// readDB returns the read replica when one is configured, falling back to
// the primary connection. Write paths must always use the primary. A handle
// already bound to a transaction never routes to the replica: reads inside a
// transaction must see that transaction's own writes and hold its locks.
func readDB(primary *gorm.DB) *gorm.DB {
	if inTransaction(primary) {
		return primary
	}
	if replica := database.GetReadDB(); replica != nil {
		return replica
	}
	return primary
}

func inTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(gorm.TxCommitter)
	return ok
}
