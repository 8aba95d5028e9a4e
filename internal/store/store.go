package store

import "database/sql"

// Store holds all sub-stores used by the application.
type Store struct {
	DB         *sql.DB
	Events     EventStore
	Taxonomies TaxonomyStore
	SyncRuns   SyncRunStore
}

// New creates a Store with all sub-stores initialized.
func New(db *sql.DB) *Store {
	return &Store{
		DB:         db,
		Events:     NewSQLiteEventStore(db),
		Taxonomies: NewSQLiteTaxonomyStore(db),
		SyncRuns:   NewSQLiteSyncRunStore(db),
	}
}
