// Package storage persists the document half of a search index in SQLite.
//
// Each index directory holds one doc_store.db next to its vectors.bin. The
// database keeps one row per live document, keyed by the vector slot it
// occupies, plus a small key/value table describing the snapshot (embedding
// dimension, provider, model and vector count) so a reload can detect an
// index written by a differently configured embedder.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage(filepath.Join(indexDir, "doc_store.db"))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	err = db.ReplaceDocuments(ctx, store.Entries(), map[string]string{
//	    storage.MetaDimension: "3072",
//	})
//
// # Build Modes
//
// The SQLite driver is selected at build time:
//
//	go build ./...                                  // modernc.org/sqlite (pure Go)
//	CGO_ENABLED=1 go build -tags sqlite_vec ./...   // github.com/mattn/go-sqlite3
//
// # Migrations
//
// Schema changes are versioned with semantic versions and applied in order
// when the database is opened. RollbackMigration undoes the most recent one.
package storage
