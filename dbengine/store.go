// Package dbengine implements the database domain engine: collection
// snapshots, destructive restore, and post-restore migrations against a
// document database reached through the DocumentStore capability.
package dbengine

import "context"

// Document is one record in a collection.
type Document = map[string]interface{}

// DocumentStore is the narrow capability the engine needs from the document
// database. The mongo implementation shells nothing out; everything goes
// through the driver. The in-memory implementation backs the tests.
type DocumentStore interface {
	// Collections lists every collection name, including system ones;
	// the engine filters.
	Collections(ctx context.Context) ([]string, error)
	// ReadAll returns the full contents of one collection.
	ReadAll(ctx context.Context, collection string) ([]Document, error)
	// Drop removes a collection entirely. Missing collections are not an
	// error.
	Drop(ctx context.Context, collection string) error
	// Insert bulk-inserts documents into a collection, creating it if
	// needed.
	Insert(ctx context.Context, collection string, docs []Document) error
	// RunCommand executes a raw database command. Used by migrations.
	RunCommand(ctx context.Context, command Document) error
}
