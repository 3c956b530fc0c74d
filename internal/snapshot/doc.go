// Package snapshot persists the last observed catalog state.
//
// Exactly one snapshot is retained. Save replaces it atomically; Load never
// fails and degrades to an empty snapshot when nothing usable is stored.
//
// Drivers:
//   - "file" (default): one JSON document, written via temp file + rename
//   - "sqlite": table catalog_snapshot in a SQLite database file
//   - "postgres": table catalog_snapshot in PostgreSQL
package snapshot
