// Package registry is the queryable index over live cache entries. The
// artifact store only answers point lookups, so enumeration concerns,
// "everything in session X" and "every variant of function Y", are
// answered here from an in-memory table with secondary indexes.
//
// The registry is advisory: losing it costs eviction precision, never
// correctness, because the store remains the source of cached artifacts.
package registry

import (
	"fmt"
	"time"

	memdb "github.com/hashicorp/go-memdb"
)

const tableEntries = "entries"

// Entry describes one cached program.
type Entry struct {
	// Key is the full store key, "<prefix>" or
	// "<prefix>|<session>|<fingerprint>".
	Key string

	Prefix        string
	FunctionName  string
	SessionHandle string
	SizeBytes     int64
	CreatedAt     time.Time
}

// Registry wraps a go-memdb instance with the entries schema. Safe for
// concurrent use; memdb gives readers a consistent snapshot for free.
type Registry struct {
	db *memdb.MemDB
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableEntries: {
				Name: tableEntries,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
					"session": {
						Name:         "session",
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "SessionHandle"},
					},
					"function": {
						Name:         "function",
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "FunctionName"},
					},
				},
			},
		},
	}
}

// New creates an empty registry.
func New() (*Registry, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("registry: schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// Insert records an entry, replacing any previous entry with the same key.
func (r *Registry) Insert(e Entry) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tableEntries, &e); err != nil {
		return fmt.Errorf("registry: insert: %w", err)
	}
	txn.Commit()
	return nil
}

// Lookup returns the entry for a full key.
func (r *Registry) Lookup(key string) (Entry, bool, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableEntries, "id", key)
	if err != nil {
		return Entry{}, false, fmt.Errorf("registry: lookup: %w", err)
	}
	if raw == nil {
		return Entry{}, false, nil
	}
	return *raw.(*Entry), true, nil
}

// Delete removes the entry for a full key. Absent keys are not an error.
func (r *Registry) Delete(key string) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tableEntries, "id", key)
	if err != nil {
		return fmt.Errorf("registry: delete: %w", err)
	}
	if raw == nil {
		return nil
	}
	if err := txn.Delete(tableEntries, raw); err != nil {
		return fmt.Errorf("registry: delete: %w", err)
	}
	txn.Commit()
	return nil
}

// BySession returns every entry registered under a session handle.
func (r *Registry) BySession(handle string) ([]Entry, error) {
	return r.byIndex("session", handle)
}

// ByFunction returns every cached variant of a function.
func (r *Registry) ByFunction(name string) ([]Entry, error) {
	return r.byIndex("function", name)
}

func (r *Registry) byIndex(index, value string) ([]Entry, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableEntries, index, value)
	if err != nil {
		return nil, fmt.Errorf("registry: scan %s: %w", index, err)
	}

	var entries []Entry
	for raw := it.Next(); raw != nil; raw = it.Next() {
		entries = append(entries, *raw.(*Entry))
	}
	return entries, nil
}

// DeleteSession drops every entry under handle in one transaction and
// returns their full keys so the caller can clear the store too.
func (r *Registry) DeleteSession(handle string) ([]string, error) {
	txn := r.db.Txn(true)
	defer txn.Abort()

	it, err := txn.Get(tableEntries, "session", handle)
	if err != nil {
		return nil, fmt.Errorf("registry: scan session: %w", err)
	}

	var keys []string
	for raw := it.Next(); raw != nil; raw = it.Next() {
		keys = append(keys, raw.(*Entry).Key)
	}

	if _, err := txn.DeleteAll(tableEntries, "session", handle); err != nil {
		return nil, fmt.Errorf("registry: delete session: %w", err)
	}
	txn.Commit()
	return keys, nil
}

// Len returns the number of registered entries.
func (r *Registry) Len() (int, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableEntries, "id")
	if err != nil {
		return 0, fmt.Errorf("registry: scan: %w", err)
	}
	n := 0
	for raw := it.Next(); raw != nil; raw = it.Next() {
		n++
	}
	return n, nil
}
