package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Badger is the Gateway implementation over BadgerDB. Every document is one
// JSON value; keys embed the insertion timestamp so prefix scans come back in
// arrival order.
type Badger struct {
	db  *badger.DB
	log *slog.Logger
}

// Open opens (or creates) the document store at path.
func Open(path string, log *slog.Logger) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("opening document store: %w", err)
	}
	return NewBadger(db, log), nil
}

// NewBadger wraps an already-open BadgerDB handle.
func NewBadger(db *badger.DB, log *slog.Logger) *Badger {
	return &Badger{db: db, log: log}
}

// Close flushes and closes the underlying database.
func (b *Badger) Close() error {
	return b.db.Close()
}

// insertKey builds "collection/{timestamp_padded}:{id}". The 19-digit zero
// padding keeps lexicographical key order equal to chronological insertion
// order; the id disambiguates same-nanosecond inserts.
func insertKey(collection, id string) []byte {
	return fmt.Appendf(nil, "%s/%019d:%s", collection, time.Now().UnixNano(), id)
}

type matchedDoc struct {
	key []byte
	raw []byte
	doc map[string]any
}

// scan walks a collection prefix and collects documents matching filter, in
// key (insertion) order. The iterator is closed before scan returns, so the
// caller may mutate the transaction afterwards.
func scan(txn *badger.Txn, collection string, filter Filter, limit int) ([]matchedDoc, error) {
	prefix := []byte(collection + "/")
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var matches []matchedDoc
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("corrupt document at %q: %w", item.Key(), err)
		}
		if !docMatches(doc, filter) {
			continue
		}
		matches = append(matches, matchedDoc{key: item.KeyCopy(nil), raw: raw, doc: doc})
		if limit > 0 && len(matches) == limit {
			break
		}
	}
	return matches, nil
}

func docMatches(doc map[string]any, filter Filter) bool {
	for field, want := range filter {
		got, ok := doc[field]
		if !ok || !valueEq(got, want) {
			return false
		}
	}
	return true
}

// valueEq compares a decoded JSON value against a caller-supplied filter
// value. Numeric filter values are widened to float64 to match json.Unmarshal.
func valueEq(got, want any) bool {
	return normalize(got) == normalize(want)
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

func lessValue(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		return av < bv
	case float64:
		bv, _ := b.(float64)
		return av < bv
	case nil:
		return b != nil
	}
	return false
}

func (b *Badger) FindOne(ctx context.Context, collection string, filter Filter) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	err := b.db.View(func(txn *badger.Txn) error {
		matches, err := scan(txn, collection, filter, 1)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return ErrNotFound
		}
		raw = matches[0].raw
		return nil
	})
	return raw, err
}

func (b *Badger) FindMany(ctx context.Context, collection string, filter Filter, by Sort, limit int) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var matches []matchedDoc
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		matches, err = scan(txn, collection, filter, 0)
		return err
	})
	if err != nil {
		return nil, err
	}
	if by.Key != "" {
		sort.SliceStable(matches, func(i, j int) bool {
			less := lessValue(matches[i].doc[by.Key], matches[j].doc[by.Key])
			if by.Desc {
				return lessValue(matches[j].doc[by.Key], matches[i].doc[by.Key])
			}
			return less
		})
	}
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	docs := make([]json.RawMessage, len(matches))
	for i, m := range matches {
		docs[i] = m.raw
	}
	return docs, nil
}

func (b *Badger) InsertOne(ctx context.Context, collection string, doc any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m, err := toMap(doc)
	if err != nil {
		return "", err
	}
	id, _ := m["id"].(string)
	if id == "" {
		id = uuid.NewString()
		m["id"] = id
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(insertKey(collection, id), data)
	})
	return id, err
}

func (b *Badger) InsertMany(ctx context.Context, collection string, docs []any) ([]string, error) {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, err := b.InsertOne(ctx, collection, doc)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (b *Badger) UpdateOne(ctx context.Context, collection string, filter Filter, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		matches, err := scan(txn, collection, filter, 1)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return ErrNotFound
		}
		m := matches[0]
		for field, value := range fields {
			m.doc[field] = value
		}
		data, err := json.Marshal(m.doc)
		if err != nil {
			return err
		}
		return txn.Set(m.key, data)
	})
}

func (b *Badger) DeleteOne(ctx context.Context, collection string, filter Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		matches, err := scan(txn, collection, filter, 1)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return ErrNotFound
		}
		return txn.Delete(matches[0].key)
	})
}

func (b *Badger) DeleteMany(ctx context.Context, collection string, filter Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	deleted := 0
	err := b.db.Update(func(txn *badger.Txn) error {
		matches, err := scan(txn, collection, filter, 0)
		if err != nil {
			return err
		}
		for _, m := range matches {
			if err := txn.Delete(m.key); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

func (b *Badger) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		matches, err := scan(txn, collection, filter, 0)
		if err != nil {
			return err
		}
		count = len(matches)
		return nil
	})
	return count, err
}

func toMap(doc any) (map[string]any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	return m, nil
}
