// Package store implements the document persistence gateway backing the relay.
//
// Documents are schemaless JSON values grouped into named collections. The
// relay core only depends on the small Gateway operation set below, never on
// the backing store's internals.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// ErrNotFound is returned when a filter matches no document.
var ErrNotFound = fmt.Errorf("document not found")

// Collection names used by the relay.
const (
	Workspaces = "workspaces"
	Channels   = "channels"
	Messages   = "messages"
	Users      = "users"
)

// Filter selects documents whose top-level JSON fields equal every listed
// value. An empty (or nil) filter matches every document in the collection.
type Filter map[string]any

// Sort orders results by a single top-level field. A zero Sort leaves results
// in insertion order.
type Sort struct {
	Key  string
	Desc bool
}

// Gateway is the operation set the relay core consumes. Implementations must
// be safe for concurrent use.
type Gateway interface {
	// FindOne returns the oldest document matching filter.
	FindOne(ctx context.Context, collection string, filter Filter) (json.RawMessage, error)

	// FindMany returns all matching documents, ordered by sort, truncated to
	// limit when limit > 0. Documents that compare equal on the sort key keep
	// their insertion order.
	FindMany(ctx context.Context, collection string, filter Filter, sort Sort, limit int) ([]json.RawMessage, error)

	// InsertOne stores doc and returns its identifier. If doc has no "id"
	// field (or an empty one) a fresh identifier is assigned.
	InsertOne(ctx context.Context, collection string, doc any) (string, error)

	// InsertMany stores docs in order and returns their identifiers.
	InsertMany(ctx context.Context, collection string, docs []any) ([]string, error)

	// UpdateOne merges fields into the oldest document matching filter.
	UpdateOne(ctx context.Context, collection string, filter Filter, fields map[string]any) error

	// DeleteOne removes the oldest document matching filter.
	DeleteOne(ctx context.Context, collection string, filter Filter) error

	// DeleteMany removes every matching document and reports how many went.
	DeleteMany(ctx context.Context, collection string, filter Filter) (int, error)

	// Count reports how many documents match filter.
	Count(ctx context.Context, collection string, filter Filter) (int, error)
}
