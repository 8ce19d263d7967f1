package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type noteDoc struct {
	ID      string `json:"id,omitempty"`
	Topic   string `json:"topic"`
	Author  string `json:"author"`
	Content string `json:"content"`
	Rank    int    `json:"rank"`
}

func openTestStore(t *testing.T) *Badger {
	t.Helper()
	b, err := Open(t.TempDir(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func decodeNotes(t *testing.T, raws []json.RawMessage) []noteDoc {
	t.Helper()
	notes := make([]noteDoc, len(raws))
	for i, raw := range raws {
		require.NoError(t, json.Unmarshal(raw, &notes[i]))
	}
	return notes
}

func TestInsertAssignsIdentifier(t *testing.T) {
	req := require.New(t)
	b := openTestStore(t)
	ctx := context.Background()

	id, err := b.InsertOne(ctx, "notes", noteDoc{Topic: "go", Author: "alice", Content: "hello"})
	req.NoError(err)
	req.NotEmpty(id)

	raw, err := b.FindOne(ctx, "notes", Filter{"id": id})
	req.NoError(err)
	var got noteDoc
	req.NoError(json.Unmarshal(raw, &got))
	req.Equal(id, got.ID)
	req.Equal("hello", got.Content)
}

func TestFindOneMissingDocument(t *testing.T) {
	req := require.New(t)
	b := openTestStore(t)

	_, err := b.FindOne(context.Background(), "notes", Filter{"topic": "nope"})
	req.ErrorIs(err, ErrNotFound)
}

func TestFindManyFiltersAndSorts(t *testing.T) {
	req := require.New(t)
	b := openTestStore(t)
	ctx := context.Background()

	seed := []noteDoc{
		{Topic: "go", Author: "alice", Rank: 3},
		{Topic: "go", Author: "bob", Rank: 1},
		{Topic: "rust", Author: "clara", Rank: 2},
		{Topic: "go", Author: "dana", Rank: 2},
	}
	for _, n := range seed {
		_, err := b.InsertOne(ctx, "notes", n)
		req.NoError(err)
	}

	raws, err := b.FindMany(ctx, "notes", Filter{"topic": "go"}, Sort{Key: "rank"}, 0)
	req.NoError(err)
	notes := decodeNotes(t, raws)
	req.Len(notes, 3)
	req.Equal([]string{"bob", "dana", "alice"}, []string{notes[0].Author, notes[1].Author, notes[2].Author})

	raws, err = b.FindMany(ctx, "notes", Filter{"topic": "go"}, Sort{Key: "rank", Desc: true}, 2)
	req.NoError(err)
	notes = decodeNotes(t, raws)
	req.Len(notes, 2)
	req.Equal("alice", notes[0].Author)
}

func TestFindManyPreservesInsertionOrderWithoutSort(t *testing.T) {
	req := require.New(t)
	b := openTestStore(t)
	ctx := context.Background()

	for _, author := range []string{"first", "second", "third"} {
		_, err := b.InsertOne(ctx, "notes", noteDoc{Topic: "order", Author: author})
		req.NoError(err)
		time.Sleep(time.Millisecond)
	}

	raws, err := b.FindMany(ctx, "notes", Filter{"topic": "order"}, Sort{}, 0)
	req.NoError(err)
	notes := decodeNotes(t, raws)
	req.Equal([]string{"first", "second", "third"}, []string{notes[0].Author, notes[1].Author, notes[2].Author})
}

func TestUpdateOneMergesFields(t *testing.T) {
	req := require.New(t)
	b := openTestStore(t)
	ctx := context.Background()

	id, err := b.InsertOne(ctx, "notes", noteDoc{Topic: "go", Author: "alice", Content: "draft"})
	req.NoError(err)

	req.NoError(b.UpdateOne(ctx, "notes", Filter{"id": id}, map[string]any{"content": "final"}))

	raw, err := b.FindOne(ctx, "notes", Filter{"id": id})
	req.NoError(err)
	var got noteDoc
	req.NoError(json.Unmarshal(raw, &got))
	req.Equal("final", got.Content)
	req.Equal("alice", got.Author)

	req.ErrorIs(b.UpdateOne(ctx, "notes", Filter{"id": "missing"}, map[string]any{"content": "x"}), ErrNotFound)
}

func TestDeleteManyReportsCount(t *testing.T) {
	req := require.New(t)
	b := openTestStore(t)
	ctx := context.Background()

	docs := []any{
		noteDoc{Topic: "go", Author: "alice"},
		noteDoc{Topic: "go", Author: "bob"},
		noteDoc{Topic: "rust", Author: "clara"},
	}
	ids, err := b.InsertMany(ctx, "notes", docs)
	req.NoError(err)
	req.Len(ids, 3)

	deleted, err := b.DeleteMany(ctx, "notes", Filter{"topic": "go"})
	req.NoError(err)
	req.Equal(2, deleted)

	count, err := b.Count(ctx, "notes", Filter{})
	req.NoError(err)
	req.Equal(1, count)
}

func TestDeleteOne(t *testing.T) {
	req := require.New(t)
	b := openTestStore(t)
	ctx := context.Background()

	_, err := b.InsertOne(ctx, "notes", noteDoc{Topic: "go", Author: "alice"})
	req.NoError(err)

	req.NoError(b.DeleteOne(ctx, "notes", Filter{"author": "alice"}))
	req.ErrorIs(b.DeleteOne(ctx, "notes", Filter{"author": "alice"}), ErrNotFound)
}

func TestCollectionsAreIsolated(t *testing.T) {
	req := require.New(t)
	b := openTestStore(t)
	ctx := context.Background()

	_, err := b.InsertOne(ctx, "notes", noteDoc{Topic: "go"})
	req.NoError(err)

	count, err := b.Count(ctx, "drafts", Filter{})
	req.NoError(err)
	req.Zero(count)
}
