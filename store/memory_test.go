package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time) func() time.Time {
	return func() time.Time { return start }
}

func TestMemoryMergeKeepsOtherFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Commit(ctx, Merge("users/U1/chats/3", map[string]any{"counterpartId": "3", "lastMessage": "a"}))
	require.NoError(t, err)
	_, err = m.Commit(ctx, Merge("users/U1/chats/3", map[string]any{"lastMessage": "b"}))
	require.NoError(t, err)

	doc, err := m.Get(ctx, "users/U1/chats/3")
	require.NoError(t, err)
	assert.Equal(t, "3", doc.ID)
	assert.Equal(t, map[string]any{"counterpartId": "3", "lastMessage": "b"}, doc.Data)
}

func TestMemoryCreateConflictIsAtomic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.Commit(ctx, Create("users/U1", map[string]any{"nickname": "n"}))
	require.NoError(t, err)

	_, err = m.Commit(ctx,
		Merge("users/U2", map[string]any{"nickname": "x"}),
		Create("users/U1", map[string]any{"nickname": "m"}),
	)
	require.ErrorIs(t, err, ErrAlreadyExists)

	_, err = m.Get(ctx, "users/U2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryServerTimestampIsStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryWithClock(fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	paths, err := m.Commit(ctx, Add("c", map[string]any{"ts": ServerTimestamp}))
	require.NoError(t, err)
	first, _ := m.Get(ctx, paths[0])
	paths, err = m.Commit(ctx, Add("c", map[string]any{"ts": ServerTimestamp}))
	require.NoError(t, err)
	second, _ := m.Get(ctx, paths[0])

	assert.True(t, second.Data["ts"].(time.Time).After(first.Data["ts"].(time.Time)))
}

func TestMemoryQueryOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := m.Commit(ctx,
		Merge("c/a", map[string]any{"ts": base.Add(2 * time.Minute)}),
		Merge("c/b", map[string]any{"ts": base}),
		Merge("c/c", map[string]any{"ts": base.Add(time.Minute)}),
		Merge("c/d", map[string]any{"other": 1}),
		Merge("c/a/sub/x", map[string]any{"ts": base}),
	)
	require.NoError(t, err)

	docs, err := m.Query(ctx, Query{Collection: "c", OrderBy: "ts"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, ids(docs))

	docs, err = m.Query(ctx, Query{Collection: "c", OrderBy: "ts", Dir: Desc, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(docs))

	docs, err = m.Query(ctx, Query{Collection: "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(docs))
}

func TestMemoryListIDsIncludesParentsOfSubcollections(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.Commit(ctx,
		Merge("users/U1", map[string]any{"nickname": "n"}),
		Add("users/U2/chats/3/messages", map[string]any{"text": "hi"}),
	)
	require.NoError(t, err)

	got, err := m.ListIDs(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U2"}, got)

	got, err = m.ListIDs(ctx, "users/U2/chats")
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, got)
}

func TestMemoryListener(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	l, err := m.Listen(ctx, Query{Collection: "c", OrderBy: "ts"})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Listeners())

	docs, err := l.Next()
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = m.Commit(ctx, Add("other", map[string]any{"ts": ServerTimestamp}))
	require.NoError(t, err)
	_, err = m.Commit(ctx, Add("c", map[string]any{"ts": ServerTimestamp}))
	require.NoError(t, err)

	docs, err = l.Next()
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	l.Stop()
	l.Stop()
	_, err = l.Next()
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, 0, m.Listeners())
}

func TestMemoryListenerContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMemory()
	l, err := m.Listen(ctx, Query{Collection: "c"})
	require.NoError(t, err)
	_, err = l.Next()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := l.Next()
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after cancel")
	}
	assert.Equal(t, 0, m.Listeners())
}

func TestParent(t *testing.T) {
	assert.Equal(t, "users/U1/chats", Parent("users/U1/chats/3"))
	assert.Equal(t, "users", Parent("/users/U1/"))
	assert.Equal(t, "users/U1/chats/3/messages", Join("users", "U1", "chats", "3", "messages"))
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
