package directory

import (
	"context"
	"testing"
	"time"

	"github.com/klipach/mentorchat/auth"
	"github.com/klipach/mentorchat/chat"
	"github.com/klipach/mentorchat/conversation"
	"github.com/klipach/mentorchat/message"
	"github.com/klipach/mentorchat/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminCtx() context.Context {
	return auth.WithRole(context.Background(), auth.Admin("A1"))
}

func send(t *testing.T, st store.Store, userID, counterpartID, text string) {
	t.Helper()
	ref, err := conversation.Resolve(userID, counterpartID)
	require.NoError(t, err)
	ctx := auth.WithRole(context.Background(), auth.User(userID))
	_, err = chat.NewPipeline(st).Send(ctx, message.SenderMe, ref, text)
	require.NoError(t, err)
}

func ptr(t time.Time) *time.Time { return &t }

func TestBuildersSkipUsersWithoutConversations(t *testing.T) {
	st := store.NewMemory()
	send(t, st, "U1", "3", "Hello")
	_, err := st.Commit(context.Background(), store.Create("users/U2", map[string]any{"nickname": "u2"}))
	require.NoError(t, err)

	for _, mode := range []Mode{ModeRescan, ModeIndex} {
		t.Run(string(mode), func(t *testing.T) {
			b, err := New(mode, st)
			require.NoError(t, err)
			entries, err := b.Build(adminCtx())
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "U1", entries[0].UserID)
			assert.Equal(t, "3", entries[0].CounterpartID)
			assert.Equal(t, "Hello", entries[0].LastMessage)
			assert.Equal(t, "박준혁 (LG전자)", entries[0].DisplayName)
			assert.NotNil(t, entries[0].LastMessageTime)
			assert.Zero(t, entries[0].UnreadCount)
		})
	}
}

func TestBuildersAgree(t *testing.T) {
	st := store.NewMemory()
	send(t, st, "U1", "3", "first")
	send(t, st, "U2", "1", "second")
	send(t, st, "U1", "5", "third")
	send(t, st, "U1", "3", "fourth")

	ref, err := conversation.Resolve("U2", "1")
	require.NoError(t, err)
	_, err = chat.NewPipeline(st).Send(adminCtx(), message.SenderAdmin, ref, "reply")
	require.NoError(t, err)

	rescan, err := NewRescan(st).Build(adminCtx())
	require.NoError(t, err)
	index, err := NewIndex(st).Build(adminCtx())
	require.NoError(t, err)

	assert.Equal(t, rescan, index)
	var got []string
	for _, e := range index {
		got = append(got, e.LastMessage)
	}
	assert.Equal(t, []string{"reply", "fourth", "third"}, got)
}

func TestRescanSkipsEmptyConversations(t *testing.T) {
	st := store.NewMemory()
	_, err := st.Commit(context.Background(), store.Merge("users/U1/chats/3", map[string]any{"counterpartId": "3"}))
	require.NoError(t, err)

	entries, err := NewRescan(st).Build(adminCtx())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuildRequiresAdmin(t *testing.T) {
	st := store.NewMemory()
	for _, b := range []Builder{NewRescan(st), NewIndex(st)} {
		_, err := b.Build(auth.WithRole(context.Background(), auth.User("U1")))
		assert.ErrorIs(t, err, auth.ErrForbidden)
		_, err = b.Build(context.Background())
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	}

	_, err := NewIndex(nil).Build(adminCtx())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestNewUnknownMode(t *testing.T) {
	_, err := New("weekly", store.NewMemory())
	assert.ErrorIs(t, err, ErrUnknownMode)

	b, err := New("", store.NewMemory())
	require.NoError(t, err)
	assert.IsType(t, &Index{}, b)
}

func TestSort(t *testing.T) {
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	entries := []Entry{
		{UserID: "nil-a"},
		{UserID: "old", LastMessageTime: ptr(base)},
		{UserID: "nil-b"},
		{UserID: "new", LastMessageTime: ptr(base.Add(time.Hour))},
		{UserID: "old-2", LastMessageTime: ptr(base)},
	}
	Sort(entries)

	var got []string
	for _, e := range entries {
		got = append(got, e.UserID)
	}
	assert.Equal(t, []string{"new", "old", "old-2", "nil-a", "nil-b"}, got)
}

func TestBackfillMatchesRescan(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	// messages written before the directory index existed
	_, err := st.Commit(ctx,
		store.Add("users/U1/chats/1/messages", map[string]any{"text": "old", "sender": "me", "type": "text", "timestamp": base}),
		store.Add("users/U1/chats/1/messages", map[string]any{"text": "newer", "sender": "admin", "type": "text", "timestamp": base.Add(time.Hour)}),
		store.Add("users/U3/chats/2/messages", map[string]any{"text": "hey", "sender": "me", "type": "text", "timestamp": base.Add(time.Minute)}),
	)
	require.NoError(t, err)

	empty, err := NewIndex(st).Build(adminCtx())
	require.NoError(t, err)
	assert.Empty(t, empty)

	rescan, err := NewRescan(st).Build(adminCtx())
	require.NoError(t, err)
	require.Len(t, rescan, 2)

	n, err := Backfill(adminCtx(), st, append(rescan, Entry{UserID: "U9", CounterpartID: "1"}))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	index, err := NewIndex(st).Build(adminCtx())
	require.NoError(t, err)
	assert.Equal(t, rescan, index)

	_, err = Backfill(auth.WithRole(ctx, auth.User("U1")), st, rescan)
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestBuildersAgreeOnUnderscoreIDs(t *testing.T) {
	st := store.NewMemory()
	send(t, st, "U_1", "3", "first")
	send(t, st, "U", "1_3", "second")

	rescan, err := NewRescan(st).Build(adminCtx())
	require.NoError(t, err)
	index, err := NewIndex(st).Build(adminCtx())
	require.NoError(t, err)

	require.Len(t, index, 2)
	assert.Equal(t, rescan, index)
	assert.Equal(t, "U", index[0].UserID)
	assert.Equal(t, "1_3", index[0].CounterpartID)
	assert.Equal(t, "U_1", index[1].UserID)
}
