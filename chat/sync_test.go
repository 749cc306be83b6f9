package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klipach/mentorchat/auth"
	"github.com/klipach/mentorchat/catalog"
	"github.com/klipach/mentorchat/message"
	"github.com/klipach/mentorchat/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSession(t *testing.T, st store.Store, ctx context.Context, userID, counterpartID string) (*Session, <-chan []message.Message) {
	t.Helper()
	views := make(chan []message.Message, 64)
	s, err := NewSynchronizer(st).Open(ctx, mustRef(t, userID, counterpartID), func(v []message.Message) {
		views <- v
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("session never became ready")
	}
	return s, views
}

func TestOpenWithoutStore(t *testing.T) {
	_, err := NewSynchronizer(nil).Open(userCtx("U1"), mustRef(t, "U1", "3"), nil)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	var s *Synchronizer
	_, err = s.Open(userCtx("U1"), mustRef(t, "U1", "3"), nil)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestOpenRequiresOwnerOrAdmin(t *testing.T) {
	st := store.NewMemory()
	_, err := NewSynchronizer(st).Open(userCtx("U2"), mustRef(t, "U1", "3"), nil)
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = NewSynchronizer(st).Open(context.Background(), mustRef(t, "U1", "3"), nil)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	assert.Equal(t, 0, st.Listeners())
}

func TestSnapshotsAreAscending(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	_, err := st.Commit(ctx,
		store.Merge("users/U1/chats/3/messages/c", map[string]any{"text": "third", "sender": "me", "type": "text", "timestamp": base.Add(2 * time.Minute)}),
		store.Merge("users/U1/chats/3/messages/a", map[string]any{"text": "first", "sender": "admin", "type": "text", "timestamp": base}),
		store.Merge("users/U1/chats/3/messages/b", map[string]any{"text": "second", "sender": "me", "type": "text", "timestamp": base.Add(time.Minute)}),
	)
	require.NoError(t, err)

	s, views := openSession(t, st, userCtx("U1"), "U1", "3")
	first := waitForView(t, views, func(v []message.Message) bool { return len(v) == 3 })
	assert.Equal(t, []string{"first", "second", "third"}, texts(first))

	_, err = st.Commit(ctx,
		store.Merge("users/U1/chats/3/messages/z", map[string]any{"text": "earliest", "sender": "admin", "type": "text", "timestamp": base.Add(-time.Minute)}),
	)
	require.NoError(t, err)
	next := waitForView(t, views, func(v []message.Message) bool { return len(v) == 4 })
	assert.Equal(t, []string{"earliest", "first", "second", "third"}, texts(next))
	assert.Equal(t, next, s.Persisted())
}

func TestAdminReplyReachesUserSession(t *testing.T) {
	st := store.NewMemory()
	p := NewPipeline(st)
	ref := mustRef(t, "U1", "3")

	_, views := openSession(t, st, userCtx("U1"), "U1", "3")
	_, err := p.Send(adminCtx(), message.SenderAdmin, ref, "Hi there")
	require.NoError(t, err)

	v := waitForView(t, views, func(v []message.Message) bool { return len(v) == 1 })
	assert.Equal(t, message.SenderAdmin, v[0].Sender)
	assert.Equal(t, "Hi there", v[0].Text())
}

func TestEphemeralMessagesStayLocal(t *testing.T) {
	st := store.NewMemory()
	p := NewPipeline(st)
	ref := mustRef(t, "U1", "1")
	ctx := userCtx("U1")

	_, err := p.Send(ctx, message.SenderMe, ref, "before")
	require.NoError(t, err)

	s, views := openSession(t, st, ctx, "U1", "1")
	waitForView(t, views, func(v []message.Message) bool { return len(v) == 1 })

	view, err := s.ShowProfile()
	require.NoError(t, err)
	require.Len(t, view, 2)
	assert.True(t, view[1].Ephemeral())
	assert.Equal(t, message.SenderOther, view[1].Sender)
	card, _ := catalog.ProfileCard("1")
	assert.Equal(t, card, view[1].Text())

	view, err = s.ShowQuestions()
	require.NoError(t, err)
	require.Len(t, view, 3)
	assert.True(t, strings.HasPrefix(view[2].Text(), "💡"))

	_, err = p.Send(ctx, message.SenderMe, ref, "after")
	require.NoError(t, err)
	view = waitForView(t, views, func(v []message.Message) bool { return len(v) == 4 })
	assert.Equal(t, "before", view[0].Text())
	assert.True(t, view[1].Ephemeral())
	assert.True(t, view[2].Ephemeral())
	assert.Equal(t, "after", view[3].Text())

	for _, m := range s.Persisted() {
		assert.False(t, m.Ephemeral())
	}
	history, err := LoadHistory(ctx, st, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"before", "after"}, texts(history))
	for _, m := range history {
		assert.False(t, m.Ephemeral())
	}
}

func TestCardStaysAfterItsMessageWhenOlderMessageArrives(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	_, err := st.Commit(ctx,
		store.Merge("users/U1/chats/1/messages/a", map[string]any{"text": "first", "sender": "me", "type": "text", "timestamp": base}),
		store.Merge("users/U1/chats/1/messages/c", map[string]any{"text": "third", "sender": "admin", "type": "text", "timestamp": base.Add(2 * time.Minute)}),
	)
	require.NoError(t, err)

	s, views := openSession(t, st, userCtx("U1"), "U1", "1")
	waitForView(t, views, func(v []message.Message) bool { return len(v) == 2 })
	_, err = s.ShowProfile()
	require.NoError(t, err)

	// a delayed write lands between the two messages already shown
	_, err = st.Commit(ctx,
		store.Merge("users/U1/chats/1/messages/b", map[string]any{"text": "second", "sender": "me", "type": "text", "timestamp": base.Add(time.Minute)}),
	)
	require.NoError(t, err)
	view := waitForView(t, views, func(v []message.Message) bool { return len(v) == 4 })
	assert.Equal(t, "first", view[0].Text())
	assert.Equal(t, "second", view[1].Text())
	assert.Equal(t, "third", view[2].Text())
	assert.True(t, view[3].Ephemeral())
	assert.Equal(t, view, s.View())
}

func TestCardBeforeFirstMessage(t *testing.T) {
	st := store.NewMemory()
	ctx := userCtx("U1")
	s, views := openSession(t, st, ctx, "U1", "1")

	_, err := s.ShowQuestions()
	require.NoError(t, err)
	_, err = NewPipeline(st).Send(ctx, message.SenderMe, mustRef(t, "U1", "1"), "hello")
	require.NoError(t, err)

	view := waitForView(t, views, func(v []message.Message) bool { return len(v) == 2 })
	assert.True(t, view[0].Ephemeral())
	assert.Equal(t, "hello", view[1].Text())
}

func TestQuickActionIsDeliveredToOnUpdate(t *testing.T) {
	s, views := openSession(t, store.NewMemory(), userCtx("U1"), "U1", "1")
	waitForView(t, views, func(v []message.Message) bool { return len(v) == 0 })

	view, err := s.ShowProfile()
	require.NoError(t, err)
	delivered := waitForView(t, views, func(v []message.Message) bool { return len(v) == 1 })
	assert.Equal(t, view, delivered)
}

func TestLastDeliveredViewIsCurrent(t *testing.T) {
	st := store.NewMemory()
	p := NewPipeline(st)
	ctx := userCtx("U1")
	ref := mustRef(t, "U1", "1")

	var (
		mu   sync.Mutex
		last []message.Message
	)
	s, err := NewSynchronizer(st).Open(ctx, ref, func(v []message.Message) {
		mu.Lock()
		last = v
		mu.Unlock()
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	<-s.Ready()

	const sends = 20
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < sends; i++ {
			_, err := p.Send(ctx, message.SenderMe, ref, "hi")
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 3; i++ {
			_, err := s.ShowProfile()
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == sends+3 && assert.ObjectsAreEqual(last, s.View())
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQuickActionForUnknownCounterpart(t *testing.T) {
	s, _ := openSession(t, store.NewMemory(), userCtx("U1"), "U1", "3")
	_, err := s.ShowProfile()
	assert.ErrorIs(t, err, catalog.ErrUnknownCounterpart)
	_, err = s.ShowQuestions()
	assert.ErrorIs(t, err, catalog.ErrUnknownCounterpart)
	assert.Empty(t, s.View())
}

func TestCloseStopsCallbacks(t *testing.T) {
	st := store.NewMemory()
	p := NewPipeline(st)
	ref := mustRef(t, "U1", "1")

	s, views := openSession(t, st, userCtx("U1"), "U1", "1")
	require.Equal(t, 1, st.Listeners())

	s.Close()
	s.Close()
	assert.Equal(t, 0, st.Listeners())
	select {
	case <-s.Done():
	default:
		t.Fatal("session still running after Close")
	}

	// drain the initial snapshot
	for len(views) > 0 {
		<-views
	}
	_, err := p.Send(userCtx("U1"), message.SenderMe, ref, "Hello")
	require.NoError(t, err)
	select {
	case v := <-views:
		t.Fatalf("unexpected update after Close: %v", v)
	case <-time.After(100 * time.Millisecond):
	}

	_, err = s.ShowProfile()
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestContextCancelReleasesSubscription(t *testing.T) {
	st := store.NewMemory()
	ctx, cancel := context.WithCancel(userCtx("U1"))
	s, _ := openSession(t, st, ctx, "U1", "3")

	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session still running after cancel")
	}
	assert.Equal(t, 0, st.Listeners())
}

func TestLoadHistorySkipsInvalidDocuments(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	ref := mustRef(t, "U1", "3")
	_, err := st.Commit(ctx,
		store.Add(ref.MessagesPath(), map[string]any{"text": "ok", "sender": "me", "type": "text", "timestamp": store.ServerTimestamp}),
		store.Add(ref.MessagesPath(), map[string]any{"text": "bad", "sender": "robot", "type": "text", "timestamp": store.ServerTimestamp}),
	)
	require.NoError(t, err)

	history, err := LoadHistory(adminCtx(), st, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, texts(history))

	_, err = LoadHistory(userCtx("U2"), st, ref)
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = LoadHistory(userCtx("U1"), nil, ref)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
