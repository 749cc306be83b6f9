package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/klipach/mentorchat/auth"
	"github.com/klipach/mentorchat/conversation"
	"github.com/klipach/mentorchat/message"
	"github.com/klipach/mentorchat/store"
	"github.com/stretchr/testify/require"
)

var errUnavailable = errors.New("unavailable")

// failingStore rejects every commit.
type failingStore struct {
	store.Store
}

func (failingStore) Commit(context.Context, ...store.Write) ([]string, error) {
	return nil, errUnavailable
}

func userCtx(uid string) context.Context {
	return auth.WithRole(context.Background(), auth.User(uid))
}

func adminCtx() context.Context {
	return auth.WithRole(context.Background(), auth.Admin("A1"))
}

func mustRef(t *testing.T, userID, counterpartID string) conversation.Ref {
	t.Helper()
	ref, err := conversation.Resolve(userID, counterpartID)
	require.NoError(t, err)
	return ref
}

func waitForView(t *testing.T, views <-chan []message.Message, cond func([]message.Message) bool) []message.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-views:
			if cond(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for view")
			return nil
		}
	}
}

func texts(msgs []message.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text()
	}
	return out
}
