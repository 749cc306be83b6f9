package directory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/klipach/mentorchat/auth"
	"github.com/klipach/mentorchat/contract"
	"github.com/klipach/mentorchat/conversation"
	"github.com/klipach/mentorchat/log"
	"github.com/klipach/mentorchat/store"
)

// ForUser lists the conversations of one user, newest first, from the
// summaries under users/{userId}/chats. The user or an admin may read it.
func ForUser(ctx context.Context, st store.Store, userID string) ([]Entry, error) {
	if st == nil {
		return nil, ErrStoreUnavailable
	}
	userID, err := conversation.ResolveUser(userID)
	if err != nil {
		return nil, err
	}
	if err := auth.AuthorizeOwner(auth.RoleFromContext(ctx), userID); err != nil {
		return nil, err
	}
	logger := log.LoggerFromContext(ctx)

	docs, err := st.Query(ctx, store.Query{
		Collection: conversation.ChatsPath(userID),
		OrderBy:    contract.FieldLastMessageTime,
		Dir:        store.Desc,
	})
	if err != nil {
		return nil, fmt.Errorf("read conversations of %s: %w", userID, err)
	}
	entries := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		data := make(map[string]any, len(doc.Data)+2)
		for k, v := range doc.Data {
			data[k] = v
		}
		// summaries are keyed by counterpart and do not repeat the owner
		data[contract.FieldUserID] = userID
		data[contract.FieldCounterpartID] = doc.ID
		entry, err := decodeEntry(data)
		if err != nil {
			logger.Warn("skipping conversation summary", slog.String(pathLogField, doc.Path), slog.String(errorMsgLogField, err.Error()))
			continue
		}
		entries = append(entries, entry)
	}
	Sort(entries)
	return entries, nil
}
