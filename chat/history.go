package chat

import (
	"context"
	"errors"
	"log/slog"

	"github.com/klipach/mentorchat/auth"
	"github.com/klipach/mentorchat/contract"
	"github.com/klipach/mentorchat/conversation"
	"github.com/klipach/mentorchat/log"
	"github.com/klipach/mentorchat/message"
	"github.com/klipach/mentorchat/store"
)

const (
	errorMsgLogField      = "errorMsg"
	userIDLogField        = "userID"
	counterpartIDLogField = "counterpartID"
	messageIDLogField     = "messageID"
	senderLogField        = "sender"
)

// ErrStoreUnavailable means the store client was never configured.
var ErrStoreUnavailable = errors.New("store unavailable")

// LoadHistory reads the persisted messages of a conversation once, oldest first.
func LoadHistory(ctx context.Context, st store.Store, ref conversation.Ref) ([]message.Message, error) {
	if st == nil {
		return nil, ErrStoreUnavailable
	}
	if err := auth.AuthorizeOwner(auth.RoleFromContext(ctx), ref.UserID); err != nil {
		return nil, err
	}
	docs, err := st.Query(ctx, messagesQuery(ref))
	if err != nil {
		return nil, err
	}
	return decodeAll(log.LoggerFromContext(ctx), docs), nil
}

func messagesQuery(ref conversation.Ref) store.Query {
	return store.Query{
		Collection: ref.MessagesPath(),
		OrderBy:    contract.FieldTimestamp,
		Dir:        store.Asc,
	}
}

// decodeAll skips documents that are not valid messages.
func decodeAll(logger *slog.Logger, docs []store.Document) []message.Message {
	msgs := make([]message.Message, 0, len(docs))
	for _, doc := range docs {
		m, err := message.Decode(doc.ID, doc.Data)
		if err != nil {
			logger.Warn("skipping invalid message", slog.String(errorMsgLogField, err.Error()))
			continue
		}
		msgs = append(msgs, m)
	}
	message.SortByTimestamp(msgs)
	return msgs
}
