package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/klipach/mentorchat/auth"
	"github.com/klipach/mentorchat/contract"
	"github.com/klipach/mentorchat/conversation"
	"github.com/klipach/mentorchat/log"
	"github.com/klipach/mentorchat/message"
	"github.com/klipach/mentorchat/store"
)

var ErrEmptyMessage = errors.New("empty message")

// Pipeline writes messages together with the conversation summary and the
// directory index entry.
type Pipeline struct {
	store store.Store
}

func NewPipeline(st store.Store) *Pipeline {
	return &Pipeline{store: st}
}

// Send appends a text message to the conversation as side, which must be
// SenderMe for the owning user or SenderAdmin for an admin. All writes are
// committed together; a failed send is logged and returned, never retried.
func (p *Pipeline) Send(ctx context.Context, side message.Sender, ref conversation.Ref, text string) (string, error) {
	if p == nil || p.store == nil {
		return "", ErrStoreUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}
	if err := authorizeSend(auth.RoleFromContext(ctx), side, ref); err != nil {
		return "", err
	}

	logger := log.LoggerFromContext(ctx).With(
		slog.String(userIDLogField, ref.UserID),
		slog.String(counterpartIDLogField, ref.CounterpartID),
		slog.String(senderLogField, string(side)),
	)

	var writes []store.Write
	// the summary document only follows the user side
	if side == message.SenderMe {
		writes = append(writes, summaryWrite(ref, text))
	}
	msgIdx := len(writes)
	writes = append(writes,
		store.Add(ref.MessagesPath(), message.NewTextDocument(side, text)),
		directoryWrite(ref, text),
	)

	paths, err := p.store.Commit(ctx, writes...)
	if err != nil {
		logger.Error("error while sending message", slog.String(errorMsgLogField, err.Error()))
		return "", fmt.Errorf("send message to %s: %w", ref, err)
	}
	id := path.Base(paths[msgIdx])
	logger.Info("message sent", slog.String(messageIDLogField, id))
	return id, nil
}

// UpsertSummary merges the summary document of ref; repeated calls keep a single document.
func (p *Pipeline) UpsertSummary(ctx context.Context, ref conversation.Ref, text string) error {
	if p == nil || p.store == nil {
		return ErrStoreUnavailable
	}
	if err := auth.AuthorizeSelf(auth.RoleFromContext(ctx), ref.UserID); err != nil {
		return err
	}
	_, err := p.store.Commit(ctx, summaryWrite(ref, text))
	return err
}

func authorizeSend(role auth.Role, side message.Sender, ref conversation.Ref) error {
	switch side {
	case message.SenderMe:
		return auth.AuthorizeSelf(role, ref.UserID)
	case message.SenderAdmin:
		return auth.AuthorizeAdmin(role)
	default:
		return fmt.Errorf("%w: cannot send as %q", auth.ErrForbidden, side)
	}
}

func summaryWrite(ref conversation.Ref, text string) store.Write {
	return store.Merge(ref.SummaryPath(), map[string]any{
		contract.FieldCounterpartID:   ref.CounterpartID,
		contract.FieldLastMessage:     text,
		contract.FieldLastMessageTime: store.ServerTimestamp,
		contract.FieldUpdatedAt:       store.ServerTimestamp,
	})
}

func directoryWrite(ref conversation.Ref, text string) store.Write {
	return store.Merge(ref.DirectoryPath(), map[string]any{
		contract.FieldUserID:          ref.UserID,
		contract.FieldCounterpartID:   ref.CounterpartID,
		contract.FieldLastMessage:     text,
		contract.FieldLastMessageTime: store.ServerTimestamp,
		contract.FieldUpdatedAt:       store.ServerTimestamp,
	})
}

// Composer is the input buffer of a conversation view.
type Composer struct {
	Pipeline *Pipeline
	Side     message.Sender
	Ref      conversation.Ref
	Input    string
}

// Submit sends Input and clears it on success; on failure Input is kept for a manual retry.
func (c *Composer) Submit(ctx context.Context) (string, error) {
	id, err := c.Pipeline.Send(ctx, c.Side, c.Ref, c.Input)
	if err != nil {
		return "", err
	}
	c.Input = ""
	return id, nil
}
