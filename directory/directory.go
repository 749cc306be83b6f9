// Package directory builds the admin view of all conversations across users,
// newest first.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/klipach/mentorchat/auth"
	"github.com/klipach/mentorchat/catalog"
	"github.com/klipach/mentorchat/contract"
	"github.com/klipach/mentorchat/conversation"
	"github.com/klipach/mentorchat/log"
	"github.com/klipach/mentorchat/message"
	"github.com/klipach/mentorchat/store"
)

const (
	errorMsgLogField = "errorMsg"
	pathLogField     = "path"
)

var (
	ErrUnknownMode      = errors.New("unknown directory mode")
	ErrStoreUnavailable = errors.New("store unavailable")
)

type Mode string

const (
	// ModeIndex reads the denormalized directory collection.
	ModeIndex Mode = contract.DirectoryModeIndex
	// ModeRescan walks every user, conversation and latest message.
	ModeRescan Mode = contract.DirectoryModeRescan
)

// Entry is one conversation in the admin directory. It is derived and never stored.
type Entry struct {
	UserID          string
	CounterpartID   string
	DisplayName     string
	LastMessage     string
	LastMessageTime *time.Time
	UnreadCount     int
}

type Builder interface {
	Build(ctx context.Context) ([]Entry, error)
}

// New returns the builder for mode; an empty mode selects ModeIndex.
func New(mode Mode, st store.Store) (Builder, error) {
	switch mode {
	case ModeIndex, "":
		return NewIndex(st), nil
	case ModeRescan:
		return NewRescan(st), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// Sort orders entries by LastMessageTime descending. Entries without a
// timestamp go after all others; equal entries keep their order.
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].LastMessageTime, entries[j].LastMessageTime
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

func authorize(ctx context.Context, st store.Store) error {
	if st == nil {
		return ErrStoreUnavailable
	}
	return auth.AuthorizeAdmin(auth.RoleFromContext(ctx))
}

// Rescan recomputes the directory from raw messages. It costs one round trip
// per user plus two per conversation.
type Rescan struct {
	store store.Store
}

func NewRescan(st store.Store) *Rescan {
	return &Rescan{store: st}
}

func (r *Rescan) Build(ctx context.Context) ([]Entry, error) {
	if err := authorize(ctx, r.store); err != nil {
		return nil, err
	}
	logger := log.LoggerFromContext(ctx)

	userIDs, err := r.store.ListIDs(ctx, conversation.UsersCollection)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var entries []Entry
	for _, uid := range userIDs {
		counterpartIDs, err := r.store.ListIDs(ctx, conversation.ChatsPath(uid))
		if err != nil {
			return nil, fmt.Errorf("list conversations of %s: %w", uid, err)
		}
		for _, cid := range counterpartIDs {
			ref, err := conversation.Resolve(uid, cid)
			if err != nil {
				logger.Warn("skipping conversation", slog.String(pathLogField, store.Join(conversation.ChatsPath(uid), cid)), slog.String(errorMsgLogField, err.Error()))
				continue
			}
			entry, ok, err := r.latest(ctx, logger, ref)
			if err != nil {
				return nil, err
			}
			if ok {
				entries = append(entries, entry)
			}
		}
	}
	Sort(entries)
	return entries, nil
}

// latest reports false for conversations without messages.
func (r *Rescan) latest(ctx context.Context, logger *slog.Logger, ref conversation.Ref) (Entry, bool, error) {
	docs, err := r.store.Query(ctx, store.Query{
		Collection: ref.MessagesPath(),
		OrderBy:    contract.FieldTimestamp,
		Dir:        store.Desc,
		Limit:      1,
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("latest message of %s: %w", ref, err)
	}
	if len(docs) == 0 {
		return Entry{}, false, nil
	}
	m, err := message.Decode(docs[0].ID, docs[0].Data)
	if err != nil {
		logger.Warn("skipping invalid message", slog.String(pathLogField, docs[0].Path), slog.String(errorMsgLogField, err.Error()))
		return Entry{}, false, nil
	}
	return Entry{
		UserID:          ref.UserID,
		CounterpartID:   ref.CounterpartID,
		DisplayName:     catalog.DisplayName(ref.CounterpartID),
		LastMessage:     m.Text(),
		LastMessageTime: m.Timestamp,
	}, true, nil
}

// Index reads the directory collection maintained by every send.
type Index struct {
	store store.Store
}

func NewIndex(st store.Store) *Index {
	return &Index{store: st}
}

func (x *Index) Build(ctx context.Context) ([]Entry, error) {
	if err := authorize(ctx, x.store); err != nil {
		return nil, err
	}
	logger := log.LoggerFromContext(ctx)

	docs, err := x.store.Query(ctx, store.Query{
		Collection: conversation.DirectoryCollection,
		OrderBy:    contract.FieldLastMessageTime,
		Dir:        store.Desc,
	})
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	entries := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		entry, err := decodeEntry(doc.Data)
		if err != nil {
			logger.Warn("skipping directory entry", slog.String(pathLogField, doc.Path), slog.String(errorMsgLogField, err.Error()))
			continue
		}
		entries = append(entries, entry)
	}
	Sort(entries)
	return entries, nil
}

func decodeEntry(data map[string]any) (Entry, error) {
	uid, _ := data[contract.FieldUserID].(string)
	cid, _ := data[contract.FieldCounterpartID].(string)
	ref, err := conversation.Resolve(uid, cid)
	if err != nil {
		return Entry{}, err
	}
	text, _ := data[contract.FieldLastMessage].(string)
	entry := Entry{
		UserID:        ref.UserID,
		CounterpartID: ref.CounterpartID,
		DisplayName:   catalog.DisplayName(ref.CounterpartID),
		LastMessage:   text,
	}
	if ts, ok := data[contract.FieldLastMessageTime].(time.Time); ok && !ts.IsZero() {
		ts = ts.UTC()
		entry.LastMessageTime = &ts
	}
	return entry, nil
}

// maxBatch is the Firestore limit of writes per commit.
const maxBatch = 500

// Backfill writes entries to the directory collection, e.g. the result of a
// Rescan over conversations that predate the index. Entries without a
// timestamp are skipped.
func Backfill(ctx context.Context, st store.Store, entries []Entry) (int, error) {
	if err := authorize(ctx, st); err != nil {
		return 0, err
	}
	var (
		writes  []store.Write
		written int
	)
	flush := func() error {
		if len(writes) == 0 {
			return nil
		}
		if _, err := st.Commit(ctx, writes...); err != nil {
			return fmt.Errorf("backfill directory: %w", err)
		}
		written += len(writes)
		writes = writes[:0]
		return nil
	}
	for _, e := range entries {
		if e.LastMessageTime == nil {
			continue
		}
		ref, err := conversation.Resolve(e.UserID, e.CounterpartID)
		if err != nil {
			return written, err
		}
		writes = append(writes, store.Merge(ref.DirectoryPath(), map[string]any{
			contract.FieldUserID:          ref.UserID,
			contract.FieldCounterpartID:   ref.CounterpartID,
			contract.FieldLastMessage:     e.LastMessage,
			contract.FieldLastMessageTime: *e.LastMessageTime,
			contract.FieldUpdatedAt:       store.ServerTimestamp,
		}))
		if len(writes) == maxBatch {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	return written, flush()
}
