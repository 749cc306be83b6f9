package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klipach/mentorchat/auth"
	"github.com/klipach/mentorchat/catalog"
	"github.com/klipach/mentorchat/conversation"
	"github.com/klipach/mentorchat/log"
	"github.com/klipach/mentorchat/message"
	"github.com/klipach/mentorchat/store"
)

var ErrSessionClosed = errors.New("session closed")

// Synchronizer opens live views of conversations.
type Synchronizer struct {
	store store.Store
	now   func() time.Time
}

func NewSynchronizer(st store.Store) *Synchronizer {
	return &Synchronizer{store: st, now: time.Now}
}

// Open subscribes to the conversation's messages ordered by timestamp.
// onUpdate receives the merged view after every snapshot and quick action;
// calls never overlap. It must not call Close, ShowProfile or ShowQuestions.
func (s *Synchronizer) Open(ctx context.Context, ref conversation.Ref, onUpdate func([]message.Message)) (*Session, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreUnavailable
	}
	if err := auth.AuthorizeOwner(auth.RoleFromContext(ctx), ref.UserID); err != nil {
		return nil, err
	}

	logger := log.LoggerFromContext(ctx).With(
		slog.String(userIDLogField, ref.UserID),
		slog.String(counterpartIDLogField, ref.CounterpartID),
	)
	ctx, cancel := context.WithCancel(ctx)
	listener, err := s.store.Listen(ctx, messagesQuery(ref))
	if err != nil {
		cancel()
		return nil, err
	}

	session := &Session{
		ref:      ref,
		now:      s.now,
		logger:   logger,
		listener: listener,
		cancel:   cancel,
		onUpdate: onUpdate,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	go session.run(ctx)
	return session, nil
}

type anchored struct {
	// afterID is the last persisted message shown when msg was inserted;
	// empty means msg was inserted before any persisted message.
	afterID string
	msg     message.Message
}

// Session is one open conversation view: the persisted messages from the
// latest snapshot merged with ephemeral cards inserted by quick actions.
type Session struct {
	ref      conversation.Ref
	now      func() time.Time
	logger   *slog.Logger
	listener store.Listener
	cancel   context.CancelFunc
	onUpdate func([]message.Message)

	// deliver serializes every onUpdate call, from snapshots and quick actions.
	deliver sync.Mutex

	mu        sync.Mutex
	persisted []message.Message
	ephemeral []anchored
	closed    bool

	readyOnce sync.Once
	ready     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	for {
		docs, err := s.listener.Next()
		if err != nil {
			if !errors.Is(err, store.ErrStopped) && ctx.Err() == nil {
				s.logger.Error("error while listening to messages", slog.String(errorMsgLogField, err.Error()))
			}
			return
		}
		msgs := decodeAll(s.logger, docs)

		// every snapshot replaces the persisted list
		if !s.apply(func() { s.persisted = msgs }) {
			return
		}
		s.readyOnce.Do(func() { close(s.ready) })
	}
}

// apply changes the session state and delivers the resulting view before any
// other change can be delivered. It reports false once the session is closed.
func (s *Session) apply(change func()) bool {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	change()
	view := s.viewLocked()
	s.mu.Unlock()

	if s.onUpdate != nil {
		s.onUpdate(view)
	}
	return true
}

// Ready is closed once the first snapshot has been applied and delivered to onUpdate.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Done is closed when the session stopped receiving snapshots.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Ref() conversation.Ref {
	return s.ref
}

// View returns persisted and ephemeral messages in display order.
func (s *Session) View() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Persisted returns only the messages of the latest snapshot.
func (s *Session) Persisted() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.Message(nil), s.persisted...)
}

func (s *Session) viewLocked() []message.Message {
	out := make([]message.Message, 0, len(s.persisted)+len(s.ephemeral))
	byAnchor := make(map[string][]message.Message, len(s.ephemeral))
	for _, e := range s.ephemeral {
		byAnchor[e.afterID] = append(byAnchor[e.afterID], e.msg)
	}
	out = append(out, byAnchor[""]...)
	delete(byAnchor, "")
	for _, m := range s.persisted {
		out = append(out, m)
		out = append(out, byAnchor[m.ID]...)
		delete(byAnchor, m.ID)
	}
	// cards whose anchor left the snapshot stay at the end
	for _, e := range s.ephemeral {
		if _, ok := byAnchor[e.afterID]; ok {
			out = append(out, e.msg)
		}
	}
	return out
}

// ShowProfile appends the counterpart's profile card to the end of the view.
func (s *Session) ShowProfile() ([]message.Message, error) {
	text, err := catalog.ProfileCard(s.ref.CounterpartID)
	if err != nil {
		return nil, err
	}
	return s.appendEphemeral(text)
}

// ShowQuestions appends the counterpart's recommended questions to the end of the view.
func (s *Session) ShowQuestions() ([]message.Message, error) {
	text, err := catalog.QuestionList(s.ref.CounterpartID)
	if err != nil {
		return nil, err
	}
	return s.appendEphemeral(text)
}

// appendEphemeral anchors the card after the last persisted message shown now
// and delivers the new view to onUpdate. Later snapshots keep the card right
// after that message, even when they contain older messages.
func (s *Session) appendEphemeral(text string) ([]message.Message, error) {
	now := s.now().UTC()
	card := message.Message{
		ID:        message.EphemeralPrefix + uuid.NewString(),
		Sender:    message.SenderOther,
		Timestamp: &now,
		Content:   message.Text{Body: text},
	}
	var view []message.Message
	ok := s.apply(func() {
		var afterID string
		if n := len(s.persisted); n > 0 {
			afterID = s.persisted[n-1].ID
		}
		s.ephemeral = append(s.ephemeral, anchored{afterID: afterID, msg: card})
		view = s.viewLocked()
	})
	if !ok {
		return nil, ErrSessionClosed
	}
	return view, nil
}

// Close releases the live subscription. No onUpdate call happens after Close returns.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		s.listener.Stop()
		<-s.done
		// a quick action may still be delivering
		s.deliver.Lock()
		s.deliver.Unlock()
	})
}
