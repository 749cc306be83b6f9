package mentorchat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/klipach/mentorchat/catalog"
	"github.com/klipach/mentorchat/chat"
	"github.com/klipach/mentorchat/contract"
	"github.com/klipach/mentorchat/log"
	"github.com/klipach/mentorchat/message"
	"github.com/klipach/mentorchat/render"
)

const (
	quickActionProfile   = "profile"
	quickActionQuestions = "questions"

	quickActionLogField = "quickAction"
)

// messages streams the conversation as server-sent events, one event per
// change of the view. With stream=false it returns the history once.
func (s *server) messages(w http.ResponseWriter, r *http.Request) {
	ctx, _, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(ctx, w, r)
		return
	}

	q := r.URL.Query()
	ref, err := resolve(ctx, q.Get("user_id"), q.Get("counterpart_id"))
	if err != nil {
		writeError(ctx, w, "error while resolving conversation", err)
		return
	}
	logger := log.LoggerFromContext(ctx).With(slog.String(counterpartIDLogField, ref.CounterpartID))
	ctx = log.WithLogger(ctx, logger)

	if q.Get("stream") == "false" {
		history, err := chat.LoadHistory(ctx, s.store, ref)
		if err != nil {
			writeError(ctx, w, "error while loading chat history", err)
			return
		}
		writeJSON(ctx, w, http.StatusOK, contract.MessagesEvent{Messages: views(history, s.cfg.Location)})
		return
	}

	quickAction := q.Get("quick_action")
	if err := checkQuickAction(quickAction, ref.CounterpartID); err != nil {
		writeError(ctx, w, "invalid quick action", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming unsupported!")
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	// set SSE headers for streaming
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	emit := setupStreamingFunction(w, flusher, s.cfg.Location)

	session, err := s.sync.Open(ctx, ref, func(msgs []message.Message) {
		if err := emit(msgs); err != nil {
			logger.Warn("error while writing event", slog.String(errorMsgLogField, err.Error()))
			cancel()
		}
	})
	if err != nil {
		writeError(ctx, w, "error while opening conversation", err)
		return
	}
	defer session.Close()

	select {
	case <-session.Ready():
	case <-session.Done():
		return
	case <-ctx.Done():
		return
	}

	// the session delivers the card view through emit
	if quickAction != "" {
		if err := applyQuickAction(session, quickAction); err != nil {
			logger.Error("error while applying quick action", slog.String(quickActionLogField, quickAction), slog.String(errorMsgLogField, err.Error()))
		}
	}

	select {
	case <-ctx.Done():
	case <-session.Done():
	}
}

// setupStreamingFunction returns a writer of SSE events. The session never
// calls it concurrently.
func setupStreamingFunction(w io.Writer, flusher http.Flusher, loc *time.Location) func([]message.Message) error {
	return func(msgs []message.Message) error {
		jsonData, err := json.Marshal(contract.MessagesEvent{Messages: views(msgs, loc)})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
}

func checkQuickAction(action, counterpartID string) error {
	var err error
	switch action {
	case "":
	case quickActionProfile:
		_, err = catalog.ProfileCard(counterpartID)
	case quickActionQuestions:
		_, err = catalog.QuestionList(counterpartID)
	default:
		err = fmt.Errorf("%w: unknown quick action %q", errBadRequest, action)
	}
	return err
}

func applyQuickAction(session *chat.Session, action string) error {
	var err error
	if action == quickActionQuestions {
		_, err = session.ShowQuestions()
	} else {
		_, err = session.ShowProfile()
	}
	return err
}

// views adds date separators in loc and renders the text of every message.
func views(msgs []message.Message, loc *time.Location) []contract.MessageView {
	msgs = message.WithDateSeparators(msgs, loc)
	out := make([]contract.MessageView, 0, len(msgs))
	for _, m := range msgs {
		v := contract.MessageView{
			ID:        m.ID,
			Sender:    string(m.Sender),
			Type:      string(m.Kind()),
			Text:      m.Text(),
			HTML:      render.HTML(m.Text()),
			Timestamp: m.Timestamp,
			Ephemeral: m.Ephemeral(),
		}
		if a, ok := m.Content.(message.Audio); ok {
			v.Duration = a.Duration
		}
		out = append(out, v)
	}
	return out
}
