package mentorchat

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/klipach/mentorchat/audit"
	"github.com/klipach/mentorchat/auth"
	"github.com/klipach/mentorchat/contract"
	"github.com/klipach/mentorchat/log"
	"github.com/klipach/mentorchat/message"
)

func (s *server) sendMessage(w http.ResponseWriter, r *http.Request) {
	ctx, _, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(ctx, w, r)
		return
	}

	var req contract.SendRequest
	if err := readJSON(r, &req); err != nil {
		writeError(ctx, w, "error while decoding request", err)
		return
	}
	side, err := sideOf(req.As)
	if err != nil {
		writeError(ctx, w, "error while decoding request", err)
		return
	}
	ref, err := resolve(ctx, req.UserID, req.CounterpartID)
	if err != nil {
		writeError(ctx, w, "error while resolving conversation", err)
		return
	}
	ctx = log.WithLogger(ctx, log.LoggerFromContext(ctx).With(slog.String(counterpartIDLogField, ref.CounterpartID)))

	id, err := s.pipeline.Send(ctx, side, ref, req.Text)
	if err != nil {
		writeError(ctx, w, "error while sending message", err)
		return
	}
	if side == message.SenderAdmin {
		s.audit.Record(ctx, audit.Event{
			Action: audit.ActionSendMessage,
			Actor:  auth.RoleFromContext(ctx).UID(),
			Target: ref.MessagesPath() + "/" + id,
		})
	}
	writeJSON(ctx, w, http.StatusOK, contract.SendResponse{MessageID: id})
}

func sideOf(as string) (message.Sender, error) {
	switch message.Sender(as) {
	case "", message.SenderMe:
		return message.SenderMe, nil
	case message.SenderAdmin:
		return message.SenderAdmin, nil
	default:
		return "", fmt.Errorf("%w: cannot send as %q", errBadRequest, as)
	}
}
