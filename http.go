package mentorchat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/klipach/mentorchat/auth"
	"github.com/klipach/mentorchat/catalog"
	"github.com/klipach/mentorchat/chat"
	"github.com/klipach/mentorchat/conversation"
	"github.com/klipach/mentorchat/directory"
	"github.com/klipach/mentorchat/log"
	"github.com/klipach/mentorchat/profile"
)

var errBadRequest = errors.New("bad request")

// authenticate attaches the trace, the caller's role and a request logger to
// the returned context. It writes 401 and returns false on failure.
func (s *server) authenticate(w http.ResponseWriter, r *http.Request) (context.Context, *fbauth.Token, bool) {
	ctx := log.WithTrace(r.Context(), r, s.cfg.ProjectID)
	logger := log.LoggerFromContext(ctx).With(slog.String(methodLogField, r.Method))

	role, token, err := s.verifier.Authenticate(r)
	if err != nil {
		logger.ErrorContext(ctx, "error while authenticating", slog.String(errorMsgLogField, err.Error()))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, nil, false
	}
	logger = logger.With(
		slog.String(userIDLogField, role.UID()),
		slog.String(roleLogField, role.Kind().String()),
	)
	ctx = auth.WithRole(ctx, role)
	ctx = log.WithLogger(ctx, logger)
	return ctx, token, true
}

// resolve defaults the user id to the caller's own.
func resolve(ctx context.Context, userID, counterpartID string) (conversation.Ref, error) {
	if userID == "" {
		userID = auth.RoleFromContext(ctx).UID()
	}
	return conversation.Resolve(userID, counterpartID)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, conversation.ErrMissingUser),
		errors.Is(err, conversation.ErrMissingCounterpart),
		errors.Is(err, conversation.ErrInvalidID),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, profile.ErrEmptyNickname):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, profile.ErrNotFound),
		errors.Is(err, catalog.ErrUnknownCounterpart),
		errors.Is(err, catalog.ErrNoQuestions):
		return http.StatusNotFound
	case errors.Is(err, profile.ErrExists):
		return http.StatusConflict
	case errors.Is(err, chat.ErrStoreUnavailable),
		errors.Is(err, directory.ErrStoreUnavailable),
		errors.Is(err, profile.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	code := statusFor(err)
	logger := log.LoggerFromContext(ctx)
	if code >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, msg, slog.String(errorMsgLogField, err.Error()))
	} else {
		logger.WarnContext(ctx, msg, slog.String(errorMsgLogField, err.Error()))
	}
	http.Error(w, http.StatusText(code), code)
}

func readJSON(r *http.Request, v any) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

func writeJSON(ctx context.Context, w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.LoggerFromContext(ctx).ErrorContext(ctx, "error while writing response", slog.String(errorMsgLogField, err.Error()))
	}
}

func methodNotAllowed(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log.LoggerFromContext(ctx).ErrorContext(ctx, "invalid method: "+r.Method)
	http.Error(w, "Method Not Implemented", http.StatusNotImplemented)
}
