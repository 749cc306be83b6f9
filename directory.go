package mentorchat

import (
	"net/http"

	"github.com/klipach/mentorchat/audit"
	"github.com/klipach/mentorchat/auth"
	"github.com/klipach/mentorchat/contract"
	"github.com/klipach/mentorchat/directory"
)

// listDirectory returns every conversation across users, newest first. Admin only.
func (s *server) listDirectory(w http.ResponseWriter, r *http.Request) {
	ctx, _, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(ctx, w, r)
		return
	}

	entries, err := s.directory.Build(ctx)
	if err != nil {
		writeError(ctx, w, "error while building directory", err)
		return
	}
	s.audit.Record(ctx, audit.Event{
		Action: audit.ActionReadDirectory,
		Actor:  auth.RoleFromContext(ctx).UID(),
	})

	writeJSON(ctx, w, http.StatusOK, contract.DirectoryResponse{Entries: directoryEntries(entries)})
}

// listConversations returns the conversations of one user, newest first.
// user_id defaults to the caller; admins may read any user's list.
func (s *server) listConversations(w http.ResponseWriter, r *http.Request) {
	ctx, _, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(ctx, w, r)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = auth.RoleFromContext(ctx).UID()
	}
	entries, err := directory.ForUser(ctx, s.store, userID)
	if err != nil {
		writeError(ctx, w, "error while listing conversations", err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, contract.ConversationsResponse{Conversations: directoryEntries(entries)})
}

func directoryEntries(entries []directory.Entry) []contract.DirectoryEntry {
	out := make([]contract.DirectoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, contract.DirectoryEntry{
			UserID:          e.UserID,
			CounterpartID:   e.CounterpartID,
			DisplayName:     e.DisplayName,
			LastMessage:     e.LastMessage,
			LastMessageTime: e.LastMessageTime,
			UnreadCount:     e.UnreadCount,
		})
	}
	return out
}
