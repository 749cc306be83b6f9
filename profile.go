package mentorchat

import (
	"net/http"

	"github.com/klipach/mentorchat/auth"
	"github.com/klipach/mentorchat/contract"
	"github.com/klipach/mentorchat/profile"
)

// profile reads (GET), registers (POST) or renames (PATCH) the caller's profile.
// Admins may read any profile with ?user_id=.
func (s *server) profile(w http.ResponseWriter, r *http.Request) {
	ctx, token, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	uid := auth.RoleFromContext(ctx).UID()

	var (
		p    *profile.Profile
		err  error
		code = http.StatusOK
	)
	switch r.Method {
	case http.MethodGet:
		if q := r.URL.Query().Get("user_id"); q != "" {
			uid = q
		}
		p, err = s.profiles.Get(ctx, uid)
	case http.MethodPost:
		var req contract.ProfileRequest
		if err = readJSON(r, &req); err == nil {
			if req.Email == "" {
				req.Email = auth.EmailFromToken(token)
			}
			p, err = s.profiles.Register(ctx, uid, req.Nickname, req.Email)
			code = http.StatusCreated
		}
	case http.MethodPatch:
		var req contract.ProfileRequest
		if err = readJSON(r, &req); err == nil {
			p, err = s.profiles.Rename(ctx, uid, req.Nickname)
		}
	default:
		methodNotAllowed(ctx, w, r)
		return
	}
	if err != nil {
		writeError(ctx, w, "error while handling profile", err)
		return
	}
	writeJSON(ctx, w, code, contract.ProfileResponse{
		UserID:    p.UserID,
		Nickname:  p.Nickname,
		Email:     p.Email,
		CreatedAt: p.CreatedAt,
	})
}
