// Package profile stores the optional user profile record created on first sign-in.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/klipach/mentorchat/auth"
	"github.com/klipach/mentorchat/contract"
	"github.com/klipach/mentorchat/conversation"
	"github.com/klipach/mentorchat/log"
	"github.com/klipach/mentorchat/store"
)

const (
	errorMsgLogField = "errorMsg"
	userIDLogField   = "userID"
)

var (
	ErrNotFound         = errors.New("profile not found")
	ErrExists           = errors.New("profile already exists")
	ErrEmptyNickname    = errors.New("empty nickname")
	ErrStoreUnavailable = errors.New("store unavailable")
)

type Profile struct {
	UserID    string
	Nickname  string
	Email     string
	CreatedAt *time.Time
}

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Get is allowed for the owner and for admins.
func (s *Service) Get(ctx context.Context, userID string) (*Profile, error) {
	docPath, err := s.path(userID)
	if err != nil {
		return nil, err
	}
	if err := auth.AuthorizeOwner(auth.RoleFromContext(ctx), userID); err != nil {
		return nil, err
	}
	doc, err := s.store.Get(ctx, docPath)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(userID, doc.Data), nil
}

// Register creates the profile unless one exists.
func (s *Service) Register(ctx context.Context, userID, nickname, email string) (*Profile, error) {
	docPath, err := s.path(userID)
	if err != nil {
		return nil, err
	}
	if err := auth.AuthorizeSelf(auth.RoleFromContext(ctx), userID); err != nil {
		return nil, err
	}
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, ErrEmptyNickname
	}

	_, err = s.store.Commit(ctx, store.Create(docPath, map[string]any{
		contract.FieldNickname:  nickname,
		contract.FieldEmail:     strings.TrimSpace(email),
		contract.FieldCreatedAt: store.ServerTimestamp,
	}))
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil, ErrExists
	}
	if err != nil {
		log.LoggerFromContext(ctx).Error("error while creating profile",
			slog.String(userIDLogField, userID),
			slog.String(errorMsgLogField, err.Error()),
		)
		return nil, fmt.Errorf("create profile %s: %w", userID, err)
	}
	return s.Get(ctx, userID)
}

// Rename changes the nickname, the only mutable field.
func (s *Service) Rename(ctx context.Context, userID, nickname string) (*Profile, error) {
	docPath, err := s.path(userID)
	if err != nil {
		return nil, err
	}
	if err := auth.AuthorizeSelf(auth.RoleFromContext(ctx), userID); err != nil {
		return nil, err
	}
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, ErrEmptyNickname
	}
	if _, err := s.store.Get(ctx, docPath); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if _, err := s.store.Commit(ctx, store.Merge(docPath, map[string]any{contract.FieldNickname: nickname})); err != nil {
		return nil, fmt.Errorf("rename profile %s: %w", userID, err)
	}
	return s.Get(ctx, userID)
}

func (s *Service) path(userID string) (string, error) {
	if s == nil || s.store == nil {
		return "", ErrStoreUnavailable
	}
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.Contains(userID, "/") {
		return "", conversation.ErrMissingUser
	}
	return conversation.UserPath(userID), nil
}

func decode(userID string, data map[string]any) *Profile {
	p := &Profile{UserID: userID}
	p.Nickname, _ = data[contract.FieldNickname].(string)
	p.Email, _ = data[contract.FieldEmail].(string)
	if ts, ok := data[contract.FieldCreatedAt].(time.Time); ok {
		p.CreatedAt = &ts
	}
	return p
}
