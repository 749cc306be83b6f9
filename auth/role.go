package auth

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

type Kind int

const (
	KindGuest Kind = iota
	KindUser
	KindAdmin
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindAdmin:
		return "admin"
	default:
		return "guest"
	}
}

// Role is the verified identity of a caller: Guest, User(id) or Admin(id).
// The zero value is Guest.
type Role struct {
	kind Kind
	uid  string
}

func Guest() Role { return Role{} }

func User(uid string) Role {
	if uid == "" {
		return Guest()
	}
	return Role{kind: KindUser, uid: uid}
}

func Admin(uid string) Role {
	if uid == "" {
		return Guest()
	}
	return Role{kind: KindAdmin, uid: uid}
}

func (r Role) Kind() Kind     { return r.kind }
func (r Role) UID() string    { return r.uid }
func (r Role) IsGuest() bool  { return r.kind == KindGuest }
func (r Role) IsAdmin() bool  { return r.kind == KindAdmin }
func (r Role) String() string { return fmt.Sprintf("%s(%s)", r.kind, r.uid) }

type roleKey struct{}

func WithRole(ctx context.Context, r Role) context.Context {
	return context.WithValue(ctx, roleKey{}, r)
}

// RoleFromContext returns Guest when no role was attached.
func RoleFromContext(ctx context.Context) Role {
	r, _ := ctx.Value(roleKey{}).(Role)
	return r
}

// AuthorizeOwner allows the owning user and admins.
func AuthorizeOwner(r Role, ownerUID string) error {
	switch r.kind {
	case KindAdmin:
		return nil
	case KindUser:
		if r.uid == ownerUID {
			return nil
		}
		return fmt.Errorf("%w: %s may not access %s", ErrForbidden, r, ownerUID)
	default:
		return ErrUnauthenticated
	}
}

// AuthorizeSelf allows only the owning user, acting as themselves.
func AuthorizeSelf(r Role, ownerUID string) error {
	if r.IsGuest() {
		return ErrUnauthenticated
	}
	if r.uid != ownerUID {
		return fmt.Errorf("%w: %s may not act as %s", ErrForbidden, r, ownerUID)
	}
	return nil
}

func AuthorizeAdmin(r Role) error {
	switch r.kind {
	case KindAdmin:
		return nil
	case KindUser:
		return fmt.Errorf("%w: %s is not an admin", ErrForbidden, r)
	default:
		return ErrUnauthenticated
	}
}
