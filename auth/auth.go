package auth

import (
	"context"
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/klipach/mentorchat/contract"
)

const DefaultAdminClaim = contract.DefaultAdminClaim

type tokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// Verifier turns a Firebase ID token from the Authorization header into a Role.
type Verifier struct {
	client     tokenVerifier
	adminClaim string
}

// NewVerifier accepts *auth.Client or any other ID token verifier.
func NewVerifier(client tokenVerifier, adminClaim string) *Verifier {
	if adminClaim == "" {
		adminClaim = DefaultAdminClaim
	}
	return &Verifier{client: client, adminClaim: adminClaim}
}

func (v *Verifier) Authenticate(req *http.Request) (Role, *auth.Token, error) {
	jwtToken, err := bearerTokenFromRequest(req)
	if err != nil {
		return Guest(), nil, err
	}
	token, err := v.client.VerifyIDToken(req.Context(), jwtToken)
	if err != nil {
		return Guest(), nil, err
	}
	return RoleFromToken(token, v.adminClaim), token, nil
}

// RoleFromToken reads the admin custom claim set by cmd/gentoken -admin.
func RoleFromToken(token *auth.Token, adminClaim string) Role {
	if token == nil || token.UID == "" {
		return Guest()
	}
	if isAdmin, _ := token.Claims[adminClaim].(bool); isAdmin {
		return Admin(token.UID)
	}
	return User(token.UID)
}

// EmailFromToken returns the verified email claim, if any.
func EmailFromToken(token *auth.Token) string {
	if token == nil {
		return ""
	}
	email, _ := token.Claims["email"].(string)
	return email
}
