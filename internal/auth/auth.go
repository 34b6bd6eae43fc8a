package auth

import (
	"context"
	"errors"

	"github.com/lattice-im/lattice/internal/crypto"
	"github.com/lattice-im/lattice/internal/types"
)

// ErrUnknownToken is returned when a credential is recognizably invalid
// (expired, malformed, or signed by an unknown key), as opposed to an
// internal failure while checking it.
var ErrUnknownToken = errors.New("unknown access token")

// Auth resolves access tokens to authenticated identities.
type Auth interface {
	// GetUserByAccessToken validates token and returns the requester it
	// belongs to. Returns ErrUnknownToken for invalid credentials.
	GetUserByAccessToken(ctx context.Context, token string) (*types.Requester, error)
}

// TokenAuth validates locally signed JWT access tokens.
type TokenAuth struct {
	jwt *crypto.JWTManager
}

// NewTokenAuth creates an Auth backed by the server's JWT manager.
func NewTokenAuth(jwt *crypto.JWTManager) *TokenAuth {
	return &TokenAuth{jwt: jwt}
}

// GetUserByAccessToken implements Auth.
func (a *TokenAuth) GetUserByAccessToken(_ context.Context, token string) (*types.Requester, error) {
	claims, err := a.jwt.VerifyToken(token)
	if err != nil {
		// Any verification failure means the token is not one of ours.
		return nil, ErrUnknownToken
	}

	return &types.Requester{
		User:     types.UserID(claims.UserID),
		TokenID:  claims.TokenID,
		DeviceID: claims.DeviceID,
		IsGuest:  claims.Guest,
	}, nil
}
