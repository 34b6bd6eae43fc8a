package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lattice-im/lattice/internal/crypto"
	"github.com/lattice-im/lattice/internal/types"
)

func TestTokenAuth(t *testing.T) {
	m, err := crypto.NewJWTManager("test-secret")
	require.NoError(t, err)
	a := NewTokenAuth(m)

	tok, err := m.CreateToken("@alice:test", "DEVICE1", 7, false)
	require.NoError(t, err)

	req, err := a.GetUserByAccessToken(context.Background(), tok)
	require.NoError(t, err)
	require.Equal(t, types.UserID("@alice:test"), req.User)
	require.Equal(t, "DEVICE1", req.DeviceID)
	require.Equal(t, int64(7), req.TokenID)
	require.False(t, req.IsGuest)
}

func TestTokenAuthUnknownToken(t *testing.T) {
	m, err := crypto.NewJWTManager("test-secret")
	require.NoError(t, err)
	a := NewTokenAuth(m)

	_, err = a.GetUserByAccessToken(context.Background(), "garbage")
	require.ErrorIs(t, err, ErrUnknownToken)

	other, err := crypto.NewJWTManager("other-secret")
	require.NoError(t, err)
	foreign, err := other.CreateToken("@alice:test", "DEVICE1", 1, false)
	require.NoError(t, err)

	_, err = a.GetUserByAccessToken(context.Background(), foreign)
	require.ErrorIs(t, err, ErrUnknownToken)
}
