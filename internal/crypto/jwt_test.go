package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m, err := NewJWTManager("test-secret")
	require.NoError(t, err)

	tok, err := m.CreateToken("@alice:test", "DEVICE1", 7, false)
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	require.Equal(t, "@alice:test", claims.UserID)
	require.Equal(t, "DEVICE1", claims.DeviceID)
	require.Equal(t, int64(7), claims.TokenID)
	require.False(t, claims.Guest)
}

func TestTokenGuestFlag(t *testing.T) {
	m, err := NewJWTManager("test-secret")
	require.NoError(t, err)

	tok, err := m.CreateToken("@guest:test", "", 1, true)
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	require.True(t, claims.Guest)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m, err := NewJWTManager("test-secret")
	require.NoError(t, err)

	_, err = m.VerifyToken("not-a-token")
	require.Error(t, err)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	a, err := NewJWTManager("secret-a")
	require.NoError(t, err)
	b, err := NewJWTManager("secret-b")
	require.NoError(t, err)

	tok, err := a.CreateToken("@alice:test", "DEVICE1", 1, false)
	require.NoError(t, err)

	_, err = b.VerifyToken(tok)
	require.Error(t, err)
}

func TestNewJWTManagerEmptySecret(t *testing.T) {
	_, err := NewJWTManager("")
	require.Error(t, err)
}
