package websocket

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lattice-im/lattice/internal/types"
)

func sessionFor(user string) *Session {
	return &Session{req: &types.Requester{User: types.UserID(user)}}
}

func TestConnectionManager(t *testing.T) {
	m := NewConnectionManager()
	require.Equal(t, 0, m.Count())

	a1 := sessionFor("@alice:test")
	a2 := sessionFor("@alice:test")
	b := sessionFor("@bob:test")

	m.Add(a1)
	m.Add(a2)
	m.Add(b)
	require.Equal(t, 3, m.Count())
	require.Equal(t, 2, m.UserCount())
	require.Len(t, m.UserSessions("@alice:test"), 2)

	m.Remove(a1)
	require.Equal(t, 2, m.Count())
	require.Len(t, m.UserSessions("@alice:test"), 1)
	require.Same(t, a2, m.UserSessions("@alice:test")[0])

	m.Remove(a2)
	require.Equal(t, 1, m.UserCount())
	require.Empty(t, m.UserSessions("@alice:test"))

	// Removing a session that was never added is a no-op.
	m.Remove(sessionFor("@carol:test"))
	require.Equal(t, 1, m.Count())
}
