package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lattice-im/lattice/internal/types"
)

func TestPresenceSetState(t *testing.T) {
	p := NewPresenceTracker()
	ctx := context.Background()
	user := types.UserID("@alice:test")

	require.Equal(t, types.PresenceOffline, p.GetState(user).Presence)

	err := p.SetState(ctx, user, PresenceUpdate{Presence: types.PresenceUnavailable, StatusMsg: "brb"})
	require.NoError(t, err)

	st := p.GetState(user)
	require.Equal(t, types.PresenceUnavailable, st.Presence)
	require.Equal(t, "brb", st.StatusMsg)
}

func TestPresenceSetStateRejectsUnknown(t *testing.T) {
	p := NewPresenceTracker()

	err := p.SetState(context.Background(), "@alice:test", PresenceUpdate{Presence: "sleeping"})
	var typed *types.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, types.CodeUnknown, typed.Code)
}

func TestPresenceSyncingMarker(t *testing.T) {
	p := NewPresenceTracker()
	ctx := context.Background()
	user := types.UserID("@alice:test")

	release1, err := p.UserSyncing(ctx, user, true)
	require.NoError(t, err)
	release2, err := p.UserSyncing(ctx, user, true)
	require.NoError(t, err)
	require.True(t, p.IsSyncing(user))

	release1()
	require.True(t, p.IsSyncing(user), "still one marker outstanding")

	release2()
	require.False(t, p.IsSyncing(user))

	// Releasing twice must not underflow the count.
	release2()
	release3, err := p.UserSyncing(ctx, user, true)
	require.NoError(t, err)
	require.True(t, p.IsSyncing(user))
	release3()
	require.False(t, p.IsSyncing(user))
}

func TestPresenceSyncingNoEffect(t *testing.T) {
	p := NewPresenceTracker()
	user := types.UserID("@alice:test")

	release, err := p.UserSyncing(context.Background(), user, false)
	require.NoError(t, err)
	require.False(t, p.IsSyncing(user))
	release()
}

func TestPresenceBumpActiveTime(t *testing.T) {
	p := NewPresenceTracker()
	user := types.UserID("@alice:test")

	_, ok := p.LastActive(user)
	require.False(t, ok)

	require.NoError(t, p.BumpActiveTime(context.Background(), user))
	_, ok = p.LastActive(user)
	require.True(t, ok)
}
