package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lattice-im/lattice/internal/types"
)

func TestTypingStartStop(t *testing.T) {
	tr := NewTypingTracker()
	defer tr.Close()
	ctx := context.Background()
	user := types.UserID("@alice:test")

	require.NoError(t, tr.StartedTyping(ctx, user, "!room:test", time.Minute))
	require.True(t, tr.IsTyping(user, "!room:test"))
	require.False(t, tr.IsTyping(user, "!other:test"))

	require.NoError(t, tr.StoppedTyping(ctx, user, "!room:test"))
	require.False(t, tr.IsTyping(user, "!room:test"))
}

func TestTypingExpires(t *testing.T) {
	tr := NewTypingTracker()
	defer tr.Close()
	user := types.UserID("@alice:test")

	require.NoError(t, tr.StartedTyping(context.Background(), user, "!room:test", 20*time.Millisecond))
	require.True(t, tr.IsTyping(user, "!room:test"))

	require.Eventually(t, func() bool {
		return !tr.IsTyping(user, "!room:test")
	}, time.Second, 5*time.Millisecond)
}

func TestTypingRestartResetsTimer(t *testing.T) {
	tr := NewTypingTracker()
	defer tr.Close()
	ctx := context.Background()
	user := types.UserID("@alice:test")

	require.NoError(t, tr.StartedTyping(ctx, user, "!room:test", 20*time.Millisecond))
	require.NoError(t, tr.StartedTyping(ctx, user, "!room:test", time.Minute))

	time.Sleep(50 * time.Millisecond)
	require.True(t, tr.IsTyping(user, "!room:test"), "second start should supersede the short timer")
}

func TestTypingStopWithoutStart(t *testing.T) {
	tr := NewTypingTracker()
	defer tr.Close()

	require.NoError(t, tr.StoppedTyping(context.Background(), "@alice:test", "!room:test"))
}
