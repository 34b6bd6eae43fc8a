package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lattice-im/lattice/internal/types"
)

func TestParseInlineRejectsNonObject(t *testing.T) {
	for _, raw := range []string{"", "not json", `"string"`, `[1,2]`, `42`} {
		_, err := ParseInline(raw, 100)
		var typed *types.Error
		require.ErrorAs(t, err, &typed, "input %q", raw)
		require.Equal(t, types.CodeBadJSON, typed.Code)
	}
}

func TestParseInlineUnknownKeys(t *testing.T) {
	_, err := ParseInline(`{"bogus":{}}`, 100)
	var typed *types.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, types.CodeBadJSON, typed.Code)

	_, err = ParseInline(`{"room":{"bogus":{}}}`, 100)
	require.ErrorAs(t, err, &typed)
	require.Equal(t, types.CodeBadJSON, typed.Code)
}

func TestParseInlineClampsTimelineLimit(t *testing.T) {
	c, err := ParseInline(`{"room":{"timeline":{"limit":5000}}}`, 100)
	require.NoError(t, err)
	require.Equal(t, 100, c.TimelineLimit())

	// A limit under the cap is left alone.
	c, err = ParseInline(`{"room":{"timeline":{"limit":5}}}`, 100)
	require.NoError(t, err)
	require.Equal(t, 5, c.TimelineLimit())

	// No limit specified means no clamping and no restriction.
	c, err = ParseInline(`{"room":{"timeline":{}}}`, 100)
	require.NoError(t, err)
	require.Equal(t, 0, c.TimelineLimit())
}

func TestDefaultIncludesEverything(t *testing.T) {
	c := Default()
	require.True(t, c.IncludesRoom("!anything:test"))
	require.Equal(t, 0, c.TimelineLimit())
}

func TestIncludesRoom(t *testing.T) {
	c, err := ParseInline(`{"room":{"rooms":["!a:test","!b:test"],"not_rooms":["!b:test"]}}`, 100)
	require.NoError(t, err)

	require.True(t, c.IncludesRoom("!a:test"))
	require.False(t, c.IncludesRoom("!b:test"), "not_rooms wins over rooms")
	require.False(t, c.IncludesRoom("!c:test"), "absent from the allow list")
}
