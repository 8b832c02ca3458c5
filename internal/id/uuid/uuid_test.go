package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewIDIsV7(t *testing.T) {
	t.Parallel()

	gen := New()
	first, err := gen.NewID()
	require.NoError(t, err)
	second, err := gen.NewID()
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	parsed, err := goUUID.Parse(first)
	require.NoError(t, err)
	require.Equal(t, goUUID.Version(7), parsed.Version())
	require.True(t, Valid(first))
}

func TestValid(t *testing.T) {
	t.Parallel()

	require.True(t, Valid("0190b3a4-7c1e-7b8e-9a52-0f7c4c1e2d3f"))
	require.False(t, Valid(""))
	require.False(t, Valid("not-a-uuid"))
	require.False(t, Valid("{0190b3a4-7c1e-7b8e-9a52-0f7c4c1e2d3f}"))
	require.False(t, Valid("0190b3a47c1e7b8e9a520f7c4c1e2d3f"))
}
