package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after))
}

func TestFixedClockAndToday(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC-5", -5*60*60)
	clk := NewFixed(time.Date(2024, 11, 14, 21, 30, 0, 0, loc))
	require.Equal(t, "2024-11-15", Today(clk))

	clk.Advance(24 * time.Hour)
	require.Equal(t, "2024-11-16", Today(clk))
}
