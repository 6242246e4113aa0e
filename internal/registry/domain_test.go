package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCardUsable(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(time.Hour)

	require.True(t, Card{Active: true}.Usable(now))
	require.True(t, Card{Active: true, ExpiresAt: &expiry}.Usable(now))
	require.True(t, Card{Active: true, ExpiresAt: &expiry}.Usable(expiry))
	require.False(t, Card{Active: true, ExpiresAt: &expiry}.Usable(expiry.Add(time.Second)))
	require.False(t, Card{Active: false}.Usable(now))
}
