package fake

import (
	"context"
	"testing"

	"cartelwatch/internal/models"
	"github.com/stretchr/testify/require"
)

func TestFakeClient_ReachesCompleted(t *testing.T) {
	f := New()
	ctx := context.Background()
	id := "68b9e014-3378-4bb3-b121-5a5200d1453b"

	var last string
	for i := 0; i < 10; i++ {
		res, err := f.GetOrderStatus(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, res.HarmonyStatus)
		require.NotEqual(t, models.StatusUnknown, res.Status)
		last = res.Status
	}
	require.Equal(t, models.StatusCompleted, last)
}

func TestFakeClient_DeterministicStart(t *testing.T) {
	ctx := context.Background()
	id := "123e4567-e89b-12d3-a456-426614174000"

	a, err := New().GetOrderStatus(ctx, id)
	require.NoError(t, err)
	b, err := New().GetOrderStatus(ctx, id)
	require.NoError(t, err)
	require.Equal(t, a.Status, b.Status)
	require.Equal(t, *a.HarmonyStatus, *b.HarmonyStatus)
}
