package testcontainers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithTestContext(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	WithTestContext(t, func(tc *TestContext) {
		ctx := context.Background()

		var one int
		require.NoError(t, tc.DB.QueryRow(ctx, "SELECT 1").Scan(&one))
		require.Equal(t, 1, one)

		require.NoError(t, tc.RDB.Ping(ctx).Err())
	})
}
