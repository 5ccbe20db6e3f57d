package repository

import (
	"context"
	"fmt"
	"os"
	"testing"

	"hotel-relay/internal/db"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real Postgres when TEST_DATABASE_URL is set.
func TestPostgresRepo_Live(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := db.Connect(ctx, url, zerolog.Nop())
	require.NoError(t, err)

	repo := NewMessagesRepo(pool, zerolog.Nop())
	defer repo.Close()

	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.EnsureSchema(ctx), "schema creation must be idempotent")

	room := "test-" + uuid.NewString()
	for i := 0; i < 55; i++ {
		require.NoError(t, repo.Append(ctx, guestMessage(room, fmt.Sprintf("msg %d", i))))
	}

	history, err := repo.RecentHistory(ctx, room, 50)
	require.NoError(t, err)
	require.Len(t, history, 50)
	assert.Equal(t, "msg 5", history[0].Body)
	assert.Equal(t, "msg 54", history[49].Body)
	assert.False(t, history[0].Timestamp.IsZero())

	assert.NoError(t, repo.Ping(ctx))
	assert.Equal(t, db.MaxConns, repo.Stats().Max)
}
