package chat

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avvvet/electionday-services/internal/db"
)

func TestMongoStore(t *testing.T) {
	if os.Getenv("TEST_MONGODB_URI") == "" {
		t.Skip("TEST_MONGODB_URI is not set")
	}
	t.Setenv("MONGODB_URI", os.Getenv("TEST_MONGODB_URI"))

	database, err := db.ConnectToDB()
	require.NoError(t, err)
	defer db.Disconnect(database)

	ctx := context.Background()
	s := NewMongoStore(database, time.Hour)
	require.NoError(t, s.EnsureIndexes(ctx))

	id := uuid.NewString()
	require.NoError(t, s.Create(ctx, &Chat{ID: id, Schema: "zg", Topic: "Wahlen", Active: true}))
	t.Cleanup(func() { s.chats.DeleteOne(context.Background(), map[string]string{"_id": id}) })

	_, err = s.ByID(ctx, "be", id)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.AppendHistory(ctx, "zg", id, HistoryEntry{UserID: "1", User: "Anna", Text: "&lt;b&gt;", Time: "10:00"}))
	require.NoError(t, s.AppendHistory(ctx, "zg", id, HistoryEntry{UserID: "2", User: "Bea", Text: "hi", Time: "10:01"}))
	require.NoError(t, s.SetUser(ctx, "zg", id, "2"))
	require.NoError(t, s.Deactivate(ctx, "zg", id))

	c, err := s.ByID(ctx, "zg", id)
	require.NoError(t, err)
	assert.False(t, c.Active)
	assert.Equal(t, "2", c.UserID)
	require.Len(t, c.History, 2)
	assert.Equal(t, "&lt;b&gt;", c.History[0].Text)
	assert.NotNil(t, c.ExpiresAt)

	assert.ErrorIs(t, s.SetUser(ctx, "zg", uuid.NewString(), "2"), ErrNotFound)
}
