package chat

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "chat.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateAndGetSession(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "seller-1", "Asha", "")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.SessionID)
	assert.Equal(t, "seller-1", sess.SellerID)
	assert.Equal(t, "Asha", sess.SellerName)
	assert.Equal(t, DefaultTitle, sess.Title)

	got, err := store.GetSession(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sess.SessionID, got.SessionID)
}

func TestGetSessionNotFound(t *testing.T) {
	store := openStore(t)
	_, err := store.GetSession(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureSessionCreatesThenReuses(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first, err := store.EnsureSession(ctx, "sess-1", "seller-1", "")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", first.SessionID)
	assert.Empty(t, first.SellerName)

	second, err := store.EnsureSession(ctx, "sess-1", "seller-1", "Asha")
	require.NoError(t, err)
	assert.Equal(t, "Asha", second.SellerName)

	third, err := store.EnsureSession(ctx, "sess-1", "seller-1", "")
	require.NoError(t, err)
	assert.Equal(t, "Asha", third.SellerName)
}

func TestMessagesAndRecentTurns(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "", "", "")
	require.NoError(t, err)

	turns, err := store.RecentTurns(ctx, sess.SessionID, 3)
	require.NoError(t, err)
	assert.Empty(t, turns)

	pairs := []string{"q1", "q2", "q3", "q4"}
	for _, q := range pairs {
		_, err := store.AddMessage(ctx, sess.SessionID, "user", q, "req-"+q, nil)
		require.NoError(t, err)
		_, err = store.AddMessage(ctx, sess.SessionID, "assistant", "a-"+q, "", map[string]any{"mode": "general_qa"})
		require.NoError(t, err)
	}

	messages, err := store.ListMessages(ctx, sess.SessionID, 100)
	require.NoError(t, err)
	require.Len(t, messages, 8)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "req-q1", messages[0].RequestID)
	assert.Equal(t, "general_qa", messages[1].Metadata["mode"])

	turns, err = store.RecentTurns(ctx, sess.SessionID, 3)
	require.NoError(t, err)
	require.Len(t, turns, 6)
	assert.Equal(t, "user: q2", turns[0])
	assert.Equal(t, "assistant: a-q4", turns[5])
}

func TestMemoryFactsUpsert(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "", "", "")
	require.NoError(t, err)

	require.NoError(t, store.UpsertMemoryFact(ctx, sess.SessionID, "seller_name", "Asha"))
	require.NoError(t, store.UpsertMemoryFact(ctx, sess.SessionID, "preferred_marketplace", "amazon"))
	require.NoError(t, store.UpsertMemoryFact(ctx, sess.SessionID, "seller_name", "Asha Rao"))

	facts, err := store.MemoryFacts(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"preferred_marketplace": "amazon",
		"seller_name":           "Asha Rao",
	}, facts)
}

func TestFeedbackRoundtrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	id, err := store.AddFeedback(ctx, Feedback{
		SessionID: "sess-1",
		RequestID: "req-1",
		Rating:    4,
		Comment:   "useful plan",
		Metadata:  map[string]any{"ui": "cli"},
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	items, err := store.ListFeedback(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].Rating)
	assert.Equal(t, "useful plan", items[0].Comment)
	assert.Equal(t, "cli", items[0].Metadata["ui"])
}

func TestFeedbackValidation(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.AddFeedback(ctx, Feedback{Rating: 3})
	assert.Error(t, err)

	_, err = store.AddFeedback(ctx, Feedback{RequestID: "req-1", Rating: 9})
	assert.Error(t, err)
}

func TestListSessionsFiltersBySeller(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.CreateSession(ctx, "seller-1", "", "")
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, "seller-2", "", "")
	require.NoError(t, err)

	all, err := store.ListSessions(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := store.ListSessions(ctx, "seller-1", 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "seller-1", mine[0].SellerID)
}
