package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_ConversationRequiresLead(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.InsertConversation(context.Background(), &model.Conversation{
		LeadID: 42, Status: model.ConversationAwaitingResponse, Stage: 1,
	})
	assert.Error(t, err)
}

func TestSQLite_EmptyUpdateOnlyTouchesTimestamp(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	lead := &model.Lead{URL: "https://olx.com.br/a/1"}
	require.NoError(t, st.InsertLead(ctx, lead))
	require.NoError(t, st.UpdateLead(ctx, lead.ID, LeadUpdate{}))

	got, err := st.FindLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.False(t, got.PhoneSearched)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestSQLiteUpdate(t *testing.T) {
	q, args := sqliteUpdate("leads", []assignment{{"expired", true}, {"primary_phone", "123"}}, 7)
	assert.Equal(t, "UPDATE leads SET expired = ?, primary_phone = ? WHERE id = ?", q)
	assert.Equal(t, []any{true, "123", int64(7)}, args)
}
