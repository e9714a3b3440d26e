package store

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

// runContract exercises the behaviour every Store implementation shares.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("insert and find lead", func(t *testing.T) {
		s := newStore(t)
		lead := &model.Lead{URL: "https://olx.com.br/a/1", Title: "Casa", HasPhoneHint: true}
		require.NoError(t, s.InsertLead(ctx, lead))
		assert.NotZero(t, lead.ID)
		assert.Equal(t, model.StageInbox, lead.PipelineStage)

		got, err := s.FindLead(ctx, lead.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Casa", got.Title)
		assert.True(t, got.HasPhoneHint)
		assert.False(t, got.PhoneSearched)
		assert.Equal(t, model.ListingStatusActive, got.ListingStatus)
		assert.NotNil(t, got.Contacts)
		assert.Empty(t, got.Contacts)

		missing, err := s.FindLead(ctx, lead.ID+100)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("duplicate lead url", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.InsertLead(ctx, &model.Lead{URL: "https://olx.com.br/a/1"}))
		err := s.InsertLead(ctx, &model.Lead{URL: "https://olx.com.br/a/1"})
		assert.True(t, eris.Is(err, ErrDuplicate), "got %v", err)
	})

	t.Run("phone sweep filter and priority order", func(t *testing.T) {
		s := newStore(t)
		a := &model.Lead{URL: "https://olx.com.br/a/a"}
		b := &model.Lead{URL: "https://olx.com.br/a/b", HasPhoneHint: true}
		c := &model.Lead{URL: "https://olx.com.br/a/c", HasPhoneHint: true}
		done := &model.Lead{URL: "https://olx.com.br/a/d", PhoneSearched: true}
		other := &model.Lead{URL: "https://olx.com.br/a/e", PipelineStage: "contacted"}
		for _, l := range []*model.Lead{a, b, c, done, other} {
			require.NoError(t, s.InsertLead(ctx, l))
		}

		leads, err := s.ListLeads(ctx, LeadFilter{
			PhoneSearched: Bool(false),
			Expired:       Bool(false),
			PipelineStage: model.StageInbox,
			Order:         OrderByPriority,
		})
		require.NoError(t, err)
		require.Len(t, leads, 3)
		assert.Equal(t, []int64{c.ID, b.ID, a.ID}, []int64{leads[0].ID, leads[1].ID, leads[2].ID})

		limited, err := s.ListLeads(ctx, LeadFilter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, a.ID, limited[0].ID)
	})

	t.Run("update lead and contacts filter", func(t *testing.T) {
		s := newStore(t)
		lead := &model.Lead{URL: "https://olx.com.br/a/1"}
		empty := &model.Lead{URL: "https://olx.com.br/a/2", PhoneSearched: true}
		require.NoError(t, s.InsertLead(ctx, lead))
		require.NoError(t, s.InsertLead(ctx, empty))

		contacts := []model.Contact{
			{Digits: "12998877654", Origin: model.OriginButton},
			{Digits: "1232210000", Origin: model.OriginDescription},
		}
		phone := contacts[0].Digits
		require.NoError(t, s.UpdateLead(ctx, lead.ID, LeadUpdate{
			PhoneSearched: Bool(true),
			Contacts:      &contacts,
			PrimaryPhone:  &phone,
		}))

		got, err := s.FindLead(ctx, lead.ID)
		require.NoError(t, err)
		assert.True(t, got.PhoneSearched)
		assert.Equal(t, contacts, got.Contacts)
		assert.Equal(t, "12998877654", got.PrimaryPhone)

		ready, err := s.ListLeads(ctx, LeadFilter{PhoneSearched: Bool(true), Expired: Bool(false), HasContacts: true})
		require.NoError(t, err)
		require.Len(t, ready, 1)
		assert.Equal(t, lead.ID, ready[0].ID)

		expired := model.ListingStatusExpired
		require.NoError(t, s.UpdateLead(ctx, empty.ID, LeadUpdate{Expired: Bool(true), ListingStatus: &expired}))
		got, err = s.FindLead(ctx, empty.ID)
		require.NoError(t, err)
		assert.True(t, got.Expired)
		assert.Equal(t, model.ListingStatusExpired, got.ListingStatus)

		err = s.UpdateLead(ctx, 9999, LeadUpdate{PhoneSearched: Bool(true)})
		assert.True(t, eris.Is(err, ErrNotFound), "got %v", err)
	})

	t.Run("conversation lifecycle", func(t *testing.T) {
		s := newStore(t)
		old := &model.Lead{URL: "https://olx.com.br/a/1", Title: "Casa"}
		fresh := &model.Lead{URL: "https://olx.com.br/a/2"}
		require.NoError(t, s.InsertLead(ctx, old))
		require.NoError(t, s.InsertLead(ctx, fresh))

		yesterday := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
		today := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
		c1 := &model.Conversation{LeadID: old.ID, Status: model.ConversationAwaitingResponse, Stage: 1, LastSentMessage: "oi", LastSentAt: yesterday}
		c2 := &model.Conversation{LeadID: fresh.ID, Status: model.ConversationAwaitingResponse, Stage: 1, LastSentMessage: "oi", LastSentAt: today}
		require.NoError(t, s.InsertConversation(ctx, c1))
		require.NoError(t, s.InsertConversation(ctx, c2))
		assert.NotZero(t, c1.ID)

		has, err := s.HasConversation(ctx, old.ID)
		require.NoError(t, err)
		assert.True(t, has)

		dup := &model.Conversation{LeadID: old.ID, Status: model.ConversationAwaitingResponse, Stage: 1, LastSentAt: today}
		err = s.InsertConversation(ctx, dup)
		assert.True(t, eris.Is(err, ErrDuplicate), "got %v", err)

		due, err := s.ListConversations(ctx, ConversationFilter{
			Status:     model.ConversationAwaitingResponse,
			SentBefore: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, c1.ID, due[0].ID)
		assert.Equal(t, old.URL, due[0].ListingURL)
		assert.Equal(t, "Casa", due[0].LeadTitle)
		assert.True(t, due[0].LastSentAt.Equal(yesterday))

		status := model.ConversationResponded
		text := "tenho interesse"
		at := time.Date(2026, 10, 17, 11, 0, 0, 0, time.UTC)
		require.NoError(t, s.UpdateConversation(ctx, c1.ID, ConversationUpdate{
			Status:           &status,
			LastResponseText: &text,
			LastResponseAt:   &at,
		}))

		got, err := s.GetConversationByLead(ctx, old.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, model.ConversationResponded, got.Status)
		assert.Equal(t, 1, got.Stage)
		assert.Equal(t, "tenho interesse", got.LastResponseText)
		require.NotNil(t, got.LastResponseAt)
		assert.True(t, got.LastResponseAt.Equal(at))

		none, err := s.GetConversationByLead(ctx, 9999)
		require.NoError(t, err)
		assert.Nil(t, none)

		err = s.UpdateConversation(ctx, 9999, ConversationUpdate{Status: &status})
		assert.True(t, eris.Is(err, ErrNotFound), "got %v", err)
	})

	t.Run("templates", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.UpsertTemplate(ctx, model.Template{Order: 2, Content: "segunda"}))
		require.NoError(t, s.UpsertTemplate(ctx, model.Template{Order: 1, Content: "primeira"}))
		require.NoError(t, s.UpsertTemplate(ctx, model.Template{Order: 2, Content: "segunda v2"}))

		tpl, err := s.TemplateByOrder(ctx, 2)
		require.NoError(t, err)
		require.NotNil(t, tpl)
		assert.Equal(t, "segunda v2", tpl.Content)

		missing, err := s.TemplateByOrder(ctx, 3)
		require.NoError(t, err)
		assert.Nil(t, missing)

		all, err := s.ListTemplates(ctx)
		require.NoError(t, err)
		assert.Equal(t, []model.Template{{Order: 1, Content: "primeira"}, {Order: 2, Content: "segunda v2"}}, all)
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	runContract(t, func(t *testing.T) Store { return NewMemory() })
}

func TestSQLiteStore_Contract(t *testing.T) {
	runContract(t, func(t *testing.T) Store { return newTestSQLiteStore(t) })
}

func TestMemoryStore_RejectsBadTemplateOrder(t *testing.T) {
	err := NewMemory().UpsertTemplate(context.Background(), model.Template{Order: 0, Content: "x"})
	assert.Error(t, err)
}
