package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// MemoryStore is an in-process Store for tests and dry runs.
type MemoryStore struct {
	mu            sync.RWMutex
	leads         map[int64]model.Lead
	conversations map[int64]model.Conversation
	templates     map[int]model.Template
	nextLead      int64
	nextConv      int64
	now           func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		leads:         map[int64]model.Lead{},
		conversations: map[int64]model.Conversation{},
		templates:     map[int]model.Template{},
		now:           time.Now,
	}
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Close() error                  { return nil }

func cloneLead(l model.Lead) model.Lead {
	l.Contacts = append([]model.Contact{}, l.Contacts...)
	return l
}

func (m *MemoryStore) InsertLead(_ context.Context, lead *model.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leads {
		if l.URL == lead.URL {
			return eris.Wrapf(ErrDuplicate, "memory: lead url %s", lead.URL)
		}
	}
	m.nextLead++
	lead.ID = m.nextLead
	if lead.PipelineStage == "" {
		lead.PipelineStage = model.StageInbox
	}
	if lead.ListingStatus == "" {
		lead.ListingStatus = model.ListingStatusActive
	}
	now := m.now().UTC()
	lead.CreatedAt, lead.UpdatedAt = now, now
	m.leads[lead.ID] = cloneLead(*lead)
	return nil
}

func (m *MemoryStore) FindLead(_ context.Context, id int64) (*model.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, nil
	}
	l = cloneLead(l)
	return &l, nil
}

func (m *MemoryStore) ListLeads(_ context.Context, f LeadFilter) ([]model.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Lead
	for _, l := range m.leads {
		if f.PhoneSearched != nil && l.PhoneSearched != *f.PhoneSearched {
			continue
		}
		if f.Expired != nil && l.Expired != *f.Expired {
			continue
		}
		if f.PipelineStage != "" && l.PipelineStage != f.PipelineStage {
			continue
		}
		if f.HasContacts && len(l.Contacts) == 0 {
			continue
		}
		out = append(out, cloneLead(l))
	}
	sort.Slice(out, func(i, j int) bool {
		if f.Order == OrderByPriority {
			if out[i].HasPhoneHint != out[j].HasPhoneHint {
				return out[i].HasPhoneHint
			}
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateLead(_ context.Context, id int64, u LeadUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "lead %d", id)
	}
	if u.PhoneSearched != nil {
		l.PhoneSearched = *u.PhoneSearched
	}
	if u.Expired != nil {
		l.Expired = *u.Expired
	}
	if u.Contacts != nil {
		l.Contacts = append([]model.Contact{}, (*u.Contacts)...)
	}
	if u.PrimaryPhone != nil {
		l.PrimaryPhone = *u.PrimaryPhone
	}
	if u.ListingStatus != nil {
		l.ListingStatus = *u.ListingStatus
	}
	if u.PipelineStage != nil {
		l.PipelineStage = *u.PipelineStage
	}
	l.UpdatedAt = m.now().UTC()
	m.leads[id] = l
	return nil
}

func (m *MemoryStore) HasConversation(_ context.Context, leadID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.conversations {
		if c.LeadID == leadID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) GetConversationByLead(_ context.Context, leadID int64) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.conversations {
		if c.LeadID == leadID {
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) InsertConversation(_ context.Context, c *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.leads[c.LeadID]; !ok {
		return eris.Wrapf(ErrNotFound, "lead %d", c.LeadID)
	}
	for _, existing := range m.conversations {
		if existing.LeadID == c.LeadID {
			return eris.Wrapf(ErrDuplicate, "memory: conversation for lead %d", c.LeadID)
		}
	}
	m.nextConv++
	c.ID = m.nextConv
	c.CreatedAt = m.now().UTC()
	m.conversations[c.ID] = *c
	return nil
}

func (m *MemoryStore) UpdateConversation(_ context.Context, id int64, u ConversationUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "conversation %d", id)
	}
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.Stage != nil {
		c.Stage = *u.Stage
	}
	if u.LastSentMessage != nil {
		c.LastSentMessage = *u.LastSentMessage
	}
	if u.LastSentAt != nil {
		c.LastSentAt = *u.LastSentAt
	}
	if u.LastResponseText != nil {
		c.LastResponseText = *u.LastResponseText
	}
	if u.LastResponseAt != nil {
		t := *u.LastResponseAt
		c.LastResponseAt = &t
	}
	m.conversations[id] = c
	return nil
}

func (m *MemoryStore) ListConversations(_ context.Context, f ConversationFilter) ([]model.ConversationWithLead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ConversationWithLead
	for _, c := range m.conversations {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if !f.SentBefore.IsZero() && !c.LastSentAt.Before(f.SentBefore) {
			continue
		}
		l := m.leads[c.LeadID]
		out = append(out, model.ConversationWithLead{Conversation: c, ListingURL: l.URL, LeadTitle: l.Title})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSentAt.Equal(out[j].LastSentAt) {
			return out[i].LastSentAt.Before(out[j].LastSentAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) TemplateByOrder(_ context.Context, order int) (*model.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[order]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *MemoryStore) ListTemplates(context.Context) ([]model.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Template, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *MemoryStore) UpsertTemplate(_ context.Context, t model.Template) error {
	if t.Order <= 0 {
		return eris.Errorf("memory: template order must be positive, got %d", t.Order)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.Order] = t
	return nil
}
