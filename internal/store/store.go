package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

var (
	// ErrNotFound is returned by updates that match no row.
	ErrNotFound = eris.New("store: not found")
	// ErrDuplicate is returned when a uniqueness rule would be broken, such as
	// a second conversation for the same lead.
	ErrDuplicate = eris.New("store: duplicate")
)

// LeadOrder selects the ordering of ListLeads.
type LeadOrder string

const (
	// OrderByID lists oldest leads first.
	OrderByID LeadOrder = ""
	// OrderByPriority lists leads with a phone hint first, newest first
	// within each group.
	OrderByPriority LeadOrder = "priority"
)

// LeadFilter specifies criteria for listing leads. Nil pointers and empty
// strings leave a field unconstrained.
type LeadFilter struct {
	PhoneSearched *bool     `json:"phone_searched,omitempty"`
	Expired       *bool     `json:"expired,omitempty"`
	PipelineStage string    `json:"pipeline_stage,omitempty"`
	HasContacts   bool      `json:"has_contacts,omitempty"`
	Order         LeadOrder `json:"order,omitempty"`
	Limit         int       `json:"limit,omitempty"`
}

// LeadUpdate lists the fields to change on a lead. Nil fields are left as
// they are; a non-nil Contacts pointing at an empty slice clears them.
type LeadUpdate struct {
	PhoneSearched *bool
	Expired       *bool
	Contacts      *[]model.Contact
	PrimaryPhone  *string
	ListingStatus *model.ListingStatus
	PipelineStage *string
}

// ConversationFilter specifies criteria for listing conversations.
type ConversationFilter struct {
	Status model.ConversationStatus
	// SentBefore keeps conversations whose last send is strictly earlier.
	// Zero means no bound.
	SentBefore time.Time
}

// ConversationUpdate lists the fields to change on a conversation.
type ConversationUpdate struct {
	Status           *model.ConversationStatus
	Stage            *int
	LastSentMessage  *string
	LastSentAt       *time.Time
	LastResponseText *string
	LastResponseAt   *time.Time
}

// Store persists leads, conversations and message templates.
type Store interface {
	// Leads
	InsertLead(ctx context.Context, lead *model.Lead) error
	FindLead(ctx context.Context, id int64) (*model.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	UpdateLead(ctx context.Context, id int64, u LeadUpdate) error

	// Conversations
	HasConversation(ctx context.Context, leadID int64) (bool, error)
	GetConversationByLead(ctx context.Context, leadID int64) (*model.Conversation, error)
	InsertConversation(ctx context.Context, c *model.Conversation) error
	UpdateConversation(ctx context.Context, id int64, u ConversationUpdate) error
	ListConversations(ctx context.Context, filter ConversationFilter) ([]model.ConversationWithLead, error)

	// Templates
	TemplateByOrder(ctx context.Context, order int) (*model.Template, error)
	ListTemplates(ctx context.Context) ([]model.Template, error)
	UpsertTemplate(ctx context.Context, t model.Template) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Bool returns a pointer to b, for filters and updates.
func Bool(b bool) *bool { return &b }

// assignment is one column = value pair of an UPDATE.
type assignment struct {
	col string
	val any
}

func leadAssignments(u LeadUpdate, encode func([]byte) any) ([]assignment, error) {
	var out []assignment
	if u.PhoneSearched != nil {
		out = append(out, assignment{"phone_searched", *u.PhoneSearched})
	}
	if u.Expired != nil {
		out = append(out, assignment{"expired", *u.Expired})
	}
	if u.Contacts != nil {
		data, err := marshalContacts(*u.Contacts)
		if err != nil {
			return nil, err
		}
		out = append(out, assignment{"contacts", encode(data)})
	}
	if u.PrimaryPhone != nil {
		out = append(out, assignment{"primary_phone", *u.PrimaryPhone})
	}
	if u.ListingStatus != nil {
		out = append(out, assignment{"listing_status", string(*u.ListingStatus)})
	}
	if u.PipelineStage != nil {
		out = append(out, assignment{"pipeline_stage", *u.PipelineStage})
	}
	return out, nil
}

func conversationAssignments(u ConversationUpdate) []assignment {
	var out []assignment
	if u.Status != nil {
		out = append(out, assignment{"status", string(*u.Status)})
	}
	if u.Stage != nil {
		out = append(out, assignment{"stage", *u.Stage})
	}
	if u.LastSentMessage != nil {
		out = append(out, assignment{"last_sent_message", *u.LastSentMessage})
	}
	if u.LastSentAt != nil {
		out = append(out, assignment{"last_sent_at", u.LastSentAt.UTC()})
	}
	if u.LastResponseText != nil {
		out = append(out, assignment{"last_response_text", *u.LastResponseText})
	}
	if u.LastResponseAt != nil {
		out = append(out, assignment{"last_response_at", u.LastResponseAt.UTC()})
	}
	return out
}

// marshalContacts always yields a JSON array, never null.
func marshalContacts(c []model.Contact) ([]byte, error) {
	if c == nil {
		c = []model.Contact{}
	}
	data, err := json.Marshal(c)
	return data, eris.Wrap(err, "store: marshal contacts")
}

func unmarshalContacts(data []byte) ([]model.Contact, error) {
	if len(data) == 0 {
		return []model.Contact{}, nil
	}
	var c []model.Contact
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal contacts")
	}
	if c == nil {
		c = []model.Contact{}
	}
	return c, nil
}
