package model

import "time"

// ConversationStatus is the state of an outreach thread.
type ConversationStatus string

const (
	ConversationAwaitingResponse ConversationStatus = "awaiting_response"
	ConversationResponded        ConversationStatus = "responded"
	ConversationClosed           ConversationStatus = "closed"
)

// Terminal reports whether no further transition may leave this status.
func (s ConversationStatus) Terminal() bool {
	return s == ConversationResponded || s == ConversationClosed
}

// Conversation tracks the scripted chat with one lead. At most one exists per lead.
type Conversation struct {
	ID               int64              `json:"id"`
	LeadID           int64              `json:"lead_id"`
	Status           ConversationStatus `json:"status"`
	Stage            int                `json:"stage"`
	LastSentMessage  string             `json:"last_sent_message"`
	LastSentAt       time.Time          `json:"last_sent_at"`
	LastResponseText string             `json:"last_response_text,omitempty"`
	LastResponseAt   *time.Time         `json:"last_response_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// ConversationWithLead is a conversation joined with its lead's listing reference.
type ConversationWithLead struct {
	Conversation
	ListingURL string `json:"listing_url"`
	LeadTitle  string `json:"lead_title,omitempty"`
}
