package model

import "time"

// StageInbox is the board column new leads land in.
const StageInbox = "inbox"

// ListingStatus mirrors the state of the classified ad behind a lead.
type ListingStatus string

const (
	ListingStatusActive  ListingStatus = "active"
	ListingStatusExpired ListingStatus = "expired"
)

// ContactOrigin records where on the listing page a contact was found.
type ContactOrigin string

const (
	OriginButton      ContactOrigin = "button"
	OriginDescription ContactOrigin = "description"
)

// Contact is a normalized phone number harvested from a listing.
type Contact struct {
	Digits string        `json:"digits"`
	Origin ContactOrigin `json:"origin,omitempty"`
	Label  string        `json:"label,omitempty"`
}

// Lead is a prospect derived from a classified-ad listing.
type Lead struct {
	ID            int64         `json:"id"`
	URL           string        `json:"url"`
	Title         string        `json:"title,omitempty"`
	PhoneSearched bool          `json:"phone_searched"`
	Expired       bool          `json:"expired"`
	HasPhoneHint  bool          `json:"has_phone_hint"`
	Contacts      []Contact     `json:"contacts"`
	PrimaryPhone  string        `json:"primary_phone,omitempty"`
	PipelineStage string        `json:"pipeline_stage"`
	ListingStatus ListingStatus `json:"listing_status,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ReadyForOutreach reports whether the lead has a live listing with at least
// one harvested contact.
func (l Lead) ReadyForOutreach() bool {
	return l.PhoneSearched && !l.Expired && len(l.Contacts) > 0
}
