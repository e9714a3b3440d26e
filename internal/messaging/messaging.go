// Package messaging sends outreach messages through the listing chat and
// reads the counterparty's replies.
package messaging

import (
	"context"
)

// Reply is the latest state of a chat thread as seen by a reader.
type Reply struct {
	Replied bool   `json:"replied"`
	Text    string `json:"text,omitempty"`
}

// Messenger delivers messages to the seller behind a listing. A nil error
// from Send means the message was delivered.
type Messenger interface {
	Send(ctx context.Context, listingURL, message string) error
	ReadLatestReply(ctx context.Context, listingURL string) (Reply, error)
}
