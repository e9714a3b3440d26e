// Package sequencer runs the per-lead outreach conversation: the first
// message, daily follow-ups and closing the thread when the template
// sequence runs out.
package sequencer

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/messaging"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var (
	// ErrNotEligible means the lead has no live listing with contacts.
	ErrNotEligible = eris.New("sequencer: lead not eligible for outreach")
	// ErrConversationExists means outreach already started for the lead.
	ErrConversationExists = eris.New("sequencer: conversation already exists")
	// ErrTemplateMissing means no template is configured for the first step.
	ErrTemplateMissing = eris.New("sequencer: template missing")
)

// SendError reports a message the messaging capability could not deliver.
type SendError struct {
	Reason string
	Err    error
}

func (e *SendError) Error() string { return "sequencer: send failed: " + e.Reason }

func (e *SendError) Unwrap() error { return e.Err }

// Outcome is the result of advancing one conversation.
type Outcome string

const (
	OutcomeResponded  Outcome = "responded"
	OutcomeAdvanced   Outcome = "advanced"
	OutcomeClosed     Outcome = "closed"
	OutcomeSendFailed Outcome = "send_failed"
	OutcomeReadFailed Outcome = "read_failed"
	OutcomeNotDue     Outcome = "not_due"
)

// Sequencer moves conversations through the template sequence.
type Sequencer struct {
	store     store.Store
	messenger messaging.Messenger
	composer  messaging.Composer
	loc       *time.Location
	now       func() time.Time
}

// New creates a Sequencer. Day boundaries are computed in loc; a nil loc
// means UTC. A nil composer sends templates verbatim.
func New(st store.Store, m messaging.Messenger, c messaging.Composer, loc *time.Location) *Sequencer {
	if loc == nil {
		loc = time.UTC
	}
	if c == nil {
		c = messaging.StaticComposer{}
	}
	return &Sequencer{store: st, messenger: m, composer: c, loc: loc, now: time.Now}
}

// StartOfDay returns midnight of the current day in the sequencer's zone.
func (s *Sequencer) StartOfDay() time.Time {
	t := s.now().In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

// DueFilter selects conversations whose last message went out before today.
func (s *Sequencer) DueFilter() store.ConversationFilter {
	return store.ConversationFilter{
		Status:     model.ConversationAwaitingResponse,
		SentBefore: s.StartOfDay(),
	}
}

// StartOutreach sends the first template to a lead and opens its
// conversation. Nothing is persisted unless the send succeeds.
func (s *Sequencer) StartOutreach(ctx context.Context, leadID int64) (*model.Conversation, error) {
	log := zap.L().With(zap.Int64("lead_id", leadID))

	lead, err := s.store.FindLead(ctx, leadID)
	if err != nil {
		return nil, eris.Wrapf(err, "sequencer: find lead %d", leadID)
	}
	if lead == nil {
		return nil, eris.Wrapf(store.ErrNotFound, "sequencer: lead %d", leadID)
	}
	if !lead.ReadyForOutreach() {
		return nil, eris.Wrapf(ErrNotEligible, "lead %d", leadID)
	}

	exists, err := s.store.HasConversation(ctx, leadID)
	if err != nil {
		return nil, eris.Wrapf(err, "sequencer: check conversation for lead %d", leadID)
	}
	if exists {
		return nil, eris.Wrapf(ErrConversationExists, "lead %d", leadID)
	}

	tmpl, err := s.store.TemplateByOrder(ctx, 1)
	if err != nil {
		return nil, eris.Wrap(err, "sequencer: load first template")
	}
	if tmpl == nil {
		return nil, eris.Wrap(ErrTemplateMissing, "order 1")
	}

	msg, err := s.composer.Compose(ctx, *tmpl, *lead)
	if err != nil {
		return nil, eris.Wrap(err, "sequencer: compose")
	}
	if err := s.messenger.Send(ctx, lead.URL, msg); err != nil {
		log.Warn("sequencer: first message not sent", zap.Error(err))
		return nil, &SendError{Reason: err.Error(), Err: err}
	}

	conv := &model.Conversation{
		LeadID:          leadID,
		Status:          model.ConversationAwaitingResponse,
		Stage:           1,
		LastSentMessage: msg,
		LastSentAt:      s.now().UTC(),
	}
	if err := s.store.InsertConversation(ctx, conv); err != nil {
		if eris.Is(err, store.ErrDuplicate) {
			return nil, eris.Wrapf(ErrConversationExists, "lead %d", leadID)
		}
		return nil, eris.Wrapf(err, "sequencer: record conversation for lead %d", leadID)
	}

	log.Info("sequencer: outreach started", zap.Int64("conversation_id", conv.ID))
	return conv, nil
}

// Advance runs one follow-up pass over a conversation. Read and send
// failures leave the conversation untouched and are returned alongside
// their outcome.
func (s *Sequencer) Advance(ctx context.Context, c model.ConversationWithLead) (Outcome, error) {
	log := zap.L().With(
		zap.Int64("conversation_id", c.ID),
		zap.Int64("lead_id", c.LeadID),
		zap.Int("stage", c.Stage),
	)

	if c.Status != model.ConversationAwaitingResponse || !c.LastSentAt.Before(s.StartOfDay()) {
		return OutcomeNotDue, nil
	}

	reply, err := s.messenger.ReadLatestReply(ctx, c.ListingURL)
	if err != nil {
		log.Warn("sequencer: reply not read", zap.Error(err))
		return OutcomeReadFailed, eris.Wrapf(err, "sequencer: read reply for conversation %d", c.ID)
	}

	if reply.Replied {
		now := s.now().UTC()
		status := model.ConversationResponded
		if err := s.store.UpdateConversation(ctx, c.ID, store.ConversationUpdate{
			Status:           &status,
			LastResponseText: &reply.Text,
			LastResponseAt:   &now,
		}); err != nil {
			return "", eris.Wrapf(err, "sequencer: mark conversation %d responded", c.ID)
		}
		log.Info("sequencer: seller responded")
		return OutcomeResponded, nil
	}

	next := c.Stage + 1
	tmpl, err := s.store.TemplateByOrder(ctx, next)
	if err != nil {
		return "", eris.Wrapf(err, "sequencer: load template %d", next)
	}
	if tmpl == nil {
		status := model.ConversationClosed
		if err := s.store.UpdateConversation(ctx, c.ID, store.ConversationUpdate{Status: &status}); err != nil {
			return "", eris.Wrapf(err, "sequencer: close conversation %d", c.ID)
		}
		log.Info("sequencer: sequence exhausted, conversation closed")
		return OutcomeClosed, nil
	}

	lead := model.Lead{ID: c.LeadID, URL: c.ListingURL, Title: c.LeadTitle}
	msg, err := s.composer.Compose(ctx, *tmpl, lead)
	if err != nil {
		return "", eris.Wrap(err, "sequencer: compose")
	}
	if err := s.messenger.Send(ctx, c.ListingURL, msg); err != nil {
		log.Warn("sequencer: follow-up not sent", zap.Error(err))
		return OutcomeSendFailed, &SendError{Reason: err.Error(), Err: err}
	}

	now := s.now().UTC()
	if err := s.store.UpdateConversation(ctx, c.ID, store.ConversationUpdate{
		Stage:           &next,
		LastSentMessage: &msg,
		LastSentAt:      &now,
	}); err != nil {
		return "", eris.Wrapf(err, "sequencer: record follow-up for conversation %d", c.ID)
	}
	log.Info("sequencer: follow-up sent", zap.Int("next_stage", next))
	return OutcomeAdvanced, nil
}
