// Package orchestrator drives leads through the phone, outreach and
// follow-up sweeps, one item at a time, under the run/pause/stop control
// state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/extract"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/sequencer"
	"github.com/sells-group/outreach-cli/internal/store"
)

// ErrCycleRunning is returned when a cycle is requested while one runs.
var ErrCycleRunning = eris.New("orchestrator: cycle already running")

// Extractor harvests contacts from one listing.
type Extractor interface {
	Extract(ctx context.Context, url string) extract.Result
}

// Outreacher runs the conversation state machine.
type Outreacher interface {
	StartOutreach(ctx context.Context, leadID int64) (*model.Conversation, error)
	Advance(ctx context.Context, c model.ConversationWithLead) (sequencer.Outcome, error)
	DueFilter() store.ConversationFilter
}

// Config paces the sweeps.
type Config struct {
	PhoneDelay      time.Duration
	OutreachDelay   time.Duration
	FollowUpDelay   time.Duration
	PausePoll       time.Duration
	FollowUpEnabled bool
}

// Orchestrator runs cycles. All browser work, from sweeps and single-item
// calls alike, is serialized on itemMu.
type Orchestrator struct {
	store     store.Store
	extractor Extractor
	outreach  Outreacher
	cfg       Config
	control   *Control

	itemMu sync.Mutex
	wg     sync.WaitGroup

	mu   sync.Mutex
	last *CycleReport

	sleep func(ctx context.Context, d time.Duration)
}

// New creates an Orchestrator.
func New(st store.Store, ex Extractor, out Outreacher, control *Control, cfg Config) *Orchestrator {
	if control == nil {
		control = &Control{}
	}
	if cfg.PausePoll <= 0 {
		cfg.PausePoll = time.Second
	}
	return &Orchestrator{
		store:     st,
		extractor: ex,
		outreach:  out,
		cfg:       cfg,
		control:   control,
		sleep:     sleepCtx,
	}
}

// Control returns the shared control state.
func (o *Orchestrator) Control() *Control { return o.control }

// ExecutionStatus is the control state plus the latest cycle report.
type ExecutionStatus struct {
	Status
	LastCycle *CycleReport `json:"last_cycle,omitempty"`
}

// ExecutionStatus returns the current status.
func (o *Orchestrator) ExecutionStatus() ExecutionStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return ExecutionStatus{Status: o.control.Status(), LastCycle: o.last.clone()}
}

// StartCycle launches a cycle in the background and returns its id. ctx
// must outlive the cycle.
func (o *Orchestrator) StartCycle(ctx context.Context) (string, error) {
	if !o.control.acquire() {
		return "", ErrCycleRunning
	}
	id := uuid.NewString()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runCycle(ctx, id)
	}()
	return id, nil
}

// RunCycle runs a cycle in the foreground.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleReport, error) {
	if !o.control.acquire() {
		return nil, ErrCycleRunning
	}
	return o.runCycle(ctx, uuid.NewString()), nil
}

// Wait blocks until background cycles have returned.
func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) runCycle(ctx context.Context, id string) (report *CycleReport) {
	log := zap.L().With(zap.String("cycle_id", id))
	report = &CycleReport{ID: id, StartedAt: time.Now().UTC()}
	o.publish(report)

	defer func() {
		if r := recover(); r != nil {
			log.Error("orchestrator: cycle panicked", zap.Any("panic", r))
			report.Error = fmt.Sprint(r)
		}
		now := time.Now().UTC()
		report.FinishedAt = &now
		o.publish(report)
		o.control.release()
		log.Info("orchestrator: cycle finished", zap.Bool("stopped", report.Stopped))
	}()

	log.Info("orchestrator: cycle started")
	sweeps := []struct {
		name string
		run  func(ctx context.Context, sw *SweepReport, log *zap.Logger) error
	}{
		{SweepPhone, o.phoneSweep},
		{SweepOutreach, o.outreachSweep},
		{SweepFollowUp, o.followUpSweep},
	}
	for _, s := range sweeps {
		if !o.checkpoint(ctx) {
			report.Stopped = true
			return report
		}
		report.Sweeps = append(report.Sweeps, SweepReport{Name: s.name})
		sw := &report.Sweeps[len(report.Sweeps)-1]
		slog := log.With(zap.String("sweep", s.name))

		err := s.run(ctx, sw, slog)
		if err != nil && !eris.Is(err, errStopped) {
			sw.Error = err.Error()
			slog.Error("orchestrator: sweep aborted", zap.Error(err))
		}
		slog.Info("orchestrator: sweep done",
			zap.Int("processed", sw.Processed),
			zap.Int("succeeded", sw.Succeeded),
			zap.Int("failed", sw.Failed),
			zap.Int("skipped", sw.Skipped),
		)
		o.publish(report)
		if eris.Is(err, errStopped) {
			report.Stopped = true
			return report
		}
	}
	return report
}

func (o *Orchestrator) publish(r *CycleReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last = r.clone()
}

// errStopped ends a sweep early on a stop request.
var errStopped = eris.New("orchestrator: stop requested")

// checkpoint is the only suspension point of a cycle. It blocks while
// paused and reports whether the next item may start.
func (o *Orchestrator) checkpoint(ctx context.Context) bool {
	for {
		if ctx.Err() != nil || o.control.stop.Load() {
			return false
		}
		if !o.control.pause.Load() {
			return true
		}
		o.sleep(ctx, o.cfg.PausePoll)
	}
}

// abortSweep ends a sweep early. The item that returned it and every item
// after it count as skipped, and err becomes the sweep error.
type abortSweep struct{ err error }

func (a *abortSweep) Error() string { return a.err.Error() }

func (a *abortSweep) Unwrap() error { return a.err }

// each runs fn over items with checkpoints, pacing and panic isolation.
// The delay follows items that did work; skipped items are not paced.
func each[T any](ctx context.Context, o *Orchestrator, sw *SweepReport, log *zap.Logger, items []T, delay time.Duration,
	fn func(ctx context.Context, item T) (itemResult, error)) error {
	for i, item := range items {
		if !o.checkpoint(ctx) {
			return errStopped
		}
		res, err := isolate(ctx, o, item, fn)
		var abort *abortSweep
		if errors.As(err, &abort) {
			rest := len(items) - i
			sw.Processed += rest
			sw.Skipped += rest
			log.Error("orchestrator: sweep aborted", zap.Int("index", i), zap.Int("skipped", rest), zap.Error(abort.err))
			return abort.err
		}
		if err != nil {
			log.Error("orchestrator: item failed", zap.Int("index", i), zap.Error(err))
		}
		sw.count(res)
		if res != itemSkipped && i < len(items)-1 {
			o.sleep(ctx, delay)
		}
	}
	return nil
}

// isolate runs one item under itemMu, turning a panic into a failure.
func isolate[T any](ctx context.Context, o *Orchestrator, item T, fn func(ctx context.Context, item T) (itemResult, error)) (res itemResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = itemFailed, eris.Errorf("panic: %v", r)
		}
	}()
	o.itemMu.Lock()
	defer o.itemMu.Unlock()
	return fn(ctx, item)
}

func (o *Orchestrator) phoneSweep(ctx context.Context, sw *SweepReport, log *zap.Logger) error {
	leads, err := o.store.ListLeads(ctx, store.LeadFilter{
		PhoneSearched: store.Bool(false),
		Expired:       store.Bool(false),
		PipelineStage: model.StageInbox,
		Order:         store.OrderByPriority,
	})
	if err != nil {
		return eris.Wrap(err, "orchestrator: list leads for phone sweep")
	}
	log.Info("orchestrator: phone sweep", zap.Int("leads", len(leads)))
	return each(ctx, o, sw, log, leads, o.cfg.PhoneDelay, func(ctx context.Context, l model.Lead) (itemResult, error) {
		res, err := o.extractLead(ctx, l)
		if err != nil {
			return itemFailed, err
		}
		if !res.Conclusive() {
			return itemFailed, eris.Errorf("lead %d: extraction inconclusive: %s", l.ID, res.Error)
		}
		return itemSucceeded, nil
	})
}

func (o *Orchestrator) outreachSweep(ctx context.Context, sw *SweepReport, log *zap.Logger) error {
	leads, err := o.store.ListLeads(ctx, store.LeadFilter{
		PhoneSearched: store.Bool(true),
		Expired:       store.Bool(false),
		HasContacts:   true,
	})
	if err != nil {
		return eris.Wrap(err, "orchestrator: list leads for outreach sweep")
	}
	pending := leads[:0]
	for _, l := range leads {
		has, err := o.store.HasConversation(ctx, l.ID)
		if err != nil {
			return eris.Wrapf(err, "orchestrator: check conversation for lead %d", l.ID)
		}
		if !has {
			pending = append(pending, l)
		}
	}
	log.Info("orchestrator: outreach sweep", zap.Int("leads", len(pending)))

	return each(ctx, o, sw, log, pending, o.cfg.OutreachDelay, func(ctx context.Context, l model.Lead) (itemResult, error) {
		_, err := o.outreach.StartOutreach(ctx, l.ID)
		switch {
		case err == nil:
			return itemSucceeded, nil
		case eris.Is(err, sequencer.ErrTemplateMissing):
			return itemSkipped, &abortSweep{err: err}
		case eris.Is(err, sequencer.ErrConversationExists), eris.Is(err, sequencer.ErrNotEligible):
			return itemSkipped, nil
		default:
			return itemFailed, err
		}
	})
}

func (o *Orchestrator) followUpSweep(ctx context.Context, sw *SweepReport, log *zap.Logger) error {
	if !o.cfg.FollowUpEnabled {
		sw.Disabled = true
		return nil
	}
	convs, err := o.store.ListConversations(ctx, o.outreach.DueFilter())
	if err != nil {
		return eris.Wrap(err, "orchestrator: list due conversations")
	}
	log.Info("orchestrator: follow-up sweep", zap.Int("conversations", len(convs)))
	return each(ctx, o, sw, log, convs, o.cfg.FollowUpDelay, func(ctx context.Context, c model.ConversationWithLead) (itemResult, error) {
		out, err := o.outreach.Advance(ctx, c)
		switch out {
		case sequencer.OutcomeAdvanced, sequencer.OutcomeClosed, sequencer.OutcomeResponded:
			return itemSucceeded, err
		case sequencer.OutcomeNotDue:
			return itemSkipped, err
		default:
			if err == nil {
				err = eris.Errorf("conversation %d: %s", c.ID, out)
			}
			return itemFailed, err
		}
	})
}

// extractLead runs extraction and persists a conclusive result. Blocked or
// unavailable runs leave the lead untouched so the next cycle retries it.
func (o *Orchestrator) extractLead(ctx context.Context, l model.Lead) (extract.Result, error) {
	log := zap.L().With(zap.Int64("lead_id", l.ID), zap.String("url", l.URL))
	res := o.extractor.Extract(ctx, l.URL)
	if !res.Conclusive() {
		log.Warn("orchestrator: extraction inconclusive",
			zap.Bool("blocked", res.Blocked),
			zap.String("error", res.Error),
		)
		return res, nil
	}

	u := store.LeadUpdate{PhoneSearched: store.Bool(true)}
	if res.Expired {
		status := model.ListingStatusExpired
		u.Expired = store.Bool(true)
		u.ListingStatus = &status
	} else {
		contacts := res.Contacts
		if contacts == nil {
			contacts = []model.Contact{}
		}
		primary := ""
		if len(contacts) > 0 {
			primary = contacts[0].Digits
		}
		u.Contacts = &contacts
		u.PrimaryPhone = &primary
	}
	if err := o.store.UpdateLead(ctx, l.ID, u); err != nil {
		return res, eris.Wrapf(err, "orchestrator: persist extraction for lead %d", l.ID)
	}
	log.Info("orchestrator: lead searched",
		zap.Bool("expired", res.Expired),
		zap.Int("contacts", len(res.Contacts)),
	)
	return res, nil
}

// ExtractPhoneFor extracts one lead outside a sweep.
func (o *Orchestrator) ExtractPhoneFor(ctx context.Context, leadID int64) (extract.Result, error) {
	o.itemMu.Lock()
	defer o.itemMu.Unlock()

	l, err := o.store.FindLead(ctx, leadID)
	if err != nil {
		return extract.Result{}, eris.Wrapf(err, "orchestrator: find lead %d", leadID)
	}
	if l == nil {
		return extract.Result{}, eris.Wrapf(store.ErrNotFound, "orchestrator: lead %d", leadID)
	}
	return o.extractLead(ctx, *l)
}

// StartOutreachFor sends the first message to one lead outside a sweep.
func (o *Orchestrator) StartOutreachFor(ctx context.Context, leadID int64) (*model.Conversation, error) {
	o.itemMu.Lock()
	defer o.itemMu.Unlock()
	return o.outreach.StartOutreach(ctx, leadID)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
