// Package friction implements the UX friction classifiers: form
// abandonment, rage clicks and dead clicks. The service consumes a
// normalized interaction stream and emits classified friction events to
// best-effort sinks; nothing here ever blocks or retries.
package friction

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	frictiondomain "github.com/tablewise/insights/internal/domain/friction"
	"github.com/tablewise/insights/internal/domain/interaction"
	"github.com/tablewise/insights/internal/ports/inbound"
	"github.com/tablewise/insights/internal/ports/outbound"
)

var _ inbound.FrictionService = (*Service)(nil)

// Config holds detector thresholds
type Config struct {
	// Form abandonment
	MinInteractionTime time.Duration // minimum dwell before a form can abandon
	IdleThreshold      time.Duration // inactivity required to call a form abandoned
	SweepInterval      time.Duration // how often the abandonment sweep runs

	// Rage click
	RageThreshold    int           // same-element clicks that trigger a report
	RageTimeWindow   time.Duration // rolling window for the click buffer
	ExcludeSelectors []string      // selectors exempt from rage detection

	// Event log
	MaxEvents int // session event log cap, FIFO eviction
}

// DefaultConfig returns the thresholds the original instrumentation shipped with
func DefaultConfig() Config {
	return Config{
		MinInteractionTime: 5 * time.Second,
		IdleThreshold:      30 * time.Second,
		SweepInterval:      10 * time.Second,
		RageThreshold:      3,
		RageTimeWindow:     time.Second,
		MaxEvents:          1000,
	}
}

// Service runs the three friction classifiers over an event source
type Service struct {
	config   Config
	tenantID string
	source   outbound.EventSource
	sinks    []outbound.AnalyticsSink
	replay   outbound.ReplaySink
	repo     outbound.FrictionRepository
	logger   *zap.Logger

	mu          sync.Mutex
	forms       map[string]*formState   // key: sessionID + "\x00" + formID
	rage        map[string]*rageTracker // key: sessionID
	events      []frictiondomain.Event
	subscribers map[int]func(frictiondomain.Event)
	nextSubID   int

	cancelSub   func()
	sweepCancel context.CancelFunc
	now         func() time.Time
}

// NewService creates a friction service. repo and replay may be nil; sink
// and archive failures degrade silently.
func NewService(
	cfg Config,
	tenantID string,
	source outbound.EventSource,
	sinks []outbound.AnalyticsSink,
	replay outbound.ReplaySink,
	repo outbound.FrictionRepository,
	logger *zap.Logger,
) *Service {
	if cfg.MinInteractionTime == 0 {
		cfg = DefaultConfig()
	}
	return &Service{
		config:      cfg,
		tenantID:    tenantID,
		source:      source,
		sinks:       sinks,
		replay:      replay,
		repo:        repo,
		logger:      logger.Named("friction"),
		forms:       make(map[string]*formState),
		rage:        make(map[string]*rageTracker),
		subscribers: make(map[int]func(frictiondomain.Event)),
		now:         time.Now,
	}
}

// Start attaches the detectors to the event source and begins the periodic
// abandonment sweep
func (s *Service) Start(ctx context.Context) error {
	cancel, err := s.source.Subscribe(ctx, s.handleEvent,
		interaction.KindClick,
		interaction.KindFocus,
		interaction.KindInput,
		interaction.KindSubmit,
		interaction.KindUnload,
	)
	if err != nil {
		return err
	}
	s.cancelSub = cancel

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	s.sweepCancel = sweepCancel
	go s.sweepLoop(sweepCtx)

	s.logger.Info("Friction detectors started",
		zap.String("tenant_id", s.tenantID),
		zap.Duration("sweep_interval", s.config.SweepInterval),
	)
	return nil
}

// Stop detaches from the source and cancels the sweep
func (s *Service) Stop() {
	if s.cancelSub != nil {
		s.cancelSub()
	}
	if s.sweepCancel != nil {
		s.sweepCancel()
	}
}

// Events returns a copy of the session event log, oldest first
func (s *Service) Events() []frictiondomain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]frictiondomain.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Subscribe registers a callback for every classified event
func (s *Service) Subscribe(fn func(frictiondomain.Event)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Service) handleEvent(sessionID string, event interaction.Event) {
	switch ev := event.(type) {
	case interaction.ClickEvent:
		s.handleClick(sessionID, ev)
	case interaction.FocusEvent:
		s.handleFocus(sessionID, ev)
	case interaction.InputEvent:
		s.handleInput(sessionID, ev)
	case interaction.SubmitEvent:
		s.handleSubmit(sessionID, ev)
	case interaction.UnloadEvent:
		s.handleUnload(sessionID, ev)
	}
}

func (s *Service) handleClick(sessionID string, ev interaction.ClickEvent) {
	if reason, dead := ClassifyDeadClick(ev.Element); dead {
		s.emit(frictiondomain.NewEvent(
			s.tenantID, sessionID,
			frictiondomain.SeverityMedium,
			ev.Element,
			frictiondomain.DeadClickDetail{Reason: reason},
			ev.Timestamp,
		))
	}

	if selectorExcluded(ev.Element, s.config.ExcludeSelectors) {
		return
	}

	rec := interaction.Record{
		ElementID: ev.Element.ID,
		TagName:   ev.Element.TagName,
		X:         ev.X,
		Y:         ev.Y,
		Timestamp: ev.Timestamp,
	}
	s.forwardToReplay(sessionID, rec)

	s.mu.Lock()
	tracker, ok := s.rage[sessionID]
	if !ok {
		tracker = &rageTracker{}
		s.rage[sessionID] = tracker
	}
	count, fired := tracker.observe(rec, s.config.RageTimeWindow, s.config.RageThreshold)
	s.mu.Unlock()

	if fired {
		s.emit(frictiondomain.NewEvent(
			s.tenantID, sessionID,
			frictiondomain.SeverityHigh,
			ev.Element,
			frictiondomain.RageClickDetail{ClickCount: count, Window: s.config.RageTimeWindow},
			ev.Timestamp,
		))
	}
}

func (s *Service) handleFocus(sessionID string, ev interaction.FocusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := formKey(sessionID, ev.FormID)
	state, ok := s.forms[key]
	if !ok {
		state = newFormState(sessionID, ev.FormID, ev.TotalFields, ev.Timestamp)
		s.forms[key] = state
	}
	if ev.TotalFields > state.totalFields {
		state.totalFields = ev.TotalFields
	}
	state.touch(ev.FieldID, ev.Timestamp)
}

func (s *Service) handleInput(sessionID string, ev interaction.InputEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := formKey(sessionID, ev.FormID)
	state, ok := s.forms[key]
	if !ok {
		state = newFormState(sessionID, ev.FormID, 0, ev.Timestamp)
		s.forms[key] = state
	}
	state.setValue(ev.FieldID, ev.Value, ev.Timestamp)
}

func (s *Service) handleSubmit(sessionID string, ev interaction.SubmitEvent) {
	s.mu.Lock()
	state, ok := s.forms[formKey(sessionID, ev.FormID)]
	if ok {
		state.submitted = true
		delete(s.forms, formKey(sessionID, ev.FormID))
	}
	s.mu.Unlock()
}

// handleUnload runs a final abandonment check for the session's forms so
// mid-form exits are not lost to the next sweep
func (s *Service) handleUnload(sessionID string, ev interaction.UnloadEvent) {
	s.sweepSession(ev.Timestamp, sessionID)
}

func (s *Service) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

// Sweep checks every tracked form against the abandonment thresholds
func (s *Service) Sweep(now time.Time) {
	s.sweepSession(now, "")
}

func (s *Service) sweepSession(now time.Time, onlySession string) {
	s.mu.Lock()
	var abandoned []*formState
	for key, state := range s.forms {
		if onlySession != "" && state.sessionID != onlySession {
			continue
		}
		if state.shouldAbandon(now, s.config.MinInteractionTime, s.config.IdleThreshold) {
			abandoned = append(abandoned, state)
			delete(s.forms, key)
		}
	}
	s.mu.Unlock()

	for _, state := range abandoned {
		rate := state.completionRate()
		s.emit(frictiondomain.NewEvent(
			s.tenantID, state.sessionID,
			frictiondomain.AbandonmentSeverity(rate),
			interaction.Element{ID: state.formID, TagName: "form"},
			frictiondomain.FormAbandonmentDetail{
				FormID:            state.formID,
				FieldsInteracted:  len(state.interactedFields),
				FieldsFilled:      state.filledFields(),
				TotalFields:       state.totalFields,
				CompletionRate:    rate,
				DwellTime:         state.lastInteractionTime.Sub(state.startTime),
				TimeSinceActivity: now.Sub(state.lastInteractionTime),
			},
			now,
		))
	}
}

// emit records the event and fans it out to subscribers, sinks and the
// archive. Fire-and-forget: sink failures are logged and swallowed.
func (s *Service) emit(event frictiondomain.Event) {
	s.mu.Lock()
	s.events = append(s.events, event)
	if max := s.config.MaxEvents; max > 0 && len(s.events) > max {
		s.events = s.events[len(s.events)-max:]
	}
	subs := make([]func(frictiondomain.Event), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.logger.Debug("Friction event classified",
		zap.String("type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.String("session_id", event.SessionID),
	)

	for _, fn := range subs {
		fn(event)
	}

	go s.deliver(event)
}

func (s *Service) deliver(event frictiondomain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, sink := range s.sinks {
		if err := sink.TrackEvent(ctx, "friction_"+string(event.Type), map[string]interface{}{
			"severity":   string(event.Severity),
			"element_id": event.Element.ID,
			"session_id": event.SessionID,
		}); err != nil {
			s.logger.Warn("Analytics sink rejected friction event", zap.Error(err))
		}
	}

	if s.replay != nil {
		if err := s.replay.TagRecording(ctx, event.SessionID, "friction:"+string(event.Type)); err != nil {
			s.logger.Warn("Replay sink tag failed", zap.Error(err))
		}
	}

	if s.repo != nil {
		if err := s.repo.SaveEvent(ctx, event); err != nil {
			s.logger.Warn("Friction archive write failed", zap.Error(err))
		}
	}
}

func (s *Service) forwardToReplay(sessionID string, rec interaction.Record) {
	if s.replay == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.replay.TrackInteraction(ctx, sessionID, rec); err != nil {
			s.logger.Debug("Replay sink interaction failed", zap.Error(err))
		}
	}()
}

func formKey(sessionID, formID string) string {
	return sessionID + "\x00" + formID
}
