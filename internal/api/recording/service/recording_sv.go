package recordingService

import (
	"audiogami/internal/api/recording"
	"audiogami/internal/entity"
	"audiogami/internal/session"
	contextPkg "audiogami/pkg/context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

func (s *recordingService) Create(ctx context.Context, req recording.CreateRecordingRequest) (*recording.RecordingResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)

	useCase := entity.UseCaseID(req.UseCase)
	if _, ok := s.catalog.Get(useCase); !ok {
		return nil, session.ErrUnknownUseCase
	}
	lang := entity.LanguageEN
	if req.Language == string(entity.LanguageFR) {
		lang = entity.LanguageFR
	}

	if req.TicketID != "" {
		bound, err := s.ticketService.GetTicket(ctx, req.TicketID)
		if err != nil {
			return nil, err
		}
		if bound.Status.IsTerminal() {
			return nil, recording.ErrTicketClosed
		}
	}

	portal, ok := s.settings.portal(useCase)
	if !ok {
		return nil, recording.ErrPortalNotConfigured
	}

	now := s.now()
	id, err := s.utils.NewULIDFromTimestamp(now)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to generate session id")
		return nil, recording.ErrCreateRecording
	}

	rec := &liveRecording{
		id:        id,
		ticketID:  req.TicketID,
		useCase:   useCase,
		lang:      lang,
		createdAt: now,
		lastSeen:  now,
	}

	opts := append([]session.Option{
		session.WithLogger(s.log),
		session.WithListener(rec.publish),
	}, s.sessionOpts...)

	ctrl, err := session.New(s.newLoader(useCase, lang), s.catalog, useCase, lang, session.Config{
		ID:              id,
		Host:            s.settings.Host,
		PortalID:        portal,
		FinalizeTimeout: s.settings.FinalizeTimeout,
		StructMode:      s.settings.StructMode,
	}, opts...)
	if err != nil {
		return nil, err
	}
	rec.ctrl = ctrl

	s.mu.Lock()
	if s.settings.MaxSessions > 0 && len(s.sessions) >= s.settings.MaxSessions {
		s.mu.Unlock()
		return nil, recording.ErrTooManyRecordings
	}
	s.sessions[id] = rec
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"session_id": id,
		"use_case":   useCase,
		"ticket_id":  req.TicketID,
	}).Info("Recording session created")

	s.initAsync(rec, ctrl.Init)
	return rec.response(), nil
}

// initAsync runs a start-up sequence off the request goroutine. Progress
// reaches clients through the view and the websocket.
func (s *recordingService) initAsync(rec *liveRecording, init func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()

		err := init(ctx)
		if err == nil || errors.Is(err, session.ErrSuperseded) || errors.Is(err, session.ErrClosed) {
			return
		}
		s.log.WithFields(logrus.Fields{
			"session_id": rec.id,
			"use_case":   rec.useCase,
			"error":      err.Error(),
		}).Warn("Recording session failed to initialize")
	}()
}

func (s *recordingService) lookup(id string) (*liveRecording, error) {
	s.mu.Lock()
	rec, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, recording.ErrRecordingNotFound
	}
	rec.touch(s.now())
	return rec, nil
}

func (s *recordingService) Get(_ context.Context, id string) (*recording.RecordingResponse, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return rec.response(), nil
}

func (s *recordingService) Start(ctx context.Context, id string) (*recording.RecordingResponse, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := rec.ctrl.StartRecording(ctx); err != nil {
		return nil, err
	}
	return rec.response(), nil
}

func (s *recordingService) Stop(ctx context.Context, id string) (*recording.RecordingResponse, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := rec.ctrl.StopRecording(ctx); err != nil {
		return nil, err
	}
	return rec.response(), nil
}

// Retry restarts initialization from any phase.
func (s *recordingService) Retry(ctx context.Context, id string) (*recording.RecordingResponse, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"request_id": contextPkg.GetRequestID(ctx),
		"session_id": id,
	}).Info("Retrying recording session")

	s.initAsync(rec, rec.ctrl.Retry)
	return rec.response(), nil
}

// Continue hands the session over to the ticket store and ends it. Only
// one call per session reaches the store; the session stays open when
// persisting fails so the caller can try again.
func (s *recordingService) Continue(ctx context.Context, id string) (*recording.ContinueResponse, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	handoff, err := rec.ctrl.Continue()
	if err != nil {
		return nil, err
	}

	t, err := s.ticketService.SubmitHandoff(contextPkg.WithSessionID(ctx, id), rec.ticketID, handoff)
	if err != nil {
		rec.ctrl.ReleaseHandoff()
		return nil, err
	}

	s.remove(ctx, id)
	return &recording.ContinueResponse{Ticket: t, Handoff: handoff}, nil
}

func (s *recordingService) Close(ctx context.Context, id string) error {
	if _, err := s.lookup(id); err != nil {
		return err
	}
	s.remove(ctx, id)
	return nil
}

func (s *recordingService) Subscribe(id string) (<-chan session.View, func(), error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel, ok := rec.subscribe()
	if !ok {
		return nil, nil, recording.ErrRecordingNotFound
	}
	rec.publish(rec.ctrl.View())
	return ch, cancel, nil
}

func (s *recordingService) remove(ctx context.Context, id string) {
	s.mu.Lock()
	rec, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return
	}

	if err := rec.ctrl.Close(ctx); err != nil {
		s.log.WithFields(logrus.Fields{
			"session_id": id,
			"error":      err.Error(),
		}).Warn("Failed to close recording session")
	}
	rec.closeSubscribers()

	s.log.WithFields(logrus.Fields{
		"request_id": contextPkg.GetRequestID(ctx),
		"session_id": id,
	}).Info("Recording session closed")
}

func (s *recordingService) Run(ctx context.Context) {
	if s.settings.IdleTTL <= 0 {
		return
	}

	interval := s.settings.IdleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reap(ctx)
		}
	}
}

// reap closes sessions nobody has touched for IdleTTL. A session followed
// over websocket is never idle.
func (s *recordingService) reap(ctx context.Context) int {
	cutoff := s.now().Add(-s.settings.IdleTTL)

	var idle []string
	s.mu.Lock()
	for id, rec := range s.sessions {
		if rec.hasSubscribers() {
			continue
		}
		if rec.idleSince().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	s.mu.Unlock()

	for _, id := range idle {
		s.log.WithField("session_id", id).Info("Reaping idle recording session")
		s.remove(ctx, id)
	}
	return len(idle)
}

func (s *recordingService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.remove(ctx, id)
	}
}
