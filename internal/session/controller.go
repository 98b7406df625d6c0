package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"audiogami/internal/catalog"
	"audiogami/internal/entity"
	"audiogami/pkg/fieldmap"
	"audiogami/pkg/voice"

	"github.com/sirupsen/logrus"
)

var (
	ErrNotReady              = errors.New("session is not ready")
	ErrClosed                = errors.New("session is closed")
	ErrSuperseded            = errors.New("initialization superseded by a newer attempt")
	ErrRequiredFieldsMissing = errors.New("required fields are missing")
	ErrFinalizePending       = errors.New("extraction is still being finalized")
	ErrHandoffInProgress     = errors.New("session is already being handed off")
	ErrUnknownUseCase        = errors.New("unknown use case")
)

const DefaultFinalizeTimeout = 8 * time.Second

type Config struct {
	ID              string
	Host            string
	PortalID        string
	FinalizeTimeout time.Duration
	StructMode      StructMode
}

// Listener receives every state change. It is called with the controller
// lock held: it must not block and must not call back into the controller.
type Listener func(View)

type Option func(*Controller)

func WithScheduler(s Scheduler) Option {
	return func(c *Controller) {
		c.sched = s
	}
}

func WithListener(l Listener) Option {
	return func(c *Controller) {
		c.listener = l
	}
}

func WithLogger(log *logrus.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// Controller drives one voice capture and extraction flow against a
// voice.Client. All methods are safe for concurrent use; vendor events
// arrive on the client's goroutines.
type Controller struct {
	loader   voice.Loader
	catalog  *catalog.Catalog
	useCase  *catalog.UseCase
	lang     entity.Language
	cfg      Config
	sched    Scheduler
	listener Listener
	log      *logrus.Logger

	mu         sync.Mutex
	state      State
	client     voice.Client
	subs       []voice.Subscription
	attempt    uint64
	cancelInit context.CancelFunc
	started    bool
	closed     bool
	handingOff bool

	// finalize guard for the pending stop request
	stopRequested bool
	stopSeq       uint64
	timer         Timer

	passes  []string
	current string
}

func New(
	loader voice.Loader,
	cat *catalog.Catalog,
	useCase entity.UseCaseID,
	lang entity.Language,
	cfg Config,
	opts ...Option,
) (*Controller, error) {
	uc, ok := cat.Get(useCase)
	if !ok {
		return nil, ErrUnknownUseCase
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = DefaultFinalizeTimeout
	}
	if cfg.StructMode == "" {
		cfg.StructMode = StructMerge
	}
	if lang != entity.LanguageFR {
		lang = entity.LanguageEN
	}

	c := &Controller{
		loader:  loader,
		catalog: cat,
		useCase: uc,
		lang:    lang,
		cfg:     cfg,
		sched:   RealScheduler,
		log:     logrus.StandardLogger(),
		state: State{
			Phase: PhaseIdle,
			Draft: entity.TicketDraft{Fields: entity.Fields{}},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Controller) UseCase() *catalog.UseCase {
	return c.useCase
}

func (c *Controller) Language() entity.Language {
	return c.lang
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	missing := MissingFields(c.useCase, c.state.Draft.Fields)
	return View{
		State:         c.state.clone(),
		MissingFields: missing,
		MissingPrompt: MissingPrompt(c.catalog, missing, c.lang),
		Progress:      Progress(c.useCase, c.state.Draft.Fields),
		Complete:      len(missing) == 0,
	}
}

func (c *Controller) notifyLocked() {
	if c.closed || c.listener == nil {
		return
	}
	c.listener(c.viewLocked())
}

func (c *Controller) entry() *logrus.Entry {
	return c.log.WithFields(logrus.Fields{
		"session_id": c.cfg.ID,
		"use_case":   c.useCase.ID,
		"phase":      c.state.Phase,
		"attempt":    c.attempt,
	})
}

// Init runs the start-up sequence from loading the SDK to creating the
// thread. Calling it again supersedes any attempt still in flight: the
// older attempt can no longer change the state and its client is dropped.
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	if c.cancelInit != nil {
		c.cancelInit()
	}
	c.attempt++
	attempt := c.attempt
	runCtx, cancel := context.WithCancel(ctx)
	c.cancelInit = cancel

	previous, subs := c.detachLocked()
	c.resetLocked()
	c.state.Phase = PhaseLoadingSDK
	c.entry().Debug("initializing session")
	c.notifyLocked()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.attempt == attempt {
			c.cancelInit = nil
		}
		c.mu.Unlock()
		cancel()
	}()

	c.teardown(ctx, previous, subs)

	client, err := c.loader.Load(runCtx)
	c.mu.Lock()
	if !c.currentLocked(attempt) {
		stale := c.staleErrLocked()
		c.mu.Unlock()
		c.teardown(ctx, client, nil)
		return stale
	}
	if err != nil {
		return c.failInitLocked(err)
	}
	c.client = client
	c.state.Phase = PhaseConnecting
	c.notifyLocked()
	c.mu.Unlock()

	err = client.Connect(runCtx, c.cfg.Host)
	if err := c.advance(attempt, err, PhaseJoiningPortal); err != nil {
		return c.abandon(ctx, client, err)
	}

	err = client.UsePortal(runCtx, c.cfg.PortalID)
	if err := c.advance(attempt, err, PhaseRegisteringEvents); err != nil {
		return c.abandon(ctx, client, err)
	}

	c.mu.Lock()
	if !c.currentLocked(attempt) {
		stale := c.staleErrLocked()
		c.mu.Unlock()
		return c.abandon(ctx, client, stale)
	}
	c.subscribeLocked(client, attempt)
	c.state.Phase = PhaseCreatingThread
	c.notifyLocked()
	c.mu.Unlock()

	thread, err := client.CreateThread(runCtx)
	c.mu.Lock()
	if !c.currentLocked(attempt) {
		stale := c.staleErrLocked()
		c.mu.Unlock()
		return c.abandon(ctx, client, stale)
	}
	defer c.mu.Unlock()
	if err != nil {
		c.failLocked(err)
		return err
	}
	c.state.ThreadID = thread.ID
	c.state.Phase = PhaseReady
	c.entry().Info("session ready")
	c.notifyLocked()
	return nil
}

// Retry restarts initialization from loading the SDK.
func (c *Controller) Retry(ctx context.Context) error {
	return c.Init(ctx)
}

func (c *Controller) currentLocked(attempt uint64) bool {
	return !c.closed && c.attempt == attempt
}

func (c *Controller) staleErrLocked() error {
	if c.closed {
		return ErrClosed
	}
	return ErrSuperseded
}

// abandon drops the client of an attempt that lost to a newer one or to
// Close, so a connection completing late does not leak.
func (c *Controller) abandon(ctx context.Context, client voice.Client, err error) error {
	if err == ErrSuperseded || err == ErrClosed {
		c.teardown(ctx, client, nil)
	}
	return err
}

func (c *Controller) advance(attempt uint64, err error, next Phase) error {
	c.mu.Lock()
	if !c.currentLocked(attempt) {
		stale := c.staleErrLocked()
		c.mu.Unlock()
		return stale
	}
	if err != nil {
		return c.failInitLocked(err)
	}
	c.state.Phase = next
	c.notifyLocked()
	c.mu.Unlock()
	return nil
}

// failInitLocked unlocks c.mu.
func (c *Controller) failInitLocked(err error) error {
	c.failLocked(err)
	c.mu.Unlock()
	return err
}

func (c *Controller) failLocked(err error) {
	c.entry().WithField("error", err.Error()).Warn("session failed")
	c.cancelFinalizeLocked()
	c.state.Phase = PhaseError
	c.state.Error = err.Error()
	c.state.IsRecording = false
	c.state.IsProcessing = false
	c.notifyLocked()
}

func (c *Controller) resetLocked() {
	c.cancelFinalizeLocked()
	c.started = false
	c.passes = nil
	c.current = ""
	c.state = State{
		Phase: PhaseIdle,
		Draft: entity.TicketDraft{Fields: entity.Fields{}},
	}
}

func (c *Controller) subscribeLocked(client voice.Client, attempt uint64) {
	handle := func(ev voice.Event) voice.Handler {
		return func(payload interface{}) {
			c.onEvent(attempt, ev, payload)
		}
	}
	c.subs = append(c.subs,
		client.On(voice.EventAudioRecording, handle(voice.EventAudioRecording)),
		client.On(voice.EventTextCurrent, handle(voice.EventTextCurrent)),
		client.On(voice.EventTextHistory, handle(voice.EventTextHistory)),
		client.On(voice.EventStructCurrent, handle(voice.EventStructCurrent)),
		client.On(voice.EventExtractionStatus, handle(voice.EventExtractionStatus)),
	)
}

func (c *Controller) onEvent(attempt uint64, ev voice.Event, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(attempt) {
		return
	}

	switch ev {
	case voice.EventAudioRecording:
		recording := asString(payload) == voice.AudioRecording
		if recording && c.stopRequested {
			return
		}
		c.state.IsRecording = recording
	case voice.EventTextCurrent:
		c.state.Partial = asString(payload)
	case voice.EventTextHistory:
		c.current = asString(payload)
		c.state.Transcript = c.transcriptLocked()
	case voice.EventStructCurrent:
		draft := fieldmap.Decode(payload)
		if c.cfg.StructMode == StructReplace {
			c.state.Draft = draft
		} else {
			c.state.Draft = c.state.Draft.Overlay(draft)
		}
	case voice.EventExtractionStatus:
		status := asString(payload)
		c.state.Extraction = status
		if status == voice.ExtractionDone && c.stopRequested {
			c.entry().Debug("extraction done")
			c.finalizeLocked()
		}
	default:
		return
	}
	c.notifyLocked()
}

func asString(payload interface{}) string {
	s, _ := payload.(string)
	return s
}

func (c *Controller) transcriptLocked() string {
	parts := make([]string, 0, len(c.passes)+1)
	for _, p := range c.passes {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if c.current != "" {
		parts = append(parts, c.current)
	}
	return strings.Join(parts, "\n\n")
}

// StartRecording starts the first pass and resumes on later ones. Any
// finalize still pending from a previous stop is abandoned.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Phase != PhaseReady {
		c.mu.Unlock()
		return ErrNotReady
	}
	if c.state.IsRecording && !c.stopRequested {
		c.mu.Unlock()
		return nil
	}

	c.cancelFinalizeLocked()
	c.state.HasResult = false
	c.state.IsProcessing = false
	if c.current != "" {
		c.passes = append(c.passes, c.current)
		c.current = ""
	}
	c.state.Partial = ""

	client, attempt, resume := c.client, c.attempt, c.started
	c.mu.Unlock()

	var err error
	if resume {
		err = client.ResumeRecording(ctx)
	} else {
		err = client.StartRecording(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(attempt) {
		return c.staleErrLocked()
	}
	if err != nil {
		c.failLocked(err)
		return err
	}
	c.started = true
	c.state.IsRecording = true
	c.entry().WithField("pass", c.state.PassCount+1).Debug("recording")
	c.notifyLocked()
	return nil
}

// StopRecording pauses the capture and waits for the vendor to report the
// extraction as done, or for the finalize timeout, whichever comes first.
// It is a no-op when nothing is being recorded or a stop is already pending.
func (c *Controller) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.state.IsRecording || c.stopRequested {
		c.mu.Unlock()
		return nil
	}

	c.stopRequested = true
	c.stopSeq++
	seq := c.stopSeq
	c.timer = c.sched.AfterFunc(c.cfg.FinalizeTimeout, func() {
		c.onFinalizeTimeout(seq)
	})
	c.state.IsRecording = false
	c.state.IsProcessing = true
	c.notifyLocked()

	client, attempt := c.client, c.attempt
	c.mu.Unlock()

	err := client.PauseRecording(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(attempt) {
		return c.staleErrLocked()
	}
	if err != nil {
		if c.stopSeq == seq {
			c.failLocked(err)
		}
		return err
	}
	return nil
}

func (c *Controller) onFinalizeTimeout(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || seq != c.stopSeq || !c.stopRequested {
		return
	}
	c.timer = nil
	c.entry().Info("extraction not confirmed in time, finalizing")
	c.finalizeLocked()
	c.notifyLocked()
}

// finalizeLocked is the single place a pass ends.
func (c *Controller) finalizeLocked() {
	if !c.stopRequested {
		return
	}
	c.cancelFinalizeLocked()
	c.state.IsRecording = false
	c.state.IsProcessing = false
	c.state.HasResult = true
	c.state.PassCount++
}

// cancelFinalizeLocked clears the stop guard and any pending timeout.
func (c *Controller) cancelFinalizeLocked() {
	c.stopRequested = false
	c.stopSeq++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Continue hands the current snapshot over to the review step. It fails
// while required fields are missing or a stop is still being finalized.
// A successful call claims the handoff: later calls fail with
// ErrHandoffInProgress until ReleaseHandoff.
func (c *Controller) Continue() (Handoff, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Handoff{}, ErrClosed
	}
	if c.handingOff {
		return Handoff{}, ErrHandoffInProgress
	}
	if c.stopRequested {
		return Handoff{}, ErrFinalizePending
	}

	view := c.viewLocked()
	if !view.Complete {
		return Handoff{}, ErrRequiredFieldsMissing
	}

	c.handingOff = true
	return Handoff{
		UseCase:       c.useCase.ID,
		Language:      c.lang,
		Draft:         view.Draft,
		Transcript:    view.Transcript,
		MissingFields: view.MissingFields,
		Prompt:        view.MissingPrompt,
	}, nil
}

// ReleaseHandoff gives the handoff back after the receiver failed to
// persist it, so Continue can be called again.
func (c *Controller) ReleaseHandoff() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handingOff = false
}

// Close unsubscribes every event and disconnects the client. Disconnect
// failures are logged and dropped. No listener call happens once Close
// has started.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.attempt++
	if c.cancelInit != nil {
		c.cancelInit()
		c.cancelInit = nil
	}
	c.cancelFinalizeLocked()
	client, subs := c.detachLocked()
	c.entry().Debug("closing session")
	c.mu.Unlock()

	c.teardown(ctx, client, subs)
	return nil
}

func (c *Controller) detachLocked() (voice.Client, []voice.Subscription) {
	client, subs := c.client, c.subs
	c.client = nil
	c.subs = nil
	return client, subs
}

func (c *Controller) teardown(ctx context.Context, client voice.Client, subs []voice.Subscription) {
	if client == nil {
		return
	}
	for _, sub := range subs {
		client.Off(sub)
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("session_id", c.cfg.ID).Warnf("disconnect panicked: %v", r)
		}
	}()
	if err := client.Disconnect(ctx); err != nil {
		c.log.WithFields(logrus.Fields{
			"session_id": c.cfg.ID,
			"error":      err.Error(),
		}).Debug("disconnect failed")
	}
}
