package recordingService

import (
	"audiogami/internal/api/recording"
	ticketService "audiogami/internal/api/ticket/service"
	"audiogami/internal/catalog"
	"audiogami/internal/entity"
	"audiogami/internal/session"
	"audiogami/pkg/utils"
	"audiogami/pkg/voice"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const initTimeout = 60 * time.Second

type IRecordingService interface {
	Create(ctx context.Context, req recording.CreateRecordingRequest) (*recording.RecordingResponse, error)
	Get(ctx context.Context, id string) (*recording.RecordingResponse, error)
	Start(ctx context.Context, id string) (*recording.RecordingResponse, error)
	Stop(ctx context.Context, id string) (*recording.RecordingResponse, error)
	Retry(ctx context.Context, id string) (*recording.RecordingResponse, error)
	Continue(ctx context.Context, id string) (*recording.ContinueResponse, error)
	Close(ctx context.Context, id string) error
	Subscribe(id string) (<-chan session.View, func(), error)

	// Run reaps idle sessions until ctx is done.
	Run(ctx context.Context)
	Shutdown(ctx context.Context)
}

// LoaderFactory picks the vendor loader for a new session.
type LoaderFactory func(useCase entity.UseCaseID, lang entity.Language) voice.Loader

type recordingService struct {
	log           *logrus.Logger
	catalog       *catalog.Catalog
	ticketService ticketService.ITicketService
	utils         utils.IUtils
	settings      Settings
	newLoader     LoaderFactory
	sessionOpts   []session.Option
	now           func() time.Time

	mu       sync.Mutex
	sessions map[string]*liveRecording
}

type Option func(*recordingService)

// WithLoaderFactory replaces the loader chosen from the settings mode.
func WithLoaderFactory(f LoaderFactory) Option {
	return func(s *recordingService) {
		s.newLoader = f
	}
}

// WithSessionOptions adds options to every controller the service builds.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *recordingService) {
		s.sessionOpts = append(s.sessionOpts, opts...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *recordingService) {
		s.now = now
	}
}

func NewRecordingService(
	log *logrus.Logger,
	cat *catalog.Catalog,
	ts ticketService.ITicketService,
	utils utils.IUtils,
	settings Settings,
	opts ...Option,
) IRecordingService {
	s := &recordingService{
		log:           log,
		catalog:       cat,
		ticketService: ts,
		utils:         utils,
		settings:      settings,
		now:           time.Now,
		sessions:      make(map[string]*liveRecording),
	}
	s.newLoader = s.defaultLoader()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *recordingService) defaultLoader() LoaderFactory {
	if s.settings.Mode == ModeReplay {
		step := s.settings.ReplayStep
		return func(useCase entity.UseCaseID, lang entity.Language) voice.Loader {
			return voice.ReplayLoader{UseCase: string(useCase), Language: string(lang), Step: step}
		}
	}

	live := voice.NewHTTPLoader()
	return func(entity.UseCaseID, entity.Language) voice.Loader {
		return live
	}
}

// liveRecording is one registered session plus the websocket subscribers
// following it.
type liveRecording struct {
	id        string
	ticketID  string
	useCase   entity.UseCaseID
	lang      entity.Language
	createdAt time.Time
	ctrl      *session.Controller

	mu       sync.Mutex
	subs     map[uint64]chan session.View
	nextSub  uint64
	lastSeen time.Time
	closed   bool
}

// publish runs under the controller lock, so it never blocks: a slow
// subscriber loses its oldest pending view.
func (r *liveRecording) publish(v session.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range r.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

func (r *liveRecording) subscribe() (<-chan session.View, func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, nil, false
	}
	if r.subs == nil {
		r.subs = make(map[uint64]chan session.View)
	}
	r.nextSub++
	id := r.nextSub
	ch := make(chan session.View, 16)
	r.subs[id] = ch

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
	return ch, cancel, true
}

func (r *liveRecording) touch(t time.Time) {
	r.mu.Lock()
	r.lastSeen = t
	r.mu.Unlock()
}

func (r *liveRecording) idleSince() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeen
}

// hasSubscribers reports whether a websocket still follows the session.
func (r *liveRecording) hasSubscribers() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs) > 0
}

func (r *liveRecording) closeSubscribers() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
}

func (r *liveRecording) response() *recording.RecordingResponse {
	return &recording.RecordingResponse{
		ID:        r.id,
		TicketID:  r.ticketID,
		UseCase:   r.useCase,
		Language:  r.lang,
		CreatedAt: r.createdAt,
		View:      r.ctrl.View(),
	}
}
