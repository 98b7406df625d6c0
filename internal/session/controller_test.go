package session

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"audiogami/internal/catalog"
	"audiogami/internal/entity"
	"audiogami/pkg/voice"

	"github.com/sirupsen/logrus"
)

type fakeTimer struct {
	s       *fakeScheduler
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Fire runs the callback unless the timer was stopped.
func (t *fakeTimer) Fire() {
	t.s.mu.Lock()
	if t.stopped || t.fired {
		t.s.mu.Unlock()
		return
	}
	t.fired = true
	t.s.mu.Unlock()
	t.f()
}

func (t *fakeTimer) isStopped() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.stopped
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

type fakeClient struct {
	voice.Emitter

	mu       sync.Mutex
	calls    []string
	errs     map[string]error
	gates    map[string]chan struct{}
	entered  chan string
	threadID string
}

func newFakeClient(threadID string) *fakeClient {
	return &fakeClient{
		errs:     make(map[string]error),
		gates:    make(map[string]chan struct{}),
		entered:  make(chan string, 32),
		threadID: threadID,
	}
}

func (f *fakeClient) do(ctx context.Context, name string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	err := f.errs[name]
	gate := f.gates[name]
	f.mu.Unlock()

	select {
	case f.entered <- name:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeClient) Connect(ctx context.Context, host string) error {
	return f.do(ctx, "connect")
}

func (f *fakeClient) UsePortal(ctx context.Context, portalID string) error {
	return f.do(ctx, "use_portal")
}

func (f *fakeClient) CreateThread(ctx context.Context) (voice.Thread, error) {
	if err := f.do(ctx, "create_thread"); err != nil {
		return voice.Thread{}, err
	}
	return voice.Thread{ID: f.threadID, Token: "token"}, nil
}

func (f *fakeClient) StartRecording(ctx context.Context) error {
	return f.do(ctx, "start_recording")
}

func (f *fakeClient) PauseRecording(ctx context.Context) error {
	return f.do(ctx, "pause_recording")
}

func (f *fakeClient) ResumeRecording(ctx context.Context) error {
	return f.do(ctx, "resume_recording")
}

func (f *fakeClient) Disconnect(ctx context.Context) error {
	return f.do(ctx, "disconnect")
}

func (f *fakeClient) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeClient) called(name string) int {
	n := 0
	for _, c := range f.callLog() {
		if c == name {
			n++
		}
	}
	return n
}

func waitEntered(t *testing.T, f *fakeClient, name string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-f.entered:
			if got == name {
				return
			}
		case <-timeout:
			t.Fatalf("%s was never called", name)
		}
	}
}

type spy struct {
	mu    sync.Mutex
	views []View
}

func (s *spy) listen(v View) {
	s.mu.Lock()
	s.views = append(s.views, v)
	s.mu.Unlock()
}

func (s *spy) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views)
}

func (s *spy) phases() []Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Phase
	for _, v := range s.views {
		if len(out) == 0 || out[len(out)-1] != v.Phase {
			out = append(out, v.Phase)
		}
	}
	return out
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type harness struct {
	c     *Controller
	sched *fakeScheduler
	spy   *spy
}

func newHarness(t *testing.T, loader voice.Loader, cfg Config) *harness {
	t.Helper()

	h := &harness{sched: &fakeScheduler{}, spy: &spy{}}
	if cfg.FinalizeTimeout == 0 {
		cfg.FinalizeTimeout = 8 * time.Second
	}
	c, err := New(loader, catalog.MustLoad(), entity.UseCaseITSupport, entity.LanguageEN, cfg,
		WithScheduler(h.sched),
		WithListener(h.spy.listen),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	h.c = c
	return h
}

func staticLoader(client voice.Client) voice.Loader {
	return voice.LoaderFunc(func(ctx context.Context) (voice.Client, error) {
		return client, nil
	})
}

func readyHarness(t *testing.T, cfg Config) (*harness, *fakeClient) {
	t.Helper()

	client := newFakeClient("th-1")
	h := newHarness(t, staticLoader(client), cfg)
	if err := h.c.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return h, client
}

func assertFlags(t *testing.T, s State, recording, processing, result bool) {
	t.Helper()
	if s.IsRecording != recording || s.IsProcessing != processing || s.HasResult != result {
		t.Fatalf("flags = {recording:%v processing:%v result:%v}, want {%v %v %v}",
			s.IsRecording, s.IsProcessing, s.HasResult, recording, processing, result)
	}
}

func TestNewRejectsUnknownUseCase(t *testing.T) {
	t.Parallel()

	_, err := New(staticLoader(newFakeClient("x")), catalog.MustLoad(), "hotel", entity.LanguageEN, Config{})
	if !errors.Is(err, ErrUnknownUseCase) {
		t.Fatalf("expected ErrUnknownUseCase, got %v", err)
	}
}

func TestInitWalksEveryPhase(t *testing.T) {
	t.Parallel()

	h, client := readyHarness(t, Config{})

	want := []Phase{
		PhaseLoadingSDK, PhaseConnecting, PhaseJoiningPortal,
		PhaseRegisteringEvents, PhaseCreatingThread, PhaseReady,
	}
	if got := h.spy.phases(); !reflect.DeepEqual(got, want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}

	st := h.c.State()
	if st.ThreadID != "th-1" || st.Error != "" {
		t.Fatalf("unexpected state: %+v", st)
	}
	if got := client.callLog(); !reflect.DeepEqual(got, []string{"connect", "use_portal", "create_thread"}) {
		t.Fatalf("calls = %v", got)
	}
	if client.Len() != 5 {
		t.Fatalf("expected 5 subscriptions, got %d", client.Len())
	}
}

func TestInitFailureAtEachStep(t *testing.T) {
	t.Parallel()

	for _, step := range []string{"load", "connect", "use_portal", "create_thread"} {
		step := step
		t.Run(step, func(t *testing.T) {
			t.Parallel()

			client := newFakeClient("th-1")
			loader := staticLoader(client)
			boom := errors.New(step + " failed")
			if step == "load" {
				loader = voice.LoaderFunc(func(ctx context.Context) (voice.Client, error) {
					return nil, boom
				})
			} else {
				client.errs[step] = boom
			}

			h := newHarness(t, loader, Config{})
			if err := h.c.Init(context.Background()); !errors.Is(err, boom) {
				t.Fatalf("expected %v, got %v", boom, err)
			}

			st := h.c.State()
			if st.Phase != PhaseError || st.Error != boom.Error() {
				t.Fatalf("unexpected state: %+v", st)
			}
			if err := h.c.StartRecording(context.Background()); !errors.Is(err, ErrNotReady) {
				t.Fatalf("start in error phase: %v", err)
			}
		})
	}
}

func TestStopThenDoneFinalizesOnce(t *testing.T) {
	t.Parallel()

	h, client := readyHarness(t, Config{FinalizeTimeout: 5 * time.Second})
	ctx := context.Background()

	if err := h.c.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	assertFlags(t, h.c.State(), true, false, false)

	if err := h.c.StopRecording(ctx); err != nil {
		t.Fatal(err)
	}
	assertFlags(t, h.c.State(), false, true, false)

	timer := h.sched.last()
	if timer == nil || timer.d != 5*time.Second {
		t.Fatalf("finalize timeout was not scheduled: %+v", timer)
	}

	client.Emit(voice.EventExtractionStatus, voice.ExtractionDone)
	st := h.c.State()
	assertFlags(t, st, false, false, true)
	if st.PassCount != 1 {
		t.Fatalf("pass count = %d, want 1", st.PassCount)
	}
	if !timer.isStopped() {
		t.Fatal("timeout should have been cancelled by the done event")
	}

	timer.Fire()
	client.Emit(voice.EventExtractionStatus, voice.ExtractionDone)
	if got := h.c.State().PassCount; got != 1 {
		t.Fatalf("pass count = %d after duplicate signals, want 1", got)
	}
	if got := client.callLog(); got[len(got)-1] != "pause_recording" {
		t.Fatalf("calls = %v", got)
	}
}

func TestStopWithoutDoneFinalizesOnTimeout(t *testing.T) {
	t.Parallel()

	h, _ := readyHarness(t, Config{})
	ctx := context.Background()

	if err := h.c.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.c.StopRecording(ctx); err != nil {
		t.Fatal(err)
	}

	h.sched.last().Fire()

	st := h.c.State()
	assertFlags(t, st, false, false, true)
	if st.PassCount != 1 {
		t.Fatalf("pass count = %d, want 1", st.PassCount)
	}
}

func TestDoneAfterTimeoutIsNoop(t *testing.T) {
	t.Parallel()

	h, client := readyHarness(t, Config{})
	ctx := context.Background()

	_ = h.c.StartRecording(ctx)
	_ = h.c.StopRecording(ctx)

	h.sched.last().Fire()
	before := h.c.State()
	client.Emit(voice.EventExtractionStatus, voice.ExtractionDone)
	after := h.c.State()

	if after.PassCount != 1 || before.PassCount != 1 {
		t.Fatalf("pass count went %d -> %d, want 1 -> 1", before.PassCount, after.PassCount)
	}
	assertFlags(t, after, false, false, true)
}

func TestDoneWithoutStopDoesNotFinalize(t *testing.T) {
	t.Parallel()

	h, client := readyHarness(t, Config{})
	_ = h.c.StartRecording(context.Background())

	client.Emit(voice.EventExtractionStatus, voice.ExtractionDone)

	st := h.c.State()
	assertFlags(t, st, true, false, false)
	if st.PassCount != 0 || st.Extraction != voice.ExtractionDone {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestStopWhileNotRecordingIsNoop(t *testing.T) {
	t.Parallel()

	h, client := readyHarness(t, Config{})
	ctx := context.Background()

	if err := h.c.StopRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if h.sched.count() != 0 || client.called("pause_recording") != 0 {
		t.Fatal("stop without recording must not schedule or pause")
	}

	_ = h.c.StartRecording(ctx)
	_ = h.c.StopRecording(ctx)
	_ = h.c.StopRecording(ctx)
	if h.sched.count() != 1 || client.called("pause_recording") != 1 {
		t.Fatalf("second stop must be a no-op: timers=%d pauses=%d", h.sched.count(), client.called("pause_recording"))
	}
}

func TestStartClearsPendingFinalize(t *testing.T) {
	t.Parallel()

	h, client := readyHarness(t, Config{})
	ctx := context.Background()

	_ = h.c.StartRecording(ctx)
	_ = h.c.StopRecording(ctx)
	first := h.sched.last()

	if err := h.c.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if !first.isStopped() {
		t.Fatal("restarting must cancel the pending timeout")
	}
	assertFlags(t, h.c.State(), true, false, false)

	client.Emit(voice.EventExtractionStatus, voice.ExtractionDone)
	first.Fire()
	if got := h.c.State().PassCount; got != 0 {
		t.Fatalf("pass count = %d, want 0", got)
	}
	if client.called("resume_recording") != 1 || client.called("start_recording") != 1 {
		t.Fatalf("calls = %v", client.callLog())
	}
}

func TestSecondPassResetsResult(t *testing.T) {
	t.Parallel()

	h, client := readyHarness(t, Config{})
	ctx := context.Background()

	_ = h.c.StartRecording(ctx)
	client.Emit(voice.EventTextHistory, "my PC shows a black screen")
	_ = h.c.StopRecording(ctx)
	client.Emit(voice.EventExtractionStatus, voice.ExtractionDone)

	if err := h.c.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	assertFlags(t, h.c.State(), true, false, false)

	client.Emit(voice.EventTextHistory, "it happens daily")
	_ = h.c.StopRecording(ctx)
	client.Emit(voice.EventExtractionStatus, voice.ExtractionDone)

	st := h.c.State()
	if st.PassCount != 2 {
		t.Fatalf("pass count = %d, want 2", st.PassCount)
	}
	if want := "my PC shows a black screen\n\nit happens daily"; st.Transcript != want {
		t.Fatalf("transcript = %q, want %q", st.Transcript, want)
	}
}

func TestRecordingControlFailure(t *testing.T) {
	t.Parallel()

	h, client := readyHarness(t, Config{})
	ctx := context.Background()

	_ = h.c.StartRecording(ctx)
	client.errs["pause_recording"] = errors.New("microphone lost")

	if err := h.c.StopRecording(ctx); err == nil {
		t.Fatal("expected the pause error")
	}
	st := h.c.State()
	if st.Phase != PhaseError || st.Error != "microphone lost" {
		t.Fatalf("unexpected state: %+v", st)
	}
	assertFlags(t, st, false, false, false)
	if !h.sched.last().isStopped() {
		t.Fatal("the finalize timeout must be cleared on failure")
	}
}

func TestStartFailureMovesToError(t *testing.T) {
	t.Parallel()

	h, client := readyHarness(t, Config{})
	client.errs["start_recording"] = errors.New("permission denied")

	if err := h.c.StartRecording(context.Background()); err == nil {
		t.Fatal("expected the start error")
	}
	st := h.c.State()
	if st.Phase != PhaseError || st.IsRecording {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestMissingFieldsGateContinue(t *testing.T) {
	t.Parallel()

	h, client := readyHarness(t, Config{})

	client.Emit(voice.EventStructCurrent, map[string]interface{}{
		"device":   "PC",
		"symptoms": "black screen",
	})

	v := h.c.View()
	if !reflect.DeepEqual(v.MissingFields, []string{"frequency"}) || v.Complete {
		t.Fatalf("missing = %v complete = %v", v.MissingFields, v.Complete)
	}
	if v.MissingPrompt != "Some fields still need to be completed: Frequency" {
		t.Fatalf("prompt = %q", v.MissingPrompt)
	}
	if _, err := h.c.Continue(); !errors.Is(err, ErrRequiredFieldsMissing) {
		t.Fatalf("continue should be refused, got %v", err)
	}

	client.Emit(voice.EventStructCurrent, map[string]interface{}{
		"device":    "PC",
		"symptoms":  "black screen",
		"frequency": "daily",
	})

	v = h.c.View()
	if len(v.MissingFields) != 0 || !v.Complete || v.Progress != 100 {
		t.Fatalf("missing = %v complete = %v progress = %d", v.MissingFields, v.Complete, v.Progress)
	}

	handoff, err := h.c.Continue()
	if err != nil {
		t.Fatalf("continue: %v", err)
	}
	if handoff.UseCase != entity.UseCaseITSupport || handoff.Draft.Fields["frequency"] != "daily" || handoff.Prompt != "" {
		t.Fatalf("unexpected handoff: %+v", handoff)
	}

	handoff.Draft.Fields["device"] = "edited on the review form"
	if h.c.State().Draft.Fields["device"] != "PC" {
		t.Fatal("handoff must be a copy")
	}
}

func TestContinueRefusedWhileFinalizing(t *testing.T) {
	t.Parallel()

	h, client := readyHarness(t, Config{})
	ctx := context.Background()

	_ = h.c.StartRecording(ctx)
	client.Emit(voice.EventStructCurrent, map[string]interface{}{
		"device": "PC", "symptoms": "black screen", "frequency": "daily",
	})
	_ = h.c.StopRecording(ctx)

	if _, err := h.c.Continue(); !errors.Is(err, ErrFinalizePending) {
		t.Fatalf("expected ErrFinalizePending, got %v", err)
	}
	client.Emit(voice.EventExtractionStatus, voice.ExtractionDone)
	if _, err := h.c.Continue(); err != nil {
		t.Fatalf("continue after finalize: %v", err)
	}
}

func TestContinueClaimsHandoffOnce(t *testing.T) {
	t.Parallel()

	h, client := readyHarness(t, Config{})
	client.Emit(voice.EventStructCurrent, map[string]interface{}{
		"device": "PC", "symptoms": "black screen", "frequency": "daily",
	})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
		refused int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.c.Continue()
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				claimed++
			case errors.Is(err, ErrHandoffInProgress):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if claimed != 1 || refused != 7 {
		t.Fatalf("claimed = %d refused = %d, want 1 and 7", claimed, refused)
	}

	h.c.ReleaseHandoff()
	if _, err := h.c.Continue(); err != nil {
		t.Fatalf("continue after release: %v", err)
	}
}

func TestStructMerge(t *testing.T) {
	t.Parallel()

	h, client := readyHarness(t, Config{StructMode: StructMerge})

	client.Emit(voice.EventStructCurrent, map[string]interface{}{"device": "PC", "priority": "high", "tags": []interface{}{"urgent"}})
	client.Emit(voice.EventStructCurrent, map[string]interface{}{"frequency": "daily"})

	d := h.c.State().Draft
	want := entity.Fields{"device": "PC", "frequency": "daily"}
	if !reflect.DeepEqual(d.Fields, want) || d.Priority != entity.PriorityHigh || len(d.Tags) != 1 {
		t.Fatalf("merge lost values: %+v", d)
	}
}

func TestStructReplace(t *testing.T) {
	t.Parallel()

	h, client := readyHarness(t, Config{StructMode: StructReplace})

	client.Emit(voice.EventStructCurrent, map[string]interface{}{"device": "PC", "priority": "high"})
	client.Emit(voice.EventStructCurrent, map[string]interface{}{"frequency": "daily"})

	d := h.c.State().Draft
	if !reflect.DeepEqual(d.Fields, entity.Fields{"frequency": "daily"}) || d.Priority != "" {
		t.Fatalf("replace kept stale values: %+v", d)
	}
}

func TestStructBeforeRecording(t *testing.T) {
	t.Parallel()

	h, client := readyHarness(t, Config{})
	client.Emit(voice.EventStructCurrent, `{"device":"PC","unknown":"x"}`)

	if got := h.c.State().Draft.Fields; !reflect.DeepEqual(got, entity.Fields{"device": "PC"}) {
		t.Fatalf("fields = %v", got)
	}
}

func TestCloseMidConnecting(t *testing.T) {
	t.Parallel()

	client := newFakeClient("th-1")
	client.gates["connect"] = make(chan struct{})
	h := newHarness(t, staticLoader(client), Config{})

	initErr := make(chan error, 1)
	go func() {
		initErr <- h.c.Init(context.Background())
	}()
	waitEntered(t, client, "connect")

	before := h.spy.count()
	if err := h.c.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case err := <-initErr:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("init should report the session closed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("init never returned")
	}

	client.Emit(voice.EventStructCurrent, map[string]interface{}{"device": "PC"})
	if after := h.spy.count(); after != before {
		t.Fatalf("listener called %d times after close", after-before)
	}
	if client.called("disconnect") == 0 {
		t.Fatal("close should disconnect the client")
	}
	if client.called("use_portal") != 0 {
		t.Fatal("initialization continued after close")
	}
}

func TestCloseUnsubscribesAndSwallowsErrors(t *testing.T) {
	t.Parallel()

	h, client := readyHarness(t, Config{})
	client.errs["disconnect"] = errors.New("socket already gone")

	_ = h.c.StartRecording(context.Background())
	_ = h.c.StopRecording(context.Background())
	timer := h.sched.last()

	if err := h.c.Close(context.Background()); err != nil {
		t.Fatalf("close must swallow disconnect errors, got %v", err)
	}
	if client.Len() != 0 {
		t.Fatalf("%d subscriptions left after close", client.Len())
	}
	if !timer.isStopped() {
		t.Fatal("close must cancel the finalize timeout")
	}
	if err := h.c.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := h.c.StartRecording(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("start after close: %v", err)
	}
}

func TestRetrySupersedesStaleAttempt(t *testing.T) {
	t.Parallel()

	stale := newFakeClient("th-stale")
	fresh := newFakeClient("th-fresh")
	release := make(chan struct{})
	loads := make(chan struct{}, 2)

	var mu sync.Mutex
	calls := 0
	loader := voice.LoaderFunc(func(ctx context.Context) (voice.Client, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		loads <- struct{}{}

		if n == 1 {
			<-release
			return stale, nil
		}
		return fresh, nil
	})

	h := newHarness(t, loader, Config{})

	firstErr := make(chan error, 1)
	go func() {
		firstErr <- h.c.Init(context.Background())
	}()
	<-loads

	if err := h.c.Retry(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	close(release)

	if err := <-firstErr; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("stale attempt should be superseded, got %v", err)
	}

	st := h.c.State()
	if st.Phase != PhaseReady || st.ThreadID != "th-fresh" {
		t.Fatalf("stale attempt changed the state: %+v", st)
	}
	if stale.called("connect") != 0 || stale.called("disconnect") != 1 {
		t.Fatalf("stale client calls = %v", stale.callLog())
	}
}

func TestRetryAfterError(t *testing.T) {
	t.Parallel()

	client := newFakeClient("th-1")
	client.errs["connect"] = errors.New("host unreachable")
	h := newHarness(t, staticLoader(client), Config{})

	if err := h.c.Init(context.Background()); err == nil {
		t.Fatal("expected init to fail")
	}
	if h.c.State().Phase != PhaseError {
		t.Fatal("expected error phase")
	}

	client.mu.Lock()
	delete(client.errs, "connect")
	client.mu.Unlock()

	if err := h.c.Retry(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	st := h.c.State()
	if st.Phase != PhaseReady || st.Error != "" {
		t.Fatalf("unexpected state after retry: %+v", st)
	}
	if client.called("connect") != 2 {
		t.Fatalf("retry should start over, calls = %v", client.callLog())
	}
}
