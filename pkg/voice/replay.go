package voice

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"
)

//go:embed replay.yaml
var replaySource []byte

type ReplayPass struct {
	Transcript map[string]string      `yaml:"transcript"`
	Fields     map[string]interface{} `yaml:"fields"`
}

type ReplayScript struct {
	UseCase string       `yaml:"use_case"`
	Passes  []ReplayPass `yaml:"passes"`
}

func (p ReplayPass) text(lang string) string {
	if t, ok := p.Transcript[lang]; ok {
		return t
	}
	return p.Transcript["en"]
}

// ReplayScripts returns the recorded sessions bundled with the binary.
func ReplayScripts() ([]ReplayScript, error) {
	var scripts []ReplayScript
	if err := yaml.Unmarshal(replaySource, &scripts); err != nil {
		return nil, fmt.Errorf("voice: replay scripts: %w", err)
	}
	return scripts, nil
}

// ReplayLoader yields clients that play back a recorded session instead of
// talking to the vendor.
type ReplayLoader struct {
	UseCase  string
	Language string
	Step     time.Duration
}

func (l ReplayLoader) Load(ctx context.Context) (Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scripts, err := ReplayScripts()
	if err != nil {
		return nil, err
	}
	for _, s := range scripts {
		if s.UseCase == l.UseCase {
			return NewReplayClient(s, l.Language, l.Step), nil
		}
	}
	return nil, fmt.Errorf("voice: no replay script for use case %q", l.UseCase)
}

type replayStep struct {
	event   Event
	payload interface{}
	wait    bool
}

// replayQueue buffers steps for one connection. push never blocks and never
// drops, so it is safe to call while holding the client lock.
type replayQueue struct {
	mu    sync.Mutex
	steps []replayStep
	wake  chan struct{}
}

func newReplayQueue() *replayQueue {
	return &replayQueue{wake: make(chan struct{}, 1)}
}

func (q *replayQueue) push(s replayStep) {
	q.mu.Lock()
	q.steps = append(q.steps, s)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *replayQueue) drain() []replayStep {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.steps
	q.steps = nil
	return out
}

// ReplayClient emits the events a vendor session would push for the script,
// one recording pass per start/resume and pause cycle. Events are delivered
// from a single goroutine in order, never from inside a client call.
type ReplayClient struct {
	Emitter

	script ReplayScript
	lang   string
	step   time.Duration

	mu         sync.Mutex
	connected  bool
	thread     bool
	recording  bool
	pass       int
	cumulative map[string]interface{}
	queue      *replayQueue
	cancel     context.CancelFunc
}

func NewReplayClient(script ReplayScript, lang string, step time.Duration) *ReplayClient {
	return &ReplayClient{
		script:     script,
		lang:       lang,
		step:       step,
		cumulative: make(map[string]interface{}),
	}
}

func (c *ReplayClient) Connect(ctx context.Context, host string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.queue = newReplayQueue()
	c.cancel = cancel
	c.connected = true

	go c.run(runCtx, c.queue)
	return nil
}

func (c *ReplayClient) UsePortal(ctx context.Context, portalID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return ErrNotConnected
	}
	return nil
}

func (c *ReplayClient) CreateThread(ctx context.Context) (Thread, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return Thread{}, ErrNotConnected
	}
	c.thread = true
	return Thread{ID: ulid.Make().String(), Token: "replay"}, nil
}

func (c *ReplayClient) StartRecording(ctx context.Context) error {
	return c.record()
}

func (c *ReplayClient) ResumeRecording(ctx context.Context) error {
	return c.record()
}

func (c *ReplayClient) record() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || !c.thread {
		return ErrNotConnected
	}
	c.recording = true

	c.enqueue(replayStep{event: EventAudioRecording, payload: AudioRecording})
	if c.pass >= len(c.script.Passes) {
		return nil
	}

	text := c.script.Passes[c.pass].text(c.lang)
	words := strings.Fields(text)
	c.enqueue(replayStep{event: EventTextCurrent, payload: strings.Join(words[:len(words)/2], " "), wait: true})
	c.enqueue(replayStep{event: EventTextCurrent, payload: text, wait: true})
	return nil
}

func (c *ReplayClient) PauseRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || !c.recording {
		return ErrNotConnected
	}
	c.recording = false

	c.enqueue(replayStep{event: EventAudioRecording, payload: AudioPaused})
	if c.pass >= len(c.script.Passes) {
		c.enqueue(replayStep{event: EventExtractionStatus, payload: ExtractionDone, wait: true})
		return nil
	}

	pass := c.script.Passes[c.pass]
	c.pass++
	for k, v := range pass.Fields {
		c.cumulative[k] = v
	}

	snapshot := make(map[string]interface{}, len(c.cumulative))
	for k, v := range c.cumulative {
		snapshot[k] = v
	}

	c.enqueue(replayStep{event: EventTextCurrent, payload: ""})
	c.enqueue(replayStep{event: EventTextHistory, payload: pass.text(c.lang)})
	c.enqueue(replayStep{event: EventExtractionStatus, payload: ExtractionActive})
	c.enqueue(replayStep{event: EventStructCurrent, payload: snapshot, wait: true})
	c.enqueue(replayStep{event: EventExtractionStatus, payload: ExtractionDone, wait: true})
	return nil
}

func (c *ReplayClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.cancel()
	c.connected = false
	c.thread = false
	c.recording = false
	c.Reset()
	return nil
}

func (c *ReplayClient) enqueue(s replayStep) {
	c.queue.push(s)
}

func (c *ReplayClient) run(ctx context.Context, queue *replayQueue) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-queue.wake:
		}

		for _, s := range queue.drain() {
			if s.wait && c.step > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.step):
				}
			}
			if ctx.Err() != nil {
				return
			}
			c.Emit(s.event, s.payload)
		}
	}
}
