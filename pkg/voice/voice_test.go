package voice

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestEmitterOnOff(t *testing.T) {
	t.Parallel()

	var e Emitter
	var got []string

	first := e.On(EventTextCurrent, func(p interface{}) { got = append(got, "a:"+p.(string)) })
	e.On(EventTextCurrent, func(p interface{}) { got = append(got, "b:"+p.(string)) })
	e.On(EventTextHistory, func(p interface{}) { got = append(got, "history") })

	e.Emit(EventTextCurrent, "x")
	e.Off(first)
	e.Off(first)
	e.Emit(EventTextCurrent, "y")

	want := []string{"a:x", "b:x", "b:y"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", got, want)
	}
	if e.Len() != 2 {
		t.Fatalf("expected 2 listeners left, got %d", e.Len())
	}
}

func TestStreamURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		host string
		want string
	}{
		{"gamilab.ch", "wss://gamilab.ch/ws"},
		{"https://gamilab.ch", "wss://gamilab.ch/ws"},
		{"http://localhost:8080/", "ws://localhost:8080/ws"},
		{"ws://127.0.0.1:9000/api", "ws://127.0.0.1:9000/api/ws"},
	}

	for _, tc := range cases {
		got, err := streamURL(tc.host, "/ws")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.host, err)
		}
		if got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.host, got, tc.want)
		}
	}

	if _, err := streamURL("", "/ws"); err == nil {
		t.Error("expected an error for an empty host")
	}
	if _, err := streamURL("ftp://gamilab.ch", "/ws"); err == nil {
		t.Error("expected an error for an unsupported scheme")
	}
}

func TestHTTPLoader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sdk.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version":"1.4.0","ws_path":"/stream"}`))
	}))
	defer srv.Close()

	loader := &HTTPLoader{URL: srv.URL + "/sdk.json", Client: srv.Client()}
	client, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ws, ok := client.(*wsClient)
	if !ok {
		t.Fatalf("unexpected client type %T", client)
	}
	if ws.desc.WSPath != "/stream" || ws.desc.Version != "1.4.0" {
		t.Fatalf("unexpected descriptor: %+v", ws.desc)
	}

	missing := &HTTPLoader{URL: srv.URL + "/nope", Client: srv.Client()}
	if _, err := missing.Load(context.Background()); err == nil {
		t.Fatal("expected an error for a missing SDK")
	}
}

// vendorServer answers every RPC and pushes a struct event after create_thread.
func vendorServer(t *testing.T) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var req rpcRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}

			switch req.Method {
			case "create_thread":
				_ = conn.WriteJSON(map[string]interface{}{
					"id":     req.ID,
					"result": map[string]string{"thread_id": "th_1", "token": "tok"},
				})
				_ = conn.WriteJSON(map[string]interface{}{
					"event": EventStructCurrent,
					"data":  map[string]interface{}{"device": "PC"},
				})
			case "use_portal":
				_ = conn.WriteJSON(map[string]interface{}{
					"id":    req.ID,
					"error": map[string]interface{}{"code": 404, "message": "portal not found"},
				})
			default:
				_ = conn.WriteJSON(map[string]interface{}{"id": req.ID, "result": nil})
			}
		}
	}))
}

func TestWSClientRoundTrip(t *testing.T) {
	t.Parallel()

	srv := vendorServer(t)
	defer srv.Close()

	client := newWSClient(Descriptor{WSPath: "/"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.StartRecording(ctx); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected before connect, got %v", err)
	}

	structs := make(chan interface{}, 1)
	client.On(EventStructCurrent, func(p interface{}) { structs <- p })

	if err := client.Connect(ctx, srv.URL); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := client.UsePortal(ctx, "unknown"); err == nil || err.Error() != "portal not found" {
		t.Fatalf("expected the vendor error, got %v", err)
	}

	thread, err := client.CreateThread(ctx)
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if thread.ID != "th_1" || thread.Token != "tok" {
		t.Fatalf("unexpected thread: %+v", thread)
	}

	select {
	case p := <-structs:
		m, ok := p.(map[string]interface{})
		if !ok || m["device"] != "PC" {
			t.Fatalf("unexpected struct payload: %#v", p)
		}
	case <-ctx.Done():
		t.Fatal("struct event never arrived")
	}

	if err := client.StartRecording(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := client.Disconnect(ctx); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := client.PauseRecording(ctx); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected after disconnect, got %v", err)
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	last   map[Event]interface{}
	done   chan struct{}
}

func newRecorder(c Client) *recorder {
	r := &recorder{last: make(map[Event]interface{}), done: make(chan struct{}, 4)}
	for _, ev := range []Event{EventAudioRecording, EventTextCurrent, EventTextHistory, EventStructCurrent, EventExtractionStatus} {
		ev := ev
		c.On(ev, func(p interface{}) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.last[ev] = p
			r.mu.Unlock()
			if ev == EventExtractionStatus && p == ExtractionDone {
				r.done <- struct{}{}
			}
		})
	}
	return r
}

func (r *recorder) lastOf(ev Event) interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last[ev]
}

func TestReplayClientPlaysTwoPasses(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, err := ReplayLoader{UseCase: "it_support", Language: "en"}.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rec := newRecorder(client)

	if err := client.StartRecording(ctx); err == nil {
		t.Fatal("expected an error before connect")
	}
	if err := client.Connect(ctx, "replay"); err != nil {
		t.Fatal(err)
	}
	if err := client.UsePortal(ctx, "portal"); err != nil {
		t.Fatal(err)
	}
	if _, err := client.CreateThread(ctx); err != nil {
		t.Fatal(err)
	}

	waitDone := func() {
		select {
		case <-rec.done:
		case <-time.After(5 * time.Second):
			t.Fatal("extraction never finished")
		}
	}

	if err := client.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if err := client.PauseRecording(ctx); err != nil {
		t.Fatal(err)
	}
	waitDone()

	first := rec.lastOf(EventStructCurrent).(map[string]interface{})
	if first["device"] != "PC gaming avec RTX" || first["frequency"] != nil {
		t.Fatalf("unexpected first struct: %#v", first)
	}
	if !strings.HasPrefix(rec.lastOf(EventTextHistory).(string), "Yeah hello") {
		t.Fatalf("unexpected history text: %v", rec.lastOf(EventTextHistory))
	}

	if err := client.ResumeRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if err := client.PauseRecording(ctx); err != nil {
		t.Fatal(err)
	}
	waitDone()

	second := rec.lastOf(EventStructCurrent).(map[string]interface{})
	if second["device"] != "PC gaming avec RTX" || second["frequency"] == nil || second["priority"] != "critical" {
		t.Fatalf("second struct should be cumulative: %#v", second)
	}

	if err := client.Disconnect(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestReplayClientKeepsEveryQueuedStep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := NewReplayClient(ReplayScript{UseCase: "saas"}, "en", time.Millisecond)

	var mu sync.Mutex
	var texts []string
	done := make(chan struct{})
	client.On(EventTextCurrent, func(p interface{}) {
		mu.Lock()
		texts = append(texts, p.(string))
		mu.Unlock()
	})
	client.On(EventExtractionStatus, func(p interface{}) {
		if p == ExtractionDone {
			close(done)
		}
	})

	if err := client.Connect(ctx, "replay"); err != nil {
		t.Fatal(err)
	}
	defer client.Disconnect(ctx)

	client.mu.Lock()
	for i := 0; i < 500; i++ {
		client.enqueue(replayStep{event: EventTextCurrent, payload: fmt.Sprint(i), wait: i%100 == 0})
	}
	client.enqueue(replayStep{event: EventExtractionStatus, payload: ExtractionDone})
	client.mu.Unlock()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("final done step was lost")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 500 || texts[0] != "0" || texts[499] != "499" {
		t.Fatalf("expected 500 ordered steps, got %d", len(texts))
	}
}

func TestReplayLoaderUnknownUseCase(t *testing.T) {
	t.Parallel()

	if _, err := (ReplayLoader{UseCase: "hotel"}).Load(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
}
