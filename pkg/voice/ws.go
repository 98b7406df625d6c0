package voice

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Descriptor is what the SDK endpoint publishes about the streaming API.
type Descriptor struct {
	Version string `json:"version"`
	WSPath  string `json:"ws_path"`
}

type rpcRequest struct {
	ID     uint64      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return e.Message
}

// frame is either an RPC answer (id set) or a server push (event set).
type frame struct {
	ID     uint64              `json:"id,omitempty"`
	Result jsoniter.RawMessage `json:"result,omitempty"`
	Error  *rpcError           `json:"error,omitempty"`
	Event  Event               `json:"event,omitempty"`
	Data   jsoniter.RawMessage `json:"data,omitempty"`
}

type wsClient struct {
	Emitter

	desc         Descriptor
	dialer       *websocket.Dialer
	pingInterval time.Duration
	writeTimeout time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	pending map[uint64]chan frame
	nextID  uint64

	writeMu sync.Mutex
}

func newWSClient(desc Descriptor) *wsClient {
	if desc.WSPath == "" {
		desc.WSPath = "/ws"
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	return &wsClient{
		desc:         desc,
		dialer:       &dialer,
		pingInterval: 30 * time.Second,
		writeTimeout: 5 * time.Second,
		pending:      make(map[uint64]chan frame),
	}
}

// Connect is a no-op when the client already holds a live connection.
func (c *wsClient) Connect(ctx context.Context, host string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	target, err := streamURL(host, c.desc.WSPath)
	if err != nil {
		return err
	}

	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", target, err)
	}

	conn.SetPingHandler(func(appData string) error {
		_ = conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout))
		return nil
	})

	done := make(chan struct{})
	c.conn = conn
	c.done = done

	go c.readLoop(conn, done)
	go c.keepAlive(conn, done)

	return nil
}

func (c *wsClient) UsePortal(ctx context.Context, portalID string) error {
	return c.call(ctx, "use_portal", map[string]string{"portal_id": portalID}, nil)
}

func (c *wsClient) CreateThread(ctx context.Context) (Thread, error) {
	var thread Thread
	if err := c.call(ctx, "create_thread", nil, &thread); err != nil {
		return Thread{}, err
	}
	return thread, nil
}

func (c *wsClient) StartRecording(ctx context.Context) error {
	return c.call(ctx, "start_recording", nil, nil)
}

func (c *wsClient) PauseRecording(ctx context.Context) error {
	return c.call(ctx, "pause_recording", nil, nil)
}

func (c *wsClient) ResumeRecording(ctx context.Context) error {
	return c.call(ctx, "resume_recording", nil, nil)
}

func (c *wsClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeTimeout),
	)
	err := conn.Close()
	c.Reset()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (c *wsClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	answer := make(chan frame, 1)
	c.pending[id] = answer
	conn, done := c.conn, c.done
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	payload, err := json.Marshal(rpcRequest{ID: id, Method: method, Params: params})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	err = conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return ErrClosed
	case f := <-answer:
		if f.Error != nil {
			return f.Error
		}
		if out != nil && len(f.Result) > 0 {
			return json.Unmarshal(f.Result, out)
		}
		return nil
	}
}

func (c *wsClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
			c.done = nil
		}
		c.mu.Unlock()
		close(done)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}

		if f.Event != "" {
			c.Emit(f.Event, decodeData(f.Data))
			continue
		}

		c.mu.Lock()
		answer, ok := c.pending[f.ID]
		c.mu.Unlock()
		if ok {
			answer <- f
		}
	}
}

func (c *wsClient) keepAlive(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout))
			if err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func decodeData(raw jsoniter.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// streamURL turns the configured host into the websocket endpoint.
// Hosts without a scheme are assumed to be TLS.
func streamURL(host, path string) (string, error) {
	if host == "" {
		return "", fmt.Errorf("voice: host is not configured")
	}
	if !strings.Contains(host, "://") {
		host = "wss://" + host
	}

	u, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("voice: invalid host %q: %w", host, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("voice: unsupported scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	return u.String(), nil
}
