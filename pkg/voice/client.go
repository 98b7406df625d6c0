// Package voice is the client side of the streaming transcription and
// extraction vendor. A Loader yields a Client; the Client drives one
// connection and pushes events to its subscribers.
package voice

import (
	"context"
	"errors"
)

type Event string

const (
	EventAudioRecording   Event = "audio:recording"
	EventTextCurrent      Event = "thread:text_current"
	EventTextHistory      Event = "thread:text_history"
	EventStructCurrent    Event = "thread:struct_current"
	EventExtractionStatus Event = "thread:extraction_status"
)

const (
	AudioRecording   = "recording"
	AudioPaused      = "paused"
	ExtractionDone   = "done"
	ExtractionActive = "processing"
)

var (
	ErrNotConnected = errors.New("voice: client is not connected")
	ErrClosed       = errors.New("voice: client is closed")
)

// Handler receives an event payload. Audio, text and extraction status
// events carry a string; struct events carry a map[string]interface{}.
type Handler func(payload interface{})

// Subscription is the token returned by On and consumed by Off.
type Subscription struct {
	id uint64
}

type Thread struct {
	ID    string `json:"thread_id"`
	Token string `json:"token"`
}

type Client interface {
	Connect(ctx context.Context, host string) error
	UsePortal(ctx context.Context, portalID string) error
	CreateThread(ctx context.Context) (Thread, error)
	StartRecording(ctx context.Context) error
	PauseRecording(ctx context.Context) error
	ResumeRecording(ctx context.Context) error
	Disconnect(ctx context.Context) error
	On(event Event, h Handler) Subscription
	Off(sub Subscription)
}

// Loader fetches and initializes the vendor SDK, handing back a fresh client.
type Loader interface {
	Load(ctx context.Context) (Client, error)
}

type LoaderFunc func(ctx context.Context) (Client, error)

func (f LoaderFunc) Load(ctx context.Context) (Client, error) {
	return f(ctx)
}
