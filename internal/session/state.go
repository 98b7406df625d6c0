package session

import (
	"strings"

	"audiogami/internal/entity"
)

type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseLoadingSDK        Phase = "loading_sdk"
	PhaseConnecting        Phase = "connecting"
	PhaseJoiningPortal     Phase = "joining_portal"
	PhaseRegisteringEvents Phase = "registering_events"
	PhaseCreatingThread    Phase = "creating_thread"
	PhaseReady             Phase = "ready"
	PhaseError             Phase = "error"
)

// Initializing reports whether p is one of the start-up steps.
func (p Phase) Initializing() bool {
	switch p {
	case PhaseLoadingSDK, PhaseConnecting, PhaseJoiningPortal, PhaseRegisteringEvents, PhaseCreatingThread:
		return true
	}
	return false
}

type StructMode string

const (
	// StructMerge overlays each struct event on the current snapshot.
	StructMerge StructMode = "merge"
	// StructReplace takes each struct event as the whole snapshot.
	StructReplace StructMode = "replace"
)

func ParseStructMode(s string) StructMode {
	if StructMode(strings.ToLower(strings.TrimSpace(s))) == StructReplace {
		return StructReplace
	}
	return StructMerge
}

// State is the snapshot handed to listeners. Listeners own their copy.
type State struct {
	Phase        Phase              `json:"phase"`
	Error        string             `json:"error,omitempty"`
	ThreadID     string             `json:"thread_id,omitempty"`
	Transcript   string             `json:"transcript"`
	Partial      string             `json:"partial"`
	Draft        entity.TicketDraft `json:"draft"`
	Extraction   string             `json:"extraction_status,omitempty"`
	IsRecording  bool               `json:"is_recording"`
	IsProcessing bool               `json:"is_processing"`
	HasResult    bool               `json:"has_result"`
	PassCount    int                `json:"pass_count"`
}

func (s State) clone() State {
	s.Draft = s.Draft.Clone()
	return s
}

// View is a state snapshot plus the values derived from it.
type View struct {
	State
	MissingFields []string `json:"missing_fields"`
	MissingPrompt string   `json:"missing_prompt"`
	Progress      int      `json:"progress"`
	Complete      bool     `json:"complete"`
}

// Handoff is what the review screen receives on continue.
type Handoff struct {
	UseCase       entity.UseCaseID   `json:"use_case"`
	Language      entity.Language    `json:"language"`
	Draft         entity.TicketDraft `json:"draft"`
	Transcript    string             `json:"transcript"`
	MissingFields []string           `json:"missing_fields"`
	Prompt        string             `json:"prompt"`
}
