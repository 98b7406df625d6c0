package recordingService

import (
	"audiogami/internal/entity"
	"audiogami/internal/session"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ModeLive   = "live"
	ModeReplay = "replay"
)

// Settings configure every session the service creates.
type Settings struct {
	Mode            string
	Host            string
	Portals         map[entity.UseCaseID]string
	FinalizeTimeout time.Duration
	StructMode      session.StructMode
	IdleTTL         time.Duration
	ReplayStep      time.Duration
	MaxSessions     int
}

func SettingsFromEnv() Settings {
	s := Settings{
		Mode:            ModeLive,
		Host:            os.Getenv("GAMI_HOST"),
		Portals:         make(map[entity.UseCaseID]string),
		FinalizeTimeout: durationEnv("SESSION_FINALIZE_TIMEOUT", session.DefaultFinalizeTimeout),
		StructMode:      session.ParseStructMode(os.Getenv("SESSION_STRUCT_MODE")),
		IdleTTL:         durationEnv("SESSION_IDLE_TTL", 30*time.Minute),
		ReplayStep:      durationEnv("GAMI_REPLAY_STEP", 400*time.Millisecond),
		MaxSessions:     256,
	}

	if strings.EqualFold(os.Getenv("GAMI_MODE"), ModeReplay) {
		s.Mode = ModeReplay
	}
	if v, err := strconv.Atoi(os.Getenv("SESSION_MAX")); err == nil && v > 0 {
		s.MaxSessions = v
	}

	for _, id := range entity.UseCaseIDs {
		if portal := os.Getenv("GAMI_PORTAL_" + strings.ToUpper(string(id))); portal != "" {
			s.Portals[id] = portal
		}
	}
	return s
}

func durationEnv(name string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(name))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// portal returns the portal a session of useCase joins. Replay sessions
// never reach the vendor, so they fall back to a placeholder.
func (s Settings) portal(useCase entity.UseCaseID) (string, bool) {
	if p, ok := s.Portals[useCase]; ok {
		return p, true
	}
	if s.Mode == ModeReplay {
		return "replay-" + string(useCase), true
	}
	return "", false
}
