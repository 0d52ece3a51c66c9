// Package audit records control panel actions that change game servers or
// the park archive.
package audit

import (
	"net"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventServerStop     EventType = "server_stop"
	EventServerMessage  EventType = "server_message"
	EventStaffHire      EventType = "staff_hire"
	EventCheat          EventType = "cheat"
	EventPlayerKick     EventType = "player_kick"
	EventPlayerGroup    EventType = "player_group"
	EventLoadQueued     EventType = "load_queued"
	EventParkUpload     EventType = "park_upload"
	EventParkSelectSave EventType = "park_select_save"
	EventParkRemoveSave EventType = "park_remove_save"
	EventParkDelete     EventType = "park_delete"
	EventRateLimitHit   EventType = "rate_limit_exceeded"
)

type Event struct {
	Type    EventType
	Server  string
	ParkID  int64
	IP      string
	Details map[string]any
}

func Log(event Event) {
	logger := log.With().
		Str("audit", "admin").
		Str("event_type", string(event.Type)).
		Logger()

	if event.Server != "" {
		logger = logger.With().Str("server", event.Server).Logger()
	}
	if event.ParkID != 0 {
		logger = logger.With().Int64("parkId", event.ParkID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("audit event")
}

func addField(e *zerolog.Event, key string, value any) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

// LogFromRequest fills in the caller's address. RemoteAddr is expected to
// have been rewritten by chi's RealIP already.
func LogFromRequest(r *http.Request, event Event) {
	event.IP = clientIP(r)
	Log(event)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
