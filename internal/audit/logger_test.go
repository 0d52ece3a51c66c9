package audit

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestLog(t *testing.T) {
	buf := captureLog(t)

	Log(Event{
		Type:    EventParkDelete,
		ParkID:  42,
		Details: map[string]any{"dir": "2024-05-01_ffa", "files": 3, "forced": true},
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "admin", entry["audit"])
	assert.Equal(t, "park_delete", entry["event_type"])
	assert.EqualValues(t, 42, entry["parkId"])
	assert.Equal(t, "2024-05-01_ffa", entry["dir"])
	assert.EqualValues(t, 3, entry["files"])
	assert.Equal(t, true, entry["forced"])
	assert.NotContains(t, entry, "server")
	assert.NotContains(t, entry, "ip")
}

func TestLogFromRequest(t *testing.T) {
	buf := captureLog(t)

	req := httptest.NewRequest("POST", "/api/server/0/stop", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	LogFromRequest(req, Event{Type: EventServerStop, Server: "ffa-sandbox"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "203.0.113.7", entry["ip"])
	assert.Equal(t, "ffa-sandbox", entry["server"])
	assert.Equal(t, "server_stop", entry["event_type"])
}
