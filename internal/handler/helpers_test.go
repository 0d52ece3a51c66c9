package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ffa-tycoon/ffa-tycoon/internal/config"
	"github.com/ffa-tycoon/ffa-tycoon/internal/database"
	"github.com/ffa-tycoon/ffa-tycoon/internal/gameserver"
	"github.com/ffa-tycoon/ffa-tycoon/internal/model"
	"github.com/ffa-tycoon/ffa-tycoon/internal/repository"
)

func chiContext(r *http.Request, rctx *chi.Context) context.Context {
	return context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
}

const testParkJSON = `{"park":{"name":"Forest Frontiers","guests":120,"rating":850},"network":{"players":[{"id":0,"name":"host"},{"id":4,"name":"alice"}]}}`

// gameStub answers remote-control commands like a game server would and
// records what it was sent.
type gameStub struct {
	mu     sync.Mutex
	calls  []string
	result string
}

func (g *gameStub) Execute(ctx context.Context, command any) (json.RawMessage, error) {
	cmd, _ := command.(string)
	g.mu.Lock()
	g.calls = append(g.calls, cmd)
	result := g.result
	g.mu.Unlock()

	if cmd == "park" {
		return json.RawMessage(testParkJSON), nil
	}
	if result == "" {
		result = "true"
	}
	return json.RawMessage(`{"result":` + result + `}`), nil
}

func (g *gameStub) sent() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func newSession(index int, name, group, mode string, stub *gameStub) *gameserver.Session {
	return gameserver.NewSession(index, config.ServerDefinition{
		Name:     name,
		Group:    group,
		GameMode: mode,
		Hostname: name,
		Port:     config.DefaultRemotePort,
	}, gameserver.WithCommander(stub))
}

func setupParks(t *testing.T) (repository.ParkRepository, repository.Transactor) {
	t.Helper()
	db, err := database.Connect("sqlite://:memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })
	parks := repository.NewParkRepository(db.DB)
	return parks, repository.NewTransactor(db, parks)
}

// addPark stores a park and creates its archive directory with the given
// files, the first of which is the current save.
func addPark(t *testing.T, parks repository.ParkRepository, root, dir string, files ...string) *model.Park {
	t.Helper()
	require.NotEmpty(t, files)
	park, err := parks.Add(context.Background(), model.CreateParkParams{
		Name:      "ffa",
		GroupName: "ffa",
		GameMode:  "free for all sandbox",
		Date:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Scenario:  "Forest Frontiers",
		Dir:       dir,
		FileName:  files[0],
	})
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, dir, f), []byte("save "+f), 0o644))
	}
	return park
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func decodeJSON(t *testing.T, body string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, decodeInto(body, &out))
	return out
}

func decodeInto(body string, v any) error {
	return json.NewDecoder(strings.NewReader(body)).Decode(v)
}
