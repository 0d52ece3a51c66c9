package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffa-tycoon/ffa-tycoon/internal/gameserver"
	"github.com/ffa-tycoon/ffa-tycoon/internal/model"
	"github.com/ffa-tycoon/ffa-tycoon/internal/repository"
	"github.com/ffa-tycoon/ffa-tycoon/internal/service"
)

type publicFixture struct {
	handler *PublicHandler
	router  http.Handler
	parks   repository.ParkRepository
	session *gameserver.Session
	archive string
	maps    string
}

func newPublicFixture(t *testing.T, opts ...PublicOption) *publicFixture {
	t.Helper()
	parks, _ := setupParks(t)
	archive := t.TempDir()
	mapsRoot := t.TempDir()

	writeFile(t, filepath.Join(mapsRoot, "sandbox", "forest-sandbox.park"), "forest map")
	catalog := service.NewMapCatalog(mapsRoot)
	require.NoError(t, catalog.Refresh())

	session := newSession(0, "ffa-sandbox", "ffa", "free for all sandbox", &gameStub{})
	registry := gameserver.NewRegistryFromSessions(session)

	h := NewPublicHandler(registry, parks, catalog, archive, opts...)
	h.now = func() time.Time { return time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC) }

	return &publicFixture{
		handler: h,
		router:  h.Routes(),
		parks:   parks,
		session: session,
		archive: archive,
		maps:    mapsRoot,
	}
}

func (f *publicFixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestPublicHandler_Healthcheck(t *testing.T) {
	f := newPublicFixture(t)
	rec := f.get("/api/healthcheck")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec.Body.String())
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC).UnixMilli(), body["timestamp"])
}

func TestPublicHandler_ListServers(t *testing.T) {
	f := newPublicFixture(t)
	rec := f.get("/api/server")
	require.Equal(t, http.StatusOK, rec.Code)

	var servers []map[string]any
	require.NoError(t, decodeInto(rec.Body.String(), &servers))
	require.Len(t, servers, 1)
	assert.Equal(t, "ffa-sandbox", servers[0]["name"])
	assert.Equal(t, "fresh", servers[0]["state"])
	assert.EqualValues(t, 1, servers[0]["online"])
	park := servers[0]["park"].(map[string]any)
	assert.EqualValues(t, 120, park["guests"])
}

func TestPublicHandler_Parks(t *testing.T) {
	f := newPublicFixture(t)
	park := addPark(t, f.parks, f.archive, "2024-05-01_12-00-00_ffa", "ffa.park", "older.park")

	t.Run("count", func(t *testing.T) {
		rec := f.get("/api/parks/count")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"count":1}`, rec.Body.String())
	})

	t.Run("current month page", func(t *testing.T) {
		rec := f.get("/api/parks/1")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeJSON(t, rec.Body.String())
		assert.EqualValues(t, 1, body["page"])
		assert.EqualValues(t, 1, body["pages"])
		assert.Len(t, body["parks"], 1)
	})

	t.Run("earlier month is empty", func(t *testing.T) {
		rec := f.get("/api/parks/2")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decodeJSON(t, rec.Body.String())["parks"])
	})

	t.Run("invalid page", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, f.get("/api/parks/0").Code)
		assert.Equal(t, http.StatusBadRequest, f.get("/api/parks/abc").Code)
	})

	t.Run("single park", func(t *testing.T) {
		rec := f.get(fmt.Sprintf("/api/park/%d", park.ID))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeJSON(t, rec.Body.String())
		assert.Equal(t, "ffa.park", body["filename"])
		assert.NotContains(t, body, "saves")
	})

	t.Run("unknown park", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, f.get("/api/park/999").Code)
	})
}

func TestPublicHandler_ParkSaveListing(t *testing.T) {
	f := newPublicFixture(t, WithSaveListing())
	park := addPark(t, f.parks, f.archive, "2024-05-01_12-00-00_ffa", "ffa.park", "older.sv6")
	writeFile(t, filepath.Join(f.archive, park.DirName(), "thumbnail.png"), "png")

	rec := f.get(fmt.Sprintf("/api/park/%d", park.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"ffa.park", "older.sv6"}, decodeJSON(t, rec.Body.String())["saves"])
}

func TestPublicHandler_LoadPark(t *testing.T) {
	t.Run("serves the archived park it was told to load", func(t *testing.T) {
		f := newPublicFixture(t)
		writeFile(t, filepath.Join(f.archive, "2024-05-01_ffa", "ffa.park"), "archived")
		f.session.RequestLoad(gameserver.LoadRequest{File: "2024-05-01_ffa/ffa.park"})

		rec := f.get("/load/0")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "archived", rec.Body.String())
		assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="ffa.park"`)
		assert.Equal(t, gameserver.PendingLoad, f.session.State().Kind)
	})

	t.Run("falls back to the vote when the archived park is gone", func(t *testing.T) {
		f := newPublicFixture(t)
		f.session.RequestLoad(gameserver.LoadRequest{File: "missing/ffa.park"})

		rec := f.get("/load/0")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "forest map", rec.Body.String())
		assert.Equal(t, gameserver.Fresh, f.session.State().Kind)
	})

	t.Run("serves the vote winner", func(t *testing.T) {
		f := newPublicFixture(t)
		f.session.CastVote("player-1", "forest")

		rec := f.get("/load/0")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "forest map", rec.Body.String())
	})

	t.Run("unknown server", func(t *testing.T) {
		f := newPublicFixture(t)
		assert.Equal(t, http.StatusNotFound, f.get("/load/3").Code)
		assert.Equal(t, http.StatusBadRequest, f.get("/load/-1").Code)
	})
}

func TestPublicHandler_MapDownloads(t *testing.T) {
	f := newPublicFixture(t)

	t.Run("random park of a type", func(t *testing.T) {
		rec := f.get("/parks/sandbox")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "forest map", rec.Body.String())
	})

	t.Run("unknown type", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, f.get("/parks/economy").Code)
	})

	t.Run("map list redirect", func(t *testing.T) {
		rec := f.get("/sandbox")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, mapListURL+"sandbox", rec.Header().Get("Location"))
		assert.Equal(t, http.StatusNotFound, f.get("/economy").Code)
	})
}

func TestPublicHandler_DownloadLimit(t *testing.T) {
	limited := 0
	f := newPublicFixture(t, WithDownloadLimit(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limited++
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}))

	assert.Equal(t, http.StatusTooManyRequests, f.get("/parks/sandbox").Code)
	assert.Equal(t, http.StatusOK, f.get("/api/healthcheck").Code)
	assert.Equal(t, 1, limited)
}

func TestPublicHandler_SocialImage(t *testing.T) {
	f := newPublicFixture(t, WithPublicURL("https://ffa-tycoon.com/"))
	park := addPark(t, f.parks, f.archive, "2024-05-01_12-00-00_ffa", "ffa.park")
	path := fmt.Sprintf("/api/park/%d", park.ID)

	assert.NotContains(t, decodeJSON(t, f.get(path).Body.String()), "socialImage")

	require.NoError(t, f.parks.ReplaceImage(context.Background(), park.ID, model.ImageFullsize, "fullsize.png"))
	assert.Equal(t, "https://ffa-tycoon.com/archive/2024-05-01_12-00-00_ffa/fullsize.png",
		decodeJSON(t, f.get(path).Body.String())["socialImage"])

	require.NoError(t, f.parks.ReplaceImage(context.Background(), park.ID, model.ImageThumbnail, "thumbnail.png"))
	assert.Equal(t, "https://ffa-tycoon.com/archive/2024-05-01_12-00-00_ffa/thumbnail.png",
		decodeJSON(t, f.get(path).Body.String())["socialImage"])
}
