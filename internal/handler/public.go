package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/ffa-tycoon/ffa-tycoon/internal/errors"
	"github.com/ffa-tycoon/ffa-tycoon/internal/gameserver"
	"github.com/ffa-tycoon/ffa-tycoon/internal/httputil"
	"github.com/ffa-tycoon/ffa-tycoon/internal/model"
	"github.com/ffa-tycoon/ffa-tycoon/internal/repository"
	"github.com/ffa-tycoon/ffa-tycoon/internal/service"
)

const mapListURL = "https://github.com/CorySanin/ffa-tycoon-parks/tree/master/parks/"

// PublicHandler serves the park gallery API, park downloads for the game
// servers and the archive files.
type PublicHandler struct {
	registry    *gameserver.Registry
	parks       repository.ParkRepository
	maps        *service.MapCatalog
	archiveRoot string
	limit       func(http.Handler) http.Handler
	listSaves   bool
	publicURL   string
	now         func() time.Time
}

type PublicOption func(*PublicHandler)

// WithDownloadLimit wraps the random park download with mw.
func WithDownloadLimit(mw func(http.Handler) http.Handler) PublicOption {
	return func(h *PublicHandler) { h.limit = mw }
}

// WithSaveListing adds the saves found in a park's directory to park
// responses. Used on the private port.
func WithSaveListing() PublicOption {
	return func(h *PublicHandler) { h.listSaves = true }
}

// WithPublicURL sets the absolute site address used for social image links.
func WithPublicURL(url string) PublicOption {
	return func(h *PublicHandler) { h.publicURL = strings.TrimSuffix(url, "/") }
}

func NewPublicHandler(
	registry *gameserver.Registry,
	parks repository.ParkRepository,
	maps *service.MapCatalog,
	archiveRoot string,
	opts ...PublicOption,
) *PublicHandler {
	h := &PublicHandler{
		registry:    registry,
		parks:       parks,
		maps:        maps,
		archiveRoot: archiveRoot,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *PublicHandler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// Register adds the public routes to r.
func (h *PublicHandler) Register(r chi.Router) {
	r.Get("/api/healthcheck", h.Healthcheck)
	r.Get("/api/server", h.ListServers)
	r.Get("/api/parks/count", h.CountParks)
	r.Get("/api/parks/{page}", h.ListParks)
	r.Get("/api/park/{park}", h.GetPark)
	r.Get("/load/{index}", h.LoadPark)
	r.Handle("/archive/*", NewArchiveFileServer(h.archiveRoot))

	download := http.Handler(http.HandlerFunc(h.RandomPark))
	if h.limit != nil {
		download = h.limit(download)
	}
	r.Method(http.MethodGet, "/parks/{type}", download)
	r.Get("/{type}", h.MapList)
}

func (h *PublicHandler) Healthcheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": h.now().UnixMilli(),
	})
}

// ListServers reports every server from the details cache, refreshing
// entries that expired.
func (h *PublicHandler) ListServers(w http.ResponseWriter, r *http.Request) {
	h.registry.RefreshDetails(r.Context(), false)

	servers := make([]serverView, 0, h.registry.Len())
	for _, s := range h.registry.All() {
		servers = append(servers, newServerView(s, s.DetailsSync()))
	}
	writeJSON(w, http.StatusOK, servers)
}

func (h *PublicHandler) CountParks(w http.ResponseWriter, r *http.Request) {
	count, err := h.parks.Count(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to count parks")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// ListParks returns one month of parks. Page 1 is the current month.
func (h *PublicHandler) ListParks(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	now := h.now()
	parks, err := h.parks.ListByMonth(r.Context(), page, now)
	if err != nil {
		log.Error().Err(err).Int("page", page).Msg("failed to list parks")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	pages, err := h.parks.MonthsSinceOldest(r.Context(), now)
	if err != nil {
		log.Error().Err(err).Msg("failed to count park pages")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"parks": parks,
		"page":  page,
		"pages": pages,
	})
}

type parkView struct {
	*model.Park
	SocialImage string   `json:"socialImage,omitempty"`
	Saves       []string `json:"saves,omitempty"`
}

// socialImage links the park's preferred image, the thumbnail when there is
// one.
func (h *PublicHandler) socialImage(park *model.Park) string {
	img := park.Image(model.ImageThumbnail)
	if img == "" {
		img = park.Image(model.ImageFullsize)
	}
	if img == "" || park.DirName() == "" {
		return ""
	}
	return h.publicURL + "/archive/" + park.DirName() + "/" + img
}

func (h *PublicHandler) GetPark(w http.ResponseWriter, r *http.Request) {
	park, ok := h.findPark(w, r)
	if !ok {
		return
	}

	view := parkView{Park: park, SocialImage: h.socialImage(park)}
	if h.listSaves {
		saves, err := listSaves(filepath.Join(h.archiveRoot, park.DirName()))
		if err != nil {
			log.Warn().Err(err).Int64("parkId", park.ID).Msg("failed to list park saves")
		}
		view.Saves = saves
	}
	writeJSON(w, http.StatusOK, view)
}

// findPark loads the park named by the URL, writing the error response
// itself when it cannot.
func (h *PublicHandler) findPark(w http.ResponseWriter, r *http.Request) (*model.Park, bool) {
	id, err := parseIndex(r, "park")
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	park, err := h.parks.FindByID(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Int64("parkId", id).Msg("failed to get park")
		httputil.WriteError(w, apperrors.Database(err))
		return nil, false
	}
	if park == nil {
		httputil.WriteError(w, apperrors.NotFound("Park"))
		return nil, false
	}
	return park, true
}

// LoadPark serves the next park for a game server: the archived save it was
// told to restore, or else the winner of the map vote.
func (h *PublicHandler) LoadPark(w http.ResponseWriter, r *http.Request) {
	index, err := parseIndex(r, "index")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	s := h.registry.Get(int(index))
	if s == nil {
		httputil.WriteError(w, apperrors.NotFound("Server"))
		return
	}
	logger := log.With().Str("server", s.Name()).Logger()

	if req, ok := s.LoadRequest(); ok {
		path, inside := within(h.archiveRoot, req.File)
		if inside {
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				logger.Info().Str("file", req.File).Msg("serving archived park")
				serveDownload(w, r, path)
				return
			}
		}
		logger.Warn().Str("file", req.File).Msg("archived park to load is missing, falling back to the vote")
		s.CancelLoad(req.File)
	}

	mapType := s.MapType()
	winner, ok := s.TallyVotes(h.maps.Maps(mapType))
	if !ok {
		logger.Error().Str("type", mapType).Msg("no maps to choose the next park from")
		httputil.WriteError(w, apperrors.NotFound("Map"))
		return
	}

	logger.Info().Str("map", winner).Int("votes", s.VoteCount()).Msg("serving voted park")
	serveDownload(w, r, h.maps.MapFile(mapType, winner))
}

// RandomPark downloads any map of the requested type.
func (h *PublicHandler) RandomPark(w http.ResponseWriter, r *http.Request) {
	path, err := h.maps.RandomFile(chi.URLParam(r, "type"))
	if err != nil {
		if !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			log.Error().Err(err).Msg("failed to pick a random park")
		}
		httputil.WriteError(w, err)
		return
	}
	serveDownload(w, r, path)
}

// MapList sends players to the published list of votable maps.
func (h *PublicHandler) MapList(w http.ResponseWriter, r *http.Request) {
	mapType := chi.URLParam(r, "type")
	if !h.maps.HasType(mapType) {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, mapListURL+mapType, http.StatusFound)
}

// listSaves returns the save files in dir, sorted.
func listSaves(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []string{}, err
	}
	saves := []string{}
	for _, e := range entries {
		if !e.IsDir() && isSaveFile(e.Name()) {
			saves = append(saves, e.Name())
		}
	}
	sort.Strings(saves)
	return saves, nil
}

func isSaveFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, known := range service.SaveExtensions {
		if ext == known {
			return true
		}
	}
	return false
}
