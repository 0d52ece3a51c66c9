package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/ffa-tycoon/ffa-tycoon/internal/audit"
	"github.com/ffa-tycoon/ffa-tycoon/internal/config"
	apperrors "github.com/ffa-tycoon/ffa-tycoon/internal/errors"
	"github.com/ffa-tycoon/ffa-tycoon/internal/fileman"
	"github.com/ffa-tycoon/ffa-tycoon/internal/gameserver"
	"github.com/ffa-tycoon/ffa-tycoon/internal/httputil"
	"github.com/ffa-tycoon/ffa-tycoon/internal/middleware"
	"github.com/ffa-tycoon/ffa-tycoon/internal/model"
	"github.com/ffa-tycoon/ffa-tycoon/internal/repository"
	"github.com/ffa-tycoon/ffa-tycoon/internal/service"
)

// Archiver runs the save pipeline.
type Archiver interface {
	Save(ctx context.Context, s *gameserver.Session) (*service.SaveResult, error)
	SaveAll(ctx context.Context, sessions []*gameserver.Session) ([]*service.SaveResult, error)
}

// IPLookup reports what is known about a player address.
type IPLookup interface {
	Lookup(ctx context.Context, ip string) (map[string]any, error)
}

var staffTypes = map[string]bool{
	"handyman":    true,
	"mechanic":    true,
	"security":    true,
	"entertainer": true,
}

// AdminHandler is the control panel API. It is only served on the private
// port and carries every public route as well.
type AdminHandler struct {
	registry    *gameserver.Registry
	public      *PublicHandler
	archiver    Archiver
	parks       repository.ParkRepository
	inTx        repository.Transactor
	ipinfo      IPLookup
	gatherer    prometheus.Gatherer
	archiveRoot string
}

func NewAdminHandler(
	registry *gameserver.Registry,
	public *PublicHandler,
	archiver Archiver,
	parks repository.ParkRepository,
	inTx repository.Transactor,
	ipinfo IPLookup,
	gatherer prometheus.Gatherer,
	archiveRoot string,
) *AdminHandler {
	if inTx == nil {
		inTx = func(ctx context.Context, fn func(repository.ParkRepository) error) error {
			return fn(parks)
		}
	}
	return &AdminHandler{
		registry:    registry,
		public:      public,
		archiver:    archiver,
		parks:       parks,
		inTx:        inTx,
		ipinfo:      ipinfo,
		gatherer:    gatherer,
		archiveRoot: archiveRoot,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBodyLimitMiddleware(0).Handler)
		h.public.Register(r)

		// Servers
		r.Get("/api/server/{server}", h.GetServer)
		r.Get("/api/server/{server}/save", h.SaveServer)
		r.Get("/api/server/{server}/stop", h.StopServer)
		r.Post("/api/server/{server}/send", h.SendServer)
		r.Post("/api/server/{server}/staff", h.HireStaff)
		r.Post("/api/server/{server}/cheat", h.Cheat)
		r.Post("/api/server/{server}/player/{player}", h.UpdatePlayer)
		r.Post("/api/server/{server}/load", h.QueueLoad)

		// Groups
		r.Get("/api/group/{group}/save", h.SaveGroup)
		r.Get("/api/group/save/{group}", h.SaveGroup)
		r.Get("/api/group/{group}/stop", h.StopGroup)
		r.Post("/api/group/{group}/send", h.SendGroup)

		// Parks
		r.Delete("/api/park/{park}", h.DeletePark)
		r.Post("/api/park/{park}/save", h.ParkSaveAction)

		r.Post("/api/ip", h.LookupIP)
		r.Get("/metrics", h.Metrics)
	})

	r.With(middleware.NewBodyLimitMiddleware(config.UploadMaxBodySize).Handler).
		Put("/api/park/{park}", h.UploadPark)

	return r
}

func (h *AdminHandler) session(w http.ResponseWriter, r *http.Request) (*gameserver.Session, bool) {
	index, err := parseIndex(r, "server")
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	s := h.registry.Get(int(index))
	if s == nil {
		httputil.WriteError(w, apperrors.NotFound("Server"))
		return nil, false
	}
	return s, true
}

func (h *AdminHandler) group(w http.ResponseWriter, r *http.Request) ([]*gameserver.Session, bool) {
	sessions := h.registry.Group(chi.URLParam(r, "group"))
	if len(sessions) == 0 {
		httputil.WriteError(w, apperrors.NotFound("Group"))
		return nil, false
	}
	return sessions, true
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.ValidationError("Invalid request body")
	}
	return nil
}

type serverDetailsView struct {
	serverView
	Details json.RawMessage `json:"details"`
}

// GetServer refreshes and returns one server's details.
func (h *AdminHandler) GetServer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	d := s.Details(r.Context(), true)
	view := serverDetailsView{serverView: newServerView(s, d)}
	if d != nil && len(d.Raw) > 0 {
		view.Details = d.Raw
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AdminHandler) SaveServer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	result, err := h.archiver.Save(r.Context(), s)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": httputil.StatusOK.Status,
		"result": result,
	})
}

// SaveGroup saves every server of a group concurrently. The answer is bad
// when any of them failed.
func (h *AdminHandler) SaveGroup(w http.ResponseWriter, r *http.Request) {
	sessions, ok := h.group(w, r)
	if !ok {
		return
	}
	results, err := h.archiver.SaveAll(r.Context(), sessions)
	status := httputil.StatusOK.Status
	code := http.StatusOK
	if err != nil {
		log.Error().Err(err).Str("group", chi.URLParam(r, "group")).Msg("group save failed")
		status = httputil.StatusBad.Status
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"results": results,
	})
}

func (h *AdminHandler) StopServer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := s.Stop(r.Context())
	if err == nil {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventServerStop, Server: s.Name()})
	}
	writeResult(w, res, err)
}

func (h *AdminHandler) StopGroup(w http.ResponseWriter, r *http.Request) {
	sessions, ok := h.group(w, r)
	if !ok {
		return
	}
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventServerStop,
		Details: map[string]any{"group": chi.URLParam(r, "group")},
	})
	h.forEach(w, r, sessions, func(ctx context.Context, s *gameserver.Session) (*gameserver.CommandResult, error) {
		return s.Stop(ctx)
	})
}

type sendRequest struct {
	Message string `json:"message"`
}

func (req sendRequest) validate() error {
	if strings.TrimSpace(req.Message) == "" {
		return apperrors.InvalidInput("message", "is required")
	}
	return nil
}

func (h *AdminHandler) SendServer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventServerMessage,
		Server:  s.Name(),
		Details: map[string]any{"message": req.Message},
	})
	res, err := s.Say(r.Context(), req.Message)
	writeResult(w, res, err)
}

func (h *AdminHandler) SendGroup(w http.ResponseWriter, r *http.Request) {
	sessions, ok := h.group(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventServerMessage,
		Details: map[string]any{"group": chi.URLParam(r, "group"), "message": req.Message},
	})
	h.forEach(w, r, sessions, func(ctx context.Context, s *gameserver.Session) (*gameserver.CommandResult, error) {
		return s.Say(ctx, req.Message)
	})
}

// forEach runs fn on every session and answers ok only when all of them
// succeeded.
func (h *AdminHandler) forEach(w http.ResponseWriter, r *http.Request, sessions []*gameserver.Session, fn func(context.Context, *gameserver.Session) (*gameserver.CommandResult, error)) {
	allOK := true
	for _, s := range sessions {
		res, err := fn(r.Context(), s)
		if err != nil {
			log.Warn().Err(err).Str("server", s.Name()).Msg("group command failed")
			allOK = false
			continue
		}
		if !res.OK() {
			allOK = false
		}
	}
	if !allOK {
		writeJSON(w, http.StatusOK, httputil.StatusBad)
		return
	}
	writeOK(w)
}

func (h *AdminHandler) HireStaff(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Type   string `json:"type"`
		Amount int    `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !staffTypes[req.Type] {
		httputil.WriteError(w, apperrors.InvalidInput("type", "unknown staff type"))
		return
	}
	if req.Amount < 1 {
		httputil.WriteError(w, apperrors.InvalidInput("amount", "must be at least 1"))
		return
	}
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventStaffHire,
		Server:  s.Name(),
		Details: map[string]any{"type": req.Type, "amount": req.Amount},
	})
	res, err := s.Hire(r.Context(), req.Type, req.Amount)
	writeResult(w, res, err)
}

// Cheat forwards the JSON body to the server's cheat command.
func (h *AdminHandler) Cheat(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	var payload bytes.Buffer
	if err := json.Compact(&payload, body); err != nil || payload.Len() == 0 || payload.Bytes()[0] != '{' {
		httputil.WriteError(w, apperrors.ValidationError("Cheat must be a JSON object"))
		return
	}
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventCheat,
		Server:  s.Name(),
		Details: map[string]any{"cheat": payload.String()},
	})
	res, err := s.Cheat(r.Context(), payload.String())
	writeResult(w, res, err)
}

func (h *AdminHandler) UpdatePlayer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	player, err := parseIndex(r, "player")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req struct {
		Action string `json:"action"`
		Group  *int   `json:"group"`
	}
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	id := fmt.Sprint(player)
	switch req.Action {
	case "kick":
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventPlayerKick,
			Server:  s.Name(),
			Details: map[string]any{"player": player},
		})
		res, err := s.Kick(r.Context(), id)
		writeResult(w, res, err)
	case "update":
		if req.Group == nil || *req.Group < 0 {
			httputil.WriteError(w, apperrors.InvalidInput("group", "is required"))
			return
		}
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventPlayerGroup,
			Server:  s.Name(),
			Details: map[string]any{"player": player, "group": *req.Group},
		})
		res, err := s.UpdatePlayer(r.Context(), id, fmt.Sprint(*req.Group))
		writeResult(w, res, err)
	default:
		httputil.WriteError(w, apperrors.InvalidInput("action", "must be kick or update"))
	}
}

// QueueLoad makes an archived save the next park the server downloads.
func (h *AdminHandler) QueueLoad(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req gameserver.LoadRequest
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	path, inside := within(h.archiveRoot, req.File)
	if !inside || !isSaveFile(path) {
		httputil.WriteError(w, apperrors.InvalidInput("file", "must be a save inside the archive"))
		return
	}
	if !fileman.Exists(path) {
		httputil.WriteError(w, apperrors.NotFound("Save file"))
		return
	}

	s.RequestLoad(req)
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventLoadQueued,
		Server:  s.Name(),
		Details: map[string]any{"file": req.File},
	})
	writeOK(w)
}

func (h *AdminHandler) parkDir(park *model.Park) (string, bool) {
	return within(h.archiveRoot, park.DirName())
}

// UploadPark replaces a park's save with an uploaded one. Older saves and
// the rendered images are removed.
func (h *AdminHandler) UploadPark(w http.ResponseWriter, r *http.Request) {
	park, ok := h.public.findPark(w, r)
	if !ok {
		return
	}
	dir, ok := h.parkDir(park)
	if !ok {
		httputil.WriteError(w, apperrors.Internal("Park has no archive directory"))
		return
	}

	file, header, err := r.FormFile("park")
	if err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("park", "a save file is required"))
		return
	}
	defer file.Close()

	name, ok := uploadName(header.Filename)
	if !ok {
		httputil.WriteError(w, apperrors.InvalidInput("park", "must be a .park or .sv6 file"))
		return
	}

	logger := log.With().Int64("parkId", park.ID).Str("file", name).Logger()

	if _, err := fileman.EnsureDir(dir); err != nil {
		httputil.WriteError(w, apperrors.ArchiveIO("mkdir", err))
		return
	}
	dest := filepath.Join(dir, name)
	tmp := dest + ".upload"
	if err := writeUpload(tmp, file); err != nil {
		os.Remove(tmp)
		logger.Error().Err(err).Msg("failed to store uploaded park")
		httputil.WriteError(w, apperrors.ArchiveIO("write", err))
		return
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		httputil.WriteError(w, apperrors.ArchiveIO("move", err))
		return
	}

	if err := h.replaceSave(r.Context(), park, dir, name); err != nil {
		httputil.WriteError(w, err)
		return
	}

	saves, _ := listSaves(dir)
	for _, other := range saves {
		if other == name {
			continue
		}
		if err := fileman.RemoveIfExists(filepath.Join(dir, other)); err != nil {
			logger.Warn().Err(err).Str("old", other).Msg("failed to remove old save")
		}
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventParkUpload,
		ParkID:  park.ID,
		Details: map[string]any{"file": name, "size": header.Size},
	})
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   httputil.StatusOK.Status,
		"filename": name,
	})
}

// uploadName keeps the extension and at most SaveNameMaxLength characters
// of the uploaded file's base name.
func uploadName(filename string) (string, bool) {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(base))
	if !isSaveFile(base) {
		return "", false
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if utf8.RuneCountInString(stem) > config.SaveNameMaxLength {
		stem = string([]rune(stem)[:config.SaveNameMaxLength])
	}
	stem = strings.Join(strings.Fields(stem), "-")
	if stem == "" || stem == "." || stem == ".." {
		stem = "park"
	}
	return stem + ext, true
}

func writeUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// replaceSave points the park row at filename and drops its images, which
// no longer match the save.
func (h *AdminHandler) replaceSave(ctx context.Context, park *model.Park, dir, filename string) error {
	err := h.inTx(ctx, func(parks repository.ParkRepository) error {
		if err := parks.ChangeFileName(ctx, park.ID, filename); err != nil {
			return err
		}
		return parks.RemoveImages(ctx, park.ID)
	})
	if err != nil {
		log.Error().Err(err).Int64("parkId", park.ID).Msg("failed to update park save")
		return apperrors.Database(err)
	}
	for _, kind := range []model.ImageKind{model.ImageFullsize, model.ImageThumbnail} {
		if img := park.Image(kind); img != "" {
			if err := fileman.RemoveIfExists(filepath.Join(dir, filepath.Base(img))); err != nil {
				log.Warn().Err(err).Int64("parkId", park.ID).Str("image", img).Msg("failed to remove stale image")
			}
		}
	}
	return nil
}

// ParkSaveAction manages the saves kept in a park's directory:
// "select" makes one the current save, "rm" deletes one and "rm-all"
// deletes all but the current save.
func (h *AdminHandler) ParkSaveAction(w http.ResponseWriter, r *http.Request) {
	park, ok := h.public.findPark(w, r)
	if !ok {
		return
	}
	dir, ok := h.parkDir(park)
	if !ok {
		httputil.WriteError(w, apperrors.Internal("Park has no archive directory"))
		return
	}
	var req struct {
		Action string `json:"action"`
		File   string `json:"file"`
	}
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	switch req.Action {
	case "select", "rm":
		name := filepath.Base(req.File)
		if req.File == "" || name != req.File || !isSaveFile(name) {
			httputil.WriteError(w, apperrors.InvalidInput("file", "must name a save of this park"))
			return
		}
		path := filepath.Join(dir, name)
		if !fileman.Exists(path) {
			httputil.WriteError(w, apperrors.NotFound("Save file"))
			return
		}
		if req.Action == "select" {
			if err := h.replaceSave(r.Context(), park, dir, name); err != nil {
				httputil.WriteError(w, err)
				return
			}
		} else {
			if name == park.SaveFile() {
				httputil.WriteError(w, apperrors.ValidationError("Cannot remove the current save"))
				return
			}
			if err := fileman.RemoveIfExists(path); err != nil {
				httputil.WriteError(w, apperrors.ArchiveIO("remove", err))
				return
			}
		}
		event := audit.EventParkSelectSave
		if req.Action == "rm" {
			event = audit.EventParkRemoveSave
		}
		audit.LogFromRequest(r, audit.Event{Type: event, ParkID: park.ID, Details: map[string]any{"file": name}})

	case "rm-all":
		saves, err := listSaves(dir)
		if err != nil {
			httputil.WriteError(w, apperrors.ArchiveIO("list", err))
			return
		}
		removed := 0
		for _, name := range saves {
			if name == park.SaveFile() {
				continue
			}
			if err := fileman.RemoveIfExists(filepath.Join(dir, name)); err != nil {
				httputil.WriteError(w, apperrors.ArchiveIO("remove", err))
				return
			}
			removed++
		}
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventParkRemoveSave,
			ParkID:  park.ID,
			Details: map[string]any{"all": true, "saves": removed},
		})

	default:
		httputil.WriteError(w, apperrors.InvalidInput("action", "must be select, rm or rm-all"))
		return
	}

	writeOK(w)
}

func (h *AdminHandler) DeletePark(w http.ResponseWriter, r *http.Request) {
	park, ok := h.public.findPark(w, r)
	if !ok {
		return
	}
	if err := h.parks.Delete(r.Context(), park.ID); err != nil {
		log.Error().Err(err).Int64("parkId", park.ID).Msg("failed to delete park")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	if dir, ok := h.parkDir(park); ok {
		if err := os.RemoveAll(dir); err != nil {
			log.Error().Err(err).Int64("parkId", park.ID).Str("dir", park.DirName()).Msg("failed to remove park directory")
		}
	}
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventParkDelete,
		ParkID:  park.ID,
		Details: map[string]any{"dir": park.DirName()},
	})
	writeOK(w)
}

func (h *AdminHandler) LookupIP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IP string `json:"ip"`
	}
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	info, err := h.ipinfo.Lookup(r.Context(), strings.TrimSpace(req.IP))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Metrics refreshes every server before exposing the gauges, since the
// collector only reads cached details.
func (h *AdminHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	h.registry.RefreshDetails(r.Context(), true)
	promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
