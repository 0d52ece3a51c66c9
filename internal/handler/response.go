package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ffa-tycoon/ffa-tycoon/internal/gameserver"
	"github.com/ffa-tycoon/ffa-tycoon/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, httputil.StatusOK)
}

func writeBad(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"status": httputil.StatusBad.Status,
		"error":  message,
	})
}

// writeResult answers a game server command with ok or bad.
func writeResult(w http.ResponseWriter, res *gameserver.CommandResult, err error) {
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !res.OK() {
		writeJSON(w, http.StatusOK, httputil.StatusBad)
		return
	}
	writeOK(w)
}

// serveDownload sends path as an attachment, or 404 when it is missing.
func serveDownload(w http.ResponseWriter, r *http.Request, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		writeBad(w, http.StatusNotFound, "File not found")
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, path)
}

// within joins name onto root and rejects names that escape it.
func within(root, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	joined := filepath.Join(root, name)
	rel, err := filepath.Rel(root, joined)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return joined, true
}

type serverView struct {
	Index    int                  `json:"index"`
	Name     string               `json:"name"`
	Group    string               `json:"group"`
	GameMode string               `json:"gamemode"`
	State    string               `json:"state"`
	ParkID   *int64               `json:"parkId"`
	Park     *gameserver.ParkInfo `json:"park"`
	Players  []int                `json:"players"`
	Online   int                  `json:"online"`
}

func newServerView(s *gameserver.Session, d *gameserver.Details) serverView {
	v := serverView{
		Index:    s.Index(),
		Name:     s.Name(),
		Group:    s.Group(),
		GameMode: s.Mode(),
		State:    s.State().Kind.String(),
		ParkID:   s.ArchiveID(),
		Players:  d.PlayerIDs(),
		Online:   d.OnlinePlayers(),
	}
	if d != nil {
		v.Park = d.Park
	}
	return v
}
