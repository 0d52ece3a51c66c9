package middleware

import (
	"net/http"

	"github.com/ffa-tycoon/ffa-tycoon/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}
