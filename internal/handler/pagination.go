package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/ffa-tycoon/ffa-tycoon/internal/errors"
)

// parseIndex reads a non-negative integer URL parameter.
func parseIndex(r *http.Request, param string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || v < 0 {
		return 0, apperrors.InvalidInput(param, "must be a non-negative integer")
	}
	return v, nil
}

// parsePage reads the 1-based month page of the park archive.
func parsePage(r *http.Request) (int, error) {
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 1 {
		return 0, apperrors.InvalidInput("page", "must be a positive integer")
	}
	return page, nil
}
