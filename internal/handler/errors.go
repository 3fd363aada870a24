package handler

import (
	"errors"
	"net/http"

	"parley/internal/domain"
	"parley/internal/httputil"
)

// handleError converts errors to the canonical {code, message} response.
// Anything that is not a ChatError fails closed to a generic 500; raw
// internal errors never cross the boundary.
func handleError(w http.ResponseWriter, err error) {
	var cerr *domain.ChatError
	if errors.As(err, &cerr) {
		httputil.RespondError(w, cerr)
		return
	}
	httputil.RespondError(w, domain.WrapError(domain.KindInternal, domain.SurfaceAPI, err))
}
