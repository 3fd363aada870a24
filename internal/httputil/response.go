package httputil

import (
	"encoding/json"
	"net/http"

	"parley/internal/domain"
)

// RespondJSON writes a JSON response with the given status code. It marshals
// first so an encoding failure never produces a partial body after headers.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		RespondError(w, domain.WrapError(domain.KindInternal, domain.SurfaceAPI, err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// ErrorBody is a non-streaming error response: the taxonomy code and its
// client-facing message. No internal detail ever appears here.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondError writes the canonical error body for a ChatError.
func RespondError(w http.ResponseWriter, cerr *domain.ChatError) {
	body := ErrorBody{
		Code:    cerr.Code(),
		Message: cerr.Message(),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		// Fallback to plain text if JSON encoding fails
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(cerr.StatusCode())
	w.Write(payload)
}
