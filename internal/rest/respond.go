package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"tidb-rest/internal/logging"
	"tidb-rest/internal/serialize"
	"tidb-rest/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already written; an encode failure here is unrecoverable.
	_ = json.NewEncoder(w).Encode(body)
}

func (rs *Resource) badRequest(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, rs.Errors.BadRequest())
}

func (rs *Resource) notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, rs.Errors.NotFound())
}

func (rs *Resource) validationFailed(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, rs.Errors.Validation(fields))
}

// writeError maps the error taxonomy onto status codes: storage misses
// become 404, validation errors 422, everything else 500 with an opaque
// body. Filter-stage failures go through badRequest directly.
func (rs *Resource) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		rs.notFound(w)
		return
	}
	var ve *serialize.ValidationError
	if errors.As(err, &ve) {
		rs.validationFailed(w, ve.Fields)
		return
	}
	logging.FromContext(r.Context()).Error("request failed",
		"path", r.URL.Path,
		"entity", rs.Entity.Name,
		"error", err,
	)
	writeJSON(w, http.StatusInternalServerError,
		map[string]any{"errors": map[string]any{"request": "internal error"}})
}
