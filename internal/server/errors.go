package server

import (
	"errors"
	"io/fs"
	"log"
	"net/http"

	"github.com/owss/owss/internal/resource"
)

// Error codes returned in the {"error": code} envelope.
const (
	codeInvalidRequest   = "InvalidRequest"
	codePermissionDenied = "PermissionDenied"
	codeTooManyRequests  = "TooManyRequests"
	codeNotFound         = "NotFound"
	codeInternal         = "InternalError"
)

// writeEngineError maps an engine error onto a status and code. Unexpected
// errors are logged and reported generically so no paths leak to clients.
func writeEngineError(w http.ResponseWriter, op string, err error) {
	for _, known := range []error{
		resource.ErrInvalidResourceID,
		resource.ErrInvalidResourceName,
		resource.ErrInvalidResourceData,
		resource.ErrInvalidResourcePath,
	} {
		if errors.Is(err, known) {
			writeError(w, http.StatusBadRequest, known.Error())
			return
		}
	}

	switch {
	case errors.Is(err, resource.ErrSharingDisabled):
		writeError(w, http.StatusNotFound, resource.ErrSharingDisabled.Error())
	case errors.Is(err, fs.ErrNotExist):
		writeError(w, http.StatusNotFound, codeNotFound)
	default:
		log.Printf("[http] %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, codeInternal)
	}
}
