package httpapi

import (
	"net/http"

	coreerrors "github.com/stefanposs/webmacs/infrastructure/errors"
	"github.com/stefanposs/webmacs/infrastructure/httputil"
	"github.com/stefanposs/webmacs/infrastructure/logging"
)

// handleErr maps a domain error to its HTTP response, logging it first.
// Every handler in this package funnels its error return through here so
// the CoreError taxonomy (§4.A) is the single source of truth for status
// codes.
func handleErr(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	if logger != nil {
		logger.WithContext(r.Context()).WithError(err).Warn("request failed")
	}
	if core := coreerrors.As(err); core != nil {
		httputil.WriteErrorResponse(w, r, core.HTTPStatus(), string(core.Kind), core.Message, core.Details)
		return
	}
	httputil.WriteErrorResponse(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
}
