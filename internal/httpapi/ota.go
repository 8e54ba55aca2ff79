package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stefanposs/webmacs/infrastructure/httputil"
)

// otaCheck handles GET /ota/check: merges the local firmware table with
// the GitHub release index (§4.H update discovery).
func (d *Deps) otaCheck(w http.ResponseWriter, r *http.Request) {
	result, err := d.OTA.Check(r.Context(), d.RunningVersion, d.ReleaseIndex)
	if err != nil {
		handleErr(w, r, d.Logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

type applyRequest struct {
	DownloadURL string `json:"download_url"`
	SHA256      string `json:"file_hash_sha256"`
}

// otaApply handles POST /ota/{id}/apply, running the full
// download/verify/apply flow synchronously.
func (d *Deps) otaApply(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["id"]
	var req applyRequest
	_ = httputil.DecodeJSONOptional(w, r, &req)

	updated, err := d.OTA.Apply(r.Context(), publicID, req.DownloadURL, req.SHA256)
	if err != nil {
		handleErr(w, r, d.Logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

// otaRollback handles POST /ota/{id}/rollback.
func (d *Deps) otaRollback(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["id"]
	updated, err := d.OTA.Rollback(r.Context(), publicID)
	if err != nil {
		handleErr(w, r, d.Logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}
