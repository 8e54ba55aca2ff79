package httpapi

import (
	"net/http"

	"github.com/stefanposs/webmacs/infrastructure/httputil"
)

// health answers GET /health; it never requires auth (§6).
func (d *Deps) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// stats answers GET /stats with the runtime's operational counters
// (broadcast subscriber counts, topic fan-out) collected via the base
// service's statistics hook.
func (d *Deps) stats(w http.ResponseWriter, r *http.Request) {
	if d.Stats == nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d.Stats())
}
