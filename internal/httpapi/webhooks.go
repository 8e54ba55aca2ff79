package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stefanposs/webmacs/infrastructure/database"
	"github.com/stefanposs/webmacs/infrastructure/httputil"
	"github.com/stefanposs/webmacs/internal/model"
)

type createWebhookRequest struct {
	URL     string   `json:"url"`
	Secret  string   `json:"secret"`
	Events  []string `json:"events"`
	Enabled bool     `json:"enabled"`
}

// createWebhook handles POST /webhooks.
func (d *Deps) createWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	hook := model.Webhook{
		URL:     req.URL,
		Events:  req.Events,
		Enabled: req.Enabled,
	}
	if req.Secret != "" {
		hook.Secret = &req.Secret
	}
	created, err := d.Store.CreateWebhook(r.Context(), hook)
	if err != nil {
		handleErr(w, r, d.Logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// listWebhooks handles GET /webhooks.
func (d *Deps) listWebhooks(w http.ResponseWriter, r *http.Request) {
	page := database.NewPage(httputil.QueryInt(r, "page", 1), httputil.QueryInt(r, "page_size", 25))
	hooks, total, err := d.Store.ListWebhooks(r.Context(), page)
	if err != nil {
		handleErr(w, r, d.Logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, model.PageResult[model.Webhook]{
		Page: page.Page, PageSize: page.PageSize, Total: total, Data: hooks,
	})
}

// listDeliveries handles GET /webhooks/{id}/deliveries.
func (d *Deps) listDeliveries(w http.ResponseWriter, r *http.Request) {
	webhookID := mux.Vars(r)["id"]
	status := model.DeliveryStatus(r.URL.Query().Get("status"))
	page := database.NewPage(httputil.QueryInt(r, "page", 1), httputil.QueryInt(r, "page_size", 25))

	deliveries, total, err := d.Store.ListDeliveriesForWebhook(r.Context(), webhookID, status, page)
	if err != nil {
		handleErr(w, r, d.Logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, model.PageResult[model.WebhookDelivery]{
		Page: page.Page, PageSize: page.PageSize, Total: total, Data: deliveries,
	})
}
