package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/stefanposs/webmacs/internal/ingest"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	controllerTopic = "controller"
	frontendTopic   = "frontend"
)

// controllerChannel handles the persistent bidirectional telemetry
// channel (§4.G). Auth is a bearer token passed as a query param at
// handshake, since a websocket upgrade request cannot carry an
// Authorization header in every client runtime.
func (d *Deps) controllerChannel(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	if _, err := d.Verifier.Resolve(r.Context(), token); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.Logger.WithContext(r.Context()).WithError(err).Warn("controller channel upgrade failed")
		return
	}

	sub := d.Hub.Attach(controllerTopic, conn)
	defer d.Hub.Detach(controllerTopic, sub)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			d.Logger.WithContext(r.Context()).WithError(err).Info("controller channel disconnected")
			return
		}

		var req batchRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			d.Logger.WithContext(r.Context()).WithField("raw", string(msg)).Warn("controller channel: discarding unparseable frame")
			continue
		}
		if len(req.Datapoints) == 0 {
			continue
		}
		if len(req.Datapoints) > d.MaxBatchSize {
			d.Logger.WithContext(r.Context()).WithField("count", len(req.Datapoints)).Warn("controller channel: discarding frame over the batch size limit")
			continue
		}

		inputs := make([]ingest.DatapointInput, 0, len(req.Datapoints))
		for _, dp := range req.Datapoints {
			inputs = append(inputs, ingest.DatapointInput{Value: dp.Value, EventPublicID: dp.EventPublicID})
		}

		result, err := d.Pipeline.IngestBatch(r.Context(), inputs)
		if err != nil {
			d.Logger.WithContext(r.Context()).WithError(err).Warn("controller channel: ingestion failed")
			continue
		}
		d.Hub.Broadcast(frontendTopic, map[string]interface{}{
			"type":       "datapoints_batch",
			"datapoints": result.Accepted,
		})
	}
}

type frameIn struct {
	Type string `json:"type"`
}

// frontendChannel handles the frontend stream channel (§4.G): receive-only
// except for ping/pong keepalive frames. Authenticated the same way as the
// controller channel, by a bearer token passed as a query parameter at the
// handshake.
func (d *Deps) frontendChannel(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	if _, err := d.Verifier.Resolve(r.Context(), token); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.Logger.WithContext(r.Context()).WithError(err).Warn("frontend channel upgrade failed")
		return
	}

	sub := d.Hub.Attach(frontendTopic, conn)
	defer d.Hub.Detach(frontendTopic, sub)

	connected, _ := json.Marshal(map[string]string{"type": "connected"})
	if err := conn.WriteMessage(websocket.TextMessage, connected); err != nil {
		return
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var in frameIn
		if err := json.Unmarshal(msg, &in); err != nil {
			d.Logger.WithContext(r.Context()).WithField("raw", string(msg)).Warn("frontend channel: discarding unparseable frame")
			continue
		}
		if in.Type == "ping" {
			pong, _ := json.Marshal(map[string]string{"type": "pong"})
			_ = conn.WriteMessage(websocket.TextMessage, pong)
		}
	}
}
