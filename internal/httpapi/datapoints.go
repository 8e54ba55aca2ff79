package httpapi

import (
	"net/http"

	coreerrors "github.com/stefanposs/webmacs/infrastructure/errors"
	"github.com/stefanposs/webmacs/infrastructure/httputil"
	"github.com/stefanposs/webmacs/internal/ingest"
)

type datapointIn struct {
	Value         float64 `json:"value"`
	EventPublicID string  `json:"event_public_id"`
}

type batchRequest struct {
	Datapoints []datapointIn `json:"datapoints"`
}

type batchResponse struct {
	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	Triggered int `json:"triggered"`
}

// ingestOne handles POST /datapoints: a single-reading convenience
// wrapper around the batch pipeline.
func (d *Deps) ingestOne(w http.ResponseWriter, r *http.Request) {
	var in datapointIn
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	d.runBatch(w, r, []datapointIn{in})
}

// ingestBatch handles POST /datapoints/batch. Rejects with 422 if the
// batch exceeds MaxBatchSize (§6, S1/S2).
func (d *Deps) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Datapoints) > d.MaxBatchSize {
		handleErr(w, r, d.Logger, coreerrors.InvalidInput(
			"datapoints", "batch exceeds the maximum of "+itoaBatch(d.MaxBatchSize)+" datapoints"))
		return
	}
	d.runBatch(w, r, req.Datapoints)
}

func (d *Deps) runBatch(w http.ResponseWriter, r *http.Request, in []datapointIn) {
	inputs := make([]ingest.DatapointInput, 0, len(in))
	for _, dp := range in {
		inputs = append(inputs, ingest.DatapointInput{Value: dp.Value, EventPublicID: dp.EventPublicID})
	}

	result, err := d.Pipeline.IngestBatch(r.Context(), inputs)
	if err != nil {
		handleErr(w, r, d.Logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, batchResponse{
		Accepted:  len(result.Accepted),
		Rejected:  result.Rejected,
		Triggered: result.Triggered,
	})
}

// latestDatapoints handles GET /datapoints/latest.
func (d *Deps) latestDatapoints(w http.ResponseWriter, r *http.Request) {
	rows, err := d.Store.ListLatestDatapoints(r.Context())
	if err != nil {
		handleErr(w, r, d.Logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": rows})
}

func itoaBatch(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	buf := [20]byte{}
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
