// Package httpapi exposes a small chi-routed control and debug surface
// over the dispatcher: liveness/readiness probes, a scheduler status
// snapshot, and manual control-event injection for dev and test runs.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mofa-org/stsd/internal/dispatcher"
	"github.com/mofa-org/stsd/internal/events"
	"github.com/mofa-org/stsd/internal/ingress"
	"github.com/mofa-org/stsd/internal/logging"
)

// resetRequest is the POST /v1/control/reset body. An absent question_id
// requests a global reset; a present one requests a selective reset.
type resetRequest struct {
	Verb       string  `json:"verb,omitempty"`
	QuestionID *string `json:"question_id,omitempty"`
}

// NewRouter constructs the control/debug HTTP router over d.
func NewRouter(d *dispatcher.Dispatcher) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			snap, err := d.Status(req.Context())
			if err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(snap); err != nil {
				log := logging.WithComponent("httpapi")
				log.Warn().Err(err).Msg("status encode failed")
			}
		})

		r.Post("/control/reset", func(w http.ResponseWriter, req *http.Request) {
			var body resetRequest
			if req.Body != nil && req.ContentLength != 0 {
				if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
					http.Error(w, "malformed body: "+err.Error(), http.StatusBadRequest)
					return
				}
			}
			verb := body.Verb
			if verb == "" {
				verb = string(events.VerbReset)
			}

			payload, err := json.Marshal(events.Control{
				Verb:          events.ControlVerb(verb),
				CorrelationID: body.QuestionID,
			})
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			d.Inject(ingress.RawEvent{Port: events.PortControl, Payload: payload})

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"accepted": true}`))
		})
	})

	return r
}
