// Package server exposes the event store over the HTTP key/value
// contract clients sync against: one event collection per list identity,
// fetched whole and appended to one event at a time.
package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/daylists/internal/changelog"
	"github.com/louisbranch/daylists/internal/platform/errors"
	"github.com/louisbranch/daylists/internal/storage"
)

const tracerName = "github.com/louisbranch/daylists/internal/server"

// Server handles store service requests.
type Server struct {
	store  storage.EventStore
	tracer trace.Tracer
}

// New creates a server over the given event store.
func New(store storage.EventStore) *Server {
	return &Server{
		store:  store,
		tracer: otel.Tracer(tracerName),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Route("/v1/lists/{owner}/{kind}/{day}", func(r chi.Router) {
		r.Get("/events", s.handleFetchEvents)
		r.Post("/events", s.handleAppendEvent)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleFetchEvents(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "store.fetch_events")
	defer span.End()

	list, err := listFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	span.SetAttributes(attribute.String("list.key", list.Key()))

	events, err := s.store.Fetch(ctx, list)
	if err != nil {
		log.Printf("fetch events %s: %v", list.Key(), err)
		writeError(w, errors.Wrap(errors.CodeUnknown, "fetch events", err))
		return
	}

	body, err := changelog.MarshalEvents(events)
	if err != nil {
		writeError(w, errors.Wrap(errors.CodeUnknown, "marshal events", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (s *Server) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "store.append_event")
	defer span.End()

	list, err := listFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	span.SetAttributes(attribute.String("list.key", list.Key()))

	var fields map[string]string
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, errors.Wrap(errors.CodeEventMalformed, "decode event body", err))
		return
	}
	evt, err := changelog.Decode(fields)
	if err != nil {
		writeError(w, errors.Wrap(errors.CodeEventMalformed, "decode event fields", err))
		return
	}
	if err := evt.Validate(); err != nil {
		writeError(w, errors.Wrap(errors.CodeEventInvalidOp, "validate event", err))
		return
	}

	if err := s.store.Append(ctx, list, evt); err != nil {
		log.Printf("append event %s: %v", list.Key(), err)
		writeError(w, errors.Wrap(errors.CodeUnknown, "append event", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func listFromRequest(r *http.Request) (changelog.ListID, error) {
	list := changelog.ListID{
		Owner: chi.URLParam(r, "owner"),
		Kind:  changelog.Kind(chi.URLParam(r, "kind")),
		Day:   chi.URLParam(r, "day"),
	}
	if err := list.Validate(); err != nil {
		return changelog.ListID{}, errors.Wrap(errors.CodeListInvalidKind, "validate list identity", err)
	}
	return list, nil
}

func writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	http.Error(w, err.Error(), status)
}
