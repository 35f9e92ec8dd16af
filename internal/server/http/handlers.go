package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/helixir/observe/internal/exporter"
	"github.com/helixir/observe/internal/observe"
	"github.com/helixir/observe/internal/opcontext"
)

const maxRequestBodySize = 1 << 20

var validate = validator.New()

type createObservationRequest struct {
	Name   string         `json:"name" validate:"required,max=128"`
	Scope  string         `json:"scope" validate:"max=128"`
	Source string         `json:"source" validate:"max=256"`
	Data   map[string]any `json:"data"`
	Events []any          `json:"events" validate:"max=1000"`
	// Error, when set, makes the observed operation fail with this message.
	Error string `json:"error"`
}

type observationResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type exporterResponse struct {
	Name  string   `json:"name"`
	Hooks []string `json:"hooks"`
}

type listExportersResponse struct {
	Exporters []exporterResponse `json:"exporters"`
}

// errObservationFailed is returned by the observed operation when the request
// asks for a failure.
var errObservationFailed = errors.New("observation failed")

// createObservation runs a named operation nested inside the request scope,
// seeded with the given data, and reports how it settled.
func (s *Server) createObservation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req createObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	var id string
	cfg := observe.Config{Name: req.Name, Scope: req.Scope, Source: req.Source, Initial: req.Data}
	err := s.observer.ObserveWith(r.Context(), cfg, func(ctx context.Context) error {
		id = opcontext.Current(ctx).ID
		for _, ev := range req.Events {
			if err := opcontext.Push(ctx, "events", ev); err != nil {
				return err
			}
		}
		if req.Error != "" {
			return errors.Join(errObservationFailed, errors.New(req.Error))
		}
		return nil
	})

	// Link the nested observation from the request scope.
	if mergeErr := opcontext.Merge(r.Context(), "observation", map[string]any{"id": id, "name": req.Name}); mergeErr != nil {
		s.logger.Warn().Err(mergeErr).Msg("request scope missing")
	}

	resp := observationResponse{ID: id, Name: req.Name, Status: "succeeded"}
	if err != nil {
		resp.Status = "failed"
		resp.Error = req.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

// listExporters returns the registered exporters in order with the hooks
// each implements.
func (s *Server) listExporters(w http.ResponseWriter, _ *http.Request) {
	exporters := s.state.Exporters()
	resp := listExportersResponse{Exporters: make([]exporterResponse, 0, len(exporters))}
	for _, e := range exporters {
		resp.Exporters = append(resp.Exporters, exporterResponse{Name: e.Name(), Hooks: hooksOf(e)})
	}
	writeJSON(w, http.StatusOK, resp)
}

// unregisterExporter removes an exporter by name.
func (s *Server) unregisterExporter(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	found := false
	for _, e := range s.state.Exporters() {
		if e.Name() == name {
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "exporter not found")
		return
	}

	s.state.Unregister(name)
	_ = opcontext.Set(r.Context(), "exporter.unregistered", name)
	s.logger.Info().Str("exporter", name).Msg("exporter unregistered")
	w.WriteHeader(http.StatusNoContent)
}

func hooksOf(e exporter.Exporter) []string {
	hooks := []string{string(observe.PhaseSuccess)}
	if _, ok := e.(exporter.BeforeHook); ok {
		hooks = append(hooks, string(observe.PhaseBefore))
	}
	if _, ok := e.(exporter.FailureExporter); ok {
		hooks = append(hooks, string(observe.PhaseFailure))
	}
	if _, ok := e.(exporter.AfterHook); ok {
		hooks = append(hooks, string(observe.PhaseAfter))
	}
	if _, ok := e.(exporter.ErrorHook); ok {
		hooks = append(hooks, string(observe.PhaseOnError))
	}
	return hooks
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+" "+fe.Tag())
	}
	return "invalid fields: " + strings.Join(fields, ", ")
}
