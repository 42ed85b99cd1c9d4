package mcptools

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/fieldbridge/fieldbridge/internal/logging"
)

const maxBodyBytes = 256 * 1024

// Server exposes the registry over HTTP (spec.md §4.7): POST
// /mcp/tools/{tool_name} validates params against the declared schema and
// dispatches; GET /mcp/tools lists every tool with its schema; GET /health
// is a liveness probe.
type Server struct {
	registry *Registry
	logger   *logging.Logger
}

// NewServer builds a Server over the given registry.
func NewServer(registry *Registry, logger *logging.Logger) *Server {
	return &Server{registry: registry, logger: logger}
}

// Mount registers the server's routes on mux.
func (s *Server) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/mcp/tools", s.handleList)
	mux.HandleFunc("/mcp/tools/", s.handleCall)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"status": "ok"}})
}

type toolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is accepted")
		return
	}
	tools := s.registry.List()
	descriptors := make([]toolDescriptor, 0, len(tools))
	for _, t := range tools {
		descriptors = append(descriptors, toolDescriptor{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	s.respond(w, http.StatusOK, envelope{Success: true, Data: descriptors})
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is accepted")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/mcp/tools/")
	if name == "" {
		s.respondError(w, http.StatusNotFound, "not_found", "tool_name required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "bad_request", "reading body: "+err.Error())
		return
	}

	result, err := s.registry.Dispatch(r.Context(), name, body)
	if err != nil {
		var valErr *ValidationError
		if errors.As(err, &valErr) {
			s.respondError(w, http.StatusBadRequest, "invalid_params", valErr.Error())
			return
		}
		if s.logger != nil {
			s.logger.Error(r.Context(), "tool dispatch failed", "tool", name, "error", err.Error())
		}
		s.respondError(w, http.StatusInternalServerError, "tool_failed", err.Error())
		return
	}

	s.respond(w, http.StatusOK, envelope{Success: true, Data: result})
}

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *errorDTO `json:"error,omitempty"`
}

type errorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respond(w, status, envelope{Success: false, Error: &errorDTO{Code: code, Message: message}})
}

func (s *Server) respond(w http.ResponseWriter, status int, payload envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
