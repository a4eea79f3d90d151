// Package api wires the Registry and the four function executors to the
// HTTP surface described in spec §6, with the §4.7 auth gate applied to
// every non-public route and the rate limiter applied to every route.
package api

import (
	"net/http"

	"github.com/tiercade/tiercade/execstore"
	"github.com/tiercade/tiercade/logstore"
	"github.com/tiercade/tiercade/registry"
	"github.com/tiercade/tiercade/runtime/agentexec"
	"github.com/tiercade/tiercade/runtime/auth"
	"github.com/tiercade/tiercade/runtime/cascade"
	"github.com/tiercade/tiercade/runtime/codeexec"
	"github.com/tiercade/tiercade/runtime/genexec"
	"github.com/tiercade/tiercade/runtime/ratelimit"
	"github.com/tiercade/tiercade/telemetry"
)

// Server holds every dependency the HTTP handlers need.
type Server struct {
	Registry *registry.Registry
	Code     *codeexec.Executor
	Gen      *genexec.Executor
	Agent    *agentexec.Executor
	Cascade  *cascade.Executor
	Logs     logstore.Store
	Execs    execstore.Store
	Gate     *auth.Gate
	Limiter  ratelimit.Limiter
	Logger   telemetry.Logger
}

// PublicPaths never require a credential (spec §6 "Liveness; public").
// Passed to auth.NewGate by cmd/server when constructing the Gate.
var PublicPaths = []string{"/health", "/", "/api/status"}

// Routes builds the full handler, with auth applied to every route except
// PublicPaths and rate limiting applied to every route.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleHealth)

	mux.HandleFunc("POST /api/functions", s.handleDeploy)
	mux.HandleFunc("GET /api/functions/{id}", s.handleGetFunction)
	mux.HandleFunc("DELETE /api/functions/{id}", s.handleDeleteFunction)
	mux.HandleFunc("POST /api/functions/{id}/rollback", s.handleRollback)
	mux.HandleFunc("GET /api/functions/{id}/logs", s.handleLogs)
	mux.HandleFunc("POST /functions/{id}/invoke", s.handleInvoke)

	mux.HandleFunc("POST /api/cascades", s.handleDeploy)
	mux.HandleFunc("POST /cascades/{id}/invoke", s.handleCascadeInvoke)
	mux.HandleFunc("GET /cascades/{id}/executions/{executionId}", s.handleGetExecution)

	var handler http.Handler = mux
	if s.Limiter != nil {
		handler = ratelimit.Middleware(s.Limiter, principalOrRemoteKey)(handler)
	}
	if s.Gate != nil {
		handler = s.Gate.Middleware()(handler)
	}
	return handler
}

// principalOrRemoteKey runs before the mux has matched a pattern, so the
// request path, which carries the function id, stands in for the id.
func principalOrRemoteKey(r *http.Request) string {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		return ratelimit.Key(p.ID, r.URL.Path)
	}
	return ratelimit.Key("anonymous", r.RemoteAddr)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
