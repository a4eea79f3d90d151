package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/tiercade/tiercade/errs"
	"github.com/tiercade/tiercade/registry"
	"github.com/tiercade/tiercade/types"
)

// deployRequestBody is the wire shape of POST /api/functions and
// POST /api/cascades (spec §6, fields as in §3 per function type).
type deployRequestBody struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Version        string   `json:"version"`
	Owner          string   `json:"owner"`
	ScopesRequired []string `json:"scopesRequired"`

	Code       *codeConfigBody       `json:"code"`
	Generative *generativeConfigBody `json:"generative"`
	Agentic    *agenticConfigBody    `json:"agentic"`
	Cascade    *cascadeConfigBody    `json:"cascade"`

	Source     string `json:"source"`
	Language   string `json:"language"`
	EntryPoint string `json:"entryPoint"`
}

type codeConfigBody struct {
	Language   string `json:"language"`
	EntryPoint string `json:"entryPoint"`
	TimeoutMs  int64  `json:"timeoutMs"`
}

type generativeConfigBody struct {
	Model              string  `json:"model"`
	SystemPrompt       string  `json:"systemPrompt"`
	UserPromptTemplate string  `json:"userPromptTemplate"`
	OutputSchema       string  `json:"outputSchema"`
	Temperature        float64 `json:"temperature"`
	MaxTokens          int     `json:"maxTokens"`
	CacheEnabled       bool    `json:"cacheEnabled"`
	CacheTTLMs         int64   `json:"cacheTtlMs"`
}

type agenticConfigBody struct {
	Model                    string `json:"model"`
	SystemPrompt             string `json:"systemPrompt"`
	Goal                     string `json:"goal"`
	MaxIterations            int    `json:"maxIterations"`
	MaxToolCallsPerIteration int    `json:"maxToolCallsPerIteration"`
	EnableReasoning          bool   `json:"enableReasoning"`
	EnableMemory             bool   `json:"enableMemory"`
	OutputSchema             string `json:"outputSchema"`
	TimeoutMs                int64  `json:"timeoutMs"`
}

type cascadeConfigBody struct {
	Tiers          []string          `json:"tiers"`
	StartTier      string            `json:"startTier"`
	SkipTiers      []string          `json:"skipTiers"`
	TotalTimeoutMs int64             `json:"totalTimeoutMs"`
	TierFunctions  map[string]string `json:"tierFunctions"`
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var body deployRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.New(errs.KindSchemaValidation, "invalid request body: %v", err))
		return
	}

	req := registry.DeployRequest{
		ID:             body.ID,
		Type:           types.FunctionType(body.Type),
		Version:        body.Version,
		Owner:          body.Owner,
		ScopesRequired: body.ScopesRequired,
		Source:         []byte(body.Source),
		Language:       body.Language,
		EntryPoint:     body.EntryPoint,
	}
	if body.Code != nil {
		req.Code = &types.CodeConfig{Language: body.Code.Language, EntryPoint: body.Code.EntryPoint, Timeout: time.Duration(body.Code.TimeoutMs) * time.Millisecond}
	}
	if body.Generative != nil {
		req.Generative = &types.GenerativeConfig{
			Model:              body.Generative.Model,
			SystemPrompt:       body.Generative.SystemPrompt,
			UserPromptTemplate: body.Generative.UserPromptTemplate,
			OutputSchema:       []byte(body.Generative.OutputSchema),
			Temperature:        body.Generative.Temperature,
			MaxTokens:          body.Generative.MaxTokens,
			CacheEnabled:       body.Generative.CacheEnabled,
			CacheTTL:           time.Duration(body.Generative.CacheTTLMs) * time.Millisecond,
		}
	}
	if body.Agentic != nil {
		req.Agentic = &types.AgenticConfig{
			Model:                    body.Agentic.Model,
			SystemPrompt:             body.Agentic.SystemPrompt,
			Goal:                     body.Agentic.Goal,
			MaxIterations:            body.Agentic.MaxIterations,
			MaxToolCallsPerIteration: body.Agentic.MaxToolCallsPerIteration,
			EnableReasoning:          body.Agentic.EnableReasoning,
			EnableMemory:             body.Agentic.EnableMemory,
			OutputSchema:             []byte(body.Agentic.OutputSchema),
			Timeout:                  time.Duration(body.Agentic.TimeoutMs) * time.Millisecond,
		}
	}
	if body.Cascade != nil {
		tiers := make([]types.FunctionType, len(body.Cascade.Tiers))
		for i, t := range body.Cascade.Tiers {
			tiers[i] = types.FunctionType(t)
		}
		skip := make([]types.FunctionType, len(body.Cascade.SkipTiers))
		for i, t := range body.Cascade.SkipTiers {
			skip[i] = types.FunctionType(t)
		}
		tierFns := make(map[types.FunctionType]string, len(body.Cascade.TierFunctions))
		for k, v := range body.Cascade.TierFunctions {
			tierFns[types.FunctionType(k)] = v
		}
		req.Cascade = &types.CascadeConfig{
			Tiers:         tiers,
			StartTier:     types.FunctionType(body.Cascade.StartTier),
			SkipTiers:     skip,
			TotalTimeout:  time.Duration(body.Cascade.TotalTimeoutMs) * time.Millisecond,
			TierFunctions: tierFns,
		}
	}

	meta, err := s.Registry.Deploy(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metadataBody(meta))
}

func (s *Server) handleGetFunction(w http.ResponseWriter, r *http.Request) {
	meta, err := s.Registry.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metadataBody(meta))
}

func (s *Server) handleDeleteFunction(w http.ResponseWriter, r *http.Request) {
	if err := s.Registry.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.New(errs.KindSchemaValidation, "invalid request body: %v", err))
		return
	}
	meta, err := s.Registry.Rollback(r.Context(), r.PathValue("id"), body.Version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metadataBody(meta))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			since = t
		}
	}
	entries, err := s.Logs.List(r.Context(), r.PathValue("id"), since, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		out[i] = map[string]any{"timestamp": e.Timestamp, "level": e.Level, "message": e.Message}
	}
	writeJSON(w, http.StatusOK, out)
}

func metadataBody(meta *types.FunctionMetadata) map[string]any {
	return map[string]any{
		"id":             meta.ID,
		"type":           meta.Type,
		"activeVersion":  meta.ActiveVersion,
		"versions":       meta.Versions,
		"owner":          meta.Owner,
		"scopesRequired": meta.ScopesRequired,
		"createdAt":      meta.CreatedAt,
		"updatedAt":      meta.UpdatedAt,
	}
}
