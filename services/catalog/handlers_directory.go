package catalog

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (a *API) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	items, err := a.repo.Capabilities(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []Capability{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"capabilities": items})
}

func (a *API) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	capabilityID := strings.TrimSpace(chi.URLParam(r, "capabilityID"))

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	items, err := a.repo.Deployments(ctx, capabilityID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []Deployment{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"deployments": items})
}

func (a *API) handleGetVocabulary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	v, err := a.repo.Vocabulary(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (a *API) handleAddVocabulary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentType        string   `json:"agent_type"`
		ValueProposition string   `json:"value_proposition"`
		Tags             []string `json:"tags"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	var entries []VocabularyEntry
	seen := make(map[VocabularyEntry]bool)
	add := func(kind, value string) {
		e := VocabularyEntry{Kind: kind, Value: strings.TrimSpace(value)}
		if e.Value == "" || seen[e] {
			return
		}
		seen[e] = true
		entries = append(entries, e)
	}
	add(KindAgentType, req.AgentType)
	add(KindValueProposition, req.ValueProposition)
	for _, tag := range req.Tags {
		add(KindTag, tag)
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	if err := a.repo.AddVocabulary(ctx, entries); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
