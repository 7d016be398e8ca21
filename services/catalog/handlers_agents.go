package catalog

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"agentdock/pkg/bus"
)

func (a *API) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := agentIDParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	agent, err := a.repo.Agent(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		respondError(w, http.StatusNotFound, errors.New("agent not found"))
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (a *API) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxUploadBytes)
	form, err := parseAgentForm(r, a.config.MaxUploadBytes)
	if err != nil {
		respondFormError(w, err)
		return
	}
	userID := form.callerID(r)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, errors.New("user identity is required"))
		return
	}
	agent, err := form.agent()
	if err != nil {
		respondFormError(w, err)
		return
	}

	now := a.now()
	agent.ID = uuid.New()
	agent.UserID = userID
	agent.CreatedAt = now
	agent.UpdatedAt = now

	ctx, cancel := context.WithTimeout(r.Context(), uploadTimeout)
	defer cancel()

	uploads, readmeURL, err := a.storeAttachments(ctx, agent.ID, form)
	if err != nil {
		respondError(w, http.StatusBadGateway, err)
		return
	}
	agent.Documentation.ReadmeURL = readmeURL

	if err := a.repo.CreateAgent(ctx, agent, uploads); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	a.log.Info().Str("agent_id", agent.ID.String()).Str("user_id", userID).Int("uploads", len(uploads)).Msg("agent created")

	a.publish(ctx, bus.SubjectAgentCreated, bus.AgentEvent{
		AgentID:   agent.ID.String(),
		UserID:    userID,
		AgentName: agent.Name,
		Record:    agent.snapshot(),
		At:        now,
	})
	respondJSON(w, http.StatusCreated, map[string]any{"id": agent.ID.String()})
}

func (a *API) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := agentIDParam(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxUploadBytes)
	form, err := parseAgentForm(r, a.config.MaxUploadBytes)
	if err != nil {
		respondFormError(w, err)
		return
	}
	userID := form.callerID(r)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, errors.New("user identity is required"))
		return
	}
	agent, err := form.agent()
	if err != nil {
		respondFormError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), uploadTimeout)
	defer cancel()

	existing, err := a.repo.Agent(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		respondError(w, http.StatusNotFound, errors.New("agent not found"))
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if existing.UserID != "" && existing.UserID != userID {
		respondError(w, http.StatusForbidden, errors.New("agent belongs to another user"))
		return
	}

	agent.ID = id
	agent.UserID = existing.UserID
	agent.CreatedAt = existing.CreatedAt
	agent.UpdatedAt = a.now()

	uploads, readmeURL, err := a.storeAttachments(ctx, id, form)
	if err != nil {
		respondError(w, http.StatusBadGateway, err)
		return
	}
	agent.Documentation.ReadmeURL = existing.Documentation.ReadmeURL
	if readmeURL != "" {
		agent.Documentation.ReadmeURL = readmeURL
	}

	previous, err := a.repo.UpdateAgent(ctx, agent, uploads)
	switch {
	case errors.Is(err, ErrNotFound):
		respondError(w, http.StatusNotFound, errors.New("agent not found"))
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	a.log.Info().Str("agent_id", id.String()).Str("user_id", userID).Int("uploads", len(uploads)).Msg("agent updated")

	a.publish(ctx, bus.SubjectAgentUpdated, bus.AgentEvent{
		AgentID:   id.String(),
		UserID:    userID,
		AgentName: agent.Name,
		Record:    agent.snapshot(),
		Previous:  previous.snapshot(),
		At:        agent.UpdatedAt,
	})
	respondJSON(w, http.StatusOK, map[string]any{"id": id.String()})
}

func agentIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "agentID")))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid agent id"))
		return uuid.UUID{}, false
	}
	return id, true
}

func respondFormError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, errAgentNameRequired):
		respondError(w, http.StatusUnprocessableEntity, err)
	case errors.As(err, &tooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, err)
	default:
		respondError(w, http.StatusBadRequest, err)
	}
}
