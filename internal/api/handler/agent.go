package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/backhaul/internal/api/middleware"
	"github.com/edvin/backhaul/internal/api/request"
	"github.com/edvin/backhaul/internal/api/response"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/model"
)

type Agent struct {
	svc *core.AgentService
}

func NewAgent(svc *core.AgentService) *Agent {
	return &Agent{svc: svc}
}

// registeredAgent carries the one-time raw token alongside the agent.
type registeredAgent struct {
	Agent *model.Agent `json:"agent"`
	Token string       `json:"token"`
}

// Register creates an agent for the calling user. The response is the only
// place the raw token ever appears.
func (h *Agent) Register(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterAgent
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	agent, token, err := h.svc.Register(r.Context(), mw.GetUserID(r.Context()), req.Name, req.Platform)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, registeredAgent{Agent: agent, Token: token})
}

func (h *Agent) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.svc.ListByUser(r.Context(), mw.GetUserID(r.Context()))
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, agents)
}

func (h *Agent) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	agent, err := h.svc.GetOwned(r.Context(), mw.GetUserID(r.Context()), id)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, agent)
}

// Delete removes an agent. Configs still assigned to it fall back to server
// mode before the row goes away.
func (h *Agent) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Delete(r.Context(), mw.GetUserID(r.Context()), id); err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, nil)
}
