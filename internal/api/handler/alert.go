package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/backhaul/internal/api/middleware"
	"github.com/edvin/backhaul/internal/api/request"
	"github.com/edvin/backhaul/internal/api/response"
	"github.com/edvin/backhaul/internal/core"
)

type Alert struct {
	svc *core.AlertService
}

func NewAlert(svc *core.AlertService) *Alert {
	return &Alert{svc: svc}
}

func (h *Alert) List(w http.ResponseWriter, r *http.Request) {
	unacknowledgedOnly := r.URL.Query().Get("unacknowledged") == "true"

	alerts, err := h.svc.ListByUser(r.Context(), mw.GetUserID(r.Context()), unacknowledgedOnly)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, alerts)
}

func (h *Alert) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Acknowledge(r.Context(), mw.GetUserID(r.Context()), id); err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]bool{"acknowledged": true})
}
