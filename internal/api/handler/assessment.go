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

type Assessment struct {
	svc *core.AssessmentService
}

func NewAssessment(svc *core.AssessmentService) *Assessment {
	return &Assessment{svc: svc}
}

func (h *Assessment) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateAssessment
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.svc.Create(r.Context(), mw.GetUserID(r.Context()), req.AgentID, req.Paths)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, a)
}

func (h *Assessment) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.svc.GetOwned(r.Context(), mw.GetUserID(r.Context()), id)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, a)
}

// Cost projects monthly storage cost from a completed assessment's totals.
func (h *Assessment) Cost(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.svc.GetOwned(r.Context(), mw.GetUserID(r.Context()), id)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	if a.Status != model.AssessmentStatusCompleted {
		response.WriteError(w, http.StatusBadRequest, "assessment has not completed")
		return
	}

	storageClass := r.URL.Query().Get("storage_class")
	if storageClass == "" {
		storageClass = core.StorageClassStandard
	}

	estimate, err := core.EstimateCost(a.TotalBytes, a.TotalFiles, storageClass)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, estimate)
}
