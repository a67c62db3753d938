package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/backhaul/internal/api/middleware"
	"github.com/edvin/backhaul/internal/api/request"
	"github.com/edvin/backhaul/internal/api/response"
	"github.com/edvin/backhaul/internal/core"
)

type BackupLog struct {
	svc    *core.BackupLogService
	verify *core.VerificationService
}

func NewBackupLog(svc *core.BackupLogService, verify *core.VerificationService) *BackupLog {
	return &BackupLog{svc: svc, verify: verify}
}

func (h *BackupLog) List(w http.ResponseWriter, r *http.Request) {
	pg := request.ParsePagination(r)

	logs, hasMore, err := h.svc.ListByUser(r.Context(), mw.GetUserID(r.Context()), pg.Limit, pg.Cursor)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}

	var nextCursor string
	if hasMore && len(logs) > 0 {
		nextCursor = logs[len(logs)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, logs, nextCursor, hasMore)
}

func (h *BackupLog) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	log, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	if log.UserID != mw.GetUserID(r.Context()) {
		response.WriteError(w, http.StatusForbidden, "backup log belongs to another user")
		return
	}
	response.WriteJSON(w, http.StatusOK, log)
}

// Reconcile compares this user's completed logs against storage reality.
func (h *BackupLog) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.verify.Reconcile(r.Context(), mw.GetUserID(r.Context()))
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, report)
}

// MarkFailed downgrades completed logs whose artifacts turned out missing.
func (h *BackupLog) MarkFailed(w http.ResponseWriter, r *http.Request) {
	var req request.MarkFailed
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	downgraded, err := h.verify.MarkUnverifiedAsFailed(r.Context(), req.LogIDs)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]int64{"downgraded": downgraded})
}

// Timeout sweeps requested and running logs older than the window.
func (h *BackupLog) Timeout(w http.ResponseWriter, r *http.Request) {
	var req request.TimeoutBackups
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	timedOut, err := h.svc.TimeoutStale(r.Context(), req.ThresholdMinutes)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]int64{"timed_out": timedOut})
}
