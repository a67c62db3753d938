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

type BackupConfig struct {
	svc *core.BackupConfigService
}

func NewBackupConfig(svc *core.BackupConfigService) *BackupConfig {
	return &BackupConfig{svc: svc}
}

func sourcesFromRequest(in []request.BackupSource) []model.BackupSource {
	out := make([]model.BackupSource, len(in))
	for i, s := range in {
		out[i] = model.BackupSource{Path: s.Path, Include: s.Include, Exclude: s.Exclude}
	}
	return out
}

func (h *BackupConfig) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateBackupConfig
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	cfg := &model.BackupConfig{
		UserID:        mw.GetUserID(r.Context()),
		Name:          req.Name,
		ExecutionMode: req.ExecutionMode,
		AgentID:       req.AgentID,
		Sources:       sourcesFromRequest(req.Sources),
		Destination:   model.Destination{Bucket: req.DestBucket, Region: req.DestRegion, Prefix: req.DestPrefix},
		Schedule:      req.Schedule,
		Timezone:      req.Timezone,
		Method:        req.Method,
		Compression:   req.Compression,
		Encryption:    req.Encryption,
		RetentionDays: req.RetentionDays,
		Enabled:       enabled,
	}

	if err := h.svc.Create(r.Context(), cfg); err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, cfg)
}

func (h *BackupConfig) List(w http.ResponseWriter, r *http.Request) {
	configs, err := h.svc.ListByUser(r.Context(), mw.GetUserID(r.Context()))
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, configs)
}

func (h *BackupConfig) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg, err := h.svc.GetOwned(r.Context(), mw.GetUserID(r.Context()), id)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, cfg)
}

func (h *BackupConfig) Update(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.UpdateBackupConfig
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := &model.BackupConfig{
		ID:            id,
		UserID:        mw.GetUserID(r.Context()),
		Name:          req.Name,
		ExecutionMode: req.ExecutionMode,
		AgentID:       req.AgentID,
		Sources:       sourcesFromRequest(req.Sources),
		Destination:   model.Destination{Bucket: req.DestBucket, Region: req.DestRegion, Prefix: req.DestPrefix},
		Schedule:      req.Schedule,
		Timezone:      req.Timezone,
		Method:        req.Method,
		Compression:   req.Compression,
		Encryption:    req.Encryption,
		RetentionDays: req.RetentionDays,
		Enabled:       req.Enabled,
	}

	if err := h.svc.Update(r.Context(), cfg); err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, cfg)
}

// Delete removes a config. Its run history survives as orphaned logs.
func (h *BackupConfig) Delete(w http.ResponseWriter, r *http.Request) {
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

// Run requests an out-of-band execution. Agent mode answers with the
// requested log; server mode starts the workflow and answers with no body.
func (h *BackupConfig) Run(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	log, err := h.svc.RequestRun(r.Context(), mw.GetUserID(r.Context()), id)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, log)
}
