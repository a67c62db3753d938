package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	mw "github.com/edvin/backhaul/internal/api/middleware"
	"github.com/edvin/backhaul/internal/api/request"
	"github.com/edvin/backhaul/internal/api/response"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/model"
)

// Daemon serves the agent-facing surface. Every handler trusts the agent
// identity resolved by the bearer-token middleware and nothing else.
type Daemon struct {
	agents      *core.AgentService
	configs     *core.BackupConfigService
	logs        *core.BackupLogService
	assessments *core.AssessmentService
	uploads     *core.UploadService
	logger      zerolog.Logger
}

func NewDaemon(
	agents *core.AgentService,
	configs *core.BackupConfigService,
	logs *core.BackupLogService,
	assessments *core.AssessmentService,
	uploads *core.UploadService,
	logger zerolog.Logger,
) *Daemon {
	return &Daemon{
		agents:      agents,
		configs:     configs,
		logs:        logs,
		assessments: assessments,
		uploads:     uploads,
		logger:      logger,
	}
}

func (h *Daemon) Heartbeat(w http.ResponseWriter, r *http.Request) {
	agent := mw.GetAgent(r.Context())

	var req request.Heartbeat
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.agents.Heartbeat(r.Context(), agent.ID, req.Version, req.Platform); err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// polledConfig is one assignment in a poll response: the config itself, its
// open log if a run is in flight, and a fresh upload credential when the
// method streams directly to storage.
type polledConfig struct {
	Config     *model.BackupConfig    `json:"config"`
	RunPending bool                   `json:"run_pending"`
	OpenLog    *model.BackupLog       `json:"open_log,omitempty"`
	Credential *core.UploadCredential `json:"credential,omitempty"`
}

// Configs returns the agent's current assignments. The requested_at marker is
// reported but never cleared here; only a terminal run clears it.
func (h *Daemon) Configs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agent := mw.GetAgent(ctx)

	assigned, err := h.configs.ListAssignedToAgent(ctx, agent.ID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}

	polled := make([]polledConfig, 0, len(assigned))
	for i := range assigned {
		cfg := &assigned[i]
		pc := polledConfig{Config: cfg, RunPending: cfg.RequestedAt != nil}

		open, err := h.logs.GetOpenForConfig(ctx, cfg.ID)
		if err != nil {
			response.WriteServiceError(w, r, err)
			return
		}
		pc.OpenLog = open

		if cfg.DirectUpload() {
			cred, err := h.uploads.IssueFor(ctx, cfg.UserID, agent.ID, cfg.ID, "stream")
			if err != nil {
				h.logger.Error().Err(err).Str("config_id", cfg.ID).Msg("issue poll credential")
			} else {
				pc.Credential = cred
			}
		}
		polled = append(polled, pc)
	}
	response.WriteJSON(w, http.StatusOK, polled)
}

func (h *Daemon) StartBackup(w http.ResponseWriter, r *http.Request) {
	agent := mw.GetAgent(r.Context())

	var req request.StartBackup
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.logs.Start(r.Context(), agent, req.ConfigID, req.Filename)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, result)
}

func (h *Daemon) CompleteBackup(w http.ResponseWriter, r *http.Request) {
	agent := mw.GetAgent(r.Context())

	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.CompleteBackup
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	log, err := h.logs.Complete(r.Context(), agent, id, core.CompletionReport{
		Status:           req.Status,
		FilesProcessed:   req.FilesProcessed,
		FilesSkipped:     req.FilesSkipped,
		TotalBytes:       req.TotalBytes,
		BytesTransferred: req.BytesTransferred,
		Errors:           req.ModelErrors(),
	})
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, log)
}

func (h *Daemon) Assessments(w http.ResponseWriter, r *http.Request) {
	agent := mw.GetAgent(r.Context())

	pending, err := h.assessments.PollPending(r.Context(), agent.ID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, pending)
}

func (h *Daemon) ReportAssessment(w http.ResponseWriter, r *http.Request) {
	agent := mw.GetAgent(r.Context())

	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.ReportAssessment
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.assessments.Report(r.Context(), agent, id, core.AssessmentResult{
		TotalBytes: req.TotalBytes,
		TotalFiles: req.TotalFiles,
		Error:      req.Error,
	})
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, a)
}
