package core

import (
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/backhaul/internal/config"
	"github.com/edvin/backhaul/internal/events"
	"github.com/edvin/backhaul/internal/storage"
)

// TaskQueue is the temporal task queue shared by the worker and the API.
const TaskQueue = "backhaul-tasks"

// Services bundles one instance of every domain service. Constructed once at
// process start and passed by reference to handlers; no global state.
type Services struct {
	User         *UserService
	APIKey       *APIKeyService
	Agent        *AgentService
	BackupConfig *BackupConfigService
	BackupLog    *BackupLogService
	Upload       *UploadService
	Verify       *VerificationService
	Assessment   *AssessmentService
	Alert        *AlertService
	Dashboard    *DashboardService
	Search       *SearchService
}

func NewServices(db DB, store storage.ObjectStore, hub *events.Hub, tc temporalclient.Client, cfg *config.Config) *Services {
	alert := NewAlertService(db)
	upload := NewUploadService(store, cfg.UploadCredentialTTL)
	verify := NewVerificationService(db, store)
	logs := NewBackupLogService(db, upload, verify, alert, hub)

	return &Services{
		User:         NewUserService(db),
		APIKey:       NewAPIKeyService(db),
		Agent:        NewAgentService(db),
		BackupConfig: NewBackupConfigService(db, logs, tc, hub),
		BackupLog:    logs,
		Upload:       upload,
		Verify:       verify,
		Assessment:   NewAssessmentService(db),
		Alert:        alert,
		Dashboard:    NewDashboardService(db),
		Search:       NewSearchService(db),
	}
}
