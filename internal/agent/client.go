package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/model"
)

// Client talks to the agent surface of the coordination API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(baseURL, token string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With().Str("component", "api-client").Logger(),
	}
}

// envelope is the standard response wrapper on every endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// PolledConfig is one assignment in a poll response.
type PolledConfig struct {
	Config     *model.BackupConfig    `json:"config"`
	RunPending bool                   `json:"run_pending"`
	OpenLog    *model.BackupLog       `json:"open_log,omitempty"`
	Credential *core.UploadCredential `json:"credential,omitempty"`
}

// RegisteredAgent is the one-time registration response; Token is shown once.
type RegisteredAgent struct {
	Agent *model.Agent `json:"agent"`
	Token string       `json:"token"`
}

// Register creates an agent under the account owning the API key. This is
// the only call authenticated by API key instead of the agent token.
func (c *Client) Register(ctx context.Context, apiKey, name, platform string) (*RegisteredAgent, error) {
	payload := map[string]string{"name": name, "platform": platform}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/agents", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", apiKey)
	req.Header.Set("Content-Type", "application/json")

	var registered RegisteredAgent
	if err := c.do(req, &registered); err != nil {
		return nil, err
	}
	return &registered, nil
}

// Heartbeat reports liveness and the running version.
func (c *Client) Heartbeat(ctx context.Context, version, platform string) error {
	return c.post(ctx, "/agent/v1/heartbeat", map[string]string{
		"version":  version,
		"platform": platform,
	}, nil)
}

// PollConfigs fetches the agent's current assignments.
func (c *Client) PollConfigs(ctx context.Context) ([]PolledConfig, error) {
	var configs []PolledConfig
	if err := c.get(ctx, "/agent/v1/configs", &configs); err != nil {
		return nil, err
	}
	return configs, nil
}

// StartBackup opens a run for a config and returns the log plus the upload
// credential for its reserved path.
func (c *Client) StartBackup(ctx context.Context, configID, filename string) (*core.StartResult, error) {
	var result core.StartResult
	err := c.post(ctx, "/agent/v1/backups", map[string]string{
		"config_id": configID,
		"filename":  filename,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CompletionReport is the terminal report for a run.
type CompletionReport struct {
	Status           string              `json:"status"`
	FilesProcessed   int64               `json:"files_processed"`
	FilesSkipped     int64               `json:"files_skipped"`
	TotalBytes       int64               `json:"total_bytes"`
	BytesTransferred int64               `json:"bytes_transferred"`
	Errors           []model.BackupError `json:"errors,omitempty"`
}

// CompleteBackup reports the terminal state of a run. Safe to retry; the
// server treats replays as no-ops.
func (c *Client) CompleteBackup(ctx context.Context, logID string, report CompletionReport) (*model.BackupLog, error) {
	var log model.BackupLog
	if err := c.post(ctx, "/agent/v1/backups/"+logID+"/complete", report, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

// PollAssessments fetches pending size assessment requests.
func (c *Client) PollAssessments(ctx context.Context) ([]model.SizeAssessment, error) {
	var pending []model.SizeAssessment
	if err := c.get(ctx, "/agent/v1/assessments", &pending); err != nil {
		return nil, err
	}
	return pending, nil
}

// AssessmentReport is the terminal result of a size assessment.
type AssessmentReport struct {
	TotalBytes int64  `json:"total_bytes"`
	TotalFiles int64  `json:"total_files"`
	Error      string `json:"error,omitempty"`
}

// ReportAssessment reports assessment totals, or the error that stopped the walk.
func (c *Client) ReportAssessment(ctx context.Context, id string, report AssessmentReport) error {
	return c.post(ctx, "/agent/v1/assessments/"+id+"/report", report, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, string(raw))
	}
	if !env.Success {
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, env.Error)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
