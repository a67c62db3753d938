package request

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ValidBody(t *testing.T) {
	body := bytes.NewBufferString(`{"name":"office-nas","platform":"linux/amd64"}`)
	r := httptest.NewRequest("POST", "/api/v1/agents", body)

	var req RegisterAgent
	err := Decode(r, &req)
	require.NoError(t, err)
	assert.Equal(t, "office-nas", req.Name)
}

func TestDecode_InvalidJSON(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/v1/agents", bytes.NewBufferString(`{not json`))

	var req RegisterAgent
	err := Decode(r, &req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestDecode_SlugValidation(t *testing.T) {
	for _, name := range []string{"Uppercase", "9starts-with-digit", "has space", ""} {
		body, _ := json.Marshal(RegisterAgent{Name: name})
		r := httptest.NewRequest("POST", "/api/v1/agents", bytes.NewBuffer(body))

		var req RegisterAgent
		err := Decode(r, &req)
		require.Error(t, err, "name %q should be rejected", name)
	}
}

func TestReportedError_UnmarshalString(t *testing.T) {
	var e ReportedError
	require.NoError(t, json.Unmarshal([]byte(`"disk read error"`), &e))
	assert.Equal(t, "agent", e.Kind)
	assert.Equal(t, "disk read error", e.Message)
}

func TestReportedError_UnmarshalObject(t *testing.T) {
	var e ReportedError
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"io","message":"read failed","context":"/home/a"}`), &e))
	assert.Equal(t, "io", e.Kind)
	assert.Equal(t, "read failed", e.Message)
	assert.Equal(t, "/home/a", e.Context)
}

func TestReportedError_ObjectWithoutKindDefaults(t *testing.T) {
	var e ReportedError
	require.NoError(t, json.Unmarshal([]byte(`{"message":"read failed"}`), &e))
	assert.Equal(t, "agent", e.Kind)
}

func TestCompleteBackup_RejectsNonTerminalStatus(t *testing.T) {
	body := bytes.NewBufferString(`{"status":"running"}`)
	r := httptest.NewRequest("POST", "/agent/v1/backups/log-1/complete", body)

	var req CompleteBackup
	err := Decode(r, &req)
	require.Error(t, err)
}

func TestTimeoutBackups_Bounds(t *testing.T) {
	for _, mins := range []int{0, 1441} {
		body, _ := json.Marshal(TimeoutBackups{ThresholdMinutes: mins})
		r := httptest.NewRequest("POST", "/api/v1/backups/timeout", bytes.NewBuffer(body))

		var req TimeoutBackups
		err := Decode(r, &req)
		require.Error(t, err, "threshold %d should be rejected", mins)
	}
}

func TestParsePagination(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/backups?limit=25&cursor=log-9", nil)
	p := ParsePagination(r)
	assert.Equal(t, 25, p.Limit)
	assert.Equal(t, "log-9", p.Cursor)
}

func TestParsePagination_Defaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/backups", nil)
	p := ParsePagination(r)
	assert.Equal(t, DefaultLimit, p.Limit)
	assert.Empty(t, p.Cursor)
}

func TestParsePagination_ClampsLimit(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/backups?limit=9999", nil)
	p := ParsePagination(r)
	assert.Equal(t, MaxLimit, p.Limit)
}
