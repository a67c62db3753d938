package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newAPIKeyHandler() *APIKey {
	return NewAPIKey(nil)
}

// --- Create ---

func TestAPIKeyCreate_InvalidJSON(t *testing.T) {
	h := newAPIKeyHandler()
	rec := httptest.NewRecorder()
	r := withUser(newRequestRaw(http.MethodPost, "/api-keys", "{bad json"), "user-1")

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "invalid JSON")
}

func TestAPIKeyCreate_MissingName(t *testing.T) {
	h := newAPIKeyHandler()
	rec := httptest.NewRecorder()
	r := withUser(newRequest(http.MethodPost, "/api-keys", map[string]any{}), "user-1")

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}

// --- Revoke ---

func TestAPIKeyRevoke_EmptyID(t *testing.T) {
	h := newAPIKeyHandler()
	rec := httptest.NewRecorder()
	r := withUser(newRequest(http.MethodDelete, "/api-keys/", nil), "user-1")
	r = withChiURLParam(r, "id", "")

	h.Revoke(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "missing required ID")
}

// --- Error response format ---

func TestAPIKeyCreate_ErrorResponseFormat(t *testing.T) {
	h := newAPIKeyHandler()
	rec := httptest.NewRecorder()
	r := withUser(newRequestRaw(http.MethodPost, "/api-keys", "{bad"), "user-1")

	h.Create(rec, r)

	body := decodeErrorResponse(rec)
	assert.Equal(t, false, body["success"])
	_, hasError := body["error"]
	assert.True(t, hasError)
}
