package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quicksubmit/backend/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestOK(t *testing.T) {
	rr := httptest.NewRecorder()
	OK(rr, map[string]string{"event": "dataChanged"})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{"event": "dataChanged"}, body["data"])
	assert.NotContains(t, body, "error")
}

func TestOperationFailed(t *testing.T) {
	rr := httptest.NewRecorder()
	OperationFailed(rr, "common.uploadFailed")

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, map[string]any{
		"code":    "OPERATION_FAILED",
		"message": "common.uploadFailed",
	}, body["error"])
}

func TestValidationFailed(t *testing.T) {
	var errs validator.ValidationErrors
	errs.Add("temporaryFileId", "manager.website.imageFileRequired")

	rr := httptest.NewRecorder()
	ValidationFailed(rr, errs, map[string]string{"imageAltText": "alt"})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, map[string]any{"imageAltText": "alt"}, body["data"])

	errInfo := body["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_FAILED", errInfo["code"])
	assert.Equal(t, []any{
		map[string]any{"field": "temporaryFileId", "message": "manager.website.imageFileRequired"},
	}, errInfo["fields"])
}
