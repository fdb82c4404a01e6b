package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quicksubmit/backend/internal/auth"
	"github.com/quicksubmit/backend/internal/domain"
	"github.com/quicksubmit/backend/internal/metrics"
	"github.com/quicksubmit/backend/internal/middleware"
	"github.com/quicksubmit/backend/internal/repository"
	"github.com/quicksubmit/backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Minimal PNG signature so content sniffing recognises the type
const pngHeader = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"

const (
	testContextID    = 1
	testSubmissionID = 42
)

type testEnv struct {
	handler   http.Handler
	repo      *repository.SQLiteRepository
	publicDir string
	token     string
}

func newTestEnv(t *testing.T, maxUploadSize int64) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	repo, err := repository.NewSQLiteRepository(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.CreateSubmission(ctx, domain.Submission{
		ID:                   testSubmissionID,
		ContextID:            testContextID,
		CurrentPublicationID: 420,
	}))

	tempStorage, err := storage.NewLocalFileStorage(filepath.Join(dir, "temp"))
	require.NoError(t, err)
	publicDir := filepath.Join(dir, "public")
	publicFiles, err := storage.NewLocalPublicStore(publicDir, "http://files.test")
	require.NoError(t, err)

	logger := zap.NewNop()
	temporaryFiles := domain.NewTemporaryFileService(repo, tempStorage, time.Hour)
	coverImages := domain.NewCoverImageService(repo, repo, temporaryFiles, publicFiles)
	m := metrics.New()
	jwtManager := auth.NewJWTManager("test-secret")
	locales := middleware.NewLocaleNegotiator([]string{"en", "fr_CA"}, "en")

	router := NewRouter(
		NewCoverImageHandler(coverImages, temporaryFiles, m, maxUploadSize, logger),
		NewHealthHandler(repo, "test", logger),
		m,
		jwtManager,
		locales,
		[]string{"https://editor.example.org"},
		publicDir,
		logger,
	)

	token, err := jwtManager.GenerateAccessToken(uuid.New(), "editor@example.org", time.Hour)
	require.NoError(t, err)

	return &testEnv{
		handler:   router.Setup(),
		repo:      repo,
		publicDir: publicDir,
		token:     token,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	if e.token != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) upload(t *testing.T, content string) string {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(UploadFieldName, "cover.png")
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/v1/contexts/1/cover-image/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := e.do(req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	data := decodeBody(t, rr)["data"].(map[string]any)
	assert.Equal(t, "image/png", data["fileType"])
	assert.Equal(t, "cover.png", data["originalFileName"])
	return data["temporaryFileId"].(string)
}

func (e *testEnv) commit(values url.Values, locale string) *httptest.ResponseRecorder {
	target := "/api/v1/contexts/1/submissions/42/cover-image"
	if locale != "" {
		target += "?locale=" + locale
	}
	req := httptest.NewRequest("POST", target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req)
}

func (e *testEnv) show(locale string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/api/v1/contexts/1/submissions/42/cover-image?locale="+locale, nil)
	return e.do(req)
}

func (e *testEnv) delete(values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/v1/contexts/1/cover-image/delete", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

func errorInfo(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	info, ok := decodeBody(t, rr)["error"].(map[string]any)
	require.True(t, ok, rr.Body.String())
	return info
}

func TestCoverImageLifecycle(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	storedPath := filepath.Join(env.publicDir, "journals", "1", "article_42_cover_en.png")

	// Upload and commit
	tmpID := env.upload(t, pngHeader)
	rr := env.commit(url.Values{
		domain.FieldTemporaryFileID: {tmpID},
		domain.FieldImageAltText:    {"A lighthouse"},
	}, "en")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, map[string]any{"event": "dataChanged"}, decodeBody(t, rr)["data"])

	content, err := os.ReadFile(storedPath)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, string(content))

	// The temporary file is consumed
	rr = env.commit(url.Values{domain.FieldTemporaryFileID: {tmpID}, domain.FieldImageAltText: {"x"}}, "fr_CA")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	pub, err := env.repo.GetPublication(context.Background(), 420)
	require.NoError(t, err)
	assert.Equal(t, domain.CoverImage{UploadName: "", AltText: "x"}, pub.CoverImage["fr_CA"])
	assert.Equal(t, domain.CoverImage{UploadName: "article_42_cover_en.png", AltText: "A lighthouse"}, pub.CoverImage["en"])

	// Show
	rr = env.show("en")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view := decodeBody(t, rr)["data"].(map[string]any)
	assert.Equal(t, float64(testSubmissionID), view["submissionId"])
	assert.Equal(t, "A lighthouse", view["imageAltText"])
	assert.Equal(t, "coverImage", view["fileSettingName"])
	assert.Equal(t, "image", view["fileType"])
	assert.Equal(t, "http://files.test/journals/1/article_42_cover_en.png", view["coverImageUrl"])
	action := view["deleteAction"].(map[string]any)
	assert.Equal(t, map[string]any{
		"coverImage":   "article_42_cover_en.png",
		"submissionId": float64(testSubmissionID),
		"stageId":      float64(domain.WorkflowStageProduction),
	}, action["params"])

	// Locale without a file has no delete action
	rr = env.show("fr_CA")
	require.Equal(t, http.StatusOK, rr.Code)
	view = decodeBody(t, rr)["data"].(map[string]any)
	assert.Equal(t, "x", view["imageAltText"])
	assert.NotContains(t, view, "deleteAction")
	assert.NotContains(t, view, "coverImageUrl")

	// Public file is served
	rr = env.do(httptest.NewRequest("GET", "/public/journals/1/article_42_cover_en.png", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, pngHeader, rr.Body.String())

	// Delete
	deleteValues := url.Values{
		domain.FieldCoverImage:   {"article_42_cover_en.png"},
		domain.FieldSubmissionID: {"42"},
		domain.FieldStageID:      {"5"},
	}
	rr = env.delete(deleteValues)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, map[string]any{"event": "fileDeleted"}, decodeBody(t, rr)["data"])

	_, err = os.Stat(storedPath)
	assert.True(t, os.IsNotExist(err))
	pub, err = env.repo.GetPublication(context.Background(), 420)
	require.NoError(t, err)
	assert.Empty(t, pub.CoverImage)

	// Deleting again clears nothing new and reports the missing file
	rr = env.delete(deleteValues)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	info := errorInfo(t, rr)
	assert.Equal(t, "OPERATION_FAILED", info["code"])
	assert.Equal(t, domain.MessageCoverFileNotFound, info["message"])

	// Counters
	rr = env.do(httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `coverimage_operations_total{operation="commit",outcome="data_changed"} 2`)
	assert.Contains(t, rr.Body.String(), `coverimage_operations_total{operation="delete",outcome="file_deleted"} 1`)
	assert.Contains(t, rr.Body.String(), `coverimage_operations_total{operation="delete",outcome="failed"} 1`)
	assert.Contains(t, rr.Body.String(), `coverimage_operations_total{operation="upload",outcome="stored"} 1`)
}

func TestCommitUsesAcceptLanguage(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	tmpID := env.upload(t, pngHeader)

	req := httptest.NewRequest("POST", "/api/v1/contexts/1/submissions/42/cover-image",
		strings.NewReader(url.Values{domain.FieldTemporaryFileID: {tmpID}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept-Language", "fr-CA,fr;q=0.9")
	rr := env.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "fr-CA", rr.Header().Get("Content-Language"))

	_, err := os.Stat(filepath.Join(env.publicDir, "journals", "1", "article_42_cover_fr_CA.png"))
	assert.NoError(t, err)
}

func TestCommitValidation(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	rr := env.commit(url.Values{domain.FieldImageAltText: {"kept"}}, "en")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	body := decodeBody(t, rr)
	info := body["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_FAILED", info["code"])
	assert.Equal(t, []any{map[string]any{
		"field":   domain.FieldTemporaryFileID,
		"message": domain.MessageImageFileRequired,
	}}, info["fields"])

	view := body["data"].(map[string]any)
	assert.Equal(t, "kept", view["imageAltText"])
	assert.Equal(t, "coverImage", view["fileSettingName"])
}

func TestCommitUnknownTemporaryFile(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	rr := env.commit(url.Values{domain.FieldTemporaryFileID: {uuid.NewString()}}, "en")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, domain.MessageUploadFailed, errorInfo(t, rr)["message"])

	pub, err := env.repo.GetPublication(context.Background(), 420)
	require.NoError(t, err)
	assert.Empty(t, pub.CoverImage)
}

func TestCommitUnsupportedType(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	tmpID := env.uploadAs(t, "plain text", "notes.txt", "text/plain")

	rr := env.commit(url.Values{domain.FieldTemporaryFileID: {tmpID}}, "en")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, domain.MessageUploadFailed, errorInfo(t, rr)["message"])
}

func (e *testEnv) uploadAs(t *testing.T, content, filename, contentType string) string {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="` + UploadFieldName + `"; filename="` + filename + `"`}
	header["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/v1/contexts/1/cover-image/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := e.do(req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeBody(t, rr)["data"].(map[string]any)["temporaryFileId"].(string)
}

func TestUnknownSubmission(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	req := httptest.NewRequest("GET", "/api/v1/contexts/2/submissions/42/cover-image", nil)
	rr := env.do(req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, []any{map[string]any{
		"field":   domain.FieldSubmissionID,
		"message": domain.MessageSubmissionNotFound,
	}}, errorInfo(t, rr)["fields"])
}

func TestSubmissionWithoutPublication(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	require.NoError(t, env.repo.CreateSubmission(context.Background(), domain.Submission{ID: 7, ContextID: testContextID}))

	rr := env.do(httptest.NewRequest("GET", "/api/v1/contexts/1/submissions/7/cover-image", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", errorInfo(t, rr)["code"])
}

func TestDeletePreconditions(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	t.Run("missing submission", func(t *testing.T) {
		rr := env.delete(url.Values{domain.FieldCoverImage: {"article_42_cover_en.png"}})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "BAD_REQUEST", errorInfo(t, rr)["code"])
	})

	t.Run("missing cover image", func(t *testing.T) {
		rr := env.delete(url.Values{domain.FieldSubmissionID: {"42"}})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "BAD_REQUEST", errorInfo(t, rr)["code"])
	})
}

func TestUploadErrors(t *testing.T) {
	env := newTestEnv(t, 512)

	t.Run("too large", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile(UploadFieldName, "big.png")
		require.NoError(t, err)
		_, err = part.Write(bytes.Repeat([]byte{'x'}, 4096))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest("POST", "/api/v1/contexts/1/cover-image/upload", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rr := env.do(req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})

	t.Run("missing file field", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("other", "value"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest("POST", "/api/v1/contexts/1/cover-image/upload", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rr := env.do(req)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Equal(t, domain.MessageUploadFailed, errorInfo(t, rr)["message"])
	})
}

func TestCoverImageRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	req := httptest.NewRequest("GET", "/api/v1/contexts/1/submissions/42/cover-image", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	rr := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
