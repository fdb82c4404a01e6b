package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/quicksubmit/backend/internal/domain"
	"github.com/quicksubmit/backend/internal/metrics"
	"github.com/quicksubmit/backend/internal/middleware"
	"github.com/quicksubmit/backend/pkg/response"
	"github.com/quicksubmit/backend/pkg/validator"
	"go.uber.org/zap"
)

// CoverImageSettingName is the publication setting the form edits
const CoverImageSettingName = "coverImage"

// UploadFieldName is the multipart field carrying a temporary upload
const UploadFieldName = "uploadedFile"

// maxFormMemory bounds the non-file part of a multipart form
const maxFormMemory = 32 << 10

type CoverImageHandler struct {
	coverImages    *domain.CoverImageService
	temporaryFiles *domain.TemporaryFileService
	metrics        *metrics.Metrics
	maxUploadSize  int64
	logger         *zap.Logger
}

func NewCoverImageHandler(
	coverImages *domain.CoverImageService,
	temporaryFiles *domain.TemporaryFileService,
	m *metrics.Metrics,
	maxUploadSize int64,
	logger *zap.Logger,
) *CoverImageHandler {
	return &CoverImageHandler{
		coverImages:    coverImages,
		temporaryFiles: temporaryFiles,
		metrics:        m,
		maxUploadSize:  maxUploadSize,
		logger:         logger,
	}
}

type uploadResponse struct {
	TemporaryFileID  string `json:"temporaryFileId"`
	FileType         string `json:"fileType"`
	OriginalFileName string `json:"originalFileName"`
}

type coverImageFormResponse struct {
	domain.FormView
	CoverImageURL string `json:"coverImageUrl,omitempty"`
}

type eventResponse struct {
	Event domain.Event `json:"event"`
}

// Upload stores a file as a temporary upload of the current user
func (h *CoverImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}
	if _, ok := validator.ParseID(chi.URLParam(r, "contextID")); !ok {
		response.BadRequest(w, "invalid context id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		h.metrics.ObserveOperation(metrics.OperationUpload, metrics.OutcomeInvalid)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RequestTooLarge(w, "file exceeds the upload size limit")
			return
		}
		response.BadRequest(w, "invalid form data")
		return
	}

	file, header, err := r.FormFile(UploadFieldName)
	if err != nil {
		h.metrics.ObserveOperation(metrics.OperationUpload, metrics.OutcomeFailed)
		response.OperationFailed(w, domain.MessageUploadFailed)
		return
	}
	defer file.Close()

	tmp, err := h.temporaryFiles.HandleUpload(r.Context(), userID, file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		h.logger.Error("temporary upload failed", zap.Error(err), zap.String("user_id", userID.String()))
		h.metrics.ObserveOperation(metrics.OperationUpload, metrics.OutcomeError)
		response.InternalError(w, "failed to store upload")
		return
	}

	h.metrics.ObserveOperation(metrics.OperationUpload, metrics.OutcomeStored)
	h.metrics.ObserveUpload(tmp.FileSize)
	response.Created(w, uploadResponse{
		TemporaryFileID:  tmp.ID.String(),
		FileType:         tmp.FileType,
		OriginalFileName: tmp.OriginalFileName,
	})
}

// Show returns the cover image form for the request locale
func (h *CoverImageHandler) Show(w http.ResponseWriter, r *http.Request) {
	form, ok := h.loadForm(w, r, chi.URLParam(r, "submissionID"))
	if !ok {
		return
	}
	locale := requestLocale(r)

	form.PrepareDisplayState(locale)
	response.OK(w, h.formResponse(form, locale))
}

// Commit saves the submitted temporary file and alt text
func (h *CoverImageHandler) Commit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}
	if err := parseForm(r); err != nil {
		response.BadRequest(w, "invalid form data")
		return
	}

	form, ok := h.loadForm(w, r, chi.URLParam(r, "submissionID"))
	if !ok {
		return
	}
	locale := requestLocale(r)

	form.ReadSubmittedFields(r.Form)
	if err := form.Validate(); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			h.metrics.ObserveOperation(metrics.OperationCommit, metrics.OutcomeInvalid)
			response.ValidationFailed(w, errs, h.formResponse(form, locale))
			return
		}
		response.InternalError(w, "failed to validate form")
		return
	}

	result, err := form.Commit(r.Context(), userID, locale)
	if err != nil {
		h.logger.Error("cover image commit failed",
			zap.Error(err),
			zap.Int64("submission_id", form.Submission().ID),
			zap.String("locale", locale),
		)
		h.metrics.ObserveOperation(metrics.OperationCommit, metrics.OutcomeError)
		response.InternalError(w, "failed to save cover image")
		return
	}

	h.writeResult(w, metrics.OperationCommit, form, result)
}

// Delete clears the publication's cover image and removes the named file
func (h *CoverImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		response.BadRequest(w, "invalid form data")
		return
	}

	submissionID := r.Form.Get(domain.FieldSubmissionID)
	if _, ok := validator.ParseID(submissionID); !ok {
		h.logger.Warn("cover image delete without submission", zap.String("submission_id", submissionID))
		response.BadRequest(w, "submissionId is required")
		return
	}
	middleware.AddLogFields(r.Context(), zap.String("submission_id", submissionID))

	form, ok := h.loadForm(w, r, submissionID)
	if !ok {
		return
	}

	stageID, _ := strconv.Atoi(r.Form.Get(domain.FieldStageID))
	params := domain.DeleteCoverImageParams{
		CoverImage:   r.Form.Get(domain.FieldCoverImage),
		SubmissionID: form.Submission().ID,
		StageID:      stageID,
	}

	result, err := form.DeleteImage(r.Context(), params)
	if err != nil {
		var precondition *domain.PreconditionError
		if errors.As(err, &precondition) {
			h.logger.Warn("cover image delete rejected", zap.Error(err))
			h.metrics.ObserveOperation(metrics.OperationDelete, metrics.OutcomeInvalid)
			response.BadRequest(w, precondition.Reason)
			return
		}
		h.logger.Error("cover image delete failed",
			zap.Error(err),
			zap.Int64("submission_id", form.Submission().ID),
		)
		h.metrics.ObserveOperation(metrics.OperationDelete, metrics.OutcomeError)
		response.InternalError(w, "failed to delete cover image")
		return
	}

	h.writeResult(w, metrics.OperationDelete, form, result)
}

// loadForm resolves the journal and submission and writes the error
// response itself when it returns false
func (h *CoverImageHandler) loadForm(w http.ResponseWriter, r *http.Request, rawSubmissionID string) (*domain.CoverImageForm, bool) {
	contextID, ok := validator.ParseID(chi.URLParam(r, "contextID"))
	if !ok {
		response.BadRequest(w, "invalid context id")
		return nil, false
	}
	submissionID, ok := validator.ParseID(rawSubmissionID)
	if !ok {
		response.BadRequest(w, "invalid submission id")
		return nil, false
	}

	form, err := h.coverImages.NewForm(r.Context(), contextID, submissionID)
	if err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			response.ValidationFailed(w, errs, nil)
			return nil, false
		}
		if errors.Is(err, domain.ErrPublicationNotFound) {
			response.NotFound(w, "submission has no current publication")
			return nil, false
		}
		h.logger.Error("failed to load cover image form",
			zap.Error(err),
			zap.Int64("context_id", contextID),
			zap.Int64("submission_id", submissionID),
		)
		response.InternalError(w, "failed to load submission")
		return nil, false
	}

	form.SetFileSettingName(CoverImageSettingName)
	return form, true
}

func (h *CoverImageHandler) formResponse(form *domain.CoverImageForm, locale string) coverImageFormResponse {
	view := form.Render(locale)
	resp := coverImageFormResponse{FormView: view}
	if view.CoverImage != nil && view.CoverImage.UploadName != "" {
		resp.CoverImageURL = h.coverImages.PublicFileURL(form.Submission().ContextID, view.CoverImage.UploadName)
	}
	return resp
}

func (h *CoverImageHandler) writeResult(w http.ResponseWriter, operation string, form *domain.CoverImageForm, result domain.Result) {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.Int64("submission_id", form.Submission().ID),
	}

	if !result.Success {
		h.logger.Warn("cover image operation failed",
			append(fields, zap.String("message", result.MessageKey), zap.Error(result.Cause))...)
		h.metrics.ObserveOperation(operation, metrics.OutcomeFailed)
		response.OperationFailed(w, result.MessageKey)
		return
	}

	if result.Cause != nil {
		h.logger.Warn("cover image operation completed with errors", append(fields, zap.Error(result.Cause))...)
	}

	outcome := metrics.OutcomeDataChanged
	if result.Event == domain.EventFileDeleted {
		outcome = metrics.OutcomeFileDeleted
	}
	h.metrics.ObserveOperation(operation, outcome)
	response.OK(w, eventResponse{Event: result.Event})
}

func requestLocale(r *http.Request) string {
	locale, _ := middleware.GetLocale(r.Context())
	return locale
}

func parseForm(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(maxFormMemory)
	}
	return r.ParseForm()
}
