package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/quicksubmit/backend/internal/storage"
	"github.com/quicksubmit/backend/pkg/validator"
)

// Message keys sent back to the client for translation
const (
	MessageUploadFailed       = "common.uploadFailed"
	MessageCoverFileNotFound  = "editor.article.removeCoverImageFileNotFound"
	MessageImageFileRequired  = "manager.website.imageFileRequired"
	MessageSubmissionNotFound = "submission.notFound"
	MessageConfirmDelete      = "common.confirmDelete"
	MessageDelete             = "common.delete"
)

// Form field names
const (
	FieldImageAltText    = "imageAltText"
	FieldTemporaryFileID = "temporaryFileId"
	FieldSubmissionID    = "submissionId"
	FieldCoverImage      = "coverImage"
	FieldStageID         = "stageId"
)

// CoverImageFileName builds the public file name for a cover image. Stored
// files already use this pattern, so it must not change.
func CoverImageFileName(submissionID int64, locale, extension string) string {
	return fmt.Sprintf("article_%d_cover_%s%s", submissionID, locale, extension)
}

// PreconditionError reports a request that breaks the caller contract
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

// UnsupportedMediaError reports a temporary file that is not a known image type
type UnsupportedMediaError struct {
	MimeType string
}

func (e *UnsupportedMediaError) Error() string {
	return fmt.Sprintf("unsupported image type %q", e.MimeType)
}

// TemporaryFiles resolves and consumes a user's temporary uploads
type TemporaryFiles interface {
	GetTemporaryFile(ctx context.Context, id string, userID uuid.UUID) (*TemporaryFile, error)
	DeleteByID(ctx context.Context, id string, userID uuid.UUID) error
}

// CoverImageService wires the stores a cover image form works against
type CoverImageService struct {
	submissions    SubmissionRepository
	publications   PublicationRepository
	temporaryFiles TemporaryFiles
	publicFiles    storage.PublicFileStore
}

func NewCoverImageService(
	submissions SubmissionRepository,
	publications PublicationRepository,
	temporaryFiles TemporaryFiles,
	publicFiles storage.PublicFileStore,
) *CoverImageService {
	return &CoverImageService{
		submissions:    submissions,
		publications:   publications,
		temporaryFiles: temporaryFiles,
		publicFiles:    publicFiles,
	}
}

// PublicFileURL returns where readers fetch a stored cover image
func (s *CoverImageService) PublicFileURL(contextID int64, uploadName string) string {
	return s.publicFiles.ContextFileURL(contextID, uploadName)
}

// NewForm loads the submission and its current publication. A submission
// that does not exist in contextID is reported as validator.ValidationErrors;
// one without a current publication as ErrPublicationNotFound.
func (s *CoverImageService) NewForm(ctx context.Context, contextID, submissionID int64) (*CoverImageForm, error) {
	submission, err := s.submissions.GetSubmission(ctx, submissionID, contextID)
	if err != nil {
		if errors.Is(err, ErrSubmissionNotFound) {
			var errs validator.ValidationErrors
			errs.Add(FieldSubmissionID, MessageSubmissionNotFound)
			return nil, errs
		}
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}

	if submission.CurrentPublicationID == 0 {
		return nil, fmt.Errorf("submission %d has no current publication: %w", submission.ID, ErrPublicationNotFound)
	}

	publication, err := s.publications.GetPublication(ctx, submission.CurrentPublicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load current publication: %w", err)
	}
	if publication.CoverImage == nil {
		publication.CoverImage = CoverImages{}
	}

	return &CoverImageForm{
		service:     s,
		submission:  submission,
		publication: publication,
	}, nil
}

// Event tells the client how to refresh after a successful operation
type Event string

const (
	EventDataChanged Event = "dataChanged"
	EventFileDeleted Event = "fileDeleted"
)

// Result is the outcome of a form operation
type Result struct {
	Success    bool
	Event      Event
	MessageKey string
	// Cause is for logging only and is never sent to the client
	Cause error
}

func dataChanged() Result {
	return Result{Success: true, Event: EventDataChanged}
}

func fileDeleted() Result {
	return Result{Success: true, Event: EventFileDeleted}
}

func failed(messageKey string, cause error) Result {
	return Result{MessageKey: messageKey, Cause: cause}
}

// CoverImageFormData holds the submitted fields
type CoverImageFormData struct {
	ImageAltText    string `json:"imageAltText"`
	TemporaryFileID string `json:"temporaryFileId,omitempty"`
}

// FormValues is satisfied by url.Values
type FormValues interface {
	Get(key string) string
}

// DeleteCoverImageParams are the parameters of the delete endpoint
type DeleteCoverImageParams struct {
	CoverImage   string `json:"coverImage"`
	SubmissionID int64  `json:"submissionId"`
	StageID      int    `json:"stageId"`
}

// DeleteAction describes the confirm-then-delete control shown next to an
// existing cover image
type DeleteAction struct {
	ID             string                 `json:"id"`
	Title          string                 `json:"title"`
	ConfirmMessage string                 `json:"confirmMessage"`
	Params         DeleteCoverImageParams `json:"params"`
}

// CoverImageDisplay is the state a form is rendered from
type CoverImageDisplay struct {
	SubmissionID int64         `json:"submissionId"`
	CoverImage   *CoverImage   `json:"coverImage,omitempty"`
	ImageAltText string        `json:"imageAltText"`
	DeleteAction *DeleteAction `json:"deleteAction,omitempty"`
}

// FormView is everything a client needs to draw the upload form
type FormView struct {
	CoverImageDisplay
	TemporaryFileID string `json:"temporaryFileId,omitempty"`
	FileSettingName string `json:"fileSettingName,omitempty"`
	FileType        string `json:"fileType"`
}

// CoverImageForm handles one request against a submission's cover image.
// It is not safe for concurrent use.
type CoverImageForm struct {
	service         *CoverImageService
	submission      *Submission
	publication     *Publication
	fileSettingName string
	data            CoverImageFormData
}

func (f *CoverImageForm) Submission() *Submission   { return f.submission }
func (f *CoverImageForm) Publication() *Publication { return f.publication }
func (f *CoverImageForm) Data() CoverImageFormData  { return f.data }

// FileSettingName is the setting the committed file is surfaced under
func (f *CoverImageForm) FileSettingName() string {
	return f.fileSettingName
}

func (f *CoverImageForm) SetFileSettingName(name string) {
	f.fileSettingName = name
}

func (f *CoverImageForm) display(locale string) CoverImageDisplay {
	d := CoverImageDisplay{SubmissionID: f.submission.ID}

	img, ok := f.publication.LocalizedCoverImage(locale)
	if !ok {
		return d
	}
	d.CoverImage = &img
	if img.UploadName != "" {
		d.DeleteAction = &DeleteAction{
			ID:             "deleteCoverImage",
			Title:          MessageDelete,
			ConfirmMessage: MessageConfirmDelete,
			Params: DeleteCoverImageParams{
				CoverImage:   img.UploadName,
				SubmissionID: f.submission.ID,
				StageID:      WorkflowStageProduction,
			},
		}
	}
	return d
}

// PrepareDisplayState loads the stored cover image for locale and sets the
// alt text field from it
func (f *CoverImageForm) PrepareDisplayState(locale string) CoverImageDisplay {
	d := f.display(locale)
	f.data.ImageAltText = ""
	if d.CoverImage != nil {
		f.data.ImageAltText = d.CoverImage.AltText
	}
	d.ImageAltText = f.data.ImageAltText
	return d
}

// ReadSubmittedFields reads imageAltText and temporaryFileId and nothing else
func (f *CoverImageForm) ReadSubmittedFields(values FormValues) {
	f.data = CoverImageFormData{
		ImageAltText:    values.Get(FieldImageAltText),
		TemporaryFileID: values.Get(FieldTemporaryFileID),
	}
}

// Validate requires temporaryFileId. This applies to alt-text-only edits
// too, which Commit would otherwise accept.
func (f *CoverImageForm) Validate() error {
	var errs validator.ValidationErrors
	if !validator.Required(f.data.TemporaryFileID) {
		errs.Add(FieldTemporaryFileID, MessageImageFileRequired)
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Commit attaches the submitted temporary file to the publication in
// locale, or updates only the alt text when no file resolves but the
// publication already has a cover image.
//
// The public file copy and the publication update are not atomic. If the
// update fails after a successful copy the copied file stays in the public
// store.
func (f *CoverImageForm) Commit(ctx context.Context, userID uuid.UUID, locale string) (Result, error) {
	tmp, err := f.service.temporaryFiles.GetTemporaryFile(ctx, f.data.TemporaryFileID, userID)
	switch {
	case err == nil:
		return f.commitNewFile(ctx, tmp, userID, locale)
	case errors.Is(err, ErrTemporaryFileNotFound):
	default:
		return Result{}, fmt.Errorf("failed to fetch temporary file: %w", err)
	}

	if !f.publication.HasCoverImage() {
		return failed(MessageUploadFailed, ErrTemporaryFileNotFound), nil
	}

	images := cloneCoverImages(f.publication.CoverImage)
	img := images[locale]
	img.AltText = f.data.ImageAltText
	images[locale] = img

	f.publication.CoverImage = images
	if err := f.service.publications.UpdatePublication(ctx, f.publication); err != nil {
		return Result{}, fmt.Errorf("failed to update publication: %w", err)
	}
	return dataChanged(), nil
}

func (f *CoverImageForm) commitNewFile(ctx context.Context, tmp *TemporaryFile, userID uuid.UUID, locale string) (Result, error) {
	extension := storage.ImageExtension(tmp.FileType)
	if extension == "" {
		return failed(MessageUploadFailed, &UnsupportedMediaError{MimeType: tmp.FileType}), nil
	}

	fileName := CoverImageFileName(f.submission.ID, locale, extension)
	if err := f.service.publicFiles.CopyContextFile(ctx, f.submission.ContextID, tmp.FilePath, fileName); err != nil {
		return failed(MessageUploadFailed, fmt.Errorf("failed to copy cover image: %w", err)), nil
	}

	images := cloneCoverImages(f.publication.CoverImage)
	images[locale] = CoverImage{
		UploadName: fileName,
		AltText:    f.data.ImageAltText,
	}

	f.publication.CoverImage = images
	if err := f.service.publications.UpdatePublication(ctx, f.publication); err != nil {
		return Result{}, fmt.Errorf("failed to update publication: %w", err)
	}

	result := dataChanged()
	if err := f.service.temporaryFiles.DeleteByID(ctx, tmp.ID.String(), userID); err != nil {
		// The cover image is committed; the cleanup worker expires the leftover
		result.Cause = fmt.Errorf("failed to remove temporary file: %w", err)
	}
	return result, nil
}

// DeleteImage clears the cover image in every locale and then removes the
// named file. The metadata stays cleared when the file removal fails.
func (f *CoverImageForm) DeleteImage(ctx context.Context, params DeleteCoverImageParams) (Result, error) {
	if params.CoverImage == "" || params.SubmissionID <= 0 {
		return Result{}, &PreconditionError{Reason: "coverImage and submissionId are required"}
	}

	f.publication.CoverImage = CoverImages{}
	if err := f.service.publications.UpdatePublication(ctx, f.publication); err != nil {
		return Result{}, fmt.Errorf("failed to update publication: %w", err)
	}

	if err := f.service.publicFiles.RemoveContextFile(ctx, f.submission.ContextID, params.CoverImage); err != nil {
		return failed(MessageCoverFileNotFound, err), nil
	}
	return fileDeleted(), nil
}

// Render returns the form view with the current field values
func (f *CoverImageForm) Render(locale string) FormView {
	d := f.display(locale)
	d.ImageAltText = f.data.ImageAltText
	return FormView{
		CoverImageDisplay: d,
		TemporaryFileID:   f.data.TemporaryFileID,
		FileSettingName:   f.fileSettingName,
		FileType:          "image",
	}
}

func cloneCoverImages(images CoverImages) CoverImages {
	out := make(CoverImages, len(images)+1)
	for locale, img := range images {
		out[locale] = img
	}
	return out
}
