package domain

import (
	"context"
	"errors"
)

var (
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrPublicationNotFound = errors.New("publication not found")
)

// WorkflowStageProduction is the workflow stage editors work on cover
// images in.
const WorkflowStageProduction = 5

// Submission is an article moving through a journal's workflow
type Submission struct {
	ID                   int64 `json:"id"`
	ContextID            int64 `json:"context_id"`
	CurrentPublicationID int64 `json:"current_publication_id"`
}

// CoverImage is the per-locale cover image setting of a publication
type CoverImage struct {
	UploadName string `json:"uploadName"`
	AltText    string `json:"altText"`
}

// CoverImages maps a locale code to its cover image. A missing key means
// there is no cover image in that locale.
type CoverImages map[string]CoverImage

// Publication is a version of a submission
type Publication struct {
	ID           int64       `json:"id"`
	SubmissionID int64       `json:"submission_id"`
	CoverImage   CoverImages `json:"cover_image"`
}

// LocalizedCoverImage returns the cover image for locale, if any
func (p *Publication) LocalizedCoverImage(locale string) (CoverImage, bool) {
	img, ok := p.CoverImage[locale]
	return img, ok
}

// HasCoverImage reports whether any locale has a cover image
func (p *Publication) HasCoverImage() bool {
	return len(p.CoverImage) > 0
}

type SubmissionRepository interface {
	GetSubmission(ctx context.Context, id, contextID int64) (*Submission, error)
}

type PublicationRepository interface {
	GetPublication(ctx context.Context, id int64) (*Publication, error)
	UpdatePublication(ctx context.Context, publication *Publication) error
}
