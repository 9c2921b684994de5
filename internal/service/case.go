package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"

	"github.com/rs/xid"

	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/model"
	"github.com/mundorum/harena/internal/repository"
)

// Validation limits for cases.
const (
	MaxCaseNameLength = 200
	MaxImageSize      = 10 << 20 // 10MB
)

// allowedImageTypes maps accepted content types to the extension used in
// the object key.
var allowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// BlobStore stores case images. Put returns the reference saved on the
// case (the object URL).
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// CaseService manages cases. Cases belong to the professor who wrote them;
// quests only reference them.
type CaseService struct {
	store  repository.Store
	blobs  BlobStore
	logger *slog.Logger
}

// NewCaseService creates a CaseService. blobs may be nil, in which case
// image uploads are refused.
func NewCaseService(store repository.Store, blobs BlobStore, opts ...Option) *CaseService {
	o := buildOptions(opts)
	return &CaseService{store: store, blobs: blobs, logger: o.logger}
}

// CreateCaseInput holds the fields a caller supplies for a new case.
type CreateCaseInput struct {
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Content         string           `json:"content"`
	Answer          string           `json:"answer"`
	PossibleAnswers []string         `json:"possible_answers"`
	Complexity      model.Complexity `json:"complexity"`
	Specialty       *string          `json:"specialty"`
}

// Create stores a new case owned by the actor.
func (s *CaseService) Create(ctx context.Context, actorID string, input CreateCaseInput) (*model.Case, error) {
	_, person, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}
	if !person.IsProfessor() {
		return nil, apperror.Forbidden("only professors can create cases")
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if len(name) > MaxCaseNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be at most %d characters", MaxCaseNameLength))
	}
	if input.Complexity == "" {
		input.Complexity = model.ComplexityUndergraduate
	}
	if !input.Complexity.Valid() {
		return nil, apperror.ValidationFailed("complexity",
			"complexity must be one of: undergraduate, graduate, postgraduate")
	}

	c := &model.Case{
		Name:            name,
		Description:     input.Description,
		Content:         input.Content,
		Answer:          input.Answer,
		PossibleAnswers: input.PossibleAnswers,
		OwnerID:         person.UserID,
		Complexity:      input.Complexity,
		Specialty:       input.Specialty,
	}
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		return tx.CreateCase(ctx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("service/case: %w", err)
	}

	s.logger.Info("case created",
		slog.String("caseID", c.ID),
		slog.String("ownerID", c.OwnerID),
	)
	return c, nil
}

// Get returns a case to its owner.
func (s *CaseService) Get(ctx context.Context, actorID, caseID string) (*model.Case, error) {
	_, person, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}
	return s.ownedCase(ctx, person, caseID)
}

// ListMine returns the actor's cases, newest last.
func (s *CaseService) ListMine(ctx context.Context, actorID string) ([]model.Case, error) {
	_, person, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}
	cases, err := s.store.ListCasesByOwner(ctx, person.UserID)
	if err != nil {
		return nil, fmt.Errorf("service/case: listing cases: %w", err)
	}
	if cases == nil {
		cases = []model.Case{}
	}
	return cases, nil
}

// AttachImage uploads an image for the case and records its reference.
// The object key is cases/<caseID>/<xid><ext>, so re-uploading never
// overwrites an earlier object.
func (s *CaseService) AttachImage(ctx context.Context, actorID, caseID string, body io.Reader, size int64, contentType string) (*model.Case, error) {
	ctx, span := tracer.Start(ctx, "CaseService.AttachImage")
	defer span.End()

	if s.blobs == nil {
		return nil, apperror.ValidationFailed("image", "image storage is not configured")
	}
	_, person, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}
	c, err := s.ownedCase(ctx, person, caseID)
	if err != nil {
		return nil, err
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, apperror.ValidationFailed("content_type", "invalid content type")
	}
	ext, ok := allowedImageTypes[mediaType]
	if !ok {
		return nil, apperror.ValidationFailed("content_type", "image must be png, jpeg, gif or webp")
	}
	if size <= 0 || size > MaxImageSize {
		return nil, apperror.ValidationFailed("image",
			fmt.Sprintf("image must be between 1 byte and %d bytes", MaxImageSize))
	}

	key := fmt.Sprintf("cases/%s/%s%s", c.ID, xid.New().String(), ext)
	ref, err := s.blobs.Put(ctx, key, body, size, mediaType)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("service/case: storing image: %w", err)
	}

	err = s.store.InTx(ctx, func(tx repository.Store) error {
		return tx.SetCaseImage(ctx, c.ID, ref)
	})
	if err != nil {
		return nil, fmt.Errorf("service/case: saving image reference: %w", err)
	}
	c.ImageRef = &ref

	s.logger.Info("case image stored",
		slog.String("caseID", c.ID),
		slog.String("key", key),
	)
	return c, nil
}

func (s *CaseService) ownedCase(ctx context.Context, person *model.Person, caseID string) (*model.Case, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != person.UserID {
		return nil, apperror.Forbidden("you do not own this case")
	}
	return c, nil
}
