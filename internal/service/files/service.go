package files

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"mime"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"filesmanager/internal/blob"
	"filesmanager/internal/common"
	"filesmanager/internal/models"
	"filesmanager/internal/storage"
)

const defaultMimeType = "application/octet-stream"

var (
	ErrMissingName     = common.NewValidation("Missing name")
	ErrMissingType     = common.NewValidation("Missing type")
	ErrMissingData     = common.NewValidation("Missing data")
	ErrInvalidData     = common.NewValidation("Invalid data")
	ErrParentNotFound  = common.NewValidation("Parent not found")
	ErrParentNotFolder = common.NewValidation("Parent is not a folder")
	ErrIsFolder        = common.NewValidation("A folder doesn't have content")
	ErrInvalidSize     = common.NewValidation("Invalid size")
)

// MetadataStore persists file records. Lookups return common.ErrNotFound.
type MetadataStore interface {
	Create(ctx context.Context, file *models.File) error
	FindByID(ctx context.Context, id string) (*models.File, error)
	FindByIDAndOwner(ctx context.Context, id, userID string) (*models.File, error)
	List(ctx context.Context, userID, parentID string, page, pageSize int) ([]*models.File, error)
	SetPublic(ctx context.Context, id, userID string, isPublic bool) (*models.File, error)
	Count(ctx context.Context) (int64, error)
}

// ThumbnailQueue accepts thumbnail jobs without waiting for them to run.
type ThumbnailQueue interface {
	Enqueue(ctx context.Context, fileID, userID string) error
}

// UploadRequest is a validated-at-the-boundary upload payload. Data is base64.
type UploadRequest struct {
	Name     string
	Type     string
	ParentID string
	IsPublic bool
	Data     string
}

// Content is the payload served for a file.
type Content struct {
	Data     []byte
	MimeType string
}

// Service implements uploads, listings, visibility changes and content
// retrieval on behalf of an authenticated user.
type Service struct {
	meta       MetadataStore
	blobs      blob.Store
	thumbnails ThumbnailQueue
}

func NewService(meta MetadataStore, blobs blob.Store, thumbnails ThumbnailQueue) *Service {
	return &Service{meta: meta, blobs: blobs, thumbnails: thumbnails}
}

// Upload validates req, stores the content and records the file for userID.
func (s *Service) Upload(ctx context.Context, userID string, req UploadRequest) (*models.File, error) {
	if userID == "" {
		return nil, common.ErrUnauthorized
	}
	if req.Name == "" {
		return nil, ErrMissingName
	}
	fileType := models.FileType(req.Type)
	if !fileType.Valid() {
		return nil, ErrMissingType
	}
	if fileType != models.FileTypeFolder && req.Data == "" {
		return nil, ErrMissingData
	}

	parentID := req.ParentID
	if parentID == "" {
		parentID = models.RootID
	}
	if parentID != models.RootID {
		// the parent may belong to another user, only its type is checked
		parent, err := s.meta.FindByID(ctx, parentID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, ErrParentNotFound
			}
			return nil, err
		}
		if !parent.IsFolder() {
			return nil, ErrParentNotFolder
		}
	}

	var localPath string
	if fileType != models.FileTypeFolder {
		data, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			return nil, ErrInvalidData
		}
		if len(data) == 0 {
			return nil, ErrMissingData
		}
		localPath, err = s.blobs.Write(ctx, data)
		if err != nil {
			return nil, err
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate file id: %w", err)
	}
	file := &models.File{
		ID:        id.String(),
		UserID:    userID,
		Name:      req.Name,
		Type:      fileType,
		IsPublic:  req.IsPublic,
		ParentID:  parentID,
		LocalPath: localPath,
	}
	if err := s.meta.Create(ctx, file); err != nil {
		return nil, err
	}

	if fileType == models.FileTypeImage && s.thumbnails != nil {
		if err := s.thumbnails.Enqueue(ctx, file.ID, userID); err != nil {
			log.Printf("enqueue thumbnails for file %s failed: %v", file.ID, err)
		}
	}
	return file, nil
}

// Show returns the caller's record; records of other users are reported as not found.
func (s *Service) Show(ctx context.Context, userID, id string) (*models.File, error) {
	if userID == "" {
		return nil, common.ErrUnauthorized
	}
	return s.meta.FindByIDAndOwner(ctx, id, userID)
}

// Index lists one page (of storage.DefaultPageSize) of the caller's records under parentID.
func (s *Service) Index(ctx context.Context, userID, parentID string, page int) ([]*models.File, error) {
	if userID == "" {
		return nil, common.ErrUnauthorized
	}
	if parentID == "" {
		parentID = models.RootID
	}
	if page < 0 {
		page = 0
	}
	return s.meta.List(ctx, userID, parentID, page, storage.DefaultPageSize)
}

// SetPublic changes the visibility of a record owned by the caller.
func (s *Service) SetPublic(ctx context.Context, userID, id string, isPublic bool) (*models.File, error) {
	if userID == "" {
		return nil, common.ErrUnauthorized
	}
	return s.meta.SetPublic(ctx, id, userID, isPublic)
}

// GetContent returns the bytes of a file. userID may be empty for anonymous
// callers, who only see public files. A non-zero size selects a thumbnail.
func (s *Service) GetContent(ctx context.Context, userID, id string, size int) (*Content, error) {
	file, err := s.meta.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !file.IsPublic && (userID == "" || userID != file.UserID) {
		return nil, common.ErrNotFound
	}
	if file.IsFolder() {
		return nil, ErrIsFolder
	}
	if file.LocalPath == "" {
		return nil, common.ErrNotFound
	}

	ref := file.LocalPath
	mimeType := MimeTypeFor(file.Name)
	if size != 0 {
		if !slices.Contains(models.ThumbnailWidths, size) {
			return nil, ErrInvalidSize
		}
		ref = blob.DerivativeRef(ref, size)
		mimeType = thumbnailMimeType(mimeType)
	}
	data, err := s.blobs.Read(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &Content{Data: data, MimeType: mimeType}, nil
}

// Count returns the number of stored records.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.meta.Count(ctx)
}

// thumbnailMimeType maps a source type to the type of its thumbnails. webp
// sources are re-encoded as png.
func thumbnailMimeType(source string) string {
	if source == "image/webp" {
		return "image/png"
	}
	return source
}

// MimeTypeFor derives a content type from the name's extension.
func MimeTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return defaultMimeType
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return defaultMimeType
}
