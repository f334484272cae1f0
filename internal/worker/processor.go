package worker

import (
	"context"
	"errors"
	"fmt"
	"log"

	"filesmanager/internal/blob"
	"filesmanager/internal/common"
	"filesmanager/internal/models"
)

var (
	ErrMissingParam = errors.New("missing fileId or userId")
	ErrFileNotFound = errors.New("file not found")
	ErrWrongType    = errors.New("file is not an image")
	ErrBlobNotFound = errors.New("original content not found")
)

// FileFinder is the read side of the metadata store the processor needs.
type FileFinder interface {
	FindByIDAndOwner(ctx context.Context, id, userID string) (*models.File, error)
}

type Resizer interface {
	Resize(data []byte, width int) ([]byte, error)
}

// Processor turns one thumbnail job into derivative blobs.
type Processor struct {
	files   FileFinder
	blobs   blob.Store
	resizer Resizer
	widths  []int
}

func NewProcessor(files FileFinder, blobs blob.Store, resizer Resizer) *Processor {
	if resizer == nil {
		resizer = NewImageResizer()
	}
	return &Processor{
		files:   files,
		blobs:   blobs,
		resizer: resizer,
		widths:  models.ThumbnailWidths,
	}
}

// Process writes one derivative per configured width and returns the widths
// produced. A width that fails is logged and skipped.
func (p *Processor) Process(ctx context.Context, job models.ThumbnailJob) ([]int, error) {
	if job.FileID == "" || job.UserID == "" {
		return nil, ErrMissingParam
	}
	file, err := p.files.FindByIDAndOwner(ctx, job.FileID, job.UserID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("load file %s: %w", job.FileID, err)
	}
	if file.Type != models.FileTypeImage {
		return nil, ErrWrongType
	}
	if file.LocalPath == "" {
		return nil, ErrBlobNotFound
	}
	original, err := p.blobs.Read(ctx, file.LocalPath)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("read original %s: %w", file.ID, err)
	}

	produced := make([]int, 0, len(p.widths))
	for _, width := range p.widths {
		data, err := p.resizer.Resize(original, width)
		if err != nil {
			log.Printf("thumbnail %d for file %s skipped: %v", width, file.ID, err)
			continue
		}
		if err := p.blobs.Put(ctx, blob.DerivativeRef(file.LocalPath, width), data); err != nil {
			log.Printf("thumbnail %d for file %s not stored: %v", width, file.ID, err)
			continue
		}
		debugLog("[processor] file %s width %d written", file.ID, width)
		produced = append(produced, width)
	}
	return produced, nil
}
