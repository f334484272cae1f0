package worker

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"filesmanager/internal/blob"
	"filesmanager/internal/common"
	"filesmanager/internal/models"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type fakeFiles struct {
	mu    sync.Mutex
	files map[string]*models.File
	err   error
}

func newFakeFiles(files ...*models.File) *fakeFiles {
	f := &fakeFiles{files: make(map[string]*models.File)}
	for _, file := range files {
		f.files[file.ID] = file
	}
	return f
}

func (f *fakeFiles) FindByIDAndOwner(_ context.Context, id, userID string) (*models.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	file, ok := f.files[id]
	if !ok || file.UserID != userID {
		return nil, common.ErrNotFound
	}
	copied := *file
	return &copied, nil
}

type recordingNotifier struct {
	events chan Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(chan Event, 16)}
}

func (r *recordingNotifier) Notify(_ context.Context, ev Event) {
	r.events <- ev
}

func newTestBlobs(t *testing.T) *blob.FSStore {
	t.Helper()
	store, err := blob.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	return store
}

// storeImage writes an image blob and returns its metadata record.
func storeImage(t *testing.T, blobs blob.Store, id, userID string, data []byte) *models.File {
	t.Helper()
	ref, err := blobs.Write(context.Background(), data)
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}
	return &models.File{
		ID:        id,
		UserID:    userID,
		Name:      id + ".png",
		Type:      models.FileTypeImage,
		ParentID:  models.RootID,
		LocalPath: ref,
	}
}
