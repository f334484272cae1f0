package files

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"filesmanager/internal/blob"
	"filesmanager/internal/common"
	"filesmanager/internal/config"
	"filesmanager/internal/models"
	"filesmanager/internal/storage"
)

func TestUploadFolderWritesNoBlob(t *testing.T) {
	env := newTestEnv(t)
	folder, err := env.svc.Upload(context.Background(), env.alice, UploadRequest{Name: "docs", Type: "folder"})
	if err != nil {
		t.Fatalf("Upload folder: %v", err)
	}
	if folder.LocalPath != "" || folder.ParentID != models.RootID || folder.IsPublic {
		t.Fatalf("unexpected folder record %#v", folder)
	}
	if env.blobs.writes() != 0 {
		t.Fatalf("folder upload wrote %d blobs", env.blobs.writes())
	}
}

func TestUploadFileWritesOneBlob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	file, err := env.svc.Upload(ctx, env.alice, UploadRequest{Name: "doc.txt", Type: "file", Data: b64("hello")})
	if err != nil {
		t.Fatalf("Upload file: %v", err)
	}
	if env.blobs.writes() != 1 {
		t.Fatalf("expected exactly one blob write, got %d", env.blobs.writes())
	}
	data, err := env.blobs.Read(ctx, file.LocalPath)
	if err != nil || string(data) != "hello" {
		t.Fatalf("blob content %q err=%v", data, err)
	}
	stored, err := env.svc.Show(ctx, env.alice, file.ID)
	if err != nil {
		t.Fatalf("Show: %v", err)
	}
	if stored.LocalPath != file.LocalPath || stored.Name != "doc.txt" || stored.Type != models.FileTypeFile {
		t.Fatalf("stored record mismatch %#v", stored)
	}
	if len(env.queue.jobs()) != 0 {
		t.Fatalf("plain files must not enqueue thumbnails")
	}
}

func TestUploadValidationOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	plain, err := env.svc.Upload(ctx, env.alice, UploadRequest{Name: "a.txt", Type: "file", Data: b64("a")})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	cases := []struct {
		name string
		req  UploadRequest
		want error
	}{
		{"missing name", UploadRequest{Type: "file", Data: b64("x")}, ErrMissingName},
		{"missing name wins over type", UploadRequest{Type: "bogus"}, ErrMissingName},
		{"bad type", UploadRequest{Name: "x", Type: "bogus", Data: b64("x")}, ErrMissingType},
		{"missing data", UploadRequest{Name: "x", Type: "image"}, ErrMissingData},
		{"invalid data", UploadRequest{Name: "x", Type: "file", Data: "!!!"}, ErrInvalidData},
		{"unknown parent", UploadRequest{Name: "x", Type: "folder", ParentID: "nope"}, ErrParentNotFound},
		{"parent is file", UploadRequest{Name: "x", Type: "folder", ParentID: plain.ID}, ErrParentNotFolder},
		{"parent is file for image", UploadRequest{Name: "x.png", Type: "image", ParentID: plain.ID, Data: b64("x")}, ErrParentNotFolder},
	}
	for _, tc := range cases {
		if _, err := env.svc.Upload(ctx, env.alice, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
		if !common.IsValidation(tc.want) {
			t.Fatalf("%s: expected a validation error", tc.name)
		}
	}
	if env.blobs.writes() != 1 {
		t.Fatalf("rejected uploads must not write blobs, got %d writes", env.blobs.writes())
	}
}

func TestUploadRequiresUser(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.Upload(context.Background(), "", UploadRequest{Name: "x", Type: "folder"}); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestUploadIntoForeignFolderIsAllowed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	folder, err := env.svc.Upload(ctx, env.alice, UploadRequest{Name: "shared", Type: "folder"})
	if err != nil {
		t.Fatalf("Upload folder: %v", err)
	}
	child, err := env.svc.Upload(ctx, env.bob, UploadRequest{Name: "b.txt", Type: "file", ParentID: folder.ID, Data: b64("b")})
	if err != nil {
		t.Fatalf("Upload into foreign folder: %v", err)
	}
	if child.ParentID != folder.ID || child.UserID != env.bob {
		t.Fatalf("unexpected child %#v", child)
	}
}

func TestUploadImageEnqueuesThumbnails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	img, err := env.svc.Upload(ctx, env.alice, UploadRequest{Name: "pic.png", Type: "image", Data: b64("png"), IsPublic: true})
	if err != nil {
		t.Fatalf("Upload image: %v", err)
	}
	jobs := env.queue.jobs()
	if len(jobs) != 1 || jobs[0] != [2]string{img.ID, env.alice} {
		t.Fatalf("unexpected jobs %v", jobs)
	}

	env.queue.fail(errors.New("queue down"))
	if _, err := env.svc.Upload(ctx, env.alice, UploadRequest{Name: "pic2.png", Type: "image", Data: b64("png")}); err != nil {
		t.Fatalf("enqueue failure must not fail the upload: %v", err)
	}
}

func TestShowHidesOtherUsersRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	file, err := env.svc.Upload(ctx, env.alice, UploadRequest{Name: "a.txt", Type: "file", Data: b64("a")})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := env.svc.Show(ctx, env.bob, file.ID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found for foreign record, got %v", err)
	}
	if _, err := env.svc.Show(ctx, env.alice, "missing"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found for missing record, got %v", err)
	}
}

func TestIndexPagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	folder, err := env.svc.Upload(ctx, env.alice, UploadRequest{Name: "many", Type: "folder"})
	if err != nil {
		t.Fatalf("Upload folder: %v", err)
	}
	for i := 0; i < 25; i++ {
		if _, err := env.svc.Upload(ctx, env.alice, UploadRequest{Name: fmt.Sprintf("f%02d", i), Type: "folder", ParentID: folder.ID}); err != nil {
			t.Fatalf("Upload %d: %v", i, err)
		}
	}
	if _, err := env.svc.Upload(ctx, env.bob, UploadRequest{Name: "intruder", Type: "folder", ParentID: folder.ID}); err != nil {
		t.Fatalf("Upload bob: %v", err)
	}

	first, err := env.svc.Index(ctx, env.alice, folder.ID, 0)
	if err != nil {
		t.Fatalf("Index page 0: %v", err)
	}
	second, err := env.svc.Index(ctx, env.alice, folder.ID, 1)
	if err != nil {
		t.Fatalf("Index page 1: %v", err)
	}
	if len(first) != 20 || len(second) != 5 {
		t.Fatalf("page sizes %d/%d, want 20/5", len(first), len(second))
	}
	seen := make(map[string]bool)
	for _, f := range append(first, second...) {
		if seen[f.ID] {
			t.Fatalf("record %s returned twice", f.ID)
		}
		if f.UserID != env.alice {
			t.Fatalf("foreign record %s listed", f.ID)
		}
		seen[f.ID] = true
	}
	if first[0].Name != "f00" || second[4].Name != "f24" {
		t.Fatalf("expected insertion order, got %s..%s", first[0].Name, second[4].Name)
	}

	empty, err := env.svc.Index(ctx, env.alice, folder.ID, 7)
	if err != nil || len(empty) != 0 {
		t.Fatalf("out of range page = %d records, err=%v", len(empty), err)
	}
	root, err := env.svc.Index(ctx, env.alice, "", -3)
	if err != nil || len(root) != 1 || root[0].ID != folder.ID {
		t.Fatalf("root listing = %#v, err=%v", root, err)
	}
}

func TestSetPublic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	file, err := env.svc.Upload(ctx, env.alice, UploadRequest{Name: "a.txt", Type: "file", Data: b64("a")})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	updated, err := env.svc.SetPublic(ctx, env.alice, file.ID, true)
	if err != nil || !updated.IsPublic {
		t.Fatalf("publish = %#v, err=%v", updated, err)
	}
	// setting the same value again still returns the record
	updated, err = env.svc.SetPublic(ctx, env.alice, file.ID, true)
	if err != nil || !updated.IsPublic {
		t.Fatalf("republish = %#v, err=%v", updated, err)
	}
	if _, err := env.svc.SetPublic(ctx, env.bob, file.ID, false); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found for foreign unpublish, got %v", err)
	}
	updated, err = env.svc.SetPublic(ctx, env.alice, file.ID, false)
	if err != nil || updated.IsPublic {
		t.Fatalf("unpublish = %#v, err=%v", updated, err)
	}
}

func TestGetContentAccessControl(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	file, err := env.svc.Upload(ctx, env.alice, UploadRequest{Name: "doc.txt", Type: "file", Data: b64("hello")})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if _, err := env.svc.GetContent(ctx, "", file.ID, 0); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("anonymous read of private file: %v", err)
	}
	if _, err := env.svc.GetContent(ctx, env.bob, file.ID, 0); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("foreign read of private file: %v", err)
	}
	content, err := env.svc.GetContent(ctx, env.alice, file.ID, 0)
	if err != nil || string(content.Data) != "hello" {
		t.Fatalf("owner read = %#v, err=%v", content, err)
	}
	if content.MimeType != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected mime type %q", content.MimeType)
	}

	if _, err := env.svc.SetPublic(ctx, env.alice, file.ID, true); err != nil {
		t.Fatalf("SetPublic: %v", err)
	}
	content, err = env.svc.GetContent(ctx, "", file.ID, 0)
	if err != nil || string(content.Data) != "hello" {
		t.Fatalf("anonymous read of public file = %#v, err=%v", content, err)
	}
}

func TestGetContentFolderAndMissingBlob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	folder, err := env.svc.Upload(ctx, env.alice, UploadRequest{Name: "dir", Type: "folder", IsPublic: true})
	if err != nil {
		t.Fatalf("Upload folder: %v", err)
	}
	if _, err := env.svc.GetContent(ctx, env.alice, folder.ID, 0); !errors.Is(err, ErrIsFolder) {
		t.Fatalf("expected folder error, got %v", err)
	}

	img, err := env.svc.Upload(ctx, env.alice, UploadRequest{Name: "pic.png", Type: "image", Data: b64("png")})
	if err != nil {
		t.Fatalf("Upload image: %v", err)
	}
	if _, err := env.svc.GetContent(ctx, env.alice, img.ID, 250); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected missing thumbnail to be not found, got %v", err)
	}
	if _, err := env.svc.GetContent(ctx, env.alice, img.ID, 42); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected invalid size, got %v", err)
	}
	if err := env.blobs.Put(ctx, blob.DerivativeRef(img.LocalPath, 250), []byte("thumb")); err != nil {
		t.Fatalf("Put thumbnail: %v", err)
	}
	content, err := env.svc.GetContent(ctx, env.alice, img.ID, 250)
	if err != nil || string(content.Data) != "thumb" || content.MimeType != "image/png" {
		t.Fatalf("thumbnail read = %#v, err=%v", content, err)
	}

	if _, err := env.svc.GetContent(ctx, env.alice, "missing", 0); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetContentWebpThumbnailIsPNG(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	img, err := env.svc.Upload(ctx, env.alice, UploadRequest{Name: "pic.webp", Type: "image", Data: b64("webp")})
	if err != nil {
		t.Fatalf("Upload image: %v", err)
	}
	if err := env.blobs.Put(ctx, blob.DerivativeRef(img.LocalPath, 100), []byte("thumb")); err != nil {
		t.Fatalf("Put thumbnail: %v", err)
	}

	original, err := env.svc.GetContent(ctx, env.alice, img.ID, 0)
	if err != nil || original.MimeType != "image/webp" {
		t.Fatalf("original read = %#v, err=%v", original, err)
	}
	thumb, err := env.svc.GetContent(ctx, env.alice, img.ID, 100)
	if err != nil || thumb.MimeType != "image/png" {
		t.Fatalf("thumbnail read = %#v, err=%v", thumb, err)
	}
}

func TestMimeTypeFor(t *testing.T) {
	cases := map[string]string{
		"photo.PNG":   "image/png",
		"archive":     defaultMimeType,
		"data.zzzzzz": defaultMimeType,
	}
	for name, want := range cases {
		if got := MimeTypeFor(name); got != want {
			t.Fatalf("MimeTypeFor(%q) = %q, want %q", name, got, want)
		}
	}
}

type testEnv struct {
	svc   *Service
	blobs *countingStore
	queue *recordingQueue
	alice string
	bob   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := openTestDB(t)
	t.Cleanup(func() { db.Close() })

	fs, err := blob.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	env := &testEnv{
		blobs: &countingStore{Store: fs},
		queue: &recordingQueue{},
		alice: insertUser(t, db, "alice@x.com"),
		bob:   insertUser(t, db, "bob@x.com"),
	}
	env.svc = NewService(storage.NewFileStore(db, "sqlite3"), env.blobs, env.queue)
	return env
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {
				DSN: ":memory:",
			},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func insertUser(t *testing.T, db *sql.DB, email string) string {
	t.Helper()
	id := "user-" + email
	_, err := db.Exec(`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, '', ?)`,
		id, email, time.Now().UTC())
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

type countingStore struct {
	blob.Store
	mu sync.Mutex
	n  int
}

func (c *countingStore) Write(ctx context.Context, data []byte) (string, error) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return c.Store.Write(ctx, data)
}

func (c *countingStore) writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type recordingQueue struct {
	mu      sync.Mutex
	err     error
	entries [][2]string
}

func (q *recordingQueue) Enqueue(_ context.Context, fileID, userID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.entries = append(q.entries, [2]string{fileID, userID})
	return nil
}

func (q *recordingQueue) fail(err error) {
	q.mu.Lock()
	q.err = err
	q.mu.Unlock()
}

func (q *recordingQueue) jobs() [][2]string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][2]string(nil), q.entries...)
}
