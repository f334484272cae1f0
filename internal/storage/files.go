package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"filesmanager/internal/common"
	"filesmanager/internal/models"
)

// DefaultPageSize is the number of records returned per List page.
const DefaultPageSize = 20

// FileStore persists file and folder metadata.
type FileStore struct {
	db     *sql.DB
	driver string
}

func NewFileStore(db *sql.DB, driver string) *FileStore {
	return &FileStore{db: db, driver: driver}
}

const fileColumns = `id, user_id, name, type, is_public, parent_id, local_path`

func (s *FileStore) Create(ctx context.Context, file *models.File) error {
	var localPath sql.NullString
	if file.LocalPath != "" {
		localPath = sql.NullString{String: file.LocalPath, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		Rebind(s.driver, `INSERT INTO files (`+fileColumns+`, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		file.ID, file.UserID, file.Name, string(file.Type), file.IsPublic, file.ParentID, localPath, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

// FindByID looks a record up regardless of its owner.
func (s *FileStore) FindByID(ctx context.Context, id string) (*models.File, error) {
	row := s.db.QueryRowContext(ctx,
		Rebind(s.driver, `SELECT `+fileColumns+` FROM files WHERE id = ?`), id)
	return scanFile(row)
}

func (s *FileStore) FindByIDAndOwner(ctx context.Context, id, userID string) (*models.File, error) {
	row := s.db.QueryRowContext(ctx,
		Rebind(s.driver, `SELECT `+fileColumns+` FROM files WHERE id = ? AND user_id = ?`), id, userID)
	return scanFile(row)
}

// List returns one page of the owner's records under parentID in insertion order.
func (s *FileStore) List(ctx context.Context, userID, parentID string, page, pageSize int) ([]*models.File, error) {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	rows, err := s.db.QueryContext(ctx,
		Rebind(s.driver, `SELECT `+fileColumns+` FROM files WHERE user_id = ? AND parent_id = ? ORDER BY id LIMIT ? OFFSET ?`),
		userID, parentID, pageSize, page*pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := make([]*models.File, 0, pageSize)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// SetPublic flips visibility in a single conditional update and returns the
// updated record.
func (s *FileStore) SetPublic(ctx context.Context, id, userID string, isPublic bool) (*models.File, error) {
	_, err := s.db.ExecContext(ctx,
		Rebind(s.driver, `UPDATE files SET is_public = ? WHERE id = ? AND user_id = ?`),
		isPublic, id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update file: %w", err)
	}
	// RowsAffected is not usable here: mysql reports 0 when the value is unchanged.
	return s.FindByIDAndOwner(ctx, id, userID)
}

func (s *FileStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*models.File, error) {
	var (
		f         models.File
		fileType  string
		localPath sql.NullString
	)
	if err := row.Scan(&f.ID, &f.UserID, &f.Name, &fileType, &f.IsPublic, &f.ParentID, &localPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("scan file: %w", err)
	}
	f.Type = models.FileType(fileType)
	f.LocalPath = localPath.String
	return &f, nil
}
