package models

// FileType distinguishes folders from stored content.
type FileType string

const (
	FileTypeFolder FileType = "folder"
	FileTypeFile   FileType = "file"
	FileTypeImage  FileType = "image"
)

// RootID is the parent id of top level records.
const RootID = "0"

// Valid reports whether t is one of the known file types.
func (t FileType) Valid() bool {
	switch t {
	case FileTypeFolder, FileTypeFile, FileTypeImage:
		return true
	default:
		return false
	}
}

// File describes an uploaded file or folder. LocalPath references the blob
// holding the content, is empty for folders and never leaves the server.
type File struct {
	ID        string   `json:"id"`
	UserID    string   `json:"userId"`
	Name      string   `json:"name"`
	Type      FileType `json:"type"`
	IsPublic  bool     `json:"isPublic"`
	ParentID  string   `json:"parentId"`
	LocalPath string   `json:"-"`
}

// IsFolder reports whether the record is a folder.
func (f *File) IsFolder() bool {
	return f != nil && f.Type == FileTypeFolder
}
