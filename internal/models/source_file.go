package models

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileStatus tracks an uploaded file through processing.
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusReady      FileStatus = "ready"
	FileStatusError      FileStatus = "error"
)

// SourceFile is an uploaded recording stored in the blob store.
type SourceFile struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	StorageBucket string
	StoragePath   string
	Filename      string
	Extension     string
	SizeBytes     int64
	WorkoutID     *uuid.UUID
	Status        FileStatus
	ProcessedAt   *time.Time
	CreatedAt     time.Time
}

// NewSourceFile creates a pending file record. The extension is taken from the filename.
func NewSourceFile(userID uuid.UUID, bucket, storagePath, filename string, size int64) *SourceFile {
	return &SourceFile{
		ID:            uuid.New(),
		UserID:        userID,
		StorageBucket: bucket,
		StoragePath:   storagePath,
		Filename:      filename,
		Extension:     ExtFromPath(filename),
		SizeBytes:     size,
		Status:        FileStatusPending,
		CreatedAt:     time.Now(),
	}
}

// ParseExt returns the extension used to pick a decoder: the stored extension,
// then the storage path's, then "fit".
func (f *SourceFile) ParseExt() string {
	if ext := strings.ToLower(strings.TrimPrefix(f.Extension, ".")); ext != "" {
		return ext
	}
	if ext := ExtFromPath(f.StoragePath); ext != "" {
		return ext
	}
	return "fit"
}

// ExtFromPath returns the lower-cased extension of p without the dot.
func ExtFromPath(p string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
}
