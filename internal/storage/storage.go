// Package storage keeps the bytes of uploaded project documents. Metadata
// lives in MySQL; a BlobStore only maps keys to content.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BlobStore persists document content under opaque keys.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// NewKey returns a fresh key for a document of projectID. Only the
// extension of the client-supplied filename is kept.
func NewKey(projectID uint64, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, `\`, "/"))))
	if len(ext) > 10 || strings.ContainsAny(ext, " /") {
		ext = ""
	}
	return fmt.Sprintf("projects/%d/%d/%02d/%v%s", projectID, now.Year(), now.Month(), uuid.New(), ext)
}
