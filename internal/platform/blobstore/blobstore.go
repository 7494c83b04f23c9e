// Package blobstore stores proof photos and other user objects addressed by
// bucket and path. Uploads may overwrite an existing object when asked to.
package blobstore

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"strings"
	"time"
)

var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrObjectExists       = errors.New("object already exists")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrInvalidPath        = errors.New("invalid object path")
)

// MaxFileSize is the largest accepted object (10 MB).
const MaxFileSize = 10 * 1024 * 1024

// ProofPhotosBucket holds the photos attached to medication logs.
const ProofPhotosBucket = "proof-photos"

// AllowedContentTypes lists the accepted image MIME types.
var AllowedContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
	"image/heic": true,
}

// ObjectMeta describes a stored object.
type ObjectMeta struct {
	Bucket      string    `json:"bucket"`
	Path        string    `json:"path"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UploadInput is a single object write.
type UploadInput struct {
	Bucket      string
	Path        string
	ContentType string
	Body        io.Reader
	// Upsert replaces an existing object at the same path instead of
	// failing with ErrObjectExists.
	Upsert bool
}

// ObjectStore is implemented by the in-memory and Badger backends.
type ObjectStore interface {
	Upload(ctx context.Context, in UploadInput) (*ObjectMeta, error)
	Download(ctx context.Context, bucket, objectPath string) (io.ReadCloser, *ObjectMeta, error)
	Delete(ctx context.Context, bucket, objectPath string) error
	Close() error
}

// CleanPath normalises an object path and rejects traversal or empty paths.
// Dots inside a name ("pill..jpg") are fine; a ".." segment is not.
func CleanPath(p string) (string, error) {
	p = strings.TrimPrefix(p, "/")
	if p == "" || strings.ContainsRune(p, 0) {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return path.Clean(p), nil
}

func validateUpload(in UploadInput) (string, error) {
	if in.Bucket == "" || strings.Contains(in.Bucket, "/") {
		return "", ErrInvalidPath
	}
	if !AllowedContentTypes[in.ContentType] {
		return "", ErrInvalidContentType
	}
	return CleanPath(in.Path)
}

// PublicURL resolves the URL clients use to fetch an object through the
// public storage route.
func PublicURL(baseURL, bucket, objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(baseURL, "/") + PublicRoutePrefix + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

// PublicRoutePrefix is where Handler serves objects.
const PublicRoutePrefix = "/storage/v1/object/public/"
