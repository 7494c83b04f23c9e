package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"
	"time"
)

type storedObject struct {
	meta    ObjectMeta
	content []byte
}

// InMemory is a thread-safe ObjectStore for tests and development.
type InMemory struct {
	mu      sync.RWMutex
	objects map[string]*storedObject
}

func NewInMemory() *InMemory {
	return &InMemory{objects: make(map[string]*storedObject)}
}

func objectKey(bucket, p string) string { return bucket + "/" + p }

// readBody enforces MaxFileSize and fills in size and hash.
func readBody(r io.Reader) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading content: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, "", ErrFileTooLarge
	}
	return data, fmt.Sprintf("%x", sha256.Sum256(data)), nil
}

func (s *InMemory) Upload(_ context.Context, in UploadInput) (*ObjectMeta, error) {
	p, err := validateUpload(in)
	if err != nil {
		return nil, err
	}
	data, hash, err := readBody(in.Body)
	if err != nil {
		return nil, err
	}

	meta := ObjectMeta{
		Bucket:      in.Bucket,
		Path:        p,
		ContentType: in.ContentType,
		Size:        int64(len(data)),
		Hash:        hash,
		UpdatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := objectKey(in.Bucket, p)
	if _, exists := s.objects[key]; exists && !in.Upsert {
		return nil, ErrObjectExists
	}
	s.objects[key] = &storedObject{meta: meta, content: data}

	out := meta
	return &out, nil
}

func (s *InMemory) Download(_ context.Context, bucket, objectPath string) (io.ReadCloser, *ObjectMeta, error) {
	p, err := CleanPath(objectPath)
	if err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	obj, ok := s.objects[objectKey(bucket, p)]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrObjectNotFound
	}
	meta := obj.meta
	return io.NopCloser(bytes.NewReader(obj.content)), &meta, nil
}

func (s *InMemory) Delete(_ context.Context, bucket, objectPath string) error {
	p, err := CleanPath(objectPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := objectKey(bucket, p)
	if _, ok := s.objects[key]; !ok {
		return ErrObjectNotFound
	}
	delete(s.objects, key)
	return nil
}

func (s *InMemory) Close() error { return nil }
