// Package blobstore stores voice-note attachments referenced by appointments.
// It defines the BlobStore interface with in-memory, PostgreSQL and MongoDB
// implementations, and Echo HTTP handlers for multipart upload, download,
// metadata retrieval and deletion.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrEmptyFile          = errors.New("file is empty")
	ErrMissingOwner       = errors.New("owner is required")
)

// DefaultMaxSize is the default attachment size limit in bytes (10 MB).
const DefaultMaxSize = 10 * 1024 * 1024

// AudioContentTypes lists the recording formats accepted as voice notes.
// Browsers record WebM audio that content sniffing reports as video/webm.
var AudioContentTypes = map[string]bool{
	"audio/mpeg":  true,
	"audio/mp4":   true,
	"audio/x-m4a": true,
	"audio/aac":   true,
	"audio/ogg":   true,
	"audio/opus":  true,
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/webm":  true,
	"video/webm":  true,
}

// Limits bounds what a store accepts.
type Limits struct {
	MaxSize      int64
	ContentTypes map[string]bool
}

// DefaultLimits returns the voice-note limits with the given size cap, or
// DefaultMaxSize when maxSize is not positive.
func DefaultLimits(maxSize int64) Limits {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return Limits{MaxSize: maxSize, ContentTypes: AudioContentTypes}
}

// BlobMetadata describes a stored blob.
type BlobMetadata struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	CreatedAt   time.Time `json:"createdAt"`
}

// BlobStore defines the contract for blob storage backends.
type BlobStore interface {
	Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, id string) error
	GetMetadata(ctx context.Context, id string) (*BlobMetadata, error)
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*BlobMetadata, int, error)
}

// prepare reads content under the size limit, resolves the content type and
// stamps the id, size, checksum and creation time.
func (l Limits) prepare(meta BlobMetadata, content io.Reader) (BlobMetadata, []byte, error) {
	if strings.TrimSpace(meta.Owner) == "" {
		return meta, nil, ErrMissingOwner
	}

	data, err := io.ReadAll(io.LimitReader(content, l.MaxSize+1))
	if err != nil {
		return meta, nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > l.MaxSize {
		return meta, nil, ErrFileTooLarge
	}
	if len(data) == 0 {
		return meta, nil, ErrEmptyFile
	}

	ct := resolveContentType(meta.ContentType, data)
	if len(l.ContentTypes) > 0 && !l.ContentTypes[ct] {
		return meta, nil, fmt.Errorf("%w: %s", ErrInvalidContentType, ct)
	}

	sum := sha256.Sum256(data)
	meta.ID = uuid.NewString()
	meta.ContentType = ct
	meta.Size = int64(len(data))
	meta.Checksum = hex.EncodeToString(sum[:])
	meta.CreatedAt = time.Now().UTC()
	return meta, data, nil
}

// resolveContentType trusts a declared type unless it is missing or generic,
// in which case the content is sniffed.
func resolveContentType(declared string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
		return strings.ToLower(mt)
	}
	detected := mimetype.Detect(data).String()
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return detected
	}
	return mt
}

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for testing/dev.
type InMemoryBlobStore struct {
	limits Limits
	mu     sync.RWMutex
	blobs  map[string]*storedBlob
}

func NewInMemoryBlobStore(limits Limits) *InMemoryBlobStore {
	return &InMemoryBlobStore{
		limits: limits,
		blobs:  make(map[string]*storedBlob),
	}
}

func (s *InMemoryBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := s.limits.prepare(meta, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *InMemoryBlobStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

func (s *InMemoryBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs[id]
	if !ok {
		return nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return &meta, nil
}

// ListByOwner returns the owner's blobs, newest first.
func (s *InMemoryBlobStore) ListByOwner(_ context.Context, owner string, limit, offset int) ([]*BlobMetadata, int, error) {
	s.mu.RLock()
	var matched []*BlobMetadata
	for _, b := range s.blobs {
		if b.metadata.Owner != owner {
			continue
		}
		m := b.metadata
		matched = append(matched, &m)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}
