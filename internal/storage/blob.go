// internal/storage/blob.go - Object store backed by gocloud.dev/blob
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"sort"
	"sync"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/valpere/airphoto_tiler/internal"
)

// BlobStore implements Store over a gocloud bucket. Keys are relative to the
// bucket (or to the prefix the bucket was opened with).
type BlobStore struct {
	bucket   *blob.Bucket
	location string
}

// NewBlobStore wraps bucket. location is the scheme://bucket/prefix the
// bucket was opened from and is used to build raster paths.
func NewBlobStore(bucket *blob.Bucket, location string) *BlobStore {
	return &BlobStore{bucket: bucket, location: location}
}

// List pages through the bucket and returns sorted keys starting with prefix
func (s *BlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, internal.NewError(internal.ErrorCodeStorage, fmt.Sprintf("failed to list %s", s.location), err)
		}
		if obj.IsDir {
			continue
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Read returns the full contents of key
func (s *BlobStore) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, s.wrap(err, "read", key)
	}
	return data, nil
}

// Write uploads data under key, overwriting any existing object
func (s *BlobStore) Write(ctx context.Context, key string, data []byte) error {
	opts := &blob.WriterOptions{ContentType: mime.TypeByExtension(path.Ext(key))}
	if err := s.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return s.wrap(err, "write", key)
	}
	return nil
}

// Open returns a reader issuing ranged requests against the bucket
func (s *BlobStore) Open(ctx context.Context, key string) (Object, error) {
	r, err := NewBlobReader(ctx, s.bucket, key)
	if err != nil {
		return nil, s.wrap(err, "open", key)
	}
	return r, nil
}

// RasterPath returns the GDAL-readable path of key
func (s *BlobStore) RasterPath(key string) string {
	return VSIPath(s.location + "/" + key)
}

// Location returns the scheme://bucket/prefix the store was opened with
func (s *BlobStore) Location() string {
	return s.location
}

// Close releases the underlying bucket
func (s *BlobStore) Close() error {
	return s.bucket.Close()
}

func (s *BlobStore) wrap(err error, verb, key string) error {
	msg := fmt.Sprintf("failed to %s %s/%s", verb, s.location, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return internal.NewError(internal.ErrorCodeNotFound, msg, err)
	}
	return internal.NewError(internal.ErrorCodeStorage, msg, err)
}

// BlobReader satisfies io.ReadSeeker and io.ReaderAt over a bucket object
// by issuing one range request per read.
type BlobReader struct {
	ctx    context.Context
	bucket *blob.Bucket
	key    string
	size   int64

	mu     sync.Mutex
	offset int64
}

// NewBlobReader creates a reader for key, fetching its size up front
func NewBlobReader(ctx context.Context, bucket *blob.Bucket, key string) (*BlobReader, error) {
	attrs, err := bucket.Attributes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get attributes for key %s: %w", key, err)
	}
	return &BlobReader{
		ctx:    ctx,
		bucket: bucket,
		key:    key,
		size:   attrs.Size,
	}, nil
}

// Read performs a sequential read
func (r *BlobReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.offset >= r.size {
		return 0, io.EOF
	}
	n, err := r.readAt(p, r.offset)
	r.offset += int64(n)
	return n, err
}

// Seek updates the offset for the next sequential Read
func (r *BlobReader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = r.offset + offset
	case io.SeekEnd:
		next = r.size + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("cannot seek to negative offset")
	}
	r.offset = next
	return next, nil
}

// ReadAt implements io.ReaderAt without touching the sequential offset
func (r *BlobReader) ReadAt(p []byte, off int64) (int, error) {
	return r.readAt(p, off)
}

// Size returns the object size in bytes
func (r *BlobReader) Size() int64 {
	return r.size
}

// Close is a no-op; every read opens and closes its own range reader
func (r *BlobReader) Close() error {
	return nil
}

func (r *BlobReader) readAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("invalid offset %d", off)
	}
	if off >= r.size {
		return 0, io.EOF
	}

	length := int64(len(p))
	short := off+length > r.size
	if short {
		length = r.size - off
	}

	rr, err := r.bucket.NewRangeReader(r.ctx, r.key, off, length, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create range reader: %w", err)
	}
	defer rr.Close()

	n, err := io.ReadFull(rr, p[:length])
	if err == nil && short {
		err = io.EOF
	}
	return n, err
}
