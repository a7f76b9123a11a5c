// internal/storage/store.go - Storage abstraction over local directories and object stores
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/valpere/airphoto_tiler/internal"
)

const (
	s3Scheme  = "s3://"
	vsiS3Root = "/vsis3/"
	schemeSep = "://"
)

// Object is an opened stored object supporting sequential and ranged reads
type Object interface {
	io.ReadSeeker
	io.ReaderAt
	io.Closer
	Size() int64
}

// Store lists, reads and writes objects addressed by slash-separated keys
type Store interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Open(ctx context.Context, key string) (Object, error)
	RasterPath(key string) string
	Location() string
	Close() error
}

// Options configures store construction
type Options struct {
	Region string
}

// Open returns the Store implementation appropriate for location. s3:// and
// mem:// locations are served by gocloud buckets, anything else is a local
// directory.
func Open(ctx context.Context, location string, opts Options) (Store, error) {
	location = strings.TrimSuffix(location, "/")

	if !strings.Contains(location, schemeSep) {
		return NewDirStore(location)
	}

	scheme, _, _ := strings.Cut(location, schemeSep)
	bucketName, prefix := splitBucket(location)
	if bucketName == "" && scheme != "mem" {
		return nil, internal.NewError(internal.ErrorCodeConfig, fmt.Sprintf("missing bucket in %s", location), nil)
	}

	u := scheme + schemeSep + bucketName
	if scheme == "s3" && opts.Region != "" {
		u += "?region=" + url.QueryEscape(opts.Region)
	}

	bucket, err := blob.OpenBucket(ctx, u)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeStorage, fmt.Sprintf("failed to open bucket %s", u), err)
	}
	if prefix != "" {
		bucket = blob.PrefixedBucket(bucket, prefix+"/")
	}
	return NewBlobStore(bucket, location), nil
}

// ReadFile reads a single object addressed by a full location such as
// s3://bucket/conf/grid.json or /data/grid.json
func ReadFile(ctx context.Context, uri string, opts Options) ([]byte, error) {
	dir, key := SplitLocation(uri)
	store, err := Open(ctx, dir, opts)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Read(ctx, key)
}

// WriteFile writes a single object addressed by a full location
func WriteFile(ctx context.Context, uri string, data []byte, opts Options) error {
	dir, key := SplitLocation(uri)
	store, err := Open(ctx, dir, opts)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Write(ctx, key, data)
}

// SplitLocation splits a file location into its parent store location and key
func SplitLocation(uri string) (string, string) {
	if strings.Contains(uri, schemeSep) {
		_, rest, _ := strings.Cut(uri, schemeSep)
		i := strings.LastIndex(uri, "/")
		if !strings.Contains(rest, "/") || i < 0 {
			return uri, ""
		}
		return uri[:i], uri[i+1:]
	}
	return filepath.Dir(uri), filepath.Base(uri)
}

// VSIPath rewrites s3:// locations to GDAL's /vsis3/ virtual file system
func VSIPath(uri string) string {
	if strings.HasPrefix(uri, s3Scheme) {
		return vsiS3Root + strings.TrimPrefix(uri, s3Scheme)
	}
	return uri
}

// splitBucket returns the bucket name and key prefix of a scheme://bucket/prefix location
func splitBucket(location string) (string, string) {
	_, rest, _ := strings.Cut(location, schemeSep)
	bucket, prefix, _ := strings.Cut(rest, "/")
	return bucket, strings.Trim(prefix, "/")
}
