package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dubbing-service/domain/artifact"
)

// DefaultDirectories maps buckets to the directory names used on disk
var DefaultDirectories = map[artifact.Bucket]string{
	artifact.BucketAudio:   "AudioFiles",
	artifact.BucketMerged:  "MergedFiles",
	artifact.BucketUploads: "Uploads",
}

// FilesystemStore implements artifact.Store with one directory per bucket
type FilesystemStore struct {
	root string
	dirs map[artifact.Bucket]string
}

// NewFilesystemStore creates a store rooted at root. dirs overrides DefaultDirectories per bucket.
func NewFilesystemStore(root string, dirs map[artifact.Bucket]string) (*FilesystemStore, error) {
	if root == "" {
		root = "."
	}
	s := &FilesystemStore{root: root, dirs: make(map[artifact.Bucket]string)}
	for b, d := range DefaultDirectories {
		s.dirs[b] = d
	}
	for b, d := range dirs {
		if d != "" {
			s.dirs[b] = d
		}
	}

	for _, b := range artifact.Buckets() {
		if err := os.MkdirAll(s.bucketDir(b), 0o755); err != nil {
			return nil, fmt.Errorf("create bucket directory %s: %w", b, err)
		}
	}
	return s, nil
}

func (s *FilesystemStore) bucketDir(b artifact.Bucket) string {
	return filepath.Join(s.root, s.dirs[b])
}

func (s *FilesystemStore) path(b artifact.Bucket, name string) (string, error) {
	if !b.Valid() {
		return "", fmt.Errorf("unknown bucket %q", b)
	}
	if err := artifact.ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.bucketDir(b), name), nil
}

// Put implements artifact.Store; content appears under its name only once fully written
func (s *FilesystemStore) Put(ctx context.Context, bucket artifact.Bucket, name string, r io.Reader) (artifact.Info, error) {
	path, err := s.path(bucket, name)
	if err != nil {
		return artifact.Info{}, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return artifact.Info{}, fmt.Errorf("ensure bucket dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return artifact.Info{}, fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return artifact.Info{}, fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return artifact.Info{}, fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return artifact.Info{}, fmt.Errorf("rename artifact: %w", err)
	}

	return s.Stat(ctx, bucket, name)
}

// Get implements artifact.Store
func (s *FilesystemStore) Get(ctx context.Context, bucket artifact.Bucket, name string) (artifact.Object, error) {
	path, err := s.path(bucket, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s", artifact.ErrNotFound, bucket, name)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", artifact.ErrNotFound, bucket, name)
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	return &fileObject{File: f, info: infoFrom(bucket, fi)}, nil
}

// Stat implements artifact.Store
func (s *FilesystemStore) Stat(ctx context.Context, bucket artifact.Bucket, name string) (artifact.Info, error) {
	path, err := s.path(bucket, name)
	if err != nil {
		return artifact.Info{}, fmt.Errorf("%w: %s/%s", artifact.ErrNotFound, bucket, name)
	}
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return artifact.Info{}, fmt.Errorf("%w: %s/%s", artifact.ErrNotFound, bucket, name)
		}
		return artifact.Info{}, fmt.Errorf("stat artifact: %w", err)
	}
	if fi.IsDir() {
		return artifact.Info{}, fmt.Errorf("%w: %s/%s", artifact.ErrNotFound, bucket, name)
	}
	return infoFrom(bucket, fi), nil
}

// LocalPath implements artifact.LocalPather
func (s *FilesystemStore) LocalPath(bucket artifact.Bucket, name string) (string, error) {
	path, err := s.path(bucket, name)
	if err != nil {
		return "", fmt.Errorf("%w: %s/%s", artifact.ErrNotFound, bucket, name)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s/%s", artifact.ErrNotFound, bucket, name)
	}
	return path, nil
}

// List implements artifact.Lister
func (s *FilesystemStore) List(ctx context.Context, bucket artifact.Bucket, prefix string) ([]artifact.Info, error) {
	if !bucket.Valid() {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	entries, err := os.ReadDir(s.bucketDir(bucket))
	if err != nil {
		return nil, fmt.Errorf("list bucket %s: %w", bucket, err)
	}

	var out []artifact.Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) || artifact.ValidateName(e.Name()) != nil {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, infoFrom(bucket, fi))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func infoFrom(bucket artifact.Bucket, fi fs.FileInfo) artifact.Info {
	return artifact.Info{
		Bucket:      bucket,
		Name:        fi.Name(),
		Size:        fi.Size(),
		ContentType: artifact.ContentType(fi.Name()),
		ModTime:     fi.ModTime(),
	}
}

// fileObject is a seekable artifact.Object
type fileObject struct {
	*os.File
	info artifact.Info
}

func (o *fileObject) Info() artifact.Info {
	return o.info
}

// contextReader stops a copy once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var (
	_ artifact.Store       = (*FilesystemStore)(nil)
	_ artifact.LocalPather = (*FilesystemStore)(nil)
	_ artifact.Lister      = (*FilesystemStore)(nil)
)
