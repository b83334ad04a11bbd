package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"dubbing-service/domain/artifact"
)

// MinioConfig holds S3-compatible object store settings
type MinioConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	Region       string
	BucketPrefix string
}

// ObjectAPI is the subset of *minio.Client used by MinioStore
// This allows mocking the object store in tests
type ObjectAPI interface {
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// MinioStore implements artifact.Store on an S3-compatible object store
type MinioStore struct {
	client ObjectAPI
	prefix string
	region string
	logger *slog.Logger
}

// MinioOption is a functional option for configuring MinioStore
type MinioOption func(*MinioStore)

// WithObjectAPI sets a custom object client (for testing)
func WithObjectAPI(c ObjectAPI) MinioOption {
	return func(s *MinioStore) {
		s.client = c
	}
}

// WithMinioLogger sets the logger
func WithMinioLogger(l *slog.Logger) MinioOption {
	return func(s *MinioStore) {
		s.logger = l
	}
}

// NewMinioStore connects to the object store and provisions every bucket
func NewMinioStore(ctx context.Context, cfg MinioConfig, opts ...MinioOption) (*MinioStore, error) {
	s := &MinioStore{prefix: cfg.BucketPrefix, region: cfg.Region, logger: slog.Default()}
	if s.region == "" {
		s.region = "us-east-1"
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("minio endpoint is required")
		}
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: s.region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		s.client = client
	}

	for _, b := range artifact.Buckets() {
		if err := s.ensureBucket(ctx, s.bucketName(b)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MinioStore) bucketName(b artifact.Bucket) string {
	return s.prefix + string(b)
}

func (s *MinioStore) ensureBucket(ctx context.Context, name string) error {
	err := s.client.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: s.region})
	if err == nil {
		s.logger.Info("bucket created", "bucket", name)
		return nil
	}
	exists, errExists := s.client.BucketExists(ctx, name)
	if errExists == nil && exists {
		return nil
	}
	return fmt.Errorf("failed to create bucket %s: %w", name, err)
}

// Put implements artifact.Store. The object store replaces objects atomically.
func (s *MinioStore) Put(ctx context.Context, bucket artifact.Bucket, name string, r io.Reader) (artifact.Info, error) {
	if err := checkRef(bucket, name); err != nil {
		return artifact.Info{}, err
	}

	contentType := artifact.ContentType(name)
	size := int64(-1)
	if sz, ok := r.(interface{ Size() int64 }); ok {
		size = sz.Size()
	}
	up, err := s.client.PutObject(ctx, s.bucketName(bucket), name, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return artifact.Info{}, fmt.Errorf("upload %s/%s: %w", bucket, name, err)
	}
	return artifact.Info{
		Bucket:      bucket,
		Name:        name,
		Size:        up.Size,
		ContentType: contentType,
		ModTime:     up.LastModified,
	}, nil
}

// Get implements artifact.Store
func (s *MinioStore) Get(ctx context.Context, bucket artifact.Bucket, name string) (artifact.Object, error) {
	if err := checkRef(bucket, name); err != nil {
		return nil, notFound(bucket, name)
	}
	obj, err := s.client.GetObject(ctx, s.bucketName(bucket), name, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapError(bucket, name, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before any byte is served
	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, s.mapError(bucket, name, err)
	}
	return &minioObject{Object: obj, info: infoFromObject(bucket, st)}, nil
}

// Stat implements artifact.Store
func (s *MinioStore) Stat(ctx context.Context, bucket artifact.Bucket, name string) (artifact.Info, error) {
	if err := checkRef(bucket, name); err != nil {
		return artifact.Info{}, notFound(bucket, name)
	}
	st, err := s.client.StatObject(ctx, s.bucketName(bucket), name, minio.StatObjectOptions{})
	if err != nil {
		return artifact.Info{}, s.mapError(bucket, name, err)
	}
	return infoFromObject(bucket, st), nil
}

// List implements artifact.Lister
func (s *MinioStore) List(ctx context.Context, bucket artifact.Bucket, prefix string) ([]artifact.Info, error) {
	var out []artifact.Info
	for obj := range s.client.ListObjects(ctx, s.bucketName(bucket), minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", bucket, obj.Err)
		}
		if strings.Contains(obj.Key, "/") {
			continue
		}
		out = append(out, infoFromObject(bucket, obj))
	}
	return out, nil
}

func (s *MinioStore) mapError(bucket artifact.Bucket, name string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return notFound(bucket, name)
	}
	return fmt.Errorf("object store %s/%s: %w", bucket, name, err)
}

func infoFromObject(bucket artifact.Bucket, o minio.ObjectInfo) artifact.Info {
	ct := o.ContentType
	if ct == "" || ct == "application/octet-stream" {
		ct = artifact.ContentType(o.Key)
	}
	return artifact.Info{
		Bucket:      bucket,
		Name:        o.Key,
		Size:        o.Size,
		ContentType: ct,
		ModTime:     o.LastModified,
	}
}

// minioObject is a seekable artifact.Object
type minioObject struct {
	*minio.Object
	info artifact.Info
}

func (o *minioObject) Info() artifact.Info {
	return o.info
}

func checkRef(bucket artifact.Bucket, name string) error {
	if !bucket.Valid() {
		return fmt.Errorf("unknown bucket %q", bucket)
	}
	return artifact.ValidateName(name)
}

func notFound(bucket artifact.Bucket, name string) error {
	return fmt.Errorf("%w: %s/%s", artifact.ErrNotFound, bucket, name)
}

var (
	_ artifact.Store  = (*MinioStore)(nil)
	_ artifact.Lister = (*MinioStore)(nil)
)
