package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"dubbing-service/domain/artifact"
	"dubbing-service/infrastructure/google"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DriveService defines the interface for Google Drive API operations
// This allows mocking the Google Drive API in tests
type DriveService interface {
	ListFiles(ctx context.Context, query string, fields string, orderBy string) ([]*drive.File, error)
	CreateFile(ctx context.Context, file *drive.File, media io.Reader) (*drive.File, error)
	UpdateMedia(ctx context.Context, fileID string, media io.Reader) (*drive.File, error)
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// GoogleDriveService is the production implementation using the Google Drive API
type GoogleDriveService struct {
	service *drive.Service
}

const fileFields = "id, name, mimeType, size, modifiedTime"

// ListFiles lists files matching the query
func (s *GoogleDriveService) ListFiles(ctx context.Context, query string, fields string, orderBy string) ([]*drive.File, error) {
	r, err := s.service.Files.List().
		Q(query).
		Fields(googleapi.Field("files(" + fields + ")")).
		OrderBy(orderBy).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return r.Files, nil
}

// CreateFile creates a file or folder; media may be nil for folders
func (s *GoogleDriveService) CreateFile(ctx context.Context, file *drive.File, media io.Reader) (*drive.File, error) {
	call := s.service.Files.Create(file).Fields(fileFields).Context(ctx)
	if media != nil {
		call = call.Media(media, googleapi.ContentType(file.MimeType))
	}
	return call.Do()
}

// UpdateMedia replaces the content of an existing file
func (s *GoogleDriveService) UpdateMedia(ctx context.Context, fileID string, media io.Reader) (*drive.File, error) {
	return s.service.Files.Update(fileID, &drive.File{}).
		Media(media).
		Fields(fileFields).
		Context(ctx).
		Do()
}

// Download streams file content
func (s *GoogleDriveService) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := s.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// DriveStore implements artifact.Store with one Drive folder per bucket
type DriveStore struct {
	driveService DriveService
	rootFolderID string
	logger       *slog.Logger

	mu      sync.Mutex
	folders map[artifact.Bucket]string
}

// DriveOption is a functional option for configuring DriveStore
type DriveOption func(*DriveStore)

// WithDriveService sets a custom drive service (for testing)
func WithDriveService(svc DriveService) DriveOption {
	return func(s *DriveStore) {
		s.driveService = svc
	}
}

// WithDriveLogger sets the logger
func WithDriveLogger(l *slog.Logger) DriveOption {
	return func(s *DriveStore) {
		s.logger = l
	}
}

// NewDriveStore creates a Drive-backed store under rootFolderID
// If no drive service is provided, a real one is created from auth
func NewDriveStore(ctx context.Context, rootFolderID string, auth google.AuthConfig, opts ...DriveOption) (*DriveStore, error) {
	if rootFolderID == "" {
		return nil, fmt.Errorf("drive root folder id is required")
	}
	s := &DriveStore{
		rootFolderID: rootFolderID,
		logger:       slog.Default(),
		folders:      make(map[artifact.Bucket]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.driveService == nil {
		client, err := google.HTTPClient(ctx, auth, drive.DriveScope)
		if err != nil {
			return nil, err
		}
		srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
		if err != nil {
			return nil, fmt.Errorf("unable to create drive service: %w", err)
		}
		s.driveService = &GoogleDriveService{service: srv}
	}
	return s, nil
}

// folder returns the folder ID for a bucket, creating the folder on first use
func (s *DriveStore) folder(ctx context.Context, bucket artifact.Bucket, create bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.folders[bucket]; ok {
		return id, nil
	}

	query := fmt.Sprintf("'%s' in parents and name = '%s' and mimeType = '%s' and trashed = false", s.rootFolderID, bucket, folderMimeType)
	files, err := s.driveService.ListFiles(ctx, query, "id, name", "name")
	if err != nil {
		return "", fmt.Errorf("failed to look up folder %s: %w", bucket, err)
	}
	if len(files) > 0 {
		s.folders[bucket] = files[0].Id
		return files[0].Id, nil
	}
	if !create {
		return "", nil
	}

	f, err := s.driveService.CreateFile(ctx, &drive.File{
		Name:     string(bucket),
		MimeType: folderMimeType,
		Parents:  []string{s.rootFolderID},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", bucket, err)
	}
	s.logger.Info("drive folder created", "bucket", bucket, "id", f.Id)
	s.folders[bucket] = f.Id
	return f.Id, nil
}

// find returns the file for bucket/name, or nil
func (s *DriveStore) find(ctx context.Context, bucket artifact.Bucket, name string) (*drive.File, error) {
	folderID, err := s.folder(ctx, bucket, false)
	if err != nil || folderID == "" {
		return nil, err
	}
	query := fmt.Sprintf("'%s' in parents and name = '%s' and trashed = false", folderID, name)
	files, err := s.driveService.ListFiles(ctx, query, fileFields, "modifiedTime desc")
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}
	return files[0], nil
}

// Put implements artifact.Store; an existing file keeps its ID and gets new content
func (s *DriveStore) Put(ctx context.Context, bucket artifact.Bucket, name string, r io.Reader) (artifact.Info, error) {
	if err := checkRef(bucket, name); err != nil {
		return artifact.Info{}, err
	}

	existing, err := s.find(ctx, bucket, name)
	if err != nil {
		return artifact.Info{}, err
	}

	var f *drive.File
	if existing != nil {
		f, err = s.driveService.UpdateMedia(ctx, existing.Id, r)
	} else {
		var folderID string
		folderID, err = s.folder(ctx, bucket, true)
		if err != nil {
			return artifact.Info{}, err
		}
		f, err = s.driveService.CreateFile(ctx, &drive.File{
			Name:     name,
			MimeType: artifact.ContentType(name),
			Parents:  []string{folderID},
		}, r)
	}
	if err != nil {
		return artifact.Info{}, fmt.Errorf("failed to upload %s/%s: %w", bucket, name, err)
	}
	return infoFromDrive(bucket, f), nil
}

// Get implements artifact.Store
func (s *DriveStore) Get(ctx context.Context, bucket artifact.Bucket, name string) (artifact.Object, error) {
	if err := checkRef(bucket, name); err != nil {
		return nil, notFound(bucket, name)
	}
	f, err := s.find(ctx, bucket, name)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, notFound(bucket, name)
	}
	body, err := s.driveService.Download(ctx, f.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s/%s: %w", bucket, name, err)
	}
	return &streamObject{ReadCloser: body, info: infoFromDrive(bucket, f)}, nil
}

// Stat implements artifact.Store
func (s *DriveStore) Stat(ctx context.Context, bucket artifact.Bucket, name string) (artifact.Info, error) {
	if err := checkRef(bucket, name); err != nil {
		return artifact.Info{}, notFound(bucket, name)
	}
	f, err := s.find(ctx, bucket, name)
	if err != nil {
		return artifact.Info{}, err
	}
	if f == nil {
		return artifact.Info{}, notFound(bucket, name)
	}
	return infoFromDrive(bucket, f), nil
}

// List implements artifact.Lister
func (s *DriveStore) List(ctx context.Context, bucket artifact.Bucket, prefix string) ([]artifact.Info, error) {
	folderID, err := s.folder(ctx, bucket, false)
	if err != nil || folderID == "" {
		return nil, err
	}
	query := fmt.Sprintf("'%s' in parents and name contains '%s' and trashed = false", folderID, prefix)
	files, err := s.driveService.ListFiles(ctx, query, fileFields, "name")
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	var out []artifact.Info
	for _, f := range files {
		if len(f.Name) >= len(prefix) && f.Name[:len(prefix)] == prefix {
			out = append(out, infoFromDrive(bucket, f))
		}
	}
	return out, nil
}

func infoFromDrive(bucket artifact.Bucket, f *drive.File) artifact.Info {
	return artifact.Info{
		Bucket:      bucket,
		Name:        f.Name,
		Size:        f.Size,
		ContentType: artifact.ContentType(f.Name),
		ModTime:     parseTime(f.ModifiedTime),
	}
}

// parseTime parses a Google Drive timestamp string
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// streamObject is a non-seekable artifact.Object
type streamObject struct {
	io.ReadCloser
	info artifact.Info
}

func (o *streamObject) Info() artifact.Info {
	return o.info
}

var (
	_ artifact.Store  = (*DriveStore)(nil)
	_ artifact.Lister = (*DriveStore)(nil)
)
