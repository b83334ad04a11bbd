package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"google.golang.org/api/drive/v3"

	"dubbing-service/domain/artifact"
	"dubbing-service/infrastructure/google"
)

// mockDriveService is an in-memory Drive
type mockDriveService struct {
	files      map[string]*drive.File
	content    map[string]string
	nextID     int
	shouldFail bool
	failError  error
	updates    int
}

func newMockDrive() *mockDriveService {
	return &mockDriveService{files: map[string]*drive.File{}, content: map[string]string{}}
}

// matches understands the handful of query shapes DriveStore issues
func (m *mockDriveService) matches(f *drive.File, query string) bool {
	parentOK := false
	for _, p := range f.Parents {
		if strings.Contains(query, "'"+p+"' in parents") {
			parentOK = true
		}
	}
	if !parentOK {
		return false
	}
	if i := strings.Index(query, "name = '"); i >= 0 {
		rest := query[i+len("name = '"):]
		return f.Name == rest[:strings.Index(rest, "'")]
	}
	if i := strings.Index(query, "name contains '"); i >= 0 {
		rest := query[i+len("name contains '"):]
		return strings.Contains(f.Name, rest[:strings.Index(rest, "'")])
	}
	return true
}

func (m *mockDriveService) ListFiles(ctx context.Context, query string, fields string, orderBy string) ([]*drive.File, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	var out []*drive.File
	for _, f := range m.files {
		if m.matches(f, query) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *mockDriveService) CreateFile(ctx context.Context, file *drive.File, media io.Reader) (*drive.File, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	m.nextID++
	f := *file
	f.Id = fmt.Sprintf("id-%d", m.nextID)
	if media != nil {
		b, _ := io.ReadAll(media)
		m.content[f.Id] = string(b)
		f.Size = int64(len(b))
	}
	m.files[f.Id] = &f
	return &f, nil
}

func (m *mockDriveService) UpdateMedia(ctx context.Context, fileID string, media io.Reader) (*drive.File, error) {
	m.updates++
	b, _ := io.ReadAll(media)
	m.content[fileID] = string(b)
	m.files[fileID].Size = int64(len(b))
	return m.files[fileID], nil
}

func (m *mockDriveService) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(m.content[fileID])), nil
}

func newDriveStore(t *testing.T, svc DriveService) *DriveStore {
	t.Helper()
	s, err := NewDriveStore(context.Background(), "root", google.AuthConfig{}, WithDriveService(svc))
	if err != nil {
		t.Fatalf("NewDriveStore() error = %v", err)
	}
	return s
}

func TestDriveStore_RoundTrip(t *testing.T) {
	svc := newMockDrive()
	s := newDriveStore(t, svc)
	ctx := context.Background()

	if _, err := s.Put(ctx, artifact.BucketAudio, "s_translated_es.mp3", strings.NewReader("audio-bytes")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	obj, err := s.Get(ctx, artifact.BucketAudio, "s_translated_es.mp3")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer obj.Close()
	got, _ := io.ReadAll(obj)
	if string(got) != "audio-bytes" {
		t.Errorf("Get() = %q", got)
	}
	if obj.Info().ContentType != "audio/mpeg" {
		t.Errorf("ContentType = %q", obj.Info().ContentType)
	}
}

func TestDriveStore_OverwriteUpdatesInPlace(t *testing.T) {
	svc := newMockDrive()
	s := newDriveStore(t, svc)
	ctx := context.Background()

	s.Put(ctx, artifact.BucketMerged, "s_merged_es.mp4", strings.NewReader("v1"))
	s.Put(ctx, artifact.BucketMerged, "s_merged_es.mp4", strings.NewReader("v2"))

	if svc.updates != 1 {
		t.Errorf("updates = %d, want 1", svc.updates)
	}
	// one folder plus one file
	if len(svc.files) != 2 {
		t.Errorf("drive holds %d entries, want 2", len(svc.files))
	}
	info, err := s.Stat(ctx, artifact.BucketMerged, "s_merged_es.mp4")
	if err != nil || info.Size != 2 {
		t.Errorf("Stat() = %+v, %v", info, err)
	}
}

func TestDriveStore_NotFound(t *testing.T) {
	s := newDriveStore(t, newMockDrive())
	ctx := context.Background()

	if _, err := s.Get(ctx, artifact.BucketAudio, "missing.mp3"); !errors.Is(err, artifact.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := s.Stat(ctx, artifact.BucketAudio, "../x"); !errors.Is(err, artifact.ErrNotFound) {
		t.Errorf("Stat() error = %v, want ErrNotFound", err)
	}
}

func TestDriveStore_List(t *testing.T) {
	s := newDriveStore(t, newMockDrive())
	ctx := context.Background()
	s.Put(ctx, artifact.BucketAudio, "aaa_translated_es.mp3", strings.NewReader("1"))
	s.Put(ctx, artifact.BucketAudio, "bbb_aaa_x.mp3", strings.NewReader("2"))

	infos, err := s.List(ctx, artifact.BucketAudio, "aaa_")
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].Name != "aaa_translated_es.mp3" {
		t.Errorf("List() = %+v", infos)
	}
}

func TestDriveStore_APIError(t *testing.T) {
	svc := newMockDrive()
	svc.shouldFail = true
	svc.failError = fmt.Errorf("googleapi: Error 403: permission denied")
	s := newDriveStore(t, svc)

	_, err := s.Put(context.Background(), artifact.BucketAudio, "a.mp3", strings.NewReader("x"))
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("Put() error = %v", err)
	}
}

func TestNewDriveStore_RequiresFolder(t *testing.T) {
	if _, err := NewDriveStore(context.Background(), "", google.AuthConfig{}, WithDriveService(newMockDrive())); err == nil {
		t.Error("NewDriveStore() expected error without root folder")
	}
}
