package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dubbing-service/domain/artifact"
)

// Workspace gives media tools local file paths for the artifacts of a session.
// Stores that keep artifacts on disk are read in place; anything else is
// downloaded into <root>/<session>/ first and kept there for later stages.
type Workspace struct {
	store artifact.Store
	root  string
}

// NewWorkspace creates a workspace rooted at root
func NewWorkspace(store artifact.Store, root string) *Workspace {
	if root == "" {
		root = filepath.Join(os.TempDir(), "dubbing-work")
	}
	return &Workspace{store: store, root: root}
}

func (w *Workspace) dir(sessionID string) (string, error) {
	d := filepath.Join(w.root, sessionID)
	if err := os.MkdirAll(d, 0755); err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}
	return d, nil
}

func (w *Workspace) local() bool {
	_, ok := w.store.(artifact.LocalPather)
	return ok
}

// Input returns a readable local path for bucket/name.
// The returned file must not be modified.
func (w *Workspace) Input(ctx context.Context, sessionID string, bucket artifact.Bucket, name string) (string, error) {
	if lp, ok := w.store.(artifact.LocalPather); ok {
		return lp.LocalPath(bucket, name)
	}

	dir, err := w.dir(sessionID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	obj, err := w.store.Get(ctx, bucket, name)
	if err != nil {
		return "", err
	}
	defer obj.Close()

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %w", err)
	}
	if _, err := io.Copy(tmp, obj); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to download %s/%s: %w", bucket, name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to download %s/%s: %w", bucket, name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to download %s/%s: %w", bucket, name, err)
	}
	return path, nil
}

// Output returns the local path a media tool should write name to
func (w *Workspace) Output(sessionID, name string) (string, error) {
	dir, err := w.dir(sessionID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// Publish stores a tool output under bucket/name.
// With a disk-backed store the workspace copy is removed afterwards.
func (w *Workspace) Publish(ctx context.Context, bucket artifact.Bucket, name, path string) (artifact.Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return artifact.Info{}, fmt.Errorf("failed to open tool output: %w", err)
	}
	info, err := w.store.Put(ctx, bucket, name, f)
	f.Close()
	if err != nil {
		return artifact.Info{}, err
	}
	if w.local() {
		os.Remove(path)
	}
	return info, nil
}

// Release removes the session directory if it holds nothing
func (w *Workspace) Release(sessionID string) {
	os.Remove(filepath.Join(w.root, sessionID))
}

// Purge removes every cached file of the session
func (w *Workspace) Purge(sessionID string) error {
	return os.RemoveAll(filepath.Join(w.root, sessionID))
}
