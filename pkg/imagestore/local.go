package imagestore

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"quotations/internal/apperr"
)

const itemsFolder = "items"

// LocalStorage writes images under a directory the router serves statically.
// References are public paths such as /uploads/items/<uuid>.jpg.
type LocalStorage struct {
	baseDir    string
	publicPath string
}

func NewLocalStorage(baseDir, publicPath string) (*LocalStorage, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, itemsFolder), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, publicPath: "/" + strings.Trim(publicPath, "/")}, nil
}

// Store writes to a temp file and renames it into place so a reader never sees
// a partially written image.
func (s *LocalStorage) Store(ctx context.Context, obj Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Join(s.baseDir, itemsFolder)
	name := uuid.NewString() + obj.Ext
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", apperr.Upstream("create upload file", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename
	if _, err := tmp.Write(obj.Data); err != nil {
		tmp.Close()
		return "", apperr.Upstream("write upload file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", apperr.Upstream("sync upload file", err)
	}
	if err := tmp.Close(); err != nil {
		return "", apperr.Upstream("close upload file", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return "", apperr.Upstream("move upload file", err)
	}
	return path.Join(s.publicPath, itemsFolder, name), nil
}

// Delete removes a file previously returned by Store. References outside the
// upload directory are ignored.
func (s *LocalStorage) Delete(_ context.Context, ref string) error {
	rel, ok := s.relPath(ref)
	if !ok {
		return nil
	}
	err := os.Remove(filepath.Join(s.baseDir, filepath.FromSlash(rel)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// FilePath maps a reference back to its location on disk.
func (s *LocalStorage) FilePath(ref string) (string, bool) {
	rel, ok := s.relPath(ref)
	if !ok {
		return "", false
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(rel)), true
}

func (s *LocalStorage) relPath(ref string) (string, bool) {
	prefix := strings.TrimSuffix(s.publicPath, "/") + "/"
	if !strings.HasPrefix(ref, prefix) {
		return "", false
	}
	rel := path.Clean(strings.TrimPrefix(ref, prefix))
	if rel == "." || strings.HasPrefix(rel, "..") || path.IsAbs(rel) {
		return "", false
	}
	return rel, true
}
