package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
)

// Storage keeps uploaded files flat under a single root directory. Every
// mutation is checked to stay lexically inside that root.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/uploads"
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &Storage{basePath: filepath.Clean(abs)}, nil
}

func (s *Storage) Root() string {
	return s.basePath
}

func (s *Storage) ensureDir() error {
	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return domain.WrapError(domain.ErrIO, "create storage dir", err)
	}
	return nil
}

// Save writes data under key and returns the stored record with its absolute
// path. An existing file with the same key is never overwritten.
func (s *Storage) Save(ctx context.Context, key string, data io.Reader) (domain.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredFile{}, domain.ContextError("save file", err)
	}
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return domain.StoredFile{}, domain.NewError(domain.ErrPathViolation, "save file", fmt.Sprintf("invalid storage key %q", key))
	}
	path, err := s.resolve(key)
	if err != nil {
		return domain.StoredFile{}, err
	}
	if err := s.ensureDir(); err != nil {
		return domain.StoredFile{}, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return domain.StoredFile{}, domain.WrapError(domain.ErrIO, "create file", err)
	}

	size, copyErr := io.Copy(f, data)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		return domain.StoredFile{}, domain.WrapError(domain.ErrIO, "write file", errors.Join(copyErr, closeErr))
	}

	info, err := os.Stat(path)
	if err != nil {
		return domain.StoredFile{}, domain.WrapError(domain.ErrIO, "stat file", err)
	}
	return domain.StoredFile{
		Name:      key,
		Path:      path,
		Size:      size,
		CreatedAt: info.ModTime().UTC(),
	}, nil
}

// Enumerate lists the regular files directly under the root, sorted by name.
func (s *Storage) Enumerate(ctx context.Context) ([]domain.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.ContextError("enumerate files", err)
	}
	if err := s.ensureDir(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIO, "read storage dir", err)
	}

	out := make([]domain.StoredFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, domain.WrapError(domain.ErrIO, "stat "+entry.Name(), err)
		}
		out = append(out, domain.StoredFile{
			Name:      entry.Name(),
			Path:      filepath.Join(s.basePath, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime().UTC(),
		})
	}
	return out, nil
}

// Delete removes a file given either its bare name or a path. It returns the
// resolved absolute path that was removed.
func (s *Storage) Delete(ctx context.Context, pathOrName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.ContextError("delete file", err)
	}
	if strings.TrimSpace(pathOrName) == "" {
		return "", domain.NewError(domain.ErrValidation, "delete file", "file name is required")
	}
	path, err := s.resolve(pathOrName)
	if err != nil {
		return "", err
	}

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.WrapError(domain.ErrNotFound, "delete file", fmt.Errorf("%s: %w", filepath.Base(path), err))
		}
		return "", domain.WrapError(domain.ErrIO, "delete file", err)
	}
	if info.IsDir() {
		return "", domain.NewError(domain.ErrValidation, "delete file", fmt.Sprintf("%s is a directory", filepath.Base(path)))
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.WrapError(domain.ErrNotFound, "delete file", err)
		}
		return "", domain.WrapError(domain.ErrIO, "delete file", err)
	}
	return path, nil
}

// resolve maps a bare name or path to an absolute path and rejects anything
// that does not lie strictly inside the root.
func (s *Storage) resolve(pathOrName string) (string, error) {
	var candidate string
	if filepath.IsAbs(pathOrName) {
		candidate = filepath.Clean(pathOrName)
	} else {
		candidate = filepath.Join(s.basePath, pathOrName)
	}

	rel, err := filepath.Rel(s.basePath, candidate)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.NewError(domain.ErrPathViolation, "resolve path", fmt.Sprintf("%q escapes the upload root", pathOrName))
	}
	return candidate, nil
}
