package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/foxseedlab/rockhype/internal/media"
)

type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Save(ctx context.Context, name, mimeType string, data []byte) (media.Item, error) {
	if err := ctx.Err(); err != nil {
		return media.Item{}, err
	}
	clean, err := cleanName(name)
	if err != nil {
		return media.Item{}, err
	}
	path := filepath.Join(s.dir, clean)
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return media.Item{}, fmt.Errorf("write media %s: %w", clean, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return media.Item{}, fmt.Errorf("commit media %s: %w", clean, err)
	}
	return media.Item{
		Name:     clean,
		MIMEType: mimeType,
		Size:     int64(len(data)),
		Locator:  media.Locator(clean),
	}, nil
}

func (s *LocalStore) Open(name string) (io.ReadSeekCloser, media.Item, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, media.Item{}, err
	}
	f, err := os.Open(filepath.Join(s.dir, clean))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, media.Item{}, media.ErrNotFound
		}
		return nil, media.Item{}, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, media.Item{}, err
	}
	return f, media.Item{
		Name:     clean,
		MIMEType: mime.TypeByExtension(filepath.Ext(clean)),
		Size:     info.Size(),
		Locator:  media.Locator(clean),
	}, nil
}

func cleanName(name string) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == "/" || base == ".." || base == "" || strings.HasSuffix(base, ".part") {
		return "", fmt.Errorf("%w: invalid name %q", media.ErrNotFound, name)
	}
	return base, nil
}
