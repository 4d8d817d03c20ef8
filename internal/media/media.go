package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/google/uuid"
)

const LocatorPrefix = "/media/"

var ErrNotFound = errors.New("media not found")

type Item struct {
	Name     string
	MIMEType string
	Size     int64
	Locator  string
}

type Store interface {
	Save(ctx context.Context, name, mimeType string, data []byte) (Item, error)
	Open(name string) (io.ReadSeekCloser, Item, error)
}

var extensions = map[string]string{
	"audio/wav":        ".wav",
	"audio/x-wav":      ".wav",
	"audio/ogg":        ".ogg",
	"audio/mpeg":       ".mp3",
	"image/png":        ".png",
	"image/jpeg":       ".jpg",
	"image/webp":       ".webp",
	"video/mp4":        ".mp4",
	"application/json": ".json",
	"text/plain":       ".txt",
}

// NewName returns a collision-free file name such as "cover-<uuid>.png".
func NewName(kind, mimeType string) string {
	return fmt.Sprintf("%s-%s%s", kind, uuid.NewString(), Extension(mimeType))
}

func Extension(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	base = strings.TrimSpace(strings.ToLower(base))
	if ext, ok := extensions[base]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func Locator(name string) string {
	return LocatorPrefix + name
}
