package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/foxseedlab/rockhype/internal/generation"
	"github.com/foxseedlab/rockhype/internal/studio"
	"github.com/fsnotify/fsnotify"
)

const (
	queueSize       = 32
	analysisSuffix  = ".analysis.json"
	defaultSettle   = time.Second
	analysisTimeout = 2 * time.Minute
)

var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".webm": "audio/webm",
}

type Studio interface {
	AnalyzeSong(ctx context.Context, clip generation.Blob, source string) (generation.SongAttributes, error)
	Notify(n studio.Notice)
}

// Watcher analyzes audio files dropped into a folder and writes the result
// next to each file.
type Watcher struct {
	dir    string
	studio Studio
	queue  chan string
	settle time.Duration
}

func NewWatcher(dir string, s Studio) *Watcher {
	return &Watcher{
		dir:    dir,
		studio: s,
		queue:  make(chan string, queueSize),
		settle: defaultSettle,
	}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create inbox dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create inbox watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch inbox dir: %w", err)
	}
	slog.Info("watching inbox", "path", w.dir)

	workerCtx, cancel := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		w.work(workerCtx)
	}()
	defer func() {
		cancel()
		<-workerDone
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("inbox watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) {
		return
	}
	if _, ok := mimeTypeFor(event.Name); !ok {
		return
	}
	select {
	case w.queue <- event.Name:
		slog.Info("queued inbox file", "file", event.Name)
	default:
		slog.Warn("inbox queue is full, skipping file", "file", event.Name)
	}
}

func (w *Watcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.queue:
			if err := w.waitSettled(ctx, path); err != nil {
				slog.Error("inbox file did not settle", "error", err, "file", path)
				continue
			}
			if err := w.process(ctx, path); err != nil {
				slog.Error("failed to analyze inbox file", "error", err, "file", path)
			}
		}
	}
}

// waitSettled waits until the file size stops changing so half-copied files are not analyzed.
func (w *Watcher) waitSettled(ctx context.Context, path string) error {
	last := int64(-1)
	for {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.Size() == last && last > 0 {
			return nil
		}
		last = info.Size()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.settle):
		}
	}
}

func (w *Watcher) process(ctx context.Context, path string) error {
	mimeType, _ := mimeTypeFor(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, analysisTimeout)
	defer cancel()
	name := filepath.Base(path)
	attrs, err := w.studio.AnalyzeSong(ctx, generation.Blob{Data: data, MIMEType: mimeType}, name)
	if err != nil {
		return err
	}

	body, err := json.MarshalIndent(attrs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}
	if err := os.WriteFile(path+analysisSuffix, body, 0o644); err != nil {
		return fmt.Errorf("failed to write analysis: %w", err)
	}
	slog.Info("inbox file analyzed", "file", path, "title", attrs.Title, "genre", attrs.Genre)
	w.studio.Notify(studio.Notice{
		Kind:    "song_analysis",
		Message: fmt.Sprintf("%s: %q by %s (%s)", name, attrs.Title, attrs.Artist, attrs.Genre),
	})
	return nil
}

func mimeTypeFor(path string) (string, bool) {
	if strings.HasSuffix(path, analysisSuffix) {
		return "", false
	}
	t, ok := audioTypes[strings.ToLower(filepath.Ext(path))]
	return t, ok
}
