package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/rockhype/internal/media"
	"github.com/foxseedlab/rockhype/internal/telemetry"
	"github.com/foxseedlab/rockhype/internal/transcript"
)

const (
	defaultVideoPollInterval = 5 * time.Second
	fallbackAlbumTitle       = "Rock and Roll Greatness"
	analysisInstruction      = "Analyze this rock song. Provide the song title, artist, genre, and a snippet of lyrics in JSON format."
)

type Models struct {
	Image     string
	ImageEdit string
	Analysis  string
	Video     string
}

// Service issues one request per call, stores what comes back and returns its media item.
// Nothing is retried.
type Service struct {
	client       Client
	store        media.Store
	models       Models
	metrics      *telemetry.GenerationMetrics
	pollInterval time.Duration
}

func NewService(client Client, store media.Store, models Models, metrics *telemetry.GenerationMetrics) *Service {
	if metrics == nil {
		metrics = telemetry.NoopGenerationMetrics()
	}
	return &Service{
		client:       client,
		store:        store,
		models:       models,
		metrics:      metrics,
		pollInterval: defaultVideoPollInterval,
	}
}

// AlbumPrompt builds the cover prompt from the first transcript entry.
func AlbumPrompt(entries []transcript.Entry) string {
	title := fallbackAlbumTitle
	if len(entries) > 0 && strings.TrimSpace(entries[0].Text) != "" {
		title = strings.TrimSpace(entries[0].Text)
	}
	return fmt.Sprintf(`A high-quality, professional rock and roll album cover.
The theme should be based on high-energy arena rock.
Features a heroic, stylized rock band in stage outfits, with a larger-than-life hype man cheering them on.
Background includes electric guitars, roaring crowds and stadium lights.
The title of the album should be inspired by these lyrics: "%s".
Cinematic lighting, hyper-realistic, 8k.`, title)
}

func (s *Service) AlbumCover(ctx context.Context, entries []transcript.Entry, size ImageSize) (item media.Item, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe(ctx, "album_cover", started, err) }()

	if size == "" {
		size = ImageSize1K
	}
	img, err := s.client.GenerateImage(ctx, ImageRequest{
		Model:       s.models.Image,
		Prompt:      AlbumPrompt(entries),
		AspectRatio: AspectSquare,
		Size:        size,
	})
	if err != nil {
		return media.Item{}, requestFailed("album cover", err)
	}
	return s.save(ctx, "album", img)
}

func (s *Service) EditImage(ctx context.Context, source Blob, instruction string) (item media.Item, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe(ctx, "image_edit", started, err) }()

	if len(source.Data) == 0 || strings.TrimSpace(instruction) == "" {
		return media.Item{}, fmt.Errorf("%w: an image and an instruction are required", ErrInvalidInput)
	}
	if source.MIMEType == "" {
		source.MIMEType = "image/jpeg"
	}
	img, err := s.client.GenerateImage(ctx, ImageRequest{
		Model:  s.models.ImageEdit,
		Prompt: instruction,
		Source: &source,
	})
	if err != nil {
		return media.Item{}, requestFailed("image edit", err)
	}
	return s.save(ctx, "edit", img)
}

func (s *Service) AnalyzeSong(ctx context.Context, clip Blob) (attrs SongAttributes, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe(ctx, "song_analysis", started, err) }()

	if len(clip.Data) == 0 {
		return SongAttributes{}, fmt.Errorf("%w: audio clip is empty", ErrInvalidInput)
	}
	if clip.MIMEType == "" {
		clip.MIMEType = "audio/mp3"
	}
	attrs, err = s.client.AnalyzeAudio(ctx, AnalysisRequest{
		Model:       s.models.Analysis,
		Audio:       clip,
		Instruction: analysisInstruction,
	})
	if err != nil {
		return SongAttributes{}, requestFailed("song analysis", err)
	}
	return attrs, nil
}

// Video starts a video job and polls it at a fixed interval until it is done.
func (s *Service) Video(ctx context.Context, prompt string, aspect AspectRatio, seed *Blob) (item media.Item, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe(ctx, "video", started, err) }()

	if strings.TrimSpace(prompt) == "" {
		return media.Item{}, fmt.Errorf("%w: a prompt is required", ErrInvalidInput)
	}
	if aspect == "" {
		aspect = AspectLandscape
	}
	if seed != nil && seed.MIMEType == "" {
		seed.MIMEType = "image/png"
	}

	op, err := s.client.StartVideo(ctx, VideoRequest{
		Model:       s.models.Video,
		Prompt:      prompt,
		AspectRatio: aspect,
		Seed:        seed,
	})
	if err != nil {
		return media.Item{}, requestFailed("video", err)
	}
	slog.Info("video generation started", "operation", op.Name)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return media.Item{}, requestFailed("video", ctx.Err())
		case <-ticker.C:
		}
		op, err = s.client.PollVideo(ctx, op)
		if err != nil {
			return media.Item{}, requestFailed("video poll", err)
		}
		slog.Debug("video generation polled", "operation", op.Name, "done", op.Done)
	}
	if op.URI == "" {
		return media.Item{}, requestFailed("video", fmt.Errorf("operation %s finished without a video", op.Name))
	}

	video, err := s.client.DownloadVideo(ctx, op.URI)
	if err != nil {
		return media.Item{}, requestFailed("video download", err)
	}
	return s.save(ctx, "video", video)
}

func (s *Service) save(ctx context.Context, kind string, b Blob) (media.Item, error) {
	if len(b.Data) == 0 {
		return media.Item{}, requestFailed(kind, fmt.Errorf("empty %s result", kind))
	}
	item, err := s.store.Save(ctx, media.NewName(kind, b.MIMEType), b.MIMEType, b.Data)
	if err != nil {
		return media.Item{}, fmt.Errorf("store %s: %w", kind, err)
	}
	slog.Info("generated media stored", "kind", kind, "name", item.Name, "size", item.Size)
	return item, nil
}

func requestFailed(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRequestFailed, what, err)
}
