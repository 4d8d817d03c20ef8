package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/rockhype/internal/discord"
	"github.com/foxseedlab/rockhype/internal/generation"
	"github.com/foxseedlab/rockhype/internal/media"
	"github.com/foxseedlab/rockhype/internal/repository"
	"github.com/foxseedlab/rockhype/internal/session"
	"github.com/foxseedlab/rockhype/internal/transcript"
	"github.com/foxseedlab/rockhype/internal/webhook"
)

const (
	finalizeTimeout     = 2 * time.Minute
	maxDiscordFileBytes = 25 << 20
)

type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

type NoticeListener interface {
	Notice(n Notice)
}

// Studio is the stage after a live session: it archives and publishes finished
// sessions and runs the generation tools against the latest transcript.
type Studio struct {
	repo      repository.Repository
	webhook   webhook.Sender
	publisher discord.Publisher
	gen       *generation.Service
	store     media.Store
	timezone  string
	loc       *time.Location

	mu          sync.RWMutex
	lastSession string
	lastEntries []transcript.Entry
	listeners   []NoticeListener

	wg sync.WaitGroup
}

type Options struct {
	Timezone string
	Location *time.Location
}

func New(opts Options, repo repository.Repository, sender webhook.Sender, publisher discord.Publisher, gen *generation.Service, store media.Store) *Studio {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Studio{
		repo:      repo,
		webhook:   sender,
		publisher: publisher,
		gen:       gen,
		store:     store,
		timezone:  opts.Timezone,
		loc:       loc,
	}
}

func (s *Studio) AddListener(l NoticeListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *Studio) notify(n Notice) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.listeners {
		l.Notice(n)
	}
}

// Notify lets other stages, such as the inbox watcher, push notices to the same listeners.
func (s *Studio) Notify(n Notice) {
	s.notify(n)
}

// SessionFinished keeps the transcript for the generation tools and finalizes in the background.
func (s *Studio) SessionFinished(res session.Result) {
	s.mu.Lock()
	s.lastSession = res.SessionID
	s.lastEntries = append([]transcript.Entry(nil), res.Transcript...)
	s.mu.Unlock()

	s.background(func(ctx context.Context) { s.finalize(ctx, res) })
}

func (s *Studio) background(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// LastTranscript returns the session id and a copy of the transcript most recently handed over.
func (s *Studio) LastTranscript() (string, []transcript.Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSession, append([]transcript.Entry(nil), s.lastEntries...)
}

// Wait blocks until background finalization has finished or ctx is done.
func (s *Studio) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Studio) finalize(ctx context.Context, res session.Result) {
	meta := transcript.Metadata{
		SessionID:  res.SessionID,
		StartedAt:  res.StartedAt,
		EndedAt:    res.EndedAt,
		Timezone:   s.timezone,
		StopReason: string(res.StopReason),
	}
	if res.Recording != nil {
		meta.RecordingURL = res.Recording.Locator
	}
	text := transcript.BuildText(meta, s.loc, res.Transcript)
	payload := transcript.BuildWebhookPayload(meta, s.loc, res.Transcript)

	if err := s.archive(ctx, res, meta, string(text)); err != nil {
		slog.Error("failed to archive session", "error", err, "session_id", res.SessionID)
	}
	if err := s.webhook.SendTranscript(ctx, payload); err != nil {
		slog.Error("failed to send webhook transcript", "error", err, "session_id", res.SessionID)
	}
	s.publishSession(ctx, res, text)
	slog.Info("session finalized", "session_id", res.SessionID, "entry_count", len(res.Transcript))
}

func (s *Studio) archive(ctx context.Context, res session.Result, meta transcript.Metadata, text string) error {
	entries := make([]repository.EntryInput, 0, len(res.Transcript))
	for _, e := range res.Transcript {
		entries = append(entries, repository.EntryInput{Speaker: string(e.Speaker), Text: e.Text, SpokenAt: e.Timestamp})
	}
	duration := int64(res.EndedAt.Sub(res.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}
	if err := s.repo.SaveSession(ctx, repository.SaveSessionInput{
		SessionID:       res.SessionID,
		StartedAt:       res.StartedAt,
		EndedAt:         res.EndedAt,
		StopReason:      meta.StopReason,
		Timezone:        meta.Timezone,
		DurationSeconds: duration,
		RecordingURL:    meta.RecordingURL,
		TranscriptText:  text,
		Entries:         entries,
	}); err != nil {
		return err
	}
	if res.Recording == nil {
		return nil
	}
	_, err := s.repo.InsertArtifact(ctx, repository.InsertArtifactInput{
		SessionID: res.SessionID,
		Kind:      repository.ArtifactKindRecording,
		Name:      res.Recording.Name,
		MIMEType:  res.Recording.MIMEType,
		URL:       res.Recording.Locator,
		Size:      res.Recording.Size,
	})
	return err
}

func (s *Studio) publishSession(ctx context.Context, res session.Result, text []byte) {
	if err := s.publisher.SendFile(ctx, discord.FileMessage{
		Content:     fmt.Sprintf("Session %s is over. %d transcript entries. What a show!", res.SessionID, len(res.Transcript)),
		Filename:    fmt.Sprintf("transcript-%s.txt", res.SessionID),
		ContentType: "text/plain",
		FileBody:    text,
	}); err != nil {
		slog.Error("failed to post transcript to discord", "error", err, "session_id", res.SessionID)
	}
	if res.Recording != nil {
		s.publishItem(ctx, res.Recording.Item, "Full session recording")
	}
}

// publishItem uploads a stored artifact to Discord, or posts its locator when it is too large.
func (s *Studio) publishItem(ctx context.Context, item media.Item, caption string) {
	if item.Size > maxDiscordFileBytes {
		if err := s.publisher.SendMessage(ctx, fmt.Sprintf("%s: %s", caption, item.Locator)); err != nil {
			slog.Error("failed to post media link to discord", "error", err, "name", item.Name)
		}
		return
	}
	body, err := s.readItem(item.Name)
	if err != nil {
		slog.Error("failed to read media for discord", "error", err, "name", item.Name)
		return
	}
	if err := s.publisher.SendFile(ctx, discord.FileMessage{
		Content:     caption,
		Filename:    item.Name,
		ContentType: item.MIMEType,
		FileBody:    body,
	}); err != nil {
		slog.Error("failed to post media to discord", "error", err, "name", item.Name)
	}
}

func (s *Studio) readItem(name string) ([]byte, error) {
	rc, _, err := s.store.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *Studio) AlbumCover(ctx context.Context, size generation.ImageSize) (media.Item, error) {
	sessionID, entries := s.LastTranscript()
	item, err := s.gen.AlbumCover(ctx, entries, size)
	if err != nil {
		s.failed("album_cover", err)
		return media.Item{}, err
	}
	s.recordArtifact(ctx, sessionID, repository.ArtifactKindAlbumCover, item, "")
	s.background(func(ctx context.Context) { s.publishItem(ctx, item, "Fresh album cover, straight off the press!") })
	s.notify(Notice{Kind: "album_cover", Message: "Your album cover is ready.", URL: item.Locator})
	return item, nil
}

func (s *Studio) EditImage(ctx context.Context, source generation.Blob, instruction string) (media.Item, error) {
	item, err := s.gen.EditImage(ctx, source, instruction)
	if err != nil {
		s.failed("image_edit", err)
		return media.Item{}, err
	}
	s.recordArtifact(ctx, "", repository.ArtifactKindImageEdit, item, instruction)
	s.background(func(ctx context.Context) { s.publishItem(ctx, item, "Edited: "+instruction) })
	s.notify(Notice{Kind: "image_edit", Message: "Your edited image is ready.", URL: item.Locator})
	return item, nil
}

func (s *Studio) Video(ctx context.Context, prompt string, aspect generation.AspectRatio, seed *generation.Blob) (media.Item, error) {
	s.notify(Notice{Kind: "video", Message: "Rendering your video. This takes a few minutes."})
	item, err := s.gen.Video(ctx, prompt, aspect, seed)
	if err != nil {
		s.failed("video", err)
		return media.Item{}, err
	}
	s.recordArtifact(ctx, "", repository.ArtifactKindVideo, item, prompt)
	s.background(func(ctx context.Context) { s.publishItem(ctx, item, "New music video: "+prompt) })
	s.notify(Notice{Kind: "video", Message: "Your video is ready.", URL: item.Locator})
	return item, nil
}

// AnalyzeSong runs song analysis and archives the attributes. source names where the clip came from.
func (s *Studio) AnalyzeSong(ctx context.Context, clip generation.Blob, source string) (generation.SongAttributes, error) {
	attrs, err := s.gen.AnalyzeSong(ctx, clip)
	if err != nil {
		s.failed("song_analysis", err)
		return generation.SongAttributes{}, err
	}
	detail, _ := json.Marshal(attrs)
	s.recordArtifact(ctx, "", repository.ArtifactKindAnalysis, media.Item{Name: source, MIMEType: "application/json"}, string(detail))
	return attrs, nil
}

func (s *Studio) recordArtifact(ctx context.Context, sessionID string, kind repository.ArtifactKind, item media.Item, detail string) {
	if _, err := s.repo.InsertArtifact(ctx, repository.InsertArtifactInput{
		SessionID: sessionID,
		Kind:      kind,
		Name:      item.Name,
		MIMEType:  item.MIMEType,
		URL:       item.Locator,
		Size:      item.Size,
		Detail:    detail,
	}); err != nil {
		slog.Error("failed to archive artifact", "error", err, "kind", kind, "name", item.Name)
	}
}

func (s *Studio) failed(kind string, err error) {
	slog.Error("generation failed", "error", err, "kind", kind, "billing_required", errors.Is(err, generation.ErrBillingRequired))
	s.notify(Notice{Kind: "error", Message: FailureMessage(kind, err)})
}

var failureMessages = map[string]string{
	"album_cover":   "Album cover generation failed.",
	"image_edit":    "Image edit failed.",
	"video":         "Video generation failed. Ensure your billing is enabled.",
	"song_analysis": "Song analysis failed.",
}

// FailureMessage is the user-facing text for a failed generation of the given kind.
func FailureMessage(kind string, err error) string {
	if errors.Is(err, generation.ErrInvalidInput) {
		return err.Error()
	}
	msg, ok := failureMessages[kind]
	if !ok {
		msg = "Generation failed."
	}
	if errors.Is(err, generation.ErrBillingRequired) && !strings.Contains(msg, "billing") {
		msg += " Ensure your billing is enabled."
	}
	return msg
}
