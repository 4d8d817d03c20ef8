package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRequestFailed = errors.New("generation request failed")
	// ErrBillingRequired is wrapped together with ErrRequestFailed when the API key's
	// project has no billing enabled. Video generation needs it.
	ErrBillingRequired = errors.New("billing is not enabled for this API key")
	ErrInvalidInput    = errors.New("invalid generation input")
)

type ImageSize string

const (
	ImageSize1K ImageSize = "1K"
	ImageSize2K ImageSize = "2K"
	ImageSize4K ImageSize = "4K"
)

func ParseImageSize(s string) (ImageSize, error) {
	switch ImageSize(strings.ToUpper(strings.TrimSpace(s))) {
	case "", ImageSize1K:
		return ImageSize1K, nil
	case ImageSize2K:
		return ImageSize2K, nil
	case ImageSize4K:
		return ImageSize4K, nil
	default:
		return "", fmt.Errorf("%w: image size must be 1K, 2K or 4K: %q", ErrInvalidInput, s)
	}
}

type AspectRatio string

const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
	AspectSquare    AspectRatio = "1:1"
)

// ParseVideoAspect accepts the two video orientations; empty means landscape.
func ParseVideoAspect(s string) (AspectRatio, error) {
	switch AspectRatio(strings.TrimSpace(s)) {
	case "", AspectLandscape:
		return AspectLandscape, nil
	case AspectPortrait:
		return AspectPortrait, nil
	default:
		return "", fmt.Errorf("%w: aspect ratio must be 16:9 or 9:16: %q", ErrInvalidInput, s)
	}
}

type Blob struct {
	Data     []byte
	MIMEType string
}

type SongAttributes struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Genre  string `json:"genre"`
	Lyrics string `json:"lyrics"`
}

type ImageRequest struct {
	Model  string
	Prompt string
	// Source is set for edits.
	Source      *Blob
	AspectRatio AspectRatio
	Size        ImageSize
}

type AnalysisRequest struct {
	Model       string
	Audio       Blob
	Instruction string
}

type VideoRequest struct {
	Model       string
	Prompt      string
	AspectRatio AspectRatio
	Seed        *Blob
}

// VideoOperation is a long-running video job handle.
type VideoOperation struct {
	Name string
	Done bool
	URI  string
}

// Client talks to the hosted generation models. Implementations wrap billing
// failures with ErrBillingRequired.
type Client interface {
	GenerateImage(ctx context.Context, req ImageRequest) (Blob, error)
	AnalyzeAudio(ctx context.Context, req AnalysisRequest) (SongAttributes, error)
	StartVideo(ctx context.Context, req VideoRequest) (VideoOperation, error)
	PollVideo(ctx context.Context, op VideoOperation) (VideoOperation, error)
	DownloadVideo(ctx context.Context, uri string) (Blob, error)
}

// IsBillingError reports whether err text looks like a billing or quota-project refusal.
func IsBillingError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBillingRequired) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "billing") || strings.Contains(msg, "permission_denied")
}
