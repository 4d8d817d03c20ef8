package transcriber

import (
	"errors"
	"io"
	"testing"

	"github.com/foxseedlab/rockhype/internal/transcriber"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsReconnectableStreamError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "eof", err: io.EOF, want: true},
		{name: "max duration abort", err: status.Error(codes.Aborted, "Exceeded maximum allowed stream duration: max duration of 5 minutes"), want: true},
		{name: "idle abort", err: status.Error(codes.Aborted, "Stream timed out after receiving no more client requests."), want: true},
		{name: "other abort", err: status.Error(codes.Aborted, "something else"), want: false},
		{name: "permission denied", err: status.Error(codes.PermissionDenied, "denied"), want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isReconnectableStreamError(tt.err); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNewSpeech_Endpoint(t *testing.T) {
	global := NewSpeech(SpeechConfig{Location: " global ", Model: " chirp_3 "})
	if global.endpoint() != "" || global.model != "chirp_3" {
		t.Fatalf("unexpected global settings: %q %q", global.endpoint(), global.model)
	}
	if got := NewSpeech(SpeechConfig{}).location; got != "global" {
		t.Fatalf("expected empty location to mean global, got %q", got)
	}
	regional := NewSpeech(SpeechConfig{ProjectID: "p", Location: "us"})
	if regional.endpoint() != "us-speech.googleapis.com:443" {
		t.Fatalf("unexpected endpoint: %q", regional.endpoint())
	}
	if regional.recognizer() != "projects/p/locations/us/recognizers/_" {
		t.Fatalf("unexpected recognizer: %q", regional.recognizer())
	}
}

func TestStreamingConfig_Defaults(t *testing.T) {
	s := NewSpeech(SpeechConfig{Language: "en-US", Model: "long"})
	cfg := s.streamingConfig(transcriber.StreamConfig{SessionID: "s1"})
	if got := cfg.GetConfig().GetLanguageCodes(); len(got) != 1 || got[0] != "en-US" {
		t.Fatalf("expected default language, got %v", got)
	}
	if got := cfg.GetConfig().GetExplicitDecodingConfig().GetSampleRateHertz(); got != 16000 {
		t.Fatalf("expected 16 kHz, got %d", got)
	}
	if !cfg.GetStreamingFeatures().GetInterimResults() {
		t.Fatal("expected interim results")
	}

	cfg = s.streamingConfig(transcriber.StreamConfig{Language: "ja-JP", SampleRate: 24000})
	if cfg.GetConfig().GetLanguageCodes()[0] != "ja-JP" || cfg.GetConfig().GetExplicitDecodingConfig().GetSampleRateHertz() != 24000 {
		t.Fatalf("expected overrides to apply: %v", cfg.GetConfig())
	}
}
