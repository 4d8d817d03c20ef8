package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/foxseedlab/rockhype/internal/audio"
	"github.com/foxseedlab/rockhype/internal/transcriber"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
	globalLocation     = "global"
)

type SpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Language        string
	Location        string
	Model           string
}

// Speech transcribes the user's microphone with Cloud Speech-to-Text v2 streaming recognition.
type Speech struct {
	projectID       string
	credentialsJSON string
	language        string
	location        string
	model           string
}

func NewSpeech(cfg SpeechConfig) *Speech {
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = globalLocation
	}
	return &Speech{
		projectID:       cfg.ProjectID,
		credentialsJSON: cfg.CredentialsJSON,
		language:        cfg.Language,
		location:        location,
		model:           strings.TrimSpace(cfg.Model),
	}
}

func (s *Speech) recognizer() string {
	return fmt.Sprintf("projects/%s/locations/%s/recognizers/_", s.projectID, s.location)
}

func (s *Speech) clientOptions() ([]option.ClientOption, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(s.credentialsJSON),
		Scopes:          []string{cloudPlatformScope},
	})
	if err != nil {
		return nil, fmt.Errorf("detect speech credentials: %w", err)
	}
	opts := []option.ClientOption{option.WithAuthCredentials(creds)}
	if endpoint := s.endpoint(); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts, nil
}

// endpoint is empty for the global location, which the client library defaults to.
func (s *Speech) endpoint() string {
	if s.location == globalLocation {
		return ""
	}
	return fmt.Sprintf("%s-speech.googleapis.com:443", s.location)
}

func (s *Speech) streamingConfig(cfg transcriber.StreamConfig) *speechpb.StreamingRecognitionConfig {
	language := cfg.Language
	if language == "" {
		language = s.language
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = audio.InputSampleRate
	}
	return &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Model:         s.model,
			LanguageCodes: []string{language},
			DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
				ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
					Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
					SampleRateHertz:   int32(rate),
					AudioChannelCount: 1,
				},
			},
			Features: &speechpb.RecognitionFeatures{},
		},
		StreamingFeatures: &speechpb.StreamingRecognitionFeatures{InterimResults: true},
	}
}

func (s *Speech) StartStreaming(ctx context.Context, cfg transcriber.StreamConfig, receiver transcriber.ResultReceiver) (transcriber.StreamWriter, error) {
	opts, err := s.clientOptions()
	if err != nil {
		return nil, err
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	us := &userStream{
		ctx:       ctx,
		client:    client,
		sessionID: cfg.SessionID,
		setup: &speechpb.StreamingRecognizeRequest{
			Recognizer: s.recognizer(),
			StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
				StreamingConfig: s.streamingConfig(cfg),
			},
		},
		receiver: receiver,
	}
	if err := us.open(); err != nil {
		_ = client.Close()
		return nil, err
	}
	slog.Info("user transcription started", "session_id", cfg.SessionID, "location", s.location, "model", s.model)
	return us, nil
}

// userStream feeds one session's microphone to recognition. Cloud Speech ends
// a stream after a few minutes, so an expired stream is reopened on the next Write.
type userStream struct {
	ctx       context.Context
	client    *speech.Client
	sessionID string
	setup     *speechpb.StreamingRecognizeRequest
	receiver  transcriber.ResultReceiver

	mu      sync.Mutex
	stream  speechpb.Speech_StreamingRecognizeClient
	expired bool
	closed  bool
}

// open must be called with mu held or before the stream is shared.
func (u *userStream) open() error {
	stream, err := u.client.StreamingRecognize(u.ctx)
	if err != nil {
		return fmt.Errorf("open recognition stream: %w", err)
	}
	if err := stream.Send(u.setup); err != nil {
		_ = stream.CloseSend()
		return fmt.Errorf("send recognition config: %w", err)
	}
	u.stream = stream
	u.expired = false
	go u.receive(stream)
	return nil
}

func (u *userStream) Write(pcm []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return io.ErrClosedPipe
	}
	if u.expired {
		if err := u.reopenLocked(); err != nil {
			return err
		}
	}
	req := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{Audio: pcm},
	}
	err := u.stream.Send(req)
	if err == nil || !isReconnectableStreamError(err) {
		return err
	}
	if err := u.reopenLocked(); err != nil {
		return err
	}
	return u.stream.Send(req)
}

func (u *userStream) reopenLocked() error {
	slog.Warn("user transcription stream expired, reopening", "session_id", u.sessionID)
	_ = u.stream.CloseSend()
	if err := u.open(); err != nil {
		slog.Error("failed to reopen user transcription stream", "error", err, "session_id", u.sessionID)
		return fmt.Errorf("reopen recognition stream: %w", err)
	}
	return nil
}

func (u *userStream) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	return errors.Join(u.stream.CloseSend(), u.client.Close())
}

func (u *userStream) receive(stream speechpb.Speech_StreamingRecognizeClient) {
	for {
		resp, err := stream.Recv()
		if err != nil {
			u.receiveEnded(stream, err)
			return
		}
		for _, result := range resp.GetResults() {
			alts := result.GetAlternatives()
			if len(alts) == 0 || strings.TrimSpace(alts[0].GetTranscript()) == "" {
				continue
			}
			u.receiver.OnResult(alts[0].GetTranscript(), result.GetIsFinal())
		}
	}
}

func (u *userStream) receiveEnded(stream speechpb.Speech_StreamingRecognizeClient, err error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, context.Canceled), status.Code(err) == codes.Canceled:
		slog.Debug("user transcription receive loop stopped", "session_id", u.sessionID, "reason", err.Error())
	case isReconnectableStreamError(err):
		u.mu.Lock()
		if u.stream == stream && !u.closed {
			u.expired = true
		}
		u.mu.Unlock()
		slog.Info("user transcription stream expired", "session_id", u.sessionID, "reason", err.Error())
	default:
		u.receiver.OnError(err)
	}
}

func isReconnectableStreamError(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Aborted {
		return false
	}
	msg := strings.ToLower(st.Message())
	return strings.Contains(msg, "max duration of 5 minutes") ||
		strings.Contains(msg, "stream timed out after receiving no more client requests")
}
