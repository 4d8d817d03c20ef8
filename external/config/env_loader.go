package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/rockhype/internal/config"
	"github.com/joho/godotenv"
)

const defaultLiveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

type envConfig struct {
	Env                        string `env:"ENV" envDefault:"production"`
	GeminiAPIKey               string `env:"GEMINI_API_KEY,required"`
	LiveEndpoint               string `env:"LIVE_ENDPOINT"`
	LiveModel                  string `env:"LIVE_MODEL" envDefault:"gemini-2.5-flash-native-audio-preview-09-2025"`
	LiveVoice                  string `env:"LIVE_VOICE" envDefault:"Zephyr"`
	UserTranscription          string `env:"USER_TRANSCRIPTION" envDefault:"live"`
	ImageModel                 string `env:"IMAGE_MODEL" envDefault:"gemini-3-pro-image-preview"`
	ImageEditModel             string `env:"IMAGE_EDIT_MODEL" envDefault:"gemini-2.5-flash-image"`
	AnalysisModel              string `env:"ANALYSIS_MODEL" envDefault:"gemini-3-flash-preview"`
	VideoModel                 string `env:"VIDEO_MODEL" envDefault:"veo-3.1-fast-generate-preview"`
	HTTPAddr                   string `env:"HTTP_ADDR" envDefault:":8080"`
	MediaDir                   string `env:"MEDIA_DIR" envDefault:"media"`
	RecordingFormat            string `env:"RECORDING_FORMAT" envDefault:"wav"`
	InputDevice                int    `env:"INPUT_DEVICE" envDefault:"-1"`
	ArchiveDriver              string `env:"ARCHIVE_DRIVER" envDefault:"sqlite"`
	SQLitePath                 string `env:"SQLITE_PATH" envDefault:"data/rockhype.db"`
	DatabaseURL                string `env:"DATABASE_URL"`
	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"chirp_3"`
	TranscribeLanguage         string `env:"TRANSCRIBE_LANGUAGE" envDefault:"en-US"`
	TranscriptTimezone         string `env:"TRANSCRIPT_TIMEZONE" envDefault:"UTC"`
	TranscriptWebhookURL       string `env:"TRANSCRIPT_WEBHOOK_URL"`
	DiscordToken               string `env:"DISCORD_TOKEN"`
	DiscordChannelID           string `env:"DISCORD_CHANNEL_ID"`
	InboxDir                   string `env:"INBOX_DIR"`
}

// Load reads an optional .env file, then the process environment.
// Variables already present in the environment win over the file.
func Load() (*internalconfig.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		GeminiAPIKey:               raw.GeminiAPIKey,
		LiveEndpoint:               raw.LiveEndpoint,
		LiveModel:                  raw.LiveModel,
		LiveVoice:                  raw.LiveVoice,
		UserTranscription:          raw.UserTranscription,
		ImageModel:                 raw.ImageModel,
		ImageEditModel:             raw.ImageEditModel,
		AnalysisModel:              raw.AnalysisModel,
		VideoModel:                 raw.VideoModel,
		HTTPAddr:                   raw.HTTPAddr,
		MediaDir:                   raw.MediaDir,
		RecordingFormat:            raw.RecordingFormat,
		InputDevice:                raw.InputDevice,
		ArchiveDriver:              raw.ArchiveDriver,
		SQLitePath:                 raw.SQLitePath,
		DatabaseURL:                raw.DatabaseURL,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		TranscribeLanguage:         raw.TranscribeLanguage,
		TranscriptTimezone:         raw.TranscriptTimezone,
		TranscriptWebhookURL:       raw.TranscriptWebhookURL,
		DiscordToken:               raw.DiscordToken,
		DiscordChannelID:           raw.DiscordChannelID,
		InboxDir:                   raw.InboxDir,
	}
	if cfg.LiveEndpoint == "" {
		cfg.LiveEndpoint = defaultLiveEndpoint
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
