package config

import (
	"fmt"
	"time"
)

const (
	UserTranscriptionLive        = "live"
	UserTranscriptionCloudSpeech = "cloud_speech"
	UserTranscriptionOff         = "off"

	RecordingFormatWAV = "wav"
	RecordingFormatOgg = "ogg"

	ArchiveDriverSQLite   = "sqlite"
	ArchiveDriverPostgres = "postgres"
	ArchiveDriverNone     = "none"

	// DefaultInputDevice selects the host's default microphone.
	DefaultInputDevice = -1
)

type Config struct {
	Env                        string
	GeminiAPIKey               string
	LiveEndpoint               string
	LiveModel                  string
	LiveVoice                  string
	UserTranscription          string
	ImageModel                 string
	ImageEditModel             string
	AnalysisModel              string
	VideoModel                 string
	HTTPAddr                   string
	MediaDir                   string
	RecordingFormat            string
	InputDevice                int
	ArchiveDriver              string
	SQLitePath                 string
	DatabaseURL                string
	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
	TranscribeLanguage         string
	TranscriptTimezone         string
	TranscriptWebhookURL       string
	DiscordToken               string
	DiscordChannelID           string
	InboxDir                   string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	switch c.UserTranscription {
	case UserTranscriptionLive, UserTranscriptionOff:
	case UserTranscriptionCloudSpeech:
		if c.GoogleCloudProjectID == "" || c.GoogleCloudCredentialsJSON == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID and GOOGLE_CLOUD_CREDENTIALS_JSON are required when USER_TRANSCRIPTION=cloud_speech")
		}
	default:
		return fmt.Errorf("USER_TRANSCRIPTION must be one of live, cloud_speech, off, got %q", c.UserTranscription)
	}
	switch c.RecordingFormat {
	case RecordingFormatWAV, RecordingFormatOgg:
	default:
		return fmt.Errorf("RECORDING_FORMAT must be wav or ogg, got %q", c.RecordingFormat)
	}
	switch c.ArchiveDriver {
	case ArchiveDriverNone:
	case ArchiveDriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when ARCHIVE_DRIVER=sqlite")
		}
	case ArchiveDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when ARCHIVE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("ARCHIVE_DRIVER must be one of sqlite, postgres, none, got %q", c.ArchiveDriver)
	}
	if (c.DiscordToken == "") != (c.DiscordChannelID == "") {
		return fmt.Errorf("DISCORD_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}
	if c.InputDevice < DefaultInputDevice {
		return fmt.Errorf("INPUT_DEVICE must be a device index or %d for the default, got %d", DefaultInputDevice, c.InputDevice)
	}
	if _, err := time.LoadLocation(c.TranscriptTimezone); err != nil {
		return fmt.Errorf("TRANSCRIPT_TIMEZONE is invalid: %w", err)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "GEMINI_API_KEY", value: c.GeminiAPIKey},
		{name: "LIVE_ENDPOINT", value: c.LiveEndpoint},
		{name: "LIVE_MODEL", value: c.LiveModel},
		{name: "LIVE_VOICE", value: c.LiveVoice},
		{name: "HTTP_ADDR", value: c.HTTPAddr},
		{name: "MEDIA_DIR", value: c.MediaDir},
		{name: "TRANSCRIBE_LANGUAGE", value: c.TranscribeLanguage},
		{name: "TRANSCRIPT_TIMEZONE", value: c.TranscriptTimezone},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) DiscordEnabled() bool {
	return c.DiscordToken != "" && c.DiscordChannelID != ""
}

// Location falls back to UTC; Validate has already rejected unknown zones.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TranscriptTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
