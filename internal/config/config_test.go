package config

import "testing"

func validConfig() *Config {
	return &Config{
		Env:                "development",
		GeminiAPIKey:       "key",
		LiveEndpoint:       "wss://example.test/ws",
		LiveModel:          "models/live",
		LiveVoice:          "Zephyr",
		UserTranscription:  UserTranscriptionLive,
		HTTPAddr:           ":8080",
		MediaDir:           "media",
		RecordingFormat:    RecordingFormatWAV,
		ArchiveDriver:      ArchiveDriverSQLite,
		SQLitePath:         "data/rockhype.db",
		TranscribeLanguage: "en-US",
		TranscriptTimezone: "UTC",
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when required fields are missing")
	}
}

func TestValidate_CloudSpeechNeedsCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.UserTranscription = UserTranscriptionCloudSpeech
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when cloud speech credentials are missing")
	}
	cfg.GoogleCloudProjectID = "project-id"
	cfg.GoogleCloudCredentialsJSON = `{"type":"service_account"}`
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_UnknownEnumerations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "user transcription", mutate: func(c *Config) { c.UserTranscription = "whisper" }},
		{name: "recording format", mutate: func(c *Config) { c.RecordingFormat = "mp3" }},
		{name: "archive driver", mutate: func(c *Config) { c.ArchiveDriver = "mysql" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error for invalid %s", tt.name)
			}
		})
	}
}

func TestValidate_PostgresNeedsDatabaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.ArchiveDriver = ArchiveDriverPostgres
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestValidate_DiscordPair(t *testing.T) {
	cfg := validConfig()
	cfg.DiscordToken = "token"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when DISCORD_CHANNEL_ID is missing")
	}
	cfg.DiscordChannelID = "channel"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !cfg.DiscordEnabled() {
		t.Fatal("expected discord to be enabled")
	}
}

func TestValidate_InvalidTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.TranscriptTimezone = "Mars/Olympus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestValidate_InputDevice(t *testing.T) {
	for _, index := range []int{DefaultInputDevice, 0, 3} {
		cfg := validConfig()
		cfg.InputDevice = index
		if err := cfg.Validate(); err != nil {
			t.Fatalf("index %d: expected no error, got %v", index, err)
		}
	}
	cfg := validConfig()
	cfg.InputDevice = -2
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for index below the default marker")
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	if !cfg.IsDevelopment() {
		t.Fatal("expected development mode")
	}
	cfg.Env = "production"
	if cfg.IsDevelopment() {
		t.Fatal("expected non-development mode")
	}
}
