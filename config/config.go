package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
)

type Config struct {
	Bandmaster BandmasterConfig
	Pushover   PushoverConfig
	Spotify    SpotifyConfig
}

type BandmasterConfig struct {
	BackgroundJobsEnabled bool   `env:"BACKGROUND_JOBS_ENABLED"`
	DbPath                string `env:"DB_PATH"`
	LogLevel              string `env:"LOG_LEVEL"`
	ListenAddr            string `env:"LISTEN_ADDR"`
	OwnerName             string `env:"OWNER_NAME"`
	OwnerAPIKey           string `env:"OWNER_API_KEY"`
	StorageDir            string `env:"STORAGE_DIR"`
	MorningPlaylist       string `env:"MORNING_PLAYLIST_URI"`
	WatchedSong           string `env:"WATCHED_SONG"`
	LogFetchCap           int    `env:"LOG_FETCH_CAP"`
}

type PushoverConfig struct {
	Recipient string `env:"PUSHOVER_RECIPIENT"`
	Token     string `env:"PUSHOVER_TOKEN"`
}

type SpotifyConfig struct {
	ClientId     string `env:"SPOTIFY_CLIENT_ID"`
	ClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`
	RedirectUri  string `env:"SPOTIFY_REDIRECT_URI"`
}

func Load() (Config, error) {
	var cfg Config
	c := config.New()
	c.AddFeeder(feeder.Env{})
	c.AddStruct(&cfg)
	if err := c.Feed(); err != nil {
		return cfg, err
	}
	if cfg.Bandmaster.ListenAddr == "" {
		cfg.Bandmaster.ListenAddr = ":8080"
	}
	if cfg.Bandmaster.OwnerName == "" {
		cfg.Bandmaster.OwnerName = "Owner"
	}
	if cfg.Bandmaster.StorageDir == "" {
		cfg.Bandmaster.StorageDir = "/tmp"
	}
	if cfg.Bandmaster.LogFetchCap == 0 {
		cfg.Bandmaster.LogFetchCap = 100
	}
	return cfg, nil
}

// ValidateSpotify reports which Spotify credentials are missing.
// The gateway can't be constructed without a full set.
func (c *Config) ValidateSpotify() error {
	var missing []string
	if c.Spotify.ClientId == "" {
		missing = append(missing, "SPOTIFY_CLIENT_ID")
	}
	if c.Spotify.ClientSecret == "" {
		missing = append(missing, "SPOTIFY_CLIENT_SECRET")
	}
	if c.Spotify.RedirectUri == "" {
		missing = append(missing, "SPOTIFY_REDIRECT_URI")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing Spotify config env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) ValidatePushover() error {
	var missing []string
	if c.Pushover.Token == "" {
		missing = append(missing, "PUSHOVER_TOKEN")
	}
	if c.Pushover.Recipient == "" {
		missing = append(missing, "PUSHOVER_RECIPIENT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing Pushover config env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) GetLogLevel() slog.Leveler {
	logLevel := strings.ToLower(c.Bandmaster.LogLevel)
	if logLevel == "error" {
		return slog.LevelError
	}
	if logLevel == "warning" {
		return slog.LevelWarn
	}
	if logLevel == "info" {
		return slog.LevelInfo
	}
	if logLevel == "debug" {
		return slog.LevelDebug
	}
	// default to info if unknown
	slog.With(slog.String("log_level", logLevel)).Info("Received invalid log level. Defaulting to INFO.")
	return slog.LevelInfo
}
