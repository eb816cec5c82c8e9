package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	log "github.com/sirupsen/logrus"

	"NowListeningBot/internal/bot"
	"NowListeningBot/internal/db"
	"NowListeningBot/internal/jobs"
	"NowListeningBot/pkg/spotifyapi"
)

// Config represents a complete configuration
type Config struct {
	Host        string            `toml:"host,omitempty"`
	Port        uint16            `toml:"port,omitempty"`
	Log         LogConfig         `toml:"log,omitempty"`
	TLS         TLSConfig         `toml:"tls,omitempty"`
	Database    db.Config         `toml:"database"`
	TelegramBot bot.Config        `toml:"telegram_bot"`
	SpotifyAPI  spotifyapi.Config `toml:"spotify_api"`
	Jobs        jobs.Config       `toml:"jobs,omitempty"`

	TelegramBotWebhookPath string
	OAuthRedirectPath      string
}

// LogConfig represents a configuration for the global logger
type LogConfig struct {
	Level string `toml:"level,omitempty"`
	Path  string `toml:"path,omitempty"`
}

// TLSConfig represents a configuration for TLS of the HTTP server
type TLSConfig struct {
	ServerName      string `toml:"server_name,omitempty"`
	CertificatePath string `toml:"certificate_path,omitempty"`
	PrivateKeyPath  string `toml:"private_key_path,omitempty"`
}

// LoadConfig loads a configuration from the file at the given path
func LoadConfig(path string) (c Config) {
	f, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}
	if err = toml.Unmarshal(f, &c); err != nil {
		log.Fatalf("failed to parse config file: %v", err)
	}

	c.setupLogger()
	if err = c.setupHTTPServer(); err != nil {
		log.Fatal(err)
	}
	return
}

// setupLogger sets up the global logger configuration
func (c *Config) setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		log.Fatalf("failed to parse log level: %v", err)
	}
	log.SetLevel(level)
	log.Debugf("log level set to %s", strings.ToUpper(level.String()))
	if level >= log.DebugLevel {
		log.SetReportCaller(true)
	}

	if c.Log.Path != "" {
		f, err := os.OpenFile(c.Log.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}
}

// setupHTTPServer sets up the HTTP server configuration
func (c *Config) setupHTTPServer() error {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	return c.setupRoutingPaths()
}

// setupRoutingPaths sets up the routing patterns configuration for the HTTP server
func (c *Config) setupRoutingPaths() error {
	if c.TelegramBot.WebhookURL == "" {
		return fmt.Errorf("missing Telegram bot webhook URL (`webhook_URL`) in config")
	}
	u, err := url.Parse(c.TelegramBot.WebhookURL)
	if err != nil {
		return fmt.Errorf("invalid Telegram bot webhook URL: %v", err)
	}
	c.TelegramBotWebhookPath = u.Path

	if c.SpotifyAPI.OAuthRedirectURI == "" {
		return fmt.Errorf("missing Spotify OAuth redirect URI (`oauth_redirect_URI`) in config")
	}
	if u, err = url.Parse(c.SpotifyAPI.OAuthRedirectURI); err != nil {
		return fmt.Errorf("invalid Spotify OAuth redirect URI: %v", err)
	}
	c.OAuthRedirectPath = u.Path
	return nil
}
