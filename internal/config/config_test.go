package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func loadFrom(t *testing.T, dir string) Config {
	t.Helper()
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	cfg, err := load(v)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadFrom(t, t.TempDir())

	if cfg.Schedule.CronSpec != "0 */4 * * *" {
		t.Errorf("CronSpec = %q", cfg.Schedule.CronSpec)
	}
	if cfg.Lookback() != 7*24*time.Hour {
		t.Errorf("Lookback() = %v", cfg.Lookback())
	}
	if cfg.Cooldown() != 30*time.Second {
		t.Errorf("Cooldown() = %v", cfg.Cooldown())
	}
	if cfg.RequestInterval() != 100*time.Millisecond {
		t.Errorf("RequestInterval() = %v", cfg.RequestInterval())
	}
	if cfg.Spotify.PageSize != 20 {
		t.Errorf("PageSize = %d", cfg.Spotify.PageSize)
	}
	if cfg.Spotify.TokenURL != DefaultTokenURL {
		t.Errorf("TokenURL = %q", cfg.Spotify.TokenURL)
	}
	if cfg.Roster.Column != 3 {
		t.Errorf("Roster.Column = %d", cfg.Roster.Column)
	}
	if !cfg.Notify.Dedupe {
		t.Error("Notify.Dedupe should default to true")
	}
	if cfg.Discord.CommandPrefix != "!" {
		t.Errorf("CommandPrefix = %q", cfg.Discord.CommandPrefix)
	}
}

func TestLoadEnvironmentAliases(t *testing.T) {
	t.Setenv("SPOTIFY_CLIENT_ID", "id-123")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "secret-456")
	t.Setenv("DISCORD_TOKEN", "bot-token")
	t.Setenv("GUILD_ID", "111")
	t.Setenv("CHANNEL_ID", "222")
	t.Setenv("USER_ID", "333")
	t.Setenv("PORT", "8081")
	t.Setenv("RENDER_EXTERNAL_URL", "https://bot.example.com/")
	t.Setenv("NODE_ENV", "production")
	t.Setenv("ROSTER_FILES", "a.csv,b.html")

	cfg := loadFrom(t, t.TempDir())

	if cfg.Spotify.ClientID != "id-123" || cfg.Spotify.ClientSecret != "secret-456" {
		t.Errorf("spotify creds = %q/%q", cfg.Spotify.ClientID, cfg.Spotify.ClientSecret)
	}
	if cfg.Discord.Token != "bot-token" {
		t.Errorf("Discord.Token = %q", cfg.Discord.Token)
	}
	if cfg.Discord.GuildID != "111" || cfg.Discord.ChannelID != "222" || cfg.Discord.MentionUserID != "333" {
		t.Errorf("discord ids = %+v", cfg.Discord)
	}
	if cfg.ListenAddr() != ":8081" {
		t.Errorf("ListenAddr() = %q", cfg.ListenAddr())
	}
	if cfg.KeepAlive.URL != "https://bot.example.com" {
		t.Errorf("KeepAlive.URL = %q", cfg.KeepAlive.URL)
	}
	if !cfg.Production || !cfg.KeepAliveEnabled() {
		t.Error("production mode should be on and keep-alive enabled")
	}
	if len(cfg.Roster.Files) != 2 || cfg.Roster.Files[0] != "a.csv" || cfg.Roster.Files[1] != "b.html" {
		t.Errorf("Roster.Files = %v", cfg.Roster.Files)
	}
	if err := cfg.Validate(true); err != nil {
		t.Errorf("Validate(true) error = %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	body := []byte(`
spotify:
  client_id: file-id
  client_secret: file-secret
  page_size: 500
schedule:
  cron_spec: "@every 1h"
  lookback_days: 3
roster:
  files: [one.csv, " ", two.csv]
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), body, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := loadFrom(t, dir)

	if cfg.Spotify.ClientID != "file-id" {
		t.Errorf("ClientID = %q", cfg.Spotify.ClientID)
	}
	if cfg.Spotify.PageSize != 20 {
		t.Errorf("out-of-range page size should fall back to 20, got %d", cfg.Spotify.PageSize)
	}
	if cfg.Schedule.CronSpec != "@every 1h" || cfg.Lookback() != 72*time.Hour {
		t.Errorf("schedule = %+v", cfg.Schedule)
	}
	if len(cfg.Roster.Files) != 2 {
		t.Errorf("blank roster entries should be dropped, got %v", cfg.Roster.Files)
	}
}

func TestValidate(t *testing.T) {
	var cfg Config
	cfg.Roster.Files = []string{"artists.csv"}

	if err := cfg.Validate(false); !errors.Is(err, ErrMissingSetting) {
		t.Fatalf("Validate(false) without spotify creds = %v, want ErrMissingSetting", err)
	}

	cfg.Spotify.ClientID = "id"
	cfg.Spotify.ClientSecret = "secret"
	if err := cfg.Validate(false); err != nil {
		t.Errorf("Validate(false) = %v, want nil", err)
	}
	if err := cfg.Validate(true); !errors.Is(err, ErrMissingSetting) {
		t.Errorf("Validate(true) without discord token = %v, want ErrMissingSetting", err)
	}

	cfg.Discord.Token = "tok"
	cfg.Discord.ChannelID = "chan"
	if err := cfg.Validate(true); err != nil {
		t.Errorf("Validate(true) = %v, want nil", err)
	}
}
