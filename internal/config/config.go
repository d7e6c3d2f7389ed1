package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"hatsubai/internal/util"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const DefaultTokenURL = "https://accounts.spotify.com/api/token"

var ErrMissingSetting = errors.New("critical config is not set")

type Config struct {
	DryRun      bool   `mapstructure:"dry_run"`
	Production  bool   `mapstructure:"production"`
	Environment string `mapstructure:"environment"`
	Discord     struct {
		Token         string `mapstructure:"token"`
		GuildID       string `mapstructure:"guild_id"`
		ChannelID     string `mapstructure:"channel_id"`
		MentionUserID string `mapstructure:"mention_user_id"`
		CommandPrefix string `mapstructure:"command_prefix"`
	} `mapstructure:"discord"`
	Spotify struct {
		ClientID           string  `mapstructure:"client_id"`
		ClientSecret       string  `mapstructure:"client_secret"`
		TokenURL           string  `mapstructure:"token_url"`
		APIBaseURL         string  `mapstructure:"api_base_url"`
		TimeoutSeconds     int     `mapstructure:"timeout_seconds"`
		RequestIntervalMS  int     `mapstructure:"request_interval_ms"`
		PageSize           int     `mapstructure:"page_size"`
		MinMatchSimilarity float64 `mapstructure:"min_match_similarity"`
	} `mapstructure:"spotify"`
	Roster struct {
		Files  []string `mapstructure:"files"`
		Column int      `mapstructure:"column"`
	} `mapstructure:"roster"`
	Schedule struct {
		CronSpec        string `mapstructure:"cron_spec"`
		LookbackDays    int    `mapstructure:"lookback_days"`
		CooldownSeconds int    `mapstructure:"cooldown_seconds"`
		InitialScan     bool   `mapstructure:"initial_scan"`
	} `mapstructure:"schedule"`
	Notify struct {
		Dedupe bool `mapstructure:"dedupe"`
	} `mapstructure:"notify"`
	HTTP struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"http"`
	KeepAlive struct {
		URL      string `mapstructure:"url"`
		CronSpec string `mapstructure:"cron_spec"`
	} `mapstructure:"keepalive"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dry_run", false)
	v.SetDefault("production", false)
	v.SetDefault("environment", "development")

	v.SetDefault("discord.token", "")
	v.SetDefault("discord.guild_id", "")
	v.SetDefault("discord.channel_id", "")
	v.SetDefault("discord.mention_user_id", "")
	v.SetDefault("discord.command_prefix", "!")

	v.SetDefault("spotify.client_id", "")
	v.SetDefault("spotify.client_secret", "")
	v.SetDefault("spotify.token_url", DefaultTokenURL)
	v.SetDefault("spotify.api_base_url", "https://api.spotify.com/v1/")
	v.SetDefault("spotify.timeout_seconds", 15)
	v.SetDefault("spotify.request_interval_ms", 100)
	v.SetDefault("spotify.page_size", 20)
	v.SetDefault("spotify.min_match_similarity", 0.0)

	v.SetDefault("roster.files", []string{"artists.csv"})
	v.SetDefault("roster.column", 3)

	v.SetDefault("schedule.cron_spec", "0 */4 * * *")
	v.SetDefault("schedule.lookback_days", 7)
	v.SetDefault("schedule.cooldown_seconds", 30)
	v.SetDefault("schedule.initial_scan", false)

	v.SetDefault("notify.dedupe", true)

	v.SetDefault("http.port", 3000)

	v.SetDefault("keepalive.url", "")
	v.SetDefault("keepalive.cron_spec", "@every 14m")
}

// envAliases are the short names used by hosting dashboards, accepted next to
// the derived KEY_SUBKEY form.
var envAliases = map[string][]string{
	"discord.guild_id":        {"DISCORD_GUILD_ID", "GUILD_ID"},
	"discord.channel_id":      {"DISCORD_CHANNEL_ID", "CHANNEL_ID"},
	"discord.mention_user_id": {"DISCORD_MENTION_USER_ID", "USER_ID"},
	"http.port":               {"HTTP_PORT", "PORT"},
	"keepalive.url":           {"KEEPALIVE_URL", "RENDER_EXTERNAL_URL"},
	"environment":             {"APP_ENV", "NODE_ENV"},
}

// Load reads .env (if present), config.yaml (if present) and the environment,
// in increasing order of precedence.
func Load() (Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Printf("%s Loaded environment from .env", util.Cyan("[CONFIG]"))
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	var cfg Config

	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return cfg, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if strings.EqualFold(strings.TrimSpace(c.Environment), "production") {
		c.Production = true
	}
	c.Discord.CommandPrefix = strings.TrimSpace(c.Discord.CommandPrefix)
	if c.Discord.CommandPrefix == "" {
		c.Discord.CommandPrefix = "!"
	}
	if !strings.HasSuffix(c.Spotify.APIBaseURL, "/") {
		c.Spotify.APIBaseURL += "/"
	}
	if c.Spotify.PageSize <= 0 || c.Spotify.PageSize > 50 {
		c.Spotify.PageSize = 20
	}
	if c.Spotify.RequestIntervalMS < 0 {
		c.Spotify.RequestIntervalMS = 0
	}
	if c.Roster.Column < 0 {
		c.Roster.Column = 3
	}
	if c.Schedule.LookbackDays <= 0 {
		c.Schedule.LookbackDays = 7
	}
	if c.Schedule.CooldownSeconds < 0 {
		c.Schedule.CooldownSeconds = 0
	}
	files := c.Roster.Files[:0]
	for _, f := range c.Roster.Files {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	c.Roster.Files = files
	c.KeepAlive.URL = strings.TrimSuffix(strings.TrimSpace(c.KeepAlive.URL), "/")
}

// Validate checks the settings the requested mode cannot run without. The
// Discord settings are only required when serving.
func (c Config) Validate(serve bool) error {
	if c.Spotify.ClientID == "" {
		return fmt.Errorf("%w: spotify.client_id (SPOTIFY_CLIENT_ID)", ErrMissingSetting)
	}
	if c.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: spotify.client_secret (SPOTIFY_CLIENT_SECRET)", ErrMissingSetting)
	}
	if len(c.Roster.Files) == 0 {
		return fmt.Errorf("%w: roster.files (ROSTER_FILES)", ErrMissingSetting)
	}
	if !serve {
		return nil
	}
	if c.Discord.Token == "" {
		return fmt.Errorf("%w: discord.token (DISCORD_TOKEN)", ErrMissingSetting)
	}
	if c.Discord.ChannelID == "" {
		return fmt.Errorf("%w: discord.channel_id (CHANNEL_ID)", ErrMissingSetting)
	}
	return nil
}

func (c Config) Lookback() time.Duration {
	return time.Duration(c.Schedule.LookbackDays) * 24 * time.Hour
}

func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Schedule.CooldownSeconds) * time.Second
}

func (c Config) RequestInterval() time.Duration {
	return time.Duration(c.Spotify.RequestIntervalMS) * time.Millisecond
}

func (c Config) SpotifyTimeout() time.Duration {
	if c.Spotify.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Spotify.TimeoutSeconds) * time.Second
}

func (c Config) KeepAliveEnabled() bool {
	return c.Production && c.KeepAlive.URL != ""
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}
