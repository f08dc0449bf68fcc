package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"
	"unicode/utf8"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendWorkbook = "workbook"
	BackendPostgres = "postgres"

	maxSheetName = 31
)

// Config is loaded once at process start and never mutated afterwards.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Discord  DiscordConfig
	Blizzard BlizzardConfig
	Store    StoreConfig
	Schedule ScheduleConfig
	Admin    AdminConfig
	Archive  ArchiveConfig

	EventInfoURL string `env:"EVENT_INFO_URL"`
}

// DiscordConfig holds bot credentials.
type DiscordConfig struct {
	Token   string `env:"DISCORD_BOT_TOKEN"`
	GuildID string `env:"DISCORD_GUILD_ID"` // empty registers commands globally
}

// BlizzardConfig holds the profile service endpoints. CharacterURL and
// MythicProfileURL contain {realm} and {character_name} placeholders.
type BlizzardConfig struct {
	ClientID         string        `env:"CLIENT_ID"`
	ClientSecret     string        `env:"CLIENT_SECRET"`
	OAuthURL         string        `env:"OAUTH_URL" envDefault:"https://oauth.battle.net/token"`
	CharacterURL     string        `env:"CHARACTER_URL"`
	MythicProfileURL string        `env:"MYTHIC_PROFILE_URL"`
	Timeout          time.Duration `env:"PROFILE_TIMEOUT" envDefault:"10s"`
	RequestsPerSec   float64       `env:"PROFILE_RPS" envDefault:"20"`
}

// StoreConfig selects and configures the signup sheet backend.
type StoreConfig struct {
	Backend      string `env:"STORE_BACKEND" envDefault:"workbook"`
	WorkbookPath string `env:"WORKBOOK_PATH" envDefault:"data/signups.xlsx"`
	DatabaseURL  string `env:"DATABASE_URL"`
	ActiveSheet  string `env:"ACTIVE_SHEET" envDefault:"General Info"`
	RemovedSheet string `env:"REMOVED_SHEET" envDefault:"Removed Signups"`
}

// ScheduleConfig holds the timezone every cycle rule is evaluated in.
type ScheduleConfig struct {
	Timezone string `env:"TIMEZONE" envDefault:"America/New_York"`
}

// AdminConfig configures the operator HTTP surface.
type AdminConfig struct {
	Addr         string `env:"HTTP_ADDR" envDefault:":5200"`
	ServiceToken string `env:"ADMIN_SERVICE_TOKEN"`
}

// ArchiveConfig configures the optional R2 upload of rotated workbooks.
type ArchiveConfig struct {
	AccountID       string `env:"R2_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `env:"R2_BUCKET_NAME"`
}

// Enabled reports whether all R2 settings are present.
func (a ArchiveConfig) Enabled() bool {
	return a.AccountID != "" && a.AccessKeyID != "" && a.AccessKeySecret != "" && a.Bucket != ""
}

// Load reads dnd-bot-<APP_ENV>.env when present and parses the environment.
func Load() (*Config, error) {
	appEnv := os.Getenv("APP_ENV")
	if appEnv == "" {
		appEnv = "development"
	}
	file := fmt.Sprintf("dnd-bot-%s.env", appEnv)
	if err := godotenv.Load(file); err != nil {
		log.Printf("⚠️  No %s file found, reading environment variables directly", file)
	}
	return Parse(nil)
}

// Parse builds a Config from environ, or from the process environment when
// environ is nil.
func Parse(environ map[string]string) (*Config, error) {
	var cfg Config
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Location resolves the schedule timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}

// Validate reports every missing setting required by the selected backend
// and by the bot itself.
func (c *Config) Validate(needBot bool) error {
	var errs []error
	if needBot && c.Discord.Token == "" {
		errs = append(errs, errors.New("DISCORD_BOT_TOKEN is required"))
	}
	if c.Blizzard.ClientID == "" || c.Blizzard.ClientSecret == "" {
		errs = append(errs, errors.New("CLIENT_ID and CLIENT_SECRET are required"))
	}
	if c.Blizzard.CharacterURL == "" || c.Blizzard.MythicProfileURL == "" {
		errs = append(errs, errors.New("CHARACTER_URL and MYTHIC_PROFILE_URL are required"))
	}
	switch c.Store.Backend {
	case BackendWorkbook:
		if c.Store.WorkbookPath == "" {
			errs = append(errs, errors.New("WORKBOOK_PATH is required for the workbook backend"))
		}
		for _, name := range []string{c.Store.ActiveSheet, c.Store.RemovedSheet} {
			if utf8.RuneCountInString(name) > maxSheetName {
				errs = append(errs, fmt.Errorf("sheet name %q is longer than %d characters", name, maxSheetName))
			}
		}
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}
	if c.Store.ActiveSheet == "" || c.Store.RemovedSheet == "" {
		errs = append(errs, errors.New("ACTIVE_SHEET and REMOVED_SHEET must not be empty"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
