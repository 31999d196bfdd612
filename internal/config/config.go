package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"gopkg.in/yaml.v3"

	"github.com/emilythestrangee/uservoice/backend/internal/database"
	"github.com/emilythestrangee/uservoice/backend/internal/steam"
	"github.com/emilythestrangee/uservoice/backend/internal/token"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port string
	// Realm is the frontend origin. Steam returns the user to
	// Realm+ReturnTo, and the callback redirects back to Realm.
	Realm    string
	ReturnTo string

	AuthSecret string
	TokenTTL   time.Duration

	DBDriver   string
	Postgres   database.Config
	SQLitePath string

	SteamAPIKey       string
	SteamAPIURL       string
	SteamConfigPath   string
	Catalogue         steam.Catalogue
	OpenIDProviderURL string

	// RelayURL, when set, routes check_authentication through a relay
	// instead of calling Steam directly.
	RelayURL         string
	RelayAccessToken string
	// RelayAccessTokenHash, when set, mounts the relay endpoint on this
	// server, guarded by the bcrypt hash.
	RelayAccessTokenHash string

	CORSOrigins []string
	LogLevel    slog.Level
}

func Load() (Config, error) {
	cfg := Config{
		Port:       envString("PORT", "8080"),
		Realm:      strings.TrimSuffix(envString("APP_REALM", "http://localhost:3000"), "/"),
		ReturnTo:   envString("APP_RETURN_TO", "/auth/steam/verify"),
		AuthSecret: os.Getenv("AUTH_SECRET"),
		TokenTTL:   envDuration("TOKEN_TTL", token.LoginTTL),
		DBDriver:   envString("DB_DRIVER", DriverPostgres),
		Postgres: database.Config{
			Host:     envString("DB_HOST", "localhost"),
			Port:     envString("DB_PORT", "5432"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     envString("DB_NAME", "uservoice"),
			SSLMode:  envString("DB_SSLMODE", "disable"),
		},
		SQLitePath:           envString("SQLITE_PATH", "uservoice.db"),
		SteamAPIKey:          os.Getenv("STEAM_API_KEY"),
		SteamAPIURL:          envString("STEAM_API_URL", steam.DefaultAPIURL),
		SteamConfigPath:      os.Getenv("STEAM_CONFIG"),
		OpenIDProviderURL:    os.Getenv("OPENID_PROVIDER_URL"),
		RelayURL:             os.Getenv("RELAY_URL"),
		RelayAccessToken:     os.Getenv("RELAY_ACCESS_TOKEN"),
		RelayAccessTokenHash: os.Getenv("RELAY_ACCESS_TOKEN_HASH"),
		CORSOrigins:          envList("CORS_ORIGINS"),
		LogLevel:             envLevel("LOG_LEVEL", slog.LevelInfo),
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{cfg.Realm}
	}

	if cfg.SteamConfigPath != "" {
		catalogue, err := LoadCatalogue(cfg.SteamConfigPath)
		if err != nil {
			return Config{}, err
		}
		cfg.Catalogue = catalogue
	} else {
		cfg.Catalogue.BaseAppID = uint32(envInt("STEAM_APP_ID", 0))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadCatalogue reads the Steam app catalogue from a YAML file.
func LoadCatalogue(path string) (steam.Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return steam.Catalogue{}, fmt.Errorf("failed to read steam config: %w", err)
	}

	var catalogue steam.Catalogue
	if err := yaml.Unmarshal(data, &catalogue); err != nil {
		return steam.Catalogue{}, fmt.Errorf("failed to parse steam config: %w", err)
	}
	return catalogue, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	if c.AuthSecret == "" {
		errs = append(errs, errors.New("AUTH_SECRET is required"))
	}
	if c.SteamAPIKey == "" {
		errs = append(errs, errors.New("STEAM_API_KEY is required"))
	}
	if c.Catalogue.BaseAppID == 0 {
		errs = append(errs, errors.New("base app id is required (STEAM_APP_ID or base_app_id in STEAM_CONFIG)"))
	}
	for _, dlc := range c.Catalogue.DLCs {
		if dlc.Weight < 0 || dlc.Weight > steam.MaxWeight {
			errs = append(errs, fmt.Errorf("dlc %d: weight %d is outside [0, %d]", dlc.AppID, dlc.Weight, steam.MaxWeight))
		}
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not one of %s, %s", c.DBDriver, DriverPostgres, DriverSQLite))
	}
	return errors.Join(errs...)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envLevel(key string, def slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv(key))); err != nil {
		return def
	}
	return level
}
