// Package config loads creditsd settings from the environment and an
// optional .env file. Real environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Catalog revisions.
const (
	CatalogDual   = "dual"
	CatalogSingle = "single"
)

// GatewayProviders are the providers that can be fronted by an HTTP
// gateway, read from CREDITS_<PROVIDER>_URL and CREDITS_<PROVIDER>_TOKEN.
var GatewayProviders = []string{"imagen", "replicate", "pollinations"}

// Gateway is the endpoint of one generation provider.
type Gateway struct {
	Provider string
	URL      string
	Token    string
}

type Config struct {
	Addr            string
	Store           string
	RedisAddr       string
	DSN             string
	Catalog         string
	Profile         string
	LoginLimit      int
	LoginWindowDays int
	AllowedDomains  []string
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Gateways        []Gateway
}

func Default() Config {
	return Config{
		Addr:            ":8080",
		Store:           StoreMemory,
		RedisAddr:       "localhost:6379",
		Catalog:         CatalogDual,
		Profile:         "default",
		LoginLimit:      6,
		LoginWindowDays: 30,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: 10 * time.Second,
	}
}

type env map[string]string

func (e env) get(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, true
	}
	v, ok := e[key]
	return v, ok && v != ""
}

// Load reads the given dotenv files (".env" when none are named; missing
// files are skipped) and then the process environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	e := env{}
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", f, err)
		}
		for k, v := range vals {
			if _, seen := e[k]; !seen {
				e[k] = v
			}
		}
	}

	cfg := Default()
	var errs []error

	if v, ok := e.get("CREDITS_ADDR"); ok {
		cfg.Addr = v
	}
	if v, ok := e.get("CREDITS_STORE"); ok {
		cfg.Store = strings.ToLower(v)
	}
	if v, ok := e.get("CREDITS_REDIS_ADDR"); ok {
		cfg.RedisAddr = v
	}
	if v, ok := e.get("CREDITS_DSN"); ok {
		cfg.DSN = v
	}
	if v, ok := e.get("CREDITS_CATALOG"); ok {
		cfg.Catalog = strings.ToLower(v)
	}
	if v, ok := e.get("CREDITS_PROFILE"); ok {
		cfg.Profile = v
	}
	if v, ok := e.get("CREDITS_LOGIN_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CREDITS_LOGIN_LIMIT: %w", err))
		}
		cfg.LoginLimit = n
	}
	if v, ok := e.get("CREDITS_LOGIN_WINDOW_DAYS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CREDITS_LOGIN_WINDOW_DAYS: %w", err))
		}
		cfg.LoginWindowDays = n
	}
	if v, ok := e.get("CREDITS_ALLOWED_DOMAINS"); ok {
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				cfg.AllowedDomains = append(cfg.AllowedDomains, d)
			}
		}
	}
	if v, ok := e.get("CREDITS_LOG_LEVEL"); ok {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("CREDITS_LOG_LEVEL: %w", err))
		}
	}
	if v, ok := e.get("CREDITS_SHUTDOWN_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CREDITS_SHUTDOWN_TIMEOUT: %w", err))
		}
		cfg.ShutdownTimeout = d
	}
	for _, name := range GatewayProviders {
		prefix := "CREDITS_" + strings.ToUpper(name)
		endpoint, ok := e.get(prefix + "_URL")
		if !ok {
			continue
		}
		token, _ := e.get(prefix + "_TOKEN")
		cfg.Gateways = append(cfg.Gateways, Gateway{Provider: name, URL: endpoint, Token: token})
	}

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreMemory, StoreRedis:
	case StoreSQLite:
		if c.DSN == "" {
			c.DSN = "file:credits.db?_pragma=busy_timeout(5000)"
		}
	case StorePostgres:
		if c.DSN == "" {
			errs = append(errs, errors.New("CREDITS_DSN is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if c.Catalog != CatalogDual && c.Catalog != CatalogSingle {
		errs = append(errs, fmt.Errorf("unknown catalog %q", c.Catalog))
	}
	if c.LoginLimit < 0 {
		errs = append(errs, errors.New("login limit must not be negative"))
	}
	if c.LoginWindowDays < 1 {
		errs = append(errs, errors.New("login window must be at least one day"))
	}
	for _, g := range c.Gateways {
		u, err := url.Parse(g.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s gateway: %q is not an http(s) URL", g.Provider, g.URL))
		}
	}
	return errors.Join(errs...)
}
