// Package extension provides the Forge extension adapter for Credits.
//
// It implements the forge.Extension interface to integrate the credits
// ledger into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.credits" or "credits" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/credits"
	"github.com/xraph/credits/generate"
	"github.com/xraph/credits/httpapi"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/pricing"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/store/mongo"
	"github.com/xraph/credits/store/postgres"
	"github.com/xraph/credits/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "credits"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Plan and credit accounting for generation studios"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the credits ledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	engine      *credits.Ledger
	store       store.Store
	groveDB     *grove.DB
	handler     http.Handler
	creditsOpts []credits.Option
}

// New creates a new Credits Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *credits.Ledger { return e.engine }

// Handler serves the JSON API under Config.BasePath for the host router
// to mount. It is nil before Register or with DisableRoutes.
func (e *Extension) Handler() http.Handler { return e.handler }

// Register implements [forge.Extension]. It loads configuration,
// initializes the credits engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := buildStore(e.config.Store, e.groveDB)
		if err != nil {
			return err
		}
		e.store = s
	}

	eng, err := credits.New(e.store, e.buildCreditsOpts()...)
	if err != nil {
		return fmt.Errorf("credits: build engine: %w", err)
	}
	e.engine = eng

	if !e.config.DisableRoutes {
		gen := generate.NewService(eng, generate.WithGateways(e.buildGateways()...))
		e.handler = http.StripPrefix(strings.TrimSuffix(e.config.BasePath, "/"), httpapi.New(eng, httpapi.WithGenerator(gen)))
	}

	return vessel.Provide(fapp.Container(), func() (*credits.Ledger, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("credits: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	defer e.MarkStopped()
	if e.engine != nil {
		return e.engine.Stop(ctx)
	}
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("credits: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildStore wraps db in the named grove backend.
func buildStore(name string, db *grove.DB) (store.Store, error) {
	if name == "" || name == StoreMemory {
		return memory.New(), nil
	}
	if db == nil {
		return nil, fmt.Errorf("credits: store %q needs WithGroveDB", name)
	}
	switch name {
	case StoreSQLite:
		return sqlite.New(db), nil
	case StorePostgres:
		return postgres.New(db), nil
	case StoreMongo:
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("credits: unknown store %q", name)
	}
}

// buildCreditsOpts constructs credits.Option values from the resolved config.
// Pass-through options come last and win.
func (e *Extension) buildCreditsOpts() []credits.Option {
	opts := make([]credits.Option, 0, len(e.creditsOpts)+6)

	if e.config.Catalog == CatalogSingle {
		opts = append(opts,
			credits.WithCatalog(plan.SinglePoolCatalog()),
			credits.WithCostTable(pricing.SinglePoolTable()),
		)
	}
	if e.config.Profile != "" {
		opts = append(opts, credits.WithProfile(e.config.Profile))
	}
	if e.config.LoginLimit > 0 {
		opts = append(opts, credits.WithLoginLimit(e.config.LoginLimit))
	}
	if e.config.LoginWindowDays > 0 {
		opts = append(opts, credits.WithLoginWindow(e.config.LoginWindowDays))
	}
	if e.config.MaxRetries > 0 {
		opts = append(opts, credits.WithMaxRetries(e.config.MaxRetries))
	}

	return append(opts, e.creditsOpts...)
}

// buildGateways lists the configured gateways ordered by provider.
func (e *Extension) buildGateways() []generate.Gateway {
	out := make([]generate.Gateway, 0, len(e.config.Gateways))
	for _, name := range slices.Sorted(maps.Keys(e.config.Gateways)) {
		g := e.config.Gateways[name]
		out = append(out, generate.Gateway{Provider: pricing.Provider(name), Endpoint: g.URL, Token: g.Token})
	}
	return out
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("credits: configuration is required but not found in config files; " +
				"ensure 'extensions.credits' or 'credits' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("credits: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("store", e.config.Store),
		forge.F("catalog", e.config.Catalog),
		forge.F("login_limit", e.config.LoginLimit),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.credits", "credits"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("credits: loaded config from file", forge.F("key", key))
			return cfg, true
		}
		e.Logger().Warn("credits: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.Store == "" {
		cfg.Store = defaults.Store
	}
	if cfg.Catalog == "" {
		cfg.Catalog = defaults.Catalog
	}
	if cfg.Profile == "" {
		cfg.Profile = defaults.Profile
	}
	if cfg.LoginWindowDays == 0 {
		cfg.LoginWindowDays = defaults.LoginWindowDays
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&yamlConfig.BasePath, programmaticConfig.BasePath)
	fill(&yamlConfig.Store, programmaticConfig.Store)
	fill(&yamlConfig.Catalog, programmaticConfig.Catalog)
	fill(&yamlConfig.Profile, programmaticConfig.Profile)

	if yamlConfig.LoginLimit == 0 {
		yamlConfig.LoginLimit = programmaticConfig.LoginLimit
	}
	if yamlConfig.LoginWindowDays == 0 {
		yamlConfig.LoginWindowDays = programmaticConfig.LoginWindowDays
	}
	if yamlConfig.MaxRetries == 0 {
		yamlConfig.MaxRetries = programmaticConfig.MaxRetries
	}
	for name, g := range programmaticConfig.Gateways {
		if _, ok := yamlConfig.Gateways[name]; ok {
			continue
		}
		if yamlConfig.Gateways == nil {
			yamlConfig.Gateways = map[string]GatewayConfig{}
		}
		yamlConfig.Gateways[name] = g
	}

	return mergeWithDefaults(yamlConfig)
}
