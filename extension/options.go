package extension

import (
	"github.com/xraph/grove"

	"github.com/xraph/credits"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/store"
)

// Option configures the Credits Forge extension.
type Option func(*Extension)

// WithStore sets the store for the credits engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB supplies the database for the sqlite, postgres and mongo
// backends. Config.Store picks which one wraps it.
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) { e.groveDB = db }
}

// WithCreditsOption passes a credits.Option through to the underlying engine.
func WithCreditsOption(opt credits.Option) Option {
	return func(e *Extension) {
		e.creditsOpts = append(e.creditsOpts, opt)
	}
}

// WithPlugin registers a credits plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.creditsOpts = append(e.creditsOpts, credits.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes leaves Handler nil.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for credits routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

func WithStoreBackend(name string) Option {
	return func(e *Extension) { e.config.Store = name }
}

func WithCatalog(name string) Option {
	return func(e *Extension) { e.config.Catalog = name }
}

func WithLoginLimit(n int) Option {
	return func(e *Extension) { e.config.LoginLimit = n }
}

// WithGateway routes provider generations to the HTTP gateway at url. The
// token, when set, is sent as a bearer token.
func WithGateway(provider, url, token string) Option {
	return func(e *Extension) {
		if e.config.Gateways == nil {
			e.config.Gateways = map[string]GatewayConfig{}
		}
		e.config.Gateways[provider] = GatewayConfig{URL: url, Token: token}
	}
}
