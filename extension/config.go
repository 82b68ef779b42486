package extension

// Store backends the extension can build from a grove.DB.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Catalog revisions.
const (
	CatalogDual   = "dual"
	CatalogSingle = "single"
)

// Config holds the Credits extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.credits" or "credits" keys).
type Config struct {
	// DisableRoutes leaves Handler nil.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix stripped by Handler (default: "/credits").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// Store selects the backend built around the grove.DB passed with
	// WithGroveDB. Ignored when WithStore was used (default: "memory").
	Store string `json:"store" mapstructure:"store" yaml:"store"`

	// Catalog is "dual" (Pollinations and Imagen pools) or "single"
	// (default: "dual").
	Catalog string `json:"catalog" mapstructure:"catalog" yaml:"catalog"`

	// Profile names the session record (default: "default").
	Profile string `json:"profile" mapstructure:"profile" yaml:"profile"`

	// LoginLimit is the number of distinct Free login days tolerated in
	// the window. Zero keeps the engine default of 6.
	LoginLimit int `json:"login_limit" mapstructure:"login_limit" yaml:"login_limit"`

	// LoginWindowDays is the throttle window (default: 30).
	LoginWindowDays int `json:"login_window_days" mapstructure:"login_window_days" yaml:"login_window_days"`

	// MaxRetries bounds optimistic write retries (default: 5).
	MaxRetries int `json:"max_retries" mapstructure:"max_retries" yaml:"max_retries"`

	// Gateways maps a provider ("imagen", "replicate" or "pollinations") to
	// the HTTP gateway serving it. Pollinations works without one.
	Gateways map[string]GatewayConfig `json:"gateways" mapstructure:"gateways" yaml:"gateways"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// GatewayConfig is the HTTP gateway of one generation provider.
type GatewayConfig struct {
	URL   string `json:"url" mapstructure:"url" yaml:"url"`
	Token string `json:"token" mapstructure:"token" yaml:"token"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:        "/credits",
		Store:           StoreMemory,
		Catalog:         CatalogDual,
		Profile:         "default",
		LoginWindowDays: 30,
		MaxRetries:      5,
	}
}
