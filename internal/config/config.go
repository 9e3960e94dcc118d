package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livetemplate/blockpress/internal/notify"
)

// FileName is the configuration file looked up by LoadFromDir.
const FileName = "blockpress.yaml"

// Config represents the blockpress configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Components ComponentsConfig `yaml:"components"`
	Compiler   CompilerConfig   `yaml:"compiler"`
	API        *APIConfig       `yaml:"api,omitempty"`

	// Notifications announce every published version.
	Notifications []notify.Config `yaml:"notifications,omitempty"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port          int    `yaml:"port"`
	Host          string `yaml:"host"`
	Debug         bool   `yaml:"debug"`
	PublicBaseURL string `yaml:"public_base_url,omitempty"` // Prefix of published URLs (default: http://host:port)
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// GetPublicBaseURL returns the base of public document URLs without a
// trailing slash.
func (c ServerConfig) GetPublicBaseURL() string {
	if c.PublicBaseURL != "" {
		return strings.TrimRight(os.ExpandEnv(c.PublicBaseURL), "/")
	}
	host := c.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Port)
}

// StorageConfig selects the document store
type StorageConfig struct {
	Driver string `yaml:"driver"`         // "memory", "sqlite" or "postgres"
	Path   string `yaml:"path,omitempty"` // For sqlite: database file (default: blockpress.db)
	DSN    string `yaml:"dsn,omitempty"`  // For postgres: connection string (env vars expanded, default: $DATABASE_URL)
}

// GetDriver returns the storage driver (default: "sqlite")
func (c StorageConfig) GetDriver() string {
	if c.Driver == "" {
		return "sqlite"
	}
	return strings.ToLower(c.Driver)
}

// GetDSN returns the driver-specific data source with environment variables
// expanded.
func (c StorageConfig) GetDSN() string {
	switch c.GetDriver() {
	case "sqlite":
		if c.Path == "" {
			return "blockpress.db"
		}
		return os.ExpandEnv(c.Path)
	case "postgres":
		return os.ExpandEnv(c.DSN)
	}
	return ""
}

// ComponentsConfig configures where custom components come from
type ComponentsConfig struct {
	SeedFile string `yaml:"seed_file,omitempty"` // YAML seed overriding builtin metadata and adding components
	WatchDir string `yaml:"watch_dir,omitempty"` // Directory of component files reloaded on change
}

// CompilerConfig bounds compiled component evaluation
type CompilerConfig struct {
	MaxSteps       int    `yaml:"max_steps,omitempty"`        // Evaluation steps per render (default: 100000)
	MaxElements    int    `yaml:"max_elements,omitempty"`     // Elements per render (default: 5000)
	MaxDepth       int    `yaml:"max_depth,omitempty"`        // Nested call depth (default: 64)
	MaxBytes       int    `yaml:"max_bytes,omitempty"`        // Strings, arrays and output built per render (default: 32MB)
	MaxSourceBytes int    `yaml:"max_source_bytes,omitempty"` // Component source size (default: 64KB)
	CacheTTL       string `yaml:"cache_ttl,omitempty"`        // Compiled function lifetime, e.g. "1h" (default: no expiry)
}

// GetMaxSteps returns the step budget (default: 100000)
func (c CompilerConfig) GetMaxSteps() int {
	if c.MaxSteps <= 0 {
		return 100000
	}
	return c.MaxSteps
}

// GetMaxElements returns the element budget (default: 5000)
func (c CompilerConfig) GetMaxElements() int {
	if c.MaxElements <= 0 {
		return 5000
	}
	return c.MaxElements
}

// GetMaxDepth returns the call depth limit (default: 64)
func (c CompilerConfig) GetMaxDepth() int {
	if c.MaxDepth <= 0 {
		return 64
	}
	return c.MaxDepth
}

// GetMaxBytes returns the per-render memory budget (default: 32MB)
func (c CompilerConfig) GetMaxBytes() int {
	if c.MaxBytes <= 0 {
		return 32 << 20
	}
	return c.MaxBytes
}

// GetMaxSourceBytes returns the source size limit (default: 64KB)
func (c CompilerConfig) GetMaxSourceBytes() int {
	if c.MaxSourceBytes <= 0 {
		return 64 << 10
	}
	return c.MaxSourceBytes
}

// GetCacheTTL returns the compiled function lifetime (0 means no expiry)
func (c CompilerConfig) GetCacheTTL() time.Duration {
	if c.CacheTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return 0
	}
	return d
}

// APIConfig holds REST API configuration
type APIConfig struct {
	CORS      *CORSConfig      `yaml:"cors,omitempty"`
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// CORSConfig holds CORS configuration for the API
type CORSConfig struct {
	Origins []string `yaml:"origins,omitempty"` // Allowed origins (e.g., ["http://localhost:3000", "*"])
}

// RateLimitConfig holds rate limiting configuration for the API
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // Rate limit in requests per second (default: 10)
	Burst             int     `yaml:"burst,omitempty"`               // Burst size (default: 20)
	MaxTrackedIPs     int     `yaml:"max_tracked_ips,omitempty"`     // Clients tracked before LRU eviction (default: 10000)
}

// GetCORSOrigins returns the configured CORS origins, or nil if not configured
func (c *APIConfig) GetCORSOrigins() []string {
	if c == nil || c.CORS == nil {
		return nil
	}
	return c.CORS.Origins
}

// GetRateLimitRPS returns the rate limit in requests per second (default: 10)
func (c *APIConfig) GetRateLimitRPS() float64 {
	if c == nil || c.RateLimit == nil || c.RateLimit.RequestsPerSecond <= 0 {
		return 10
	}
	return c.RateLimit.RequestsPerSecond
}

// GetRateLimitBurst returns the burst size (default: 20)
func (c *APIConfig) GetRateLimitBurst() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.Burst <= 0 {
		return 20
	}
	return c.RateLimit.Burst
}

// GetMaxTrackedIPs returns the number of client IPs tracked by the rate limiter (default: 10000)
func (c *APIConfig) GetMaxTrackedIPs() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.MaxTrackedIPs <= 0 {
		return 10000
	}
	return c.RateLimit.MaxTrackedIPs
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:  8080,
			Host:  "localhost",
			Debug: false,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "blockpress.db",
		},
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	switch c.Storage.GetDriver() {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.GetDSN() == "" && os.Getenv("DATABASE_URL") == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver (or set DATABASE_URL)")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported (use memory, sqlite or postgres)", c.Storage.Driver)
	}
	if c.Compiler.CacheTTL != "" {
		if _, err := time.ParseDuration(c.Compiler.CacheTTL); err != nil {
			return fmt.Errorf("compiler.cache_ttl: %w", err)
		}
	}
	if c.API != nil && c.API.RateLimit != nil && c.API.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("api.rate_limit.requests_per_second cannot be negative")
	}
	for i, n := range c.Notifications {
		switch n.Type {
		case "slack", "email", "webhook":
		default:
			return fmt.Errorf("notifications[%d].type %q is not supported (use slack, email or webhook)", i, n.Type)
		}
		if n.Type == "webhook" && n.URL == "" {
			return fmt.Errorf("notifications[%d].url is required for webhook notifications", i)
		}
	}
	return nil
}

// Load loads configuration from a YAML file
// If the file doesn't exist, returns the default configuration
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	// Relative paths are relative to the config file.
	base := filepath.Dir(configPath)
	config.Components.SeedFile = resolvePath(base, config.Components.SeedFile)
	config.Components.WatchDir = resolvePath(base, config.Components.WatchDir)
	if config.Storage.GetDriver() == "sqlite" && !strings.HasPrefix(config.Storage.Path, ":") && !strings.HasPrefix(config.Storage.Path, "$") {
		config.Storage.Path = resolvePath(base, config.Storage.Path)
	}

	return config, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// LoadFromDir looks for blockpress.yaml in the given directory.
// If none is found, returns the default configuration
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
