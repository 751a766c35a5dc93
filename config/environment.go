package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tradewatch/deployctl/operr"
)

// Environment identifies one deployment target. The set is closed: every
// operation resolves exactly one Environment up front and never mixes two.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Environments lists the closed set in promotion order.
func Environments() []Environment {
	return []Environment{Development, Staging, Production}
}

// ParseEnvironment resolves a name against the closed environment set.
func ParseEnvironment(name string) (Environment, error) {
	switch Environment(strings.ToLower(strings.TrimSpace(name))) {
	case Development:
		return Development, nil
	case Staging:
		return Staging, nil
	case Production:
		return Production, nil
	}
	return "", operr.E(operr.InvalidArgument, "resolve environment",
		fmt.Sprintf("unknown environment %q (must be development, staging or production)", name))
}

// EnvironmentConfig is the nested per-environment configuration document.
type EnvironmentConfig struct {
	Server       EnvServer          `yaml:"server"`
	Database     EnvDatabase        `yaml:"database"`
	APIServices  map[string]EnvAPI  `yaml:"api_services"`
	Auth         EnvAuth            `yaml:"auth"`
	Logging      EnvLogging         `yaml:"logging"`
	Cache        EnvCache           `yaml:"cache"`
	WebSocket    EnvWebSocket       `yaml:"web_socket"`
	FeatureFlags map[string]bool    `yaml:"feature_flags"`
	Monitoring   EnvMonitoring      `yaml:"monitoring"`
	Deployment   EnvDeployment      `yaml:"deployment"`
}

type EnvServer struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type EnvDatabase struct {
	URI         string `yaml:"uri"`
	Name        string `yaml:"name"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	MaxPoolSize int    `yaml:"max_pool_size"`
}

type EnvAPI struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type EnvAuth struct {
	JWTSecret       string `yaml:"jwt_secret"`
	SessionSecret   string `yaml:"session_secret"`
	CookieSecure    bool   `yaml:"cookie_secure"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
}

type EnvLogging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type EnvCache struct {
	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
}

type EnvWebSocket struct {
	Enabled          bool `yaml:"enabled"`
	MaxConnections   int  `yaml:"max_connections"`
	HeartbeatSeconds int  `yaml:"heartbeat_seconds"`
}

type EnvMonitoring struct {
	SentryDSN      string `yaml:"sentry_dsn"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// EnvDeployment holds the deployment target for the environment: object
// storage bucket, edge distribution, and the remote server running the app.
type EnvDeployment struct {
	Bucket                 string `yaml:"bucket"`
	Region                 string `yaml:"region"`
	CloudFrontDistribution string `yaml:"cloudfront_distribution"`
	ServerHost             string `yaml:"server_host"`
	ServerUser             string `yaml:"server_user"`
	AppPath                string `yaml:"app_path"`
	HealthCheckURL         string `yaml:"health_check_url"`
}

// Registry resolves environment names to their configuration documents.
// Pure lookup: no side effects beyond reading the environment file, with
// explicit process environment variables taking precedence over file values
// through ${VAR} expansion.
type Registry struct {
	configDir string
}

func NewRegistry(configDir string) *Registry {
	return &Registry{configDir: configDir}
}

// EnvironmentFile returns the path of the environment's YAML document.
func (r *Registry) EnvironmentFile(env Environment) string {
	return filepath.Join(r.configDir, "environments", string(env)+".yaml")
}

// Resolve loads the configuration for env.
func (r *Registry) Resolve(env Environment) (*EnvironmentConfig, error) {
	raw, err := r.ResolveRaw(env)
	if err != nil {
		return nil, err
	}

	var cfg EnvironmentConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s config: %w", env, err)
	}
	return &cfg, nil
}

// ResolveRaw loads the environment document with ${VAR} expansion applied
// but without imposing the typed schema. Diff operates on this form so it
// sees exactly what the file says.
func (r *Registry) ResolveRaw(env Environment) ([]byte, error) {
	path := r.EnvironmentFile(env)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, operr.Wrap(operr.NotFound, "resolve environment",
				fmt.Sprintf("no configuration file for %s at %s", env, path), err)
		}
		return nil, fmt.Errorf("failed to read %s config: %w", env, err)
	}
	return []byte(os.ExpandEnv(string(data))), nil
}

// activePointerName is the persisted default environment. It is read once at
// process start and carried as an explicit value from then on, so a `use`
// from another terminal cannot change the behavior of a running operation.
const activePointerName = ".active-environment"

// ActivePointerFile returns the path of the active-environment pointer.
func (r *Registry) ActivePointerFile() string {
	return filepath.Join(r.configDir, activePointerName)
}

// ActiveEnvironment reads the persisted default environment. Returns
// Development when no pointer has been written yet.
func (r *Registry) ActiveEnvironment() (Environment, error) {
	data, err := os.ReadFile(r.ActivePointerFile())
	if err != nil {
		if os.IsNotExist(err) {
			return Development, nil
		}
		return "", fmt.Errorf("failed to read active environment pointer: %w", err)
	}
	return ParseEnvironment(string(data))
}

// WriteActiveEnvironment persists the default environment pointer. Callers
// must write derived artifacts first: readers that only check the pointer
// must never observe a decision the generated config does not yet reflect.
func (r *Registry) WriteActiveEnvironment(env Environment) error {
	if err := os.MkdirAll(r.configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(r.ActivePointerFile(), []byte(env+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write active environment pointer: %w", err)
	}
	return nil
}
