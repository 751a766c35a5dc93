package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		validate    func(t *testing.T, cfg *Config)
	}{
		{
			name: "complete valid config",
			configYAML: `
config_dir: "/etc/deployctl"
backup_root: "/var/backups/dashboard"
log_dir: "/var/log/deployctl"
build_dir: "/srv/dashboard/dist"

history:
  path: "/var/lib/deployctl/deployments.db"

repo:
  path: "/srv/dashboard"
  author_name: "Ops Bot"
  author_email: "ops@example.com"

server:
  port: 9000
  api_keys:
    - name: "dashboard"
      key: "dashboard-secret"

logging:
  level: "debug"
  format: "console"

notify:
  webhook_url: "https://hooks.example.com/T000/B000"
  channel: "#deploys"
`,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/etc/deployctl", cfg.ConfigDir)
				assert.Equal(t, "/var/backups/dashboard", cfg.BackupRoot)
				assert.Equal(t, "/var/log/deployctl", cfg.LogDir)
				assert.Equal(t, "/srv/dashboard/dist", cfg.BuildDir)
				assert.Equal(t, "/var/lib/deployctl/deployments.db", cfg.History.Path)
				assert.Equal(t, "/srv/dashboard", cfg.Repo.Path)
				assert.Equal(t, "Ops Bot", cfg.Repo.AuthorName)
				assert.Equal(t, 9000, cfg.Server.Port)
				require.Len(t, cfg.Server.APIKeys, 1)
				assert.Equal(t, "dashboard-secret", cfg.Server.APIKeys[0].Key)
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, "console", cfg.Logging.Format)
				assert.Equal(t, "https://hooks.example.com/T000/B000", cfg.Notify.WebhookURL)
				assert.Equal(t, "#deploys", cfg.Notify.Channel)
			},
		},
		{
			name:       "empty config applies all defaults",
			configYAML: "",
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "config", cfg.ConfigDir)
				assert.Equal(t, "backups", cfg.BackupRoot)
				assert.Equal(t, "logs", cfg.LogDir)
				assert.Equal(t, "dist", cfg.BuildDir)
				assert.Equal(t, filepath.Join("data", "deployments.db"), cfg.History.Path)
				assert.Equal(t, ".", cfg.Repo.Path)
				assert.Equal(t, "deployctl", cfg.Repo.AuthorName)
				assert.Equal(t, 8090, cfg.Server.Port)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "json", cfg.Logging.Format)
			},
		},
		{
			name: "environment variable expansion",
			configYAML: `
backup_root: "${DEPLOYCTL_TEST_BACKUP_ROOT}"
notify:
  webhook_url: "${DEPLOYCTL_TEST_WEBHOOK}"
`,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/mnt/backups", cfg.BackupRoot)
				assert.Equal(t, "https://hooks.example.com/env", cfg.Notify.WebhookURL)
			},
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
backup_root: [unclosed
`,
			expectError: true,
		},
	}

	t.Setenv("DEPLOYCTL_TEST_BACKUP_ROOT", "/mnt/backups")
	t.Setenv("DEPLOYCTL_TEST_WEBHOOK", "https://hooks.example.com/env")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile := filepath.Join(t.TempDir(), "deployctl.yaml")
			require.NoError(t, os.WriteFile(configFile, []byte(tt.configYAML), 0644))

			cfg, err := Load(configFile)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			tt.validate(t, cfg)
		})
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	cfg, err := Load("/non/existent/deployctl.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadOrDefault(t *testing.T) {
	// Missing file falls back to defaults so read-only commands still work.
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "backups", cfg.BackupRoot)
	assert.Equal(t, 8090, cfg.Server.Port)

	// Existing file goes through the normal loader.
	configFile := filepath.Join(t.TempDir(), "deployctl.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("backup_root: /custom"), 0644))
	cfg, err = LoadOrDefault(configFile)
	require.NoError(t, err)
	assert.Equal(t, "/custom", cfg.BackupRoot)
}

func TestConfigValidateAPIKey(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			APIKeys: []APIKey{
				{Name: "dashboard", Key: "secret1"},
				{Name: "ci", Key: "secret2"},
			},
		},
	}

	assert.True(t, cfg.ValidateAPIKey("secret1"))
	assert.True(t, cfg.ValidateAPIKey("secret2"))
	assert.False(t, cfg.ValidateAPIKey("invalid-key"))
	assert.False(t, cfg.ValidateAPIKey(""))
}

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		input       string
		expected    Environment
		expectError bool
	}{
		{input: "development", expected: Development},
		{input: "staging", expected: Staging},
		{input: "production", expected: Production},
		{input: "Production", expected: Production},
		{input: " staging ", expected: Staging},
		{input: "prod", expectError: true},
		{input: "", expectError: true},
		{input: "qa", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			env, err := ParseEnvironment(tt.input)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, env)
		})
	}
}

func TestRegistryResolve(t *testing.T) {
	configDir := t.TempDir()
	envDir := filepath.Join(configDir, "environments")
	require.NoError(t, os.MkdirAll(envDir, 0755))

	doc := `
server:
  host: "0.0.0.0"
  port: 3001
database:
  uri: "mongodb://localhost:27017"
  name: "dashboard_staging"
deployment:
  bucket: "dashboard-staging"
  region: "eu-west-1"
`
	require.NoError(t, os.WriteFile(filepath.Join(envDir, "staging.yaml"), []byte(doc), 0644))

	registry := NewRegistry(configDir)

	cfg, err := registry.Resolve(Staging)
	require.NoError(t, err)
	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "dashboard_staging", cfg.Database.Name)
	assert.Equal(t, "dashboard-staging", cfg.Deployment.Bucket)

	// An environment without a document is NotFound, not a parse error.
	_, err = registry.Resolve(Production)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no configuration file for production")
}

func TestRegistryResolveRawExpansion(t *testing.T) {
	t.Setenv("DEPLOYCTL_TEST_DB_PASSWORD", "from-process-env")

	configDir := t.TempDir()
	envDir := filepath.Join(configDir, "environments")
	require.NoError(t, os.MkdirAll(envDir, 0755))
	doc := `
database:
  password: "${DEPLOYCTL_TEST_DB_PASSWORD}"
`
	require.NoError(t, os.WriteFile(filepath.Join(envDir, "development.yaml"), []byte(doc), 0644))

	raw, err := NewRegistry(configDir).ResolveRaw(Development)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "from-process-env")
	assert.NotContains(t, string(raw), "DEPLOYCTL_TEST_DB_PASSWORD")
}

func TestActiveEnvironmentPointer(t *testing.T) {
	registry := NewRegistry(t.TempDir())

	// No pointer yet: defaults to development.
	env, err := registry.ActiveEnvironment()
	require.NoError(t, err)
	assert.Equal(t, Development, env)

	require.NoError(t, registry.WriteActiveEnvironment(Production))
	env, err = registry.ActiveEnvironment()
	require.NoError(t, err)
	assert.Equal(t, Production, env)

	// A corrupt pointer surfaces as an error instead of a silent default.
	require.NoError(t, os.WriteFile(registry.ActivePointerFile(), []byte("nonsense"), 0644))
	_, err = registry.ActiveEnvironment()
	assert.Error(t, err)
}
