package configmgr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradewatch/deployctl/backup"
	"github.com/tradewatch/deployctl/config"
	"github.com/tradewatch/deployctl/confirm"
	"github.com/tradewatch/deployctl/operr"
)

const stagingDoc = `
server:
  host: "staging.dashboard.example.com"
  port: 3001
database:
  uri: "mongodb://db.staging.internal:27017"
  name: "dashboard_staging"
  password: "staging-secret"
api_services:
  quotes:
    base_url: "https://quotes.example.com"
    api_key: "qk-staging"
auth:
  jwt_secret: "staging-jwt"
  session_secret: "staging-session"
  cookie_secure: true
logging:
  level: "debug"
cache:
  redis_url: "redis://cache.staging.internal:6379"
  redis_password: "staging-redis"
web_socket:
  enabled: true
feature_flags:
  dark_mode: true
monitoring:
  metrics_enabled: false
deployment:
  bucket: "dashboard-staging"
  region: "eu-west-1"
`

func newTestManager(t *testing.T, answer confirm.Confirmer) (*Manager, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		ConfigDir:  filepath.Join(t.TempDir(), "config"),
		BackupRoot: t.TempDir(),
	}
	writeEnvDoc(t, cfg, config.Staging, stagingDoc)

	registry := config.NewRegistry(cfg.ConfigDir)
	store := backup.NewStore(cfg.BackupRoot)
	return New(cfg, registry, store, answer, zap.NewNop()), cfg
}

func writeEnvDoc(t *testing.T, cfg *config.Config, env config.Environment, doc string) {
	t.Helper()
	envDir := filepath.Join(cfg.ConfigDir, "environments")
	require.NoError(t, os.MkdirAll(envDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(envDir, string(env)+".yaml"), []byte(doc), 0644))
}

func readLiveEnvDoc(t *testing.T, cfg *config.Config, env config.Environment) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.ConfigDir, "environments", string(env)+".yaml"))
	require.NoError(t, err)
	return string(data)
}

func TestValidate(t *testing.T) {
	mgr, cfg := newTestManager(t, confirm.Auto(true))

	assert.NoError(t, mgr.Validate(config.Staging, false))

	// Break the document, then check force downgrades the failure.
	writeEnvDoc(t, cfg, config.Staging, "server:\n  host: \"\"\n")
	err := mgr.Validate(config.Staging, false)
	require.Error(t, err)
	assert.True(t, operr.Is(err, operr.ValidationFailure))

	assert.NoError(t, mgr.Validate(config.Staging, true))
}

func TestGenerateArtifactsDeterministic(t *testing.T) {
	mgr, cfg := newTestManager(t, confirm.Auto(true))

	paths, err := mgr.Generate(config.Staging)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	first := map[string][]byte{}
	for _, rel := range paths {
		data, err := os.ReadFile(filepath.Join(cfg.ConfigDir, rel))
		require.NoError(t, err)
		first[rel] = data
	}

	nginx := string(first[filepath.Join("nginx", "staging.conf")])
	assert.Contains(t, nginx, "server_name staging.dashboard.example.com;")
	assert.Contains(t, nginx, "proxy_pass http://127.0.0.1:3001;")
	assert.Contains(t, nginx, "location /ws/")

	pm2 := string(first[filepath.Join("pm2", "ecosystem.staging.config.js")])
	assert.Contains(t, pm2, `instances: 2`)
	assert.Contains(t, pm2, `max_memory_restart: "512M"`)

	compose := string(first[filepath.Join("docker", "docker-compose.staging.yml")])
	assert.Contains(t, compose, "dashboard-api:staging")
	assert.Contains(t, compose, "MONGO_URI: mongodb://db.staging.internal:27017")

	// Re-generating from the same document is byte-identical.
	_, err = mgr.Generate(config.Staging)
	require.NoError(t, err)
	for rel, data := range first {
		again, err := os.ReadFile(filepath.Join(cfg.ConfigDir, rel))
		require.NoError(t, err)
		assert.Equal(t, data, again, "artifact %s changed between runs", rel)
	}
}

func TestBackupAndRestoreRoundTrip(t *testing.T) {
	mgr, cfg := newTestManager(t, confirm.Auto(true))

	_, err := mgr.Generate(config.Staging)
	require.NoError(t, err)

	record, err := mgr.Backup(config.Staging)
	require.NoError(t, err)
	// Environment file plus all three artifacts.
	assert.Len(t, record.Contents, 4)
	assert.Contains(t, record.Contents, filepath.Join("environments", "staging.yaml"))

	// The live config drifts after the backup.
	writeEnvDoc(t, cfg, config.Staging, "server:\n  host: \"drifted\"\n")

	pre, err := mgr.Restore(record.ID)
	require.NoError(t, err)
	require.NotNil(t, pre)
	assert.NotEqual(t, record.ID, pre.ID)

	// The original document is back.
	assert.Contains(t, readLiveEnvDoc(t, cfg, config.Staging), "staging.dashboard.example.com")

	// The drifted state is preserved in the pre-restore backup, so the
	// restore is itself undoable.
	_, preDir, err := backup.NewStore(cfg.BackupRoot).Open(config.Staging, backup.DomainConfig, pre.ID)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(preDir, "environments", "staging.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "drifted")
}

func TestBackupWithoutArtifacts(t *testing.T) {
	mgr, _ := newTestManager(t, confirm.Auto(true))

	// No generate has run: only the environment file is captured.
	record, err := mgr.Backup(config.Staging)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("environments", "staging.yaml")}, record.Contents)
}

func TestBackupUnknownEnvironment(t *testing.T) {
	mgr, _ := newTestManager(t, confirm.Auto(true))
	_, err := mgr.Backup(config.Production)
	require.Error(t, err)
	assert.True(t, operr.Is(err, operr.NotFound))
}

func TestRestoreUnknownBackup(t *testing.T) {
	mgr, _ := newTestManager(t, confirm.Auto(true))
	_, err := mgr.Restore("backup-19990101-000000")
	require.Error(t, err)
	assert.True(t, operr.Is(err, operr.NotFound))
}

func TestUseWritesPointerAfterArtifacts(t *testing.T) {
	mgr, cfg := newTestManager(t, confirm.Auto(true))
	registry := config.NewRegistry(cfg.ConfigDir)

	require.NoError(t, mgr.Use(config.Staging, false))

	env, err := registry.ActiveEnvironment()
	require.NoError(t, err)
	assert.Equal(t, config.Staging, env)

	// Artifacts exist once the pointer names the environment.
	for _, rel := range ArtifactPaths(config.Staging) {
		_, err := os.Stat(filepath.Join(cfg.ConfigDir, rel))
		assert.NoError(t, err, "artifact %s missing after use", rel)
	}
}

func TestUseRefusedConfirmation(t *testing.T) {
	mgr, cfg := newTestManager(t, confirm.Auto(false))
	registry := config.NewRegistry(cfg.ConfigDir)

	err := mgr.Use(config.Staging, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, operr.ErrCanceled)

	// Nothing changed: pointer still defaults and no artifacts exist.
	env, err := registry.ActiveEnvironment()
	require.NoError(t, err)
	assert.Equal(t, config.Development, env)
	_, statErr := os.Stat(filepath.Join(cfg.ConfigDir, "nginx"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestUseForceSkipsConfirmation(t *testing.T) {
	mgr, cfg := newTestManager(t, confirm.Auto(false))
	require.NoError(t, mgr.Use(config.Staging, true))

	env, err := config.NewRegistry(cfg.ConfigDir).ActiveEnvironment()
	require.NoError(t, err)
	assert.Equal(t, config.Staging, env)
}

func TestDiffAcrossEnvironments(t *testing.T) {
	mgr, cfg := newTestManager(t, confirm.Auto(true))
	prodDoc := `
server:
  host: "dashboard.example.com"
  port: 3001
auth:
  jwt_secret: "prod-jwt"
`
	writeEnvDoc(t, cfg, config.Production, prodDoc)

	entries, err := mgr.Diff(config.Staging, config.Production)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	byPath := map[string]config.DiffEntry{}
	for _, e := range entries {
		byPath[e.Path] = e
	}
	assert.Equal(t, "staging.dashboard.example.com", byPath["server.host"].ValueA)
	assert.Equal(t, "dashboard.example.com", byPath["server.host"].ValueB)
	// Port matches on both sides: not reported.
	assert.NotContains(t, byPath, "server.port")
}

func TestRenderMaskedYAMLHidesSecrets(t *testing.T) {
	mgr, _ := newTestManager(t, confirm.Auto(true))

	doc, err := mgr.Show(config.Staging)
	require.NoError(t, err)

	data, err := RenderMaskedYAML(doc)
	require.NoError(t, err)
	rendered := string(data)

	// Secret leaves never reach the human-readable rendering.
	assert.NotContains(t, rendered, "staging-secret")
	assert.NotContains(t, rendered, "staging-jwt")
	assert.NotContains(t, rendered, "staging-session")
	assert.NotContains(t, rendered, "qk-staging")
	assert.NotContains(t, rendered, "staging-redis")
	assert.Contains(t, rendered, "********")

	// Everything else renders as-is.
	assert.Contains(t, rendered, "staging.dashboard.example.com")
	assert.Contains(t, rendered, "dashboard-staging")
}

func TestListBackupsNewestFirst(t *testing.T) {
	mgr, _ := newTestManager(t, confirm.Auto(true))

	first, err := mgr.Backup(config.Staging)
	require.NoError(t, err)
	second, err := mgr.Backup(config.Staging)
	require.NoError(t, err)

	records, err := mgr.ListBackups(config.Staging)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second.ID, records[0].ID)
	assert.Equal(t, first.ID, records[1].ID)
}
