// Package db persists deployment manifests in a local SQLite database so
// operators and the status API can answer "what is live where" without
// touching the deployment targets.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tradewatch/deployctl/config"
	"github.com/tradewatch/deployctl/models"
)

type Database struct {
	db *sql.DB
}

func New(path string) (*Database, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &Database{db: db}
	if err := d.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return d, nil
}

func (d *Database) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS deployments (
		id TEXT PRIMARY KEY,
		environment TEXT NOT NULL,
		version TEXT NOT NULL,
		deployed_at TIMESTAMP NOT NULL,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		git_commit TEXT NOT NULL,
		git_short TEXT NOT NULL,
		deployed_by TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_environment ON deployments(environment);
	CREATE INDEX IF NOT EXISTS idx_deployed_at ON deployments(deployed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_status ON deployments(status);
	`

	_, err := d.db.Exec(schema)
	return err
}

// RecordDeployment inserts a manifest. Manifests are write-once: there is no
// update path by design.
func (d *Database) RecordDeployment(m *models.DeploymentManifest) error {
	_, err := d.db.Exec(`
		INSERT INTO deployments (id, environment, version, deployed_at, duration_seconds, git_commit, git_short, deployed_by, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, string(m.Environment), m.Version, m.Timestamp, m.DurationSeconds, m.GitCommit, m.GitShort, m.DeployedBy, m.Status)

	return err
}

// LatestDeployment returns the most recent successful deployment for env.
func (d *Database) LatestDeployment(env config.Environment) (*models.DeploymentManifest, error) {
	var m models.DeploymentManifest
	var envName string
	err := d.db.QueryRow(`
		SELECT id, environment, version, deployed_at, duration_seconds, git_commit, git_short, deployed_by, status
		FROM deployments
		WHERE environment = ? AND status = ?
		ORDER BY deployed_at DESC LIMIT 1
	`, string(env), models.StatusSuccess).Scan(&m.ID, &envName, &m.Version, &m.Timestamp, &m.DurationSeconds, &m.GitCommit, &m.GitShort, &m.DeployedBy, &m.Status)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no successful deployment recorded for %s", env)
	}
	if err != nil {
		return nil, err
	}
	m.Environment = config.Environment(envName)
	return &m, nil
}

// ListDeployments returns deployments for env, newest first.
func (d *Database) ListDeployments(env config.Environment, limit int) ([]models.DeploymentManifest, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.Query(`
		SELECT id, environment, version, deployed_at, duration_seconds, git_commit, git_short, deployed_by, status
		FROM deployments
		WHERE environment = ?
		ORDER BY deployed_at DESC
		LIMIT ?
	`, string(env), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var manifests []models.DeploymentManifest
	for rows.Next() {
		var m models.DeploymentManifest
		var envName string
		if err := rows.Scan(&m.ID, &envName, &m.Version, &m.Timestamp, &m.DurationSeconds, &m.GitCommit, &m.GitShort, &m.DeployedBy, &m.Status); err != nil {
			return nil, err
		}
		m.Environment = config.Environment(envName)
		manifests = append(manifests, m)
	}
	return manifests, rows.Err()
}

// Ping reports whether the underlying database is reachable.
func (d *Database) Ping() error {
	return d.db.Ping()
}

func (d *Database) Close() error {
	return d.db.Close()
}
