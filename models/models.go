package models

import (
	"time"

	"github.com/tradewatch/deployctl/config"
)

// DeploymentManifest is the authoritative record of what is currently live.
// The deployment pipeline is its sole writer; it is immutable once written
// and serves as the lookup key for future rollbacks.
type DeploymentManifest struct {
	ID              string             `json:"id" yaml:"id"`
	Environment     config.Environment `json:"environment" yaml:"environment"`
	Version         string             `json:"version" yaml:"version"`
	Timestamp       time.Time          `json:"timestamp" yaml:"timestamp"`
	DurationSeconds int                `json:"duration_seconds" yaml:"duration_seconds"`
	GitCommit       string             `json:"git_commit" yaml:"git_commit"`
	GitShort        string             `json:"git_short" yaml:"git_short"`
	DeployedBy      string             `json:"deployed_by" yaml:"deployed_by"`
	Status          string             `json:"status" yaml:"status"` // success, failed
}

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// HealthResponse is the status API's health payload.
type HealthResponse struct {
	Status             string `json:"status"`
	Version            string `json:"version"`
	HistoryAccessible  bool   `json:"history_accessible"`
	BackupRootReadable bool   `json:"backup_root_readable"`
}
