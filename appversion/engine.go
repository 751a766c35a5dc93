package appversion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tradewatch/deployctl/backup"
	"github.com/tradewatch/deployctl/config"
	"github.com/tradewatch/deployctl/confirm"
	"github.com/tradewatch/deployctl/lockfile"
	"github.com/tradewatch/deployctl/operr"
)

// State tracks progress through the rollback state machine.
type State string

const (
	StateClean      State = "clean"
	StateDirty      State = "dirty"
	StateBackedUp   State = "backed_up"
	StateCheckedOut State = "checked_out"
	StateBuilt      State = "built"
	StateDeployed   State = "deployed"
	StateRecorded   State = "recorded"
)

// TargetKind distinguishes how the rollback target was requested.
type TargetKind string

const (
	TargetVersion TargetKind = "version" // semantic version, resolved to exactly one tag
	TargetTag     TargetKind = "tag"     // explicit tag, used verbatim
	TargetCommit  TargetKind = "commit"  // explicit commit, used verbatim
)

// Target is the requested rollback destination.
type Target struct {
	Kind  TargetKind
	Value string
}

// Options are the per-invocation flags.
type Options struct {
	DryRun           bool
	SkipBuild        bool
	SkipDeploy       bool
	SkipConfirmation bool
}

// Builder rebuilds the application for an environment after checkout.
type Builder interface {
	Build(ctx context.Context, env config.Environment) error
}

// Publisher deploys the build output for an environment.
type Publisher interface {
	Publish(ctx context.Context, env config.Environment) error
}

// Result reports how far the state machine got and what it resolved.
type Result struct {
	State        State  `yaml:"state"`
	ResolvedRef  string `yaml:"resolved_ref"`
	ResolvedHash string `yaml:"resolved_hash"`
	SafetyBranch string `yaml:"safety_branch,omitempty"`
	RecordPath   string `yaml:"record_path,omitempty"`
}

type Engine struct {
	vcs        VersionControl
	builder    Builder
	publisher  Publisher
	backups    *backup.Store
	backupRoot string
	recordDir  string
	confirmer  confirm.Confirmer
	logger     *zap.Logger
	now        func() time.Time
}

func New(vcs VersionControl, builder Builder, publisher Publisher, backups *backup.Store, backupRoot, recordDir string, confirmer confirm.Confirmer, logger *zap.Logger) *Engine {
	return &Engine{
		vcs:        vcs,
		builder:    builder,
		publisher:  publisher,
		backups:    backups,
		backupRoot: backupRoot,
		recordDir:  recordDir,
		confirmer:  confirmer,
		logger:     logger,
		now:        time.Now,
	}
}

var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Resolve maps a target to (ref, commit hash). A semantic version must match
// exactly one tag — zero or multiple matches fail closed. Explicit tags and
// commits are resolved verbatim.
func (e *Engine) Resolve(target Target) (string, string, error) {
	switch target.Kind {
	case TargetVersion:
		if !semverPattern.MatchString(target.Value) {
			return "", "", operr.E(operr.InvalidArgument, "app rollback",
				fmt.Sprintf("%q is not a semantic version (expected X.Y.Z)", target.Value))
		}
		tags, err := e.vcs.Tags()
		if err != nil {
			return "", "", err
		}
		var matches []Tag
		for _, tag := range tags {
			if tag.Name == target.Value || tag.Name == "v"+target.Value {
				matches = append(matches, tag)
			}
		}
		switch len(matches) {
		case 0:
			return "", "", operr.E(operr.NotFound, "app rollback",
				fmt.Sprintf("no tag matches version %s", target.Value))
		case 1:
			return matches[0].Name, matches[0].Hash, nil
		default:
			names := make([]string, len(matches))
			for i, m := range matches {
				names[i] = m.Name
			}
			return "", "", operr.E(operr.InvalidArgument, "app rollback",
				fmt.Sprintf("version %s is ambiguous: tags %s", target.Value, strings.Join(names, ", ")))
		}
	case TargetTag, TargetCommit:
		hash, err := e.vcs.ResolveRevision(target.Value)
		if err != nil {
			return "", "", operr.Wrap(operr.NotFound, "app rollback",
				fmt.Sprintf("cannot resolve %s %q", target.Kind, target.Value), err)
		}
		return target.Value, hash, nil
	}
	return "", "", operr.E(operr.InvalidArgument, "app rollback",
		fmt.Sprintf("unknown target kind %q", target.Kind))
}

// ListVersions returns all tags, newest first.
func (e *Engine) ListVersions() ([]Tag, error) {
	tags, err := e.vcs.Tags()
	if err != nil {
		return nil, err
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].When.After(tags[j].When) })
	return tags, nil
}

// Rollback drives the state machine: Clean → BackedUp → CheckedOut → Built →
// Deployed → Recorded. A dirty worktree refuses to proceed. Dry run
// short-circuits right after target resolution.
func (e *Engine) Rollback(ctx context.Context, env config.Environment, target Target, opts Options) (*Result, error) {
	ref, hash, err := e.Resolve(target)
	if err != nil {
		return nil, err
	}
	result := &Result{ResolvedRef: ref, ResolvedHash: hash}

	if opts.DryRun {
		result.State = StateClean
		e.logger.Info("dry run: resolved rollback target",
			zap.String("environment", string(env)),
			zap.String("ref", ref),
			zap.String("hash", hash))
		return result, nil
	}

	clean, err := e.vcs.IsClean()
	if err != nil {
		return nil, err
	}
	if !clean {
		result.State = StateDirty
		return result, operr.E(operr.ValidationFailure, "app rollback",
			"worktree has uncommitted changes; commit or stash them first")
	}
	result.State = StateClean

	lock, err := lockfile.Acquire(e.backupRoot, string(env), string(backup.DomainCode))
	if err != nil {
		return result, err
	}
	defer lock.Release()

	// Clean → BackedUp: the safety branch is this domain's pre-operation
	// backup.
	originalBranch, originalHash, err := e.vcs.Head()
	if err != nil {
		return result, err
	}
	branchName := fmt.Sprintf("pre-rollback/%s-%s", env, e.now().UTC().Format("20060102-150405"))
	message := fmt.Sprintf("Safety snapshot before rollback of %s to %s", env, ref)
	if err := e.vcs.SnapshotBranch(branchName, message); err != nil {
		return result, err
	}
	if _, err := e.backups.Create(env, backup.DomainCode, "pre-rollback code snapshot", func(string) ([]string, error) {
		return []string{branchName, originalHash}, nil
	}); err != nil {
		return result, err
	}
	result.SafetyBranch = branchName
	result.State = StateBackedUp

	// Confirmation gate sits between BackedUp and CheckedOut.
	if !opts.SkipConfirmation {
		prompt := fmt.Sprintf("Roll %s back to %s (%s)? Current state saved on %s.", env, ref, shortHash(hash), branchName)
		if !e.confirmer.Confirm(prompt) {
			return result, fmt.Errorf("app rollback: %w", operr.ErrCanceled)
		}
	}

	if err := e.vcs.Checkout(hash); err != nil {
		return result, err
	}
	result.State = StateCheckedOut
	e.logger.Info("target checked out",
		zap.String("ref", ref),
		zap.String("hash", hash),
		zap.String("previous_branch", originalBranch))

	if !opts.SkipBuild {
		if err := e.builder.Build(ctx, env); err != nil {
			return result, err
		}
	}
	result.State = StateBuilt

	if !opts.SkipDeploy {
		if err := e.publisher.Publish(ctx, env); err != nil {
			return result, err
		}
	}
	result.State = StateDeployed

	recordPath, err := e.writeRecord(env, ref, hash, branchName)
	if err != nil {
		return result, err
	}
	result.RecordPath = recordPath
	result.State = StateRecorded
	return result, nil
}

type rollbackRecord struct {
	Environment  config.Environment `yaml:"environment"`
	Target       string             `yaml:"target"`
	Revision     string             `yaml:"revision"`
	SafetyBranch string             `yaml:"safety_branch,omitempty"`
	Timestamp    time.Time          `yaml:"timestamp"`
}

func (e *Engine) writeRecord(env config.Environment, ref, hash, safetyBranch string) (string, error) {
	if err := os.MkdirAll(e.recordDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create record dir: %w", err)
	}
	record := rollbackRecord{
		Environment:  env,
		Target:       ref,
		Revision:     hash,
		SafetyBranch: safetyBranch,
		Timestamp:    e.now().UTC(),
	}
	data, err := yaml.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal rollback record: %w", err)
	}
	path := filepath.Join(e.recordDir, fmt.Sprintf("rollback-%s.yaml", e.now().UTC().Format("20060102-150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write rollback record: %w", err)
	}
	return path, nil
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
