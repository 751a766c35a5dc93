// Package appversion implements the application-code domain engine: it
// resolves a rollback target against version-control history, preserves the
// current state on a safety branch, and checks out, rebuilds, and redeploys
// the target.
package appversion

import "time"

// Tag is one version-control tag.
type Tag struct {
	Name string
	Hash string
	When time.Time
}

// VersionControl is the narrow capability the engine needs from the
// version-control system. One implementation wraps go-git; tests use an
// in-memory fake.
type VersionControl interface {
	// IsClean reports whether the worktree has no uncommitted changes.
	IsClean() (bool, error)
	// Head returns the current branch name and commit hash.
	Head() (branch, hash string, err error)
	// Tags lists all tags.
	Tags() ([]Tag, error)
	// ResolveRevision resolves a ref (tag, branch, or commit) to a full
	// commit hash, failing when the ref does not exist.
	ResolveRevision(ref string) (string, error)
	// SnapshotBranch creates branch name at HEAD, commits the current
	// state onto it (an empty commit is allowed — the branch still marks
	// a point-in-time reference), and returns to the original branch.
	SnapshotBranch(name, message string) error
	// Checkout materializes the commit identified by hash in the worktree.
	Checkout(hash string) error
}
