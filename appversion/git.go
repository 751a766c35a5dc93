package appversion

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitVCS implements VersionControl on a local repository via go-git.
type GitVCS struct {
	repo        *git.Repository
	authorName  string
	authorEmail string
}

func OpenGit(path, authorName, authorEmail string) (*GitVCS, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", path, err)
	}
	return &GitVCS{repo: repo, authorName: authorName, authorEmail: authorEmail}, nil
}

func (g *GitVCS) IsClean() (bool, error) {
	w, err := g.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree status: %w", err)
	}
	return status.IsClean(), nil
}

func (g *GitVCS) Head() (string, string, error) {
	head, err := g.repo.Head()
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Name().Short(), head.Hash().String(), nil
}

func (g *GitVCS) Tags() ([]Tag, error) {
	iter, err := g.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}

	var tags []Tag
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		tag := Tag{Name: ref.Name().Short(), Hash: ref.Hash().String()}
		// Annotated tags point at a tag object; peel to the commit for
		// the date. Lightweight tags point straight at a commit.
		if tagObj, err := g.repo.TagObject(ref.Hash()); err == nil {
			tag.When = tagObj.Tagger.When
			if commit, err := tagObj.Commit(); err == nil {
				tag.Hash = commit.Hash.String()
				tag.When = commit.Committer.When
			}
		} else if commit, err := g.repo.CommitObject(ref.Hash()); err == nil {
			tag.When = commit.Committer.When
		}
		tags = append(tags, tag)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate tags: %w", err)
	}
	return tags, nil
}

func (g *GitVCS) ResolveRevision(ref string) (string, error) {
	hash, err := g.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", ref, err)
	}
	return hash.String(), nil
}

func (g *GitVCS) SnapshotBranch(name, message string) error {
	w, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	head, err := g.repo.Head()
	if err != nil {
		return fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	originalBranch := head.Name()

	err = w.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Create: true,
		Keep:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to create safety branch %s: %w", name, err)
	}

	if err := w.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage changes on safety branch: %w", err)
	}

	_, err = w.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  g.authorName,
			Email: g.authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit on safety branch: %w", err)
	}

	err = w.Checkout(&git.CheckoutOptions{Branch: originalBranch})
	if err != nil {
		return fmt.Errorf("failed to return to %s: %w", originalBranch.Short(), err)
	}
	return nil
}

func (g *GitVCS) Checkout(hash string) error {
	w, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	err = w.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(hash)})
	if err != nil {
		return fmt.Errorf("failed to checkout %s: %w", hash, err)
	}
	return nil
}
