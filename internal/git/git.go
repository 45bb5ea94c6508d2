// Package git provides the local repository operations moz-review needs:
// commit range extraction, worktree checks, and stack rewriting for message
// amends. It is built on go-git.
package git

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var (
	// ErrNotARepository is returned when the path is not a git repository
	ErrNotARepository = errors.New("not a git repository")

	// ErrDetachedHead is returned when repository is in detached HEAD state
	ErrDetachedHead = errors.New("repository is in detached HEAD state")

	// ErrNoUpstream is returned when no remote branch can anchor the
	// default commit range
	ErrNoUpstream = errors.New("no upstream branch found to select commits against")

	// ErrDirtyWorktree is returned when an operation needs a clean worktree
	ErrDirtyWorktree = errors.New("working tree has uncommitted changes")
)

// Repository represents a local git repository.
type Repository struct {
	repo *gogit.Repository
	path string
}

// OpenRepository opens a git repository at the given path.
// If path is empty, it attempts to find the repository in the current directory.
func OpenRepository(path string) (*Repository, error) {
	if path == "" {
		var err error
		path, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, ErrNotARepository
		}
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	return &Repository{
		repo: repo,
		path: path,
	}, nil
}

// FindRepositoryRoot traverses up directories looking for a .git folder
// and returns the root path of the repository.
func FindRepositoryRoot(startPath string) (string, error) {
	if startPath == "" {
		var err error
		startPath, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	currentPath := absPath
	for {
		gitDir := filepath.Join(currentPath, ".git")
		if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
			return currentPath, nil
		}

		parentPath := filepath.Dir(currentPath)
		if parentPath == currentPath {
			// Reached the root of the filesystem
			return "", ErrNotARepository
		}
		currentPath = parentPath
	}
}

// Path returns the path to the repository.
func (r *Repository) Path() string {
	return r.path
}

// Repo returns the underlying go-git Repository object.
func (r *Repository) Repo() *gogit.Repository {
	return r.repo
}

// CurrentHead returns the hash the working copy is at.
func (r *Repository) CurrentHead() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repository) CurrentBranch() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	if !ref.Name().IsBranch() {
		return "", ErrDetachedHead
	}
	return ref.Name().Short(), nil
}

// IsWorktreeClean reports whether the working tree has no staged or
// unstaged modifications. Untracked files do not count as dirty.
func (r *Repository) IsWorktreeClean() (bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to open worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("failed to compute worktree status: %w", err)
	}

	for _, fileStatus := range status {
		if fileStatus.Worktree == gogit.Untracked {
			continue
		}
		if fileStatus.Staging != gogit.Unmodified || fileStatus.Worktree != gogit.Unmodified {
			return false, nil
		}
	}
	return true, nil
}

// Untracked returns the paths of untracked files in the working tree.
func (r *Repository) Untracked() ([]string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to compute worktree status: %w", err)
	}

	var untracked []string
	for path, fileStatus := range status {
		if fileStatus.Worktree == gogit.Untracked {
			untracked = append(untracked, path)
		}
	}
	sort.Strings(untracked)
	return untracked, nil
}

// ResolveRevision resolves a revision expression (branch, tag, SHA, HEAD~n)
// to a full hash.
func (r *Repository) ResolveRevision(rev string) (string, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", fmt.Errorf("failed to resolve revision %q: %w", rev, err)
	}
	return hash.String(), nil
}

// DefaultBase finds the default start of the commit range: the merge base
// of HEAD with the named remote's branches. The most recent merge base wins
// when several remote branches exist. This approximates "first unpublished
// commit".
func (r *Repository) DefaultBase(remote string) (string, error) {
	if remote == "" {
		remote = "origin"
	}

	headRef, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	headCommit, err := r.repo.CommitObject(headRef.Hash())
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD commit: %w", err)
	}

	refs, err := r.repo.References()
	if err != nil {
		return "", fmt.Errorf("failed to list references: %w", err)
	}

	prefix := "refs/remotes/" + remote + "/"
	var best *object.Commit
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name().String()
		if len(name) < len(prefix) || name[:len(prefix)] != prefix {
			return nil
		}

		remoteCommit, err := r.repo.CommitObject(ref.Hash())
		if err != nil {
			return nil
		}
		bases, err := headCommit.MergeBase(remoteCommit)
		if err != nil || len(bases) == 0 {
			return nil
		}
		for _, base := range bases {
			if best == nil || base.Committer.When.After(best.Committer.When) {
				best = base
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk references: %w", err)
	}

	if best == nil {
		return "", ErrNoUpstream
	}
	return best.Hash.String(), nil
}
