package git

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/mozilla-conduit/review/internal/logger"
	"github.com/mozilla-conduit/review/internal/stack"
)

// RewriteStack recreates every commit from firstChanged upward with the
// message currently held by its descriptor, reusing the original trees and
// author signatures. Commits between the stack tail and HEAD are recreated
// on top of the new chain. The current branch (or HEAD when detached) is
// moved once, to the final rewritten tip, and each descriptor's Node and
// Parent are updated in place.
func (r *Repository) RewriteStack(commits []*stack.Commit, firstChanged int) error {
	if firstChanged < 0 || firstChanged >= len(commits) {
		return fmt.Errorf("invalid rewrite index %d for stack of %d", firstChanged, len(commits))
	}

	clean, err := r.IsWorktreeClean()
	if err != nil {
		return err
	}
	if !clean {
		return ErrDirtyWorktree
	}

	headRef, err := r.repo.Head()
	if err != nil {
		return fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	// Commits above the stack tail, tip first, that must follow the new chain.
	descendants, err := r.commitsAbove(commits[len(commits)-1].Node, headRef.Hash())
	if err != nil {
		return err
	}

	parentNode := commits[firstChanged].Parent
	for i := firstChanged; i < len(commits); i++ {
		c := commits[i]
		newCommit := &object.Commit{
			Author: object.Signature{
				Name:  c.Author,
				Email: c.AuthorEmail,
				When:  c.AuthorDate,
			},
			Committer: object.Signature{
				Name:  c.Author,
				Email: c.AuthorEmail,
				When:  c.AuthorDate,
			},
			Message:  c.Message() + "\n",
			TreeHash: plumbing.NewHash(c.Tree),
		}
		if parentNode != "" {
			newCommit.ParentHashes = []plumbing.Hash{plumbing.NewHash(parentNode)}
		}

		hash, err := r.storeCommit(newCommit)
		if err != nil {
			return fmt.Errorf("failed to rewrite %s: %w", c.ShortNode(), err)
		}

		logger.Debug().
			Str("old", c.ShortNode()).
			Str("new", hash.String()[:12]).
			Int("ordinal", c.Ordinal).
			Msg("Rewrote commit")

		c.Parent = parentNode
		c.Node = hash.String()
		parentNode = c.Node
	}

	// Recreate anything that was sitting above the stack, oldest first.
	newTip := plumbing.NewHash(parentNode)
	for i := len(descendants) - 1; i >= 0; i-- {
		original := descendants[i]
		newCommit := &object.Commit{
			Author:       original.Author,
			Committer:    original.Committer,
			Message:      original.Message,
			TreeHash:     original.TreeHash,
			ParentHashes: []plumbing.Hash{newTip},
		}
		newTip, err = r.storeCommit(newCommit)
		if err != nil {
			return fmt.Errorf("failed to rewrite descendant %s: %w", original.Hash.String()[:12], err)
		}
	}

	target := headRef.Name()
	if !target.IsBranch() {
		target = plumbing.HEAD
	}
	newRef := plumbing.NewHashReference(target, newTip)
	if err := r.repo.Storer.SetReference(newRef); err != nil {
		return fmt.Errorf("failed to update %s: %w", target, err)
	}

	logger.Debug().
		Str("ref", string(target)).
		Str("tip", newTip.String()[:12]).
		Msg("Moved branch to rewritten stack")

	return nil
}

// commitsAbove walks from head back to node (exclusive), returning the
// commits in between tip first. An empty slice means head is the stack tail.
func (r *Repository) commitsAbove(node string, head plumbing.Hash) ([]*object.Commit, error) {
	var above []*object.Commit
	cur, err := r.repo.CommitObject(head)
	if err != nil {
		return nil, fmt.Errorf("failed to read HEAD commit: %w", err)
	}

	for cur.Hash.String() != node {
		if cur.NumParents() != 1 {
			return nil, fmt.Errorf(
				"commit %s between the stack and HEAD is not linear; rebase before submitting",
				cur.Hash.String()[:12],
			)
		}
		above = append(above, cur)
		cur, err = cur.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("failed to read parent commit: %w", err)
		}
	}

	return above, nil
}

func (r *Repository) storeCommit(c *object.Commit) (plumbing.Hash, error) {
	obj := r.repo.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to encode commit: %w", err)
	}
	return r.repo.Storer.SetEncodedObject(obj)
}
