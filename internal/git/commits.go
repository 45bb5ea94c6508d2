package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/mozilla-conduit/review/internal/logger"
	"github.com/mozilla-conduit/review/internal/stack"
)

// ListCommits extracts the linear commit range (start, end] in
// ancestor-to-descendant order. start and end must already be resolved
// hashes; start may be empty to walk back to the repository root. maxStack
// bounds the number of commits, guarding against ranges selected from the
// wrong upstream.
func (r *Repository) ListCommits(ctx context.Context, start, end string, maxStack int) ([]*stack.Commit, error) {
	endHash := plumbing.NewHash(end)
	cur, err := r.repo.CommitObject(endHash)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", end, err)
	}

	// Walk backward from end collecting the linear chain.
	var chain []*object.Commit
	for {
		if start != "" && cur.Hash.String() == start {
			break
		}
		if cur.NumParents() > 1 {
			return nil, fmt.Errorf("merge commit %s in selected range; stacks must be linear", cur.Hash.String()[:12])
		}

		chain = append(chain, cur)
		if maxStack > 0 && len(chain) > maxStack {
			return nil, fmt.Errorf(
				"unable to create a stack with more than %d commits; "+
					"pass an explicit start revision or set git.remote to select the correct upstream",
				maxStack,
			)
		}

		if cur.NumParents() == 0 {
			if start != "" {
				return nil, fmt.Errorf("revision %s is not an ancestor of %s", start[:12], end[:12])
			}
			break
		}
		cur, err = cur.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("failed to read parent commit: %w", err)
		}
	}

	if len(chain) == 0 {
		return nil, stack.ErrEmptyStack
	}

	// Reverse into ancestor-to-descendant order and build descriptors.
	commits := make([]*stack.Commit, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		c := chain[i]
		descriptor, err := r.describeCommit(ctx, c)
		if err != nil {
			return nil, err
		}
		descriptor.Ordinal = len(commits)
		commits = append(commits, descriptor)
	}

	if err := stack.Validate(commits); err != nil {
		return nil, err
	}

	logger.Debug().
		Int("count", len(commits)).
		Str("start", start).
		Str("end", end).
		Msg("Extracted commit stack")

	return commits, nil
}

// describeCommit converts one git commit into a stack descriptor, including
// its changed files.
func (r *Repository) describeCommit(ctx context.Context, c *object.Commit) (*stack.Commit, error) {
	title, body := stack.SplitMessage(c.Message)

	descriptor := &stack.Commit{
		Node:        c.Hash.String(),
		Tree:        c.TreeHash.String(),
		Title:       title,
		Body:        body,
		Author:      c.Author.Name,
		AuthorEmail: c.Author.Email,
		AuthorDate:  c.Author.When,
	}
	if c.NumParents() > 0 {
		descriptor.Parent = c.ParentHashes[0].String()
	}

	files, err := r.changedFiles(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to compute changes for %s: %w", descriptor.ShortNode(), err)
	}
	descriptor.Files = files

	return descriptor, nil
}

// changedFiles diffs a commit against its parent tree with rename detection.
func (r *Repository) changedFiles(ctx context.Context, c *object.Commit) ([]stack.ChangedFile, error) {
	toTree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree: %w", err)
	}

	var fromTree *object.Tree
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("failed to read parent: %w", err)
		}
		fromTree, err = parent.Tree()
		if err != nil {
			return nil, fmt.Errorf("failed to read parent tree: %w", err)
		}
	}

	changes, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	files := make([]stack.ChangedFile, 0, len(changes))
	for _, change := range changes {
		file, err := describeChange(change)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}

	return files, nil
}

func describeChange(change *object.Change) (stack.ChangedFile, error) {
	var file stack.ChangedFile

	action, err := change.Action()
	if err != nil {
		return file, fmt.Errorf("failed to determine change action: %w", err)
	}

	from, to, err := change.Files()
	if err != nil {
		return file, fmt.Errorf("failed to load changed files: %w", err)
	}

	switch action {
	case merkletrie.Insert:
		file.Kind = stack.KindAdd
		file.Path = change.To.Name
	case merkletrie.Delete:
		file.Kind = stack.KindDelete
		file.Path = change.From.Name
	case merkletrie.Modify:
		file.Path = change.To.Name
		if change.From.Name != change.To.Name {
			file.Kind = stack.KindRename
			file.OldPath = change.From.Name
		} else {
			file.Kind = stack.KindModify
			file.OldPath = change.From.Name
		}
	}

	if from != nil {
		file.OldMode = fmt.Sprintf("%06o", uint32(change.From.TreeEntry.Mode))
		binary, err := from.IsBinary()
		if err != nil {
			return file, fmt.Errorf("failed to sniff %s: %w", change.From.Name, err)
		}
		file.Binary = file.Binary || binary
	}
	if to != nil {
		file.NewMode = fmt.Sprintf("%06o", uint32(change.To.TreeEntry.Mode))
		binary, err := to.IsBinary()
		if err != nil {
			return file, fmt.Errorf("failed to sniff %s: %w", change.To.Name, err)
		}
		file.Binary = file.Binary || binary
	}

	if file.Binary {
		if from != nil {
			contents, err := from.Contents()
			if err != nil {
				return file, fmt.Errorf("failed to read %s: %w", change.From.Name, err)
			}
			file.OldContent = []byte(contents)
		}
		if to != nil {
			contents, err := to.Contents()
			if err != nil {
				return file, fmt.Errorf("failed to read %s: %w", change.To.Name, err)
			}
			file.NewContent = []byte(contents)
		}
		return file, nil
	}

	if from != nil {
		contents, err := from.Contents()
		if err != nil {
			return file, fmt.Errorf("failed to read %s: %w", change.From.Name, err)
		}
		file.OldLines, file.OldNoNewline = splitLines(contents)
	}
	if to != nil {
		contents, err := to.Contents()
		if err != nil {
			return file, fmt.Errorf("failed to read %s: %w", change.To.Name, err)
		}
		file.NewLines, file.NewNoNewline = splitLines(contents)
	}

	return file, nil
}

// splitLines breaks file contents into lines without terminators and reports
// whether the final line was missing one.
func splitLines(contents string) ([]string, bool) {
	if contents == "" {
		return nil, false
	}
	noNewline := !strings.HasSuffix(contents, "\n")
	return strings.Split(strings.TrimSuffix(contents, "\n"), "\n"), noNewline
}
