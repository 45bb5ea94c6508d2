package submit

import (
	"context"
	"fmt"

	"github.com/mozilla-conduit/review/internal/cache"
	"github.com/mozilla-conduit/review/internal/logger"
	"github.com/mozilla-conduit/review/internal/phabricator"
	"github.com/mozilla-conduit/review/internal/stack"
	"github.com/mozilla-conduit/review/internal/transform"
)

// Conduit is the slice of the API client the executor needs
type Conduit interface {
	CreateRevision(ctx context.Context, commit *stack.Commit, changes []transform.Change, contentHash string) (*phabricator.Revision, error)
	UpdateRevision(ctx context.Context, rev *phabricator.Revision, commit *stack.Commit, changes []transform.Change, contentHash string) (*phabricator.Revision, error)
	SetParent(ctx context.Context, revPHID, parentPHID string) error
}

// Executor applies a plan's operations strictly in order. Every created
// identity is written to the results map and the node cache before the next
// operation starts, so an interrupted run can resume from where it halted.
type Executor struct {
	client Conduit
	store  *cache.Cache
}

// NewExecutor creates an Executor. The cache may be nil.
func NewExecutor(client Conduit, store *cache.Cache) *Executor {
	return &Executor{client: client, store: store}
}

// Result records what a (possibly partial) execution accomplished
type Result struct {
	// Revisions holds each completed operation's revision, by op index
	Revisions map[int]*phabricator.Revision
	// Created lists the op indexes that created new revisions
	Created []int
}

// Execute runs the plan. On the first failure it returns a SubmissionError
// alongside the partial result; already completed operations are not rolled
// back.
func (e *Executor) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	result := &Result{Revisions: make(map[int]*phabricator.Revision, len(plan.Ops))}

	for i, op := range plan.Ops {
		rev, err := e.apply(ctx, op, result)
		if err != nil {
			return result, &SubmissionError{OpIndex: i, Ordinal: op.Commit.Ordinal, Err: err}
		}
		result.Revisions[i] = rev
		if op.Kind == OpCreate {
			result.Created = append(result.Created, i)
		}

		logger.Info().
			Str("op", op.Kind.String()).
			Str("commit", op.Commit.ShortNode()).
			Int("revision", rev.ID).
			Msg("Applied operation")
	}

	return result, nil
}

func (e *Executor) apply(ctx context.Context, op Operation, result *Result) (*phabricator.Revision, error) {
	parentPHID, err := resolveParent(op.Parent, result)
	if err != nil {
		return nil, err
	}

	switch op.Kind {
	case OpCreate:
		rev, err := e.client.CreateRevision(ctx, op.Commit, op.Changes, op.ContentHash)
		if err != nil {
			return nil, err
		}

		// Record the identity before anything else can fail.
		op.Commit.RevID = rev.ID
		op.Commit.RevPHID = rev.PHID
		if e.store != nil {
			if err := e.store.Set(op.Commit.Node, rev.ID); err != nil {
				logger.Warn().Err(err).Str("commit", op.Commit.ShortNode()).Msg("Failed to cache revision binding")
			}
		}

		if op.Parent.Kind != ParentNone {
			if err := e.client.SetParent(ctx, rev.PHID, parentPHID); err != nil {
				return nil, err
			}
		}
		return rev, nil

	case OpUpdate:
		existing := &phabricator.Revision{ID: op.RevID, PHID: op.PHID}
		rev, err := e.client.UpdateRevision(ctx, existing, op.Commit, op.Changes, op.ContentHash)
		if err != nil {
			return nil, err
		}
		if op.SyncParent {
			if err := e.client.SetParent(ctx, rev.PHID, parentPHID); err != nil {
				return nil, err
			}
		}
		return rev, nil

	case OpReparent:
		if err := e.client.SetParent(ctx, op.PHID, parentPHID); err != nil {
			return nil, err
		}
		return &phabricator.Revision{ID: op.RevID, PHID: op.PHID}, nil
	}

	return nil, fmt.Errorf("unknown operation kind %d", op.Kind)
}

// resolveParent turns a parent reference into a PHID, consulting earlier
// results for parents created by this same plan.
func resolveParent(ref ParentRef, result *Result) (string, error) {
	switch ref.Kind {
	case ParentNone:
		return "", nil
	case ParentRevision:
		return ref.PHID, nil
	case ParentOp:
		rev, ok := result.Revisions[ref.OpIndex]
		if !ok {
			return "", fmt.Errorf("parent operation %d has no recorded result", ref.OpIndex)
		}
		return rev.PHID, nil
	}
	return "", fmt.Errorf("unknown parent reference kind %d", ref.Kind)
}
