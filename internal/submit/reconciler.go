package submit

import (
	"fmt"

	"github.com/mozilla-conduit/review/internal/logger"
	"github.com/mozilla-conduit/review/internal/phabricator"
	"github.com/mozilla-conduit/review/internal/stack"
	"github.com/mozilla-conduit/review/internal/transform"
)

// OpKind is the type of remote write an operation performs
type OpKind int

const (
	// OpCreate submits a commit that has no usable revision yet
	OpCreate OpKind = iota + 1
	// OpUpdate uploads new content to an existing revision
	OpUpdate
	// OpReparent rewires an existing revision's dependency only
	OpReparent
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpReparent:
		return "reparent"
	}
	return "unknown"
}

// ParentRefKind says how an operation's parent is identified
type ParentRefKind int

const (
	// ParentNone marks a stack root
	ParentNone ParentRefKind = iota
	// ParentRevision points at a revision that already exists
	ParentRevision
	// ParentOp points at the output of an earlier operation in the plan
	ParentOp
)

// ParentRef names the parent a revision must depend on after the plan runs.
// For ParentOp the target revision does not exist yet; the executor resolves
// the reference against the results of earlier operations.
type ParentRef struct {
	Kind    ParentRefKind
	RevID   int
	PHID    string
	OpIndex int
}

func (r ParentRef) String() string {
	switch r.Kind {
	case ParentRevision:
		return fmt.Sprintf("D%d", r.RevID)
	case ParentOp:
		return fmt.Sprintf("op %d", r.OpIndex)
	}
	return "none"
}

// Operation is one planned remote write
type Operation struct {
	Kind   OpKind
	Commit *stack.Commit

	// Target revision, for updates and reparents
	RevID int
	PHID  string

	Parent ParentRef
	// SyncParent is set on updates whose parent edge also changed
	SyncParent bool

	Changes     []transform.Change
	ContentHash string
}

// Plan is an ordered list of remote writes that brings the review state in
// line with the local stack. Operations referencing the output of another
// operation always come after it.
type Plan struct {
	Ops      []Operation
	Warnings []string
}

// Empty reports whether everything is already in sync
func (p *Plan) Empty() bool {
	return len(p.Ops) == 0
}

// BuildPlan walks the stack in ordinal order and emits the minimal
// operation per commit. changes must align with commits. Closed revisions
// are never written to: the commit is treated as unbound and resubmitted as
// a new revision, with a warning.
func BuildPlan(commits []*stack.Commit, remote map[int]*phabricator.Revision, changes [][]transform.Change) (*Plan, error) {
	if len(changes) != len(commits) {
		return nil, fmt.Errorf("have %d change lists for %d commits", len(changes), len(commits))
	}

	plan := &Plan{}
	previous := ParentRef{Kind: ParentNone}

	for i, commit := range commits {
		hash := transform.ContentHash(changes[i])

		var rev *phabricator.Revision
		if commit.RevID > 0 {
			rev = remote[commit.RevID]
		}

		if rev != nil && rev.Status.IsClosed() {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf(
				"D%d is %s and will not be touched; submitting %s as a new revision",
				rev.ID, rev.Status.Value, commit.ShortNode(),
			))
			commit.RevID = 0
			commit.RevPHID = ""
			rev = nil
		}

		if rev == nil {
			plan.Ops = append(plan.Ops, Operation{
				Kind:        OpCreate,
				Commit:      commit,
				Parent:      previous,
				Changes:     changes[i],
				ContentHash: hash,
			})
			previous = ParentRef{Kind: ParentOp, OpIndex: len(plan.Ops) - 1}
			continue
		}

		commit.RevPHID = rev.PHID
		parentInSync := parentMatches(previous, rev)

		// A missing remote fingerprint means the diff was not uploaded by
		// this tool; treat it as changed rather than guessing.
		contentInSync := rev.ContentHash != "" && rev.ContentHash == hash

		switch {
		case !contentInSync:
			plan.Ops = append(plan.Ops, Operation{
				Kind:        OpUpdate,
				Commit:      commit,
				RevID:       rev.ID,
				PHID:        rev.PHID,
				Parent:      previous,
				SyncParent:  !parentInSync,
				Changes:     changes[i],
				ContentHash: hash,
			})
		case !parentInSync:
			plan.Ops = append(plan.Ops, Operation{
				Kind:   OpReparent,
				Commit: commit,
				RevID:  rev.ID,
				PHID:   rev.PHID,
				Parent: previous,
			})
		}

		previous = ParentRef{Kind: ParentRevision, RevID: rev.ID, PHID: rev.PHID}
	}

	logger.Debug().
		Int("commits", len(commits)).
		Int("operations", len(plan.Ops)).
		Msg("Built reconciliation plan")

	return plan, nil
}

// parentMatches reports whether a revision's remote parent already equals
// the declared one. A ParentOp reference can never match: the parent
// revision does not exist yet.
func parentMatches(declared ParentRef, rev *phabricator.Revision) bool {
	switch declared.Kind {
	case ParentNone:
		return rev.ParentID == 0
	case ParentRevision:
		return rev.ParentID == declared.RevID
	default:
		return false
	}
}
