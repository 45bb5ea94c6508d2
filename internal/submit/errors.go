// Package submit reconciles a local commit stack against its remote review
// requests: it resolves which commits are already under review, plans the
// minimal set of remote writes, applies them in order, and stamps the
// resulting revision URLs back into the commit messages.
package submit

import (
	"fmt"
	"strings"
)

// DuplicateIdentityError aborts a run before any remote write when two
// commits in the stack claim the same revision.
type DuplicateIdentityError struct {
	RevID int
	Nodes []string
}

func (e *DuplicateIdentityError) Error() string {
	short := make([]string, 0, len(e.Nodes))
	for _, node := range e.Nodes {
		if len(node) > 12 {
			node = node[:12]
		}
		short = append(short, node)
	}
	return fmt.Sprintf("commits %s all claim revision D%d; remove the duplicate Differential Revision lines",
		strings.Join(short, ", "), e.RevID)
}

// StaleIdentityError aborts a run before any remote write when a commit
// references a revision the service does not know.
type StaleIdentityError struct {
	RevIDs []int
}

func (e *StaleIdentityError) Error() string {
	ids := make([]string, 0, len(e.RevIDs))
	for _, id := range e.RevIDs {
		ids = append(ids, fmt.Sprintf("D%d", id))
	}
	return fmt.Sprintf("commits reference unknown revisions: %s; remove the stale Differential Revision lines",
		strings.Join(ids, ", "))
}

// SubmissionError reports a halted plan. Operations before OpIndex have been
// applied and recorded; rerunning submit picks up from the failed commit.
type SubmissionError struct {
	OpIndex int
	Ordinal int
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission halted at commit %d: %v; completed work is recorded, rerun submit to resume",
		e.Ordinal, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// AmendmentError means every remote write succeeded but the local commit
// messages could not be rewritten. The remote state is kept.
type AmendmentError struct {
	Err error
}

func (e *AmendmentError) Error() string {
	return fmt.Sprintf("revisions were submitted but local commits could not be amended: %v; rerun submit once the working tree is clean", e.Err)
}

func (e *AmendmentError) Unwrap() error {
	return e.Err
}
