package submit

import (
	"github.com/mozilla-conduit/review/internal/git"
	"github.com/mozilla-conduit/review/internal/logger"
	"github.com/mozilla-conduit/review/internal/marker"
	"github.com/mozilla-conduit/review/internal/stack"
)

// Annotator stamps Differential Revision lines into commit messages after a
// successful submission and rewrites the stack once.
type Annotator struct {
	repo    *git.Repository
	baseURL string
}

// NewAnnotator creates an Annotator for the given repository and review
// service URL.
func NewAnnotator(repo *git.Repository, baseURL string) *Annotator {
	return &Annotator{repo: repo, baseURL: baseURL}
}

// Annotate walks the stack tail to root deciding which messages need a new
// marker, then performs a single bottom-up rewrite from the lowest amended
// commit. Held commit hashes stay valid during the decision pass because
// nothing is rewritten until every amendment is known. Failure to rewrite is
// an AmendmentError; the remote state is already in place and a rerun will
// converge.
func (a *Annotator) Annotate(commits []*stack.Commit) error {
	firstChanged := -1
	for i := len(commits) - 1; i >= 0; i-- {
		commit := commits[i]
		if commit.RevID == 0 {
			continue
		}

		url := marker.URL(a.baseURL, commit.RevID)
		if current, ok := marker.Parse(commit.Body); ok && current == commit.RevID {
			continue
		}
		commit.Body = marker.Amend(commit.Body, url)
		firstChanged = i

		logger.Debug().
			Str("commit", commit.ShortNode()).
			Int("revision", commit.RevID).
			Msg("Amending commit message")
	}

	if firstChanged == -1 {
		return nil
	}

	if err := a.repo.RewriteStack(commits, firstChanged); err != nil {
		return &AmendmentError{Err: err}
	}
	return nil
}
