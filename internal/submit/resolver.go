package submit

import (
	"github.com/mozilla-conduit/review/internal/cache"
	"github.com/mozilla-conduit/review/internal/logger"
	"github.com/mozilla-conduit/review/internal/marker"
	"github.com/mozilla-conduit/review/internal/phabricator"
	"github.com/mozilla-conduit/review/internal/stack"
)

// ResolveIdentities binds each commit to the revision named by its
// Differential Revision line. Commits without a marker fall back to the
// node cache, which covers the window where a revision was created but the
// following amend never ran. Two commits claiming the same revision abort
// the run. The returned set names the commits whose binding came from the
// cache rather than a marker.
func ResolveIdentities(commits []*stack.Commit, store *cache.Cache) (map[string]bool, error) {
	claimed := make(map[int]string, len(commits))
	fromCache := make(map[string]bool)

	for _, commit := range commits {
		if id, ok := marker.Parse(commit.Body); ok {
			commit.RevID = id
		} else if store != nil {
			if id, ok := store.Get(commit.Node); ok {
				commit.RevID = id
				fromCache[commit.Node] = true
				logger.Debug().
					Str("commit", commit.ShortNode()).
					Int("revision", id).
					Msg("Recovered revision binding from cache")
			}
		}

		if commit.RevID == 0 {
			continue
		}
		if other, ok := claimed[commit.RevID]; ok {
			return nil, &DuplicateIdentityError{
				RevID: commit.RevID,
				Nodes: []string{other, commit.Node},
			}
		}
		claimed[commit.RevID] = commit.Node
	}

	return fromCache, nil
}

// PruneCacheBindings drops cache-derived bindings the service no longer
// knows about. A stale marker is the user's problem; a stale cache entry is
// ours, so it is discarded instead of aborting the run.
func PruneCacheBindings(commits []*stack.Commit, remote map[int]*phabricator.Revision, store *cache.Cache, fromCache map[string]bool) {
	for _, commit := range commits {
		if commit.RevID > 0 && fromCache[commit.Node] && remote[commit.RevID] == nil {
			commit.RevID = 0
			if store != nil {
				store.Delete(commit.Node)
			}
		}
	}
}

// BoundIDs lists the revision IDs the stack claims, in stack order.
func BoundIDs(commits []*stack.Commit) []int {
	ids := make([]int, 0, len(commits))
	for _, commit := range commits {
		if commit.RevID > 0 {
			ids = append(ids, commit.RevID)
		}
	}
	return ids
}

// CheckBound verifies that every claimed revision exists remotely. Stale
// bindings abort the run before any write.
func CheckBound(commits []*stack.Commit, remote map[int]*phabricator.Revision) error {
	var stale []int
	for _, commit := range commits {
		if commit.RevID > 0 && remote[commit.RevID] == nil {
			stale = append(stale, commit.RevID)
		}
	}
	if len(stale) > 0 {
		return &StaleIdentityError{RevIDs: stale}
	}
	return nil
}
