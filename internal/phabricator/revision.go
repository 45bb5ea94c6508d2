package phabricator

import (
	"context"
	"fmt"
	"strings"

	"github.com/mozilla-conduit/review/internal/logger"
)

// Revision statuses that no longer accept updates
var closedStatuses = map[string]bool{
	"abandoned": true,
	"published": true,
	"closed":    true,
}

// RevisionStatus mirrors the status field of differential.revision.search
type RevisionStatus struct {
	Value  string `json:"value"`
	Closed bool   `json:"closed"`
}

// IsClosed reports whether the revision can still be updated
func (s RevisionStatus) IsClosed() bool {
	return s.Closed || closedStatuses[s.Value]
}

// Revision is the remote state of one review request
type Revision struct {
	ID          int
	PHID        string
	Title       string
	Status      RevisionStatus
	DiffPHID    string
	DiffID      int
	ParentPHID  string
	ParentID    int
	ContentHash string
}

// URL returns the web address of the revision on the given instance
func (r *Revision) URL(baseURL string) string {
	return fmt.Sprintf("%s/D%d", strings.TrimRight(baseURL, "/"), r.ID)
}

type revisionSearchResult struct {
	Data []struct {
		ID     int    `json:"id"`
		PHID   string `json:"phid"`
		Fields struct {
			Title    string         `json:"title"`
			Status   RevisionStatus `json:"status"`
			DiffPHID string         `json:"diffPHID"`
		} `json:"fields"`
	} `json:"data"`
}

type edgeSearchResult struct {
	Data []struct {
		SourcePHID      string `json:"sourcePHID"`
		DestinationPHID string `json:"destinationPHID"`
	} `json:"data"`
}

type diffSearchResult struct {
	Data []struct {
		ID     int    `json:"id"`
		PHID   string `json:"phid"`
		Fields struct {
			RevisionPHID string `json:"revisionPHID"`
		} `json:"fields"`
	} `json:"data"`
}

// GetRevisions fetches the remote state of every listed revision ID in a
// fixed number of batched calls, including each revision's parent and the
// content fingerprint of its current diff.
func (c *Client) GetRevisions(ctx context.Context, ids []int) (map[int]*Revision, error) {
	revisions := make(map[int]*Revision, len(ids))
	if len(ids) == 0 {
		return revisions, nil
	}

	var search revisionSearchResult
	err := c.Call(ctx, "differential.revision.search", map[string]interface{}{
		"constraints": map[string]interface{}{"ids": ids},
	}, &search)
	if err != nil {
		return nil, fmt.Errorf("failed to look up revisions: %w", err)
	}

	byPHID := make(map[string]*Revision, len(search.Data))
	for _, item := range search.Data {
		rev := &Revision{
			ID:       item.ID,
			PHID:     item.PHID,
			Title:    item.Fields.Title,
			Status:   item.Fields.Status,
			DiffPHID: item.Fields.DiffPHID,
		}
		revisions[rev.ID] = rev
		byPHID[rev.PHID] = rev
	}

	logger.Debug().
		Int("requested", len(ids)).
		Int("found", len(revisions)).
		Msg("Fetched revisions")

	if err := c.fillParents(ctx, revisions, byPHID); err != nil {
		return nil, err
	}
	if err := c.fillDiffs(ctx, revisions, byPHID); err != nil {
		return nil, err
	}

	return revisions, nil
}

// fillParents resolves each revision's parent edge to a revision ID.
func (c *Client) fillParents(ctx context.Context, revisions map[int]*Revision, byPHID map[string]*Revision) error {
	sourcePHIDs := make([]string, 0, len(byPHID))
	for phid := range byPHID {
		sourcePHIDs = append(sourcePHIDs, phid)
	}

	var edges edgeSearchResult
	err := c.Call(ctx, "edge.search", map[string]interface{}{
		"sourcePHIDs": sourcePHIDs,
		"types":       []string{"revision.parent"},
	}, &edges)
	if err != nil {
		return fmt.Errorf("failed to look up revision parents: %w", err)
	}

	// Parents outside the requested set still need their numeric IDs.
	var unknown []string
	for _, edge := range edges.Data {
		rev := byPHID[edge.SourcePHID]
		if rev == nil {
			continue
		}
		rev.ParentPHID = edge.DestinationPHID
		if parent, ok := byPHID[edge.DestinationPHID]; ok {
			rev.ParentID = parent.ID
		} else {
			unknown = append(unknown, edge.DestinationPHID)
		}
	}

	if len(unknown) == 0 {
		return nil
	}

	var search revisionSearchResult
	err = c.Call(ctx, "differential.revision.search", map[string]interface{}{
		"constraints": map[string]interface{}{"phids": unknown},
	}, &search)
	if err != nil {
		return fmt.Errorf("failed to look up parent revisions: %w", err)
	}

	idByPHID := make(map[string]int, len(search.Data))
	for _, item := range search.Data {
		idByPHID[item.PHID] = item.ID
	}
	for _, rev := range revisions {
		if rev.ParentID == 0 && rev.ParentPHID != "" {
			rev.ParentID = idByPHID[rev.ParentPHID]
		}
	}

	return nil
}

// fillDiffs resolves each revision's active diff ID and its recorded content
// fingerprint.
func (c *Client) fillDiffs(ctx context.Context, revisions map[int]*Revision, byPHID map[string]*Revision) error {
	diffPHIDs := make([]string, 0, len(revisions))
	for _, rev := range revisions {
		if rev.DiffPHID != "" {
			diffPHIDs = append(diffPHIDs, rev.DiffPHID)
		}
	}
	if len(diffPHIDs) == 0 {
		return nil
	}

	var search diffSearchResult
	err := c.Call(ctx, "differential.diff.search", map[string]interface{}{
		"constraints": map[string]interface{}{"phids": diffPHIDs},
	}, &search)
	if err != nil {
		return fmt.Errorf("failed to look up diffs: %w", err)
	}

	for _, item := range search.Data {
		rev := byPHID[item.Fields.RevisionPHID]
		if rev == nil || rev.DiffPHID != item.PHID {
			continue
		}
		rev.DiffID = item.ID

		hash, err := c.getDiffProperty(ctx, item.ID, contentHashProperty)
		if err != nil {
			return err
		}
		rev.ContentHash = hash
	}

	return nil
}

type transaction struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

type editResult struct {
	Object struct {
		ID   int    `json:"id"`
		PHID string `json:"phid"`
	} `json:"object"`
}

// editRevision applies differential.revision.edit transactions. A nil
// identifier creates a new revision.
func (c *Client) editRevision(ctx context.Context, identifier interface{}, txs []transaction) (*editResult, error) {
	params := map[string]interface{}{"transactions": txs}
	if identifier != nil {
		params["objectIdentifier"] = identifier
	}

	var result editResult
	if err := c.Call(ctx, "differential.revision.edit", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetParent rewires a revision's dependency to exactly one parent revision,
// or to none when parentPHID is empty.
func (c *Client) SetParent(ctx context.Context, revPHID, parentPHID string) error {
	parents := []string{}
	if parentPHID != "" {
		parents = append(parents, parentPHID)
	}
	_, err := c.editRevision(ctx, revPHID, []transaction{
		{Type: "parents.set", Value: parents},
	})
	if err != nil {
		return fmt.Errorf("failed to set parent of %s: %w", revPHID, err)
	}
	return nil
}

// AddComment posts a plain comment on a revision.
func (c *Client) AddComment(ctx context.Context, revPHID, comment string) error {
	_, err := c.editRevision(ctx, revPHID, []transaction{
		{Type: "comment", Value: comment},
	})
	if err != nil {
		return fmt.Errorf("failed to comment on %s: %w", revPHID, err)
	}
	return nil
}

type userSearchResult struct {
	Data []struct {
		PHID   string `json:"phid"`
		Fields struct {
			Username string `json:"username"`
		} `json:"fields"`
	} `json:"data"`
}

// ResolveReviewers maps reviewer nicknames to reviewer transaction values.
// A trailing "!" marks a blocking reviewer.
func (c *Client) ResolveReviewers(ctx context.Context, reviewers []string) ([]string, error) {
	if len(reviewers) == 0 {
		return nil, nil
	}

	blocking := make(map[string]bool, len(reviewers))
	usernames := make([]string, 0, len(reviewers))
	for _, reviewer := range reviewers {
		name := strings.TrimSuffix(reviewer, "!")
		blocking[strings.ToLower(name)] = strings.HasSuffix(reviewer, "!")
		usernames = append(usernames, name)
	}

	var search userSearchResult
	err := c.Call(ctx, "user.search", map[string]interface{}{
		"constraints": map[string]interface{}{"usernames": usernames},
	}, &search)
	if err != nil {
		return nil, fmt.Errorf("failed to look up reviewers: %w", err)
	}

	found := make(map[string]string, len(search.Data))
	for _, user := range search.Data {
		found[strings.ToLower(user.Fields.Username)] = user.PHID
	}

	values := make([]string, 0, len(usernames))
	for _, name := range usernames {
		phid, ok := found[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("reviewer %q not found", name)
		}
		if blocking[strings.ToLower(name)] {
			values = append(values, fmt.Sprintf("blocking(%s)", phid))
		} else {
			values = append(values, phid)
		}
	}

	return values, nil
}
