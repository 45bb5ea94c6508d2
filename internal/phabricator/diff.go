package phabricator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"

	"github.com/mozilla-conduit/review/internal/logger"
	"github.com/mozilla-conduit/review/internal/marker"
	"github.com/mozilla-conduit/review/internal/stack"
	"github.com/mozilla-conduit/review/internal/transform"
)

// Diff properties attached to every uploaded diff. The content hash lets a
// later run recognize that a commit's diff is already current without
// re-uploading it.
const (
	localCommitsProperty = "local:commits"
	contentHashProperty  = "moz-review:content-hash"
)

// Diff identifies a freshly created diff
type Diff struct {
	ID   int    `json:"diffid"`
	PHID string `json:"phid"`
	URI  string `json:"uri"`
}

// CreateDiff uploads a commit's changes as a new raw diff. Binary payloads
// are pushed through file.allocate and file.upload first so the change
// metadata can reference their file PHIDs.
func (c *Client) CreateDiff(ctx context.Context, commit *stack.Commit, changes []transform.Change) (*Diff, error) {
	for i := range changes {
		if err := c.uploadBinaries(ctx, &changes[i]); err != nil {
			return nil, err
		}
	}

	var diff Diff
	err := c.Call(ctx, "differential.creatediff", map[string]interface{}{
		"changes":                   changes,
		"sourceMachine":             c.baseURL,
		"sourceControlSystem":       "git",
		"sourceControlPath":         "/",
		"sourceControlBaseRevision": commit.Parent,
		"creationMethod":            "moz-review",
		"lintStatus":                "none",
		"unitStatus":                "none",
		"sourcePath":                "/",
		"branch":                    "HEAD",
	}, &diff)
	if err != nil {
		return nil, fmt.Errorf("failed to create diff for %s: %w", commit.ShortNode(), err)
	}

	logger.Debug().
		Int("diff", diff.ID).
		Str("commit", commit.ShortNode()).
		Msg("Created diff")

	return &diff, nil
}

// uploadBinaries uploads a change's raw payloads and records their PHIDs,
// sizes and MIME types in the change metadata.
func (c *Client) uploadBinaries(ctx context.Context, change *transform.Change) error {
	sides := []struct {
		prefix string
		data   []byte
	}{
		{"old", change.OldData},
		{"new", change.NewData},
	}

	for _, side := range sides {
		if len(side.data) == 0 {
			continue
		}
		phid, err := c.UploadFile(ctx, path.Base(change.CurrentPath), side.data)
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", change.CurrentPath, err)
		}
		change.Metadata[side.prefix+":binary-phid"] = phid
		change.Metadata[side.prefix+":file:size"] = len(side.data)
		change.Metadata[side.prefix+":file:mime-type"] = transform.MimeType(side.data)
	}

	return nil
}

type allocateResult struct {
	Upload   bool   `json:"upload"`
	FilePHID string `json:"filePHID"`
}

// UploadFile stores a file and returns its PHID. file.allocate short
// circuits uploads the service has already seen.
func (c *Client) UploadFile(ctx context.Context, name string, data []byte) (string, error) {
	var allocated allocateResult
	err := c.Call(ctx, "file.allocate", map[string]interface{}{
		"name":          name,
		"contentLength": len(data),
	}, &allocated)
	if err != nil {
		return "", err
	}

	if allocated.FilePHID != "" && !allocated.Upload {
		return allocated.FilePHID, nil
	}

	var phid string
	err = c.Call(ctx, "file.upload", map[string]interface{}{
		"name":        name,
		"data_base64": base64.StdEncoding.EncodeToString(data),
	}, &phid)
	if err != nil {
		return "", err
	}

	return phid, nil
}

// annotateDiff records the originating commit and the content fingerprint on
// a diff.
func (c *Client) annotateDiff(ctx context.Context, diffID int, commit *stack.Commit, contentHash string) error {
	local := map[string]interface{}{
		commit.Node: map[string]interface{}{
			"author":      commit.Author,
			"authorEmail": commit.AuthorEmail,
			"time":        commit.AuthorDate.Unix(),
			"summary":     commit.Title,
			"message":     commit.Message(),
			"commit":      commit.Node,
			"tree":        commit.Tree,
			"parents":     []string{commit.Parent},
		},
	}
	encoded, err := json.Marshal(local)
	if err != nil {
		return fmt.Errorf("failed to encode commit annotation: %w", err)
	}

	if err := c.setDiffProperty(ctx, diffID, localCommitsProperty, string(encoded)); err != nil {
		return err
	}
	return c.setDiffProperty(ctx, diffID, contentHashProperty, fmt.Sprintf("%q", contentHash))
}

func (c *Client) setDiffProperty(ctx context.Context, diffID int, name, data string) error {
	err := c.Call(ctx, "differential.setdiffproperty", map[string]interface{}{
		"diff_id": diffID,
		"name":    name,
		"data":    data,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to set diff property %s: %w", name, err)
	}
	return nil
}

// getDiffProperty reads one named property back from a diff. A missing
// property yields an empty string.
func (c *Client) getDiffProperty(ctx context.Context, diffID int, name string) (string, error) {
	var result json.RawMessage
	err := c.Call(ctx, "differential.getdiffproperties", map[string]interface{}{
		"diff_id": diffID,
		"names":   []string{name},
	}, &result)
	if err != nil {
		return "", fmt.Errorf("failed to read diff property %s: %w", name, err)
	}

	// A diff without properties answers with an empty list instead of a map.
	var properties map[string]json.RawMessage
	if err := json.Unmarshal(result, &properties); err != nil {
		return "", nil
	}

	raw, ok := properties[name]
	if !ok {
		return "", nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		// Properties written by other tools may not be strings.
		return "", nil
	}
	return value, nil
}

// CreateRevision creates a new review request for a commit: a fresh diff,
// the commit annotation, and a revision carrying the commit's title, summary
// and reviewers.
func (c *Client) CreateRevision(ctx context.Context, commit *stack.Commit, changes []transform.Change, contentHash string) (*Revision, error) {
	diff, err := c.CreateDiff(ctx, commit, changes)
	if err != nil {
		return nil, err
	}
	if err := c.annotateDiff(ctx, diff.ID, commit, contentHash); err != nil {
		return nil, err
	}

	txs, err := c.revisionTransactions(ctx, commit, diff)
	if err != nil {
		return nil, err
	}

	result, err := c.editRevision(ctx, nil, txs)
	if err != nil {
		return nil, fmt.Errorf("failed to create revision for %s: %w", commit.ShortNode(), err)
	}

	logger.Debug().
		Int("revision", result.Object.ID).
		Str("commit", commit.ShortNode()).
		Msg("Created revision")

	return &Revision{
		ID:          result.Object.ID,
		PHID:        result.Object.PHID,
		Title:       commit.Title,
		DiffPHID:    diff.PHID,
		DiffID:      diff.ID,
		ContentHash: contentHash,
	}, nil
}

// UpdateRevision uploads a new diff to an existing revision and refreshes
// its title and summary.
func (c *Client) UpdateRevision(ctx context.Context, rev *Revision, commit *stack.Commit, changes []transform.Change, contentHash string) (*Revision, error) {
	diff, err := c.CreateDiff(ctx, commit, changes)
	if err != nil {
		return nil, err
	}
	if err := c.annotateDiff(ctx, diff.ID, commit, contentHash); err != nil {
		return nil, err
	}

	txs, err := c.revisionTransactions(ctx, commit, diff)
	if err != nil {
		return nil, err
	}

	result, err := c.editRevision(ctx, rev.ID, txs)
	if err != nil {
		return nil, fmt.Errorf("failed to update D%d: %w", rev.ID, err)
	}

	logger.Debug().
		Int("revision", result.Object.ID).
		Str("commit", commit.ShortNode()).
		Msg("Updated revision")

	updated := *rev
	updated.Title = commit.Title
	updated.DiffPHID = diff.PHID
	updated.DiffID = diff.ID
	updated.ContentHash = contentHash
	return &updated, nil
}

// revisionTransactions builds the shared edit transactions for creates and
// updates.
func (c *Client) revisionTransactions(ctx context.Context, commit *stack.Commit, diff *Diff) ([]transaction, error) {
	// The body carries the Differential Revision line after the first
	// submission; it identifies the revision locally and has no place in
	// the summary itself.
	txs := []transaction{
		{Type: "update", Value: diff.PHID},
		{Type: "title", Value: commit.Title},
		{Type: "summary", Value: marker.Strip(commit.Body)},
	}

	if commit.BugID != "" {
		txs = append(txs, transaction{Type: "bugzilla.bug-id", Value: commit.BugID})
	}

	if len(commit.Reviewers) > 0 && !commit.WIP {
		values, err := c.ResolveReviewers(ctx, commit.Reviewers)
		if err != nil {
			return nil, err
		}
		txs = append(txs, transaction{Type: "reviewers.add", Value: values})
	}

	if commit.WIP {
		txs = append(txs, transaction{Type: "plan-changes", Value: true})
	}

	return txs, nil
}
