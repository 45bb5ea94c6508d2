// Package stack defines the local commit stack model shared by the
// extractor, reconciler, executor and annotator.
package stack

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEmptyStack is returned when a selected range contains no commits
	ErrEmptyStack = errors.New("no commits in the selected range")
)

// ChangeKind describes how a commit touched a file
type ChangeKind int

const (
	KindAdd ChangeKind = iota + 1
	KindModify
	KindDelete
	KindRename
	// KindCopy is part of the wire model but never produced by the
	// extractor: tree diffing detects renames, not copies.
	KindCopy
)

// String returns the short status letter used in stack previews
func (k ChangeKind) String() string {
	switch k {
	case KindAdd:
		return "A"
	case KindModify:
		return "M"
	case KindDelete:
		return "D"
	case KindRename:
		return "R"
	case KindCopy:
		return "C"
	}
	return "?"
}

// ChangedFile is one file touched by a commit.
//
// Rename and copy entries carry both OldPath and Path. Binary entries carry
// the full old/new content rather than a textual diff.
type ChangedFile struct {
	Path    string
	OldPath string
	Kind    ChangeKind
	Binary  bool

	// OldLines/NewLines hold the full text content for textual changes.
	// For KindAdd OldLines is nil; for KindDelete NewLines is nil.
	OldLines []string
	NewLines []string

	// Set when the corresponding side does not end with a newline.
	OldNoNewline bool
	NewNoNewline bool

	// OldContent/NewContent hold raw bytes for binary entries.
	OldContent []byte
	NewContent []byte

	// Unix file modes formatted as octal strings ("100644"), empty when
	// the side does not exist.
	OldMode string
	NewMode string
}

// Commit describes one local commit in the working range. Descriptors are
// created fresh on each invocation and never persisted.
type Commit struct {
	// Node is the VCS-native identifier (git SHA)
	Node string
	// Ordinal is the 0-based position in the stack, in author order
	Ordinal int
	// Parent is the parent node; empty for the root of the range
	Parent string
	// Tree is the tree hash, kept so amends can rebuild the commit object
	Tree string

	Title       string
	Body        string
	Author      string
	AuthorEmail string
	AuthorDate  time.Time

	Files []ChangedFile

	// RevID is the bound remote revision ID; 0 means unbound
	RevID int
	// RevPHID is the bound revision's PHID, filled from the remote fetch
	// or after creation
	RevPHID string

	// Reviewers parsed from the title plus command-line flags. A trailing
	// "!" marks a blocking reviewer.
	Reviewers []string
	// WIP marks the commit for submission as changes-planned
	WIP bool
	// BugID is the tracker bug referenced by the title, if any
	BugID string
}

// Message returns the full commit message
func (c *Commit) Message() string {
	if c.Body == "" {
		return c.Title
	}
	return c.Title + "\n\n" + c.Body
}

// ShortNode returns the abbreviated node for display
func (c *Commit) ShortNode() string {
	if len(c.Node) > 12 {
		return c.Node[:12]
	}
	return c.Node
}

// Bound reports whether the commit is bound to a remote revision
func (c *Commit) Bound() bool {
	return c.RevID != 0
}

// Validate checks the stack invariants: contiguous 0-based ordinals and
// linear parent linkage, with each descriptor's parent being the descriptor
// at ordinal-1.
func Validate(commits []*Commit) error {
	if len(commits) == 0 {
		return ErrEmptyStack
	}

	for i, c := range commits {
		if c.Ordinal != i {
			return fmt.Errorf("ordinal gap: commit %s has ordinal %d, expected %d", c.ShortNode(), c.Ordinal, i)
		}
		if i > 0 && c.Parent != commits[i-1].Node {
			return fmt.Errorf("non-linear stack: commit %s does not descend from %s", c.ShortNode(), commits[i-1].ShortNode())
		}
	}

	return nil
}

// SplitMessage splits a raw commit message into title and body
func SplitMessage(message string) (title, body string) {
	parts := strings.SplitN(message, "\n", 2)
	title = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		body = strings.TrimSpace(parts[1])
	}
	return title, body
}
