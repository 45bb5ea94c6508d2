// Package transform converts extracted commit descriptors into the wire
// change format consumed by differential.creatediff, and fingerprints the
// result so unchanged commits can be recognized on later runs.
package transform

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"lukechampine.com/blake3"

	"github.com/mozilla-conduit/review/internal/stack"
)

// Change kinds understood by differential.creatediff.
const (
	ChangeAdd       = 1
	ChangeChange    = 2
	ChangeDelete    = 3
	ChangeMoveAway  = 4
	ChangeCopyAway  = 5
	ChangeMoveHere  = 6
	ChangeCopyHere  = 7
	ChangeMulticopy = 8
)

// File types understood by differential.creatediff.
const (
	FileText   = 1
	FileImage  = 2
	FileBinary = 3
)

// Hunk is one contiguous block of removed and added lines.
type Hunk struct {
	OldOffset           int    `json:"oldOffset"`
	OldLength           int    `json:"oldLength"`
	NewOffset           int    `json:"newOffset"`
	NewLength           int    `json:"newLength"`
	AddLines            int    `json:"addLines"`
	DelLines            int    `json:"delLines"`
	IsMissingOldNewline bool   `json:"isMissingOldNewline"`
	IsMissingNewNewline bool   `json:"isMissingNewNewline"`
	Corpus              string `json:"corpus"`
}

// Change describes the full effect of one commit on one path. Binary
// payloads travel out of band through file.upload; OldData and NewData hold
// them until the client has allocated the files and recorded their PHIDs in
// Metadata.
type Change struct {
	Metadata      map[string]interface{} `json:"metadata"`
	OldPath       *string                `json:"oldPath"`
	CurrentPath   string                 `json:"currentPath"`
	AwayPaths     []string               `json:"awayPaths"`
	OldProperties map[string]string      `json:"oldProperties"`
	NewProperties map[string]string      `json:"newProperties"`
	CommitHash    string                 `json:"commitHash"`
	Type          int                    `json:"type"`
	FileType      int                    `json:"fileType"`
	Hunks         []Hunk                 `json:"hunks"`

	OldData []byte `json:"-"`
	NewData []byte `json:"-"`
}

// Convert maps a commit's changed files onto wire changes. Renames expand
// into a move-away/move-here pair the way the review service models them.
func Convert(c *stack.Commit) []Change {
	changes := make([]Change, 0, len(c.Files))
	for _, f := range c.Files {
		switch f.Kind {
		case stack.KindRename, stack.KindCopy:
			away := ChangeMoveAway
			here := ChangeMoveHere
			if f.Kind == stack.KindCopy {
				away = ChangeCopyAway
				here = ChangeCopyHere
			}

			changes = append(changes, Change{
				Metadata:      map[string]interface{}{},
				CurrentPath:   f.OldPath,
				AwayPaths:     []string{f.Path},
				OldProperties: fileModeProps(f.OldMode),
				NewProperties: map[string]string{},
				CommitHash:    c.Node,
				Type:          away,
				FileType:      fileType(f),
			})

			moved := newChange(c, f)
			moved.OldPath = strPtr(f.OldPath)
			moved.Type = here
			changes = append(changes, moved)
		default:
			changes = append(changes, newChange(c, f))
		}
	}
	return changes
}

func newChange(c *stack.Commit, f stack.ChangedFile) Change {
	change := Change{
		Metadata:      map[string]interface{}{},
		CurrentPath:   f.Path,
		AwayPaths:     []string{},
		OldProperties: map[string]string{},
		NewProperties: map[string]string{},
		CommitHash:    c.Node,
		FileType:      fileType(f),
		Hunks:         buildHunks(f),
	}

	switch f.Kind {
	case stack.KindAdd:
		change.Type = ChangeAdd
		change.NewProperties = fileModeProps(f.NewMode)
	case stack.KindDelete:
		change.Type = ChangeDelete
		change.OldPath = strPtr(f.Path)
		change.OldProperties = fileModeProps(f.OldMode)
	default:
		change.Type = ChangeChange
		change.OldPath = strPtr(f.OldPath)
		change.OldProperties = fileModeProps(f.OldMode)
		change.NewProperties = fileModeProps(f.NewMode)
	}

	if f.Binary {
		change.OldData = f.OldContent
		change.NewData = f.NewContent
	}

	return change
}

// buildHunks emits one full-context hunk covering the whole file:
// unchanged lines as context, removals and additions from a line diff.
func buildHunks(f stack.ChangedFile) []Hunk {
	if f.Binary || (len(f.OldLines) == 0 && len(f.NewLines) == 0) {
		return nil
	}

	var corpus strings.Builder
	var added, deleted int
	for _, d := range lineDiff(f.OldLines, f.NewLines) {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
			deleted += strings.Count(d.Text, "\n")
		case diffmatchpatch.DiffInsert:
			prefix = "+"
			added += strings.Count(d.Text, "\n")
		}

		// Chunks are whole newline-terminated lines by construction.
		text := d.Text
		for len(text) > 0 {
			i := strings.IndexByte(text, '\n')
			corpus.WriteString(prefix)
			corpus.WriteString(text[:i+1])
			text = text[i+1:]
		}
	}

	hunk := Hunk{
		AddLines:            added,
		DelLines:            deleted,
		IsMissingOldNewline: f.OldNoNewline,
		IsMissingNewNewline: f.NewNoNewline,
		Corpus:              corpus.String(),
	}
	if len(f.OldLines) > 0 {
		hunk.OldOffset = 1
		hunk.OldLength = len(f.OldLines)
	}
	if len(f.NewLines) > 0 {
		hunk.NewOffset = 1
		hunk.NewLength = len(f.NewLines)
	}

	return []Hunk{hunk}
}

// lineDiff runs a line-level diff between the two sides. Deleted-then-added
// runs come out in that order, matching unified diff hunks.
func lineDiff(oldLines, newLines []string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	src, dst, lineIndex := dmp.DiffLinesToChars(joinLines(oldLines), joinLines(newLines))
	diffs := dmp.DiffMain(src, dst, false)
	return dmp.DiffCharsToLines(diffs, lineIndex)
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func fileType(f stack.ChangedFile) int {
	if !f.Binary {
		return FileText
	}
	data := f.NewContent
	if len(data) == 0 {
		data = f.OldContent
	}
	if strings.HasPrefix(http.DetectContentType(data), "image/") {
		return FileImage
	}
	return FileBinary
}

// MimeType returns the sniffed content type of a binary payload.
func MimeType(data []byte) string {
	return http.DetectContentType(data)
}

func fileModeProps(mode string) map[string]string {
	if mode == "" {
		return map[string]string{}
	}
	return map[string]string{"unix:filemode": mode}
}

func strPtr(s string) *string {
	return &s
}

// ContentHash fingerprints a change list. Two commits with the same hash
// produce byte-identical diffs, so a matching remote fingerprint means the
// revision does not need a new diff.
func ContentHash(changes []Change) string {
	h := blake3.New(32, nil)
	for _, c := range changes {
		writeField(h, c.CurrentPath)
		if c.OldPath != nil {
			writeField(h, *c.OldPath)
		}
		fmt.Fprintf(h, "|%d|%d|", c.Type, c.FileType)
		writeField(h, c.OldProperties["unix:filemode"])
		writeField(h, c.NewProperties["unix:filemode"])
		for _, hunk := range c.Hunks {
			fmt.Fprintf(h, "|%t|%t|", hunk.IsMissingOldNewline, hunk.IsMissingNewNewline)
			writeField(h, hunk.Corpus)
		}
		fmt.Fprintf(h, "|%d|", len(c.OldData))
		h.Write(c.OldData)
		fmt.Fprintf(h, "|%d|", len(c.NewData))
		h.Write(c.NewData)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h *blake3.Hasher, s string) {
	fmt.Fprintf(h, "%d:%s", len(s), s)
}
