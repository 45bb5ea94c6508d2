package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-conduit/review/internal/stack"
)

func textCommit() *stack.Commit {
	return &stack.Commit{
		Node:  "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Title: "Add a thing",
		Files: []stack.ChangedFile{
			{
				Path:     "src/thing.go",
				Kind:     stack.KindAdd,
				NewLines: []string{"package thing", "", "var X = 1"},
				NewMode:  "100644",
			},
		},
	}
}

func TestConvert(t *testing.T) {
	t.Run("added text file", func(t *testing.T) {
		changes := Convert(textCommit())
		require.Len(t, changes, 1)

		c := changes[0]
		assert.Equal(t, ChangeAdd, c.Type)
		assert.Equal(t, FileText, c.FileType)
		assert.Equal(t, "src/thing.go", c.CurrentPath)
		assert.Nil(t, c.OldPath)
		assert.Equal(t, "100644", c.NewProperties["unix:filemode"])
		assert.Empty(t, c.OldProperties)
		assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", c.CommitHash)

		require.Len(t, c.Hunks, 1)
		hunk := c.Hunks[0]
		assert.Equal(t, 0, hunk.OldOffset)
		assert.Equal(t, 0, hunk.OldLength)
		assert.Equal(t, 1, hunk.NewOffset)
		assert.Equal(t, 3, hunk.NewLength)
		assert.Equal(t, 3, hunk.AddLines)
		assert.Equal(t, 0, hunk.DelLines)
		assert.Equal(t, "+package thing\n+\n+var X = 1\n", hunk.Corpus)
	})

	t.Run("modified text file", func(t *testing.T) {
		commit := &stack.Commit{
			Node: "bbbb",
			Files: []stack.ChangedFile{{
				Path:     "notes.txt",
				OldPath:  "notes.txt",
				Kind:     stack.KindModify,
				OldLines: []string{"one", "two"},
				NewLines: []string{"one", "three"},
				OldMode:  "100644",
				NewMode:  "100755",
			}},
		}

		changes := Convert(commit)
		require.Len(t, changes, 1)

		c := changes[0]
		assert.Equal(t, ChangeChange, c.Type)
		require.NotNil(t, c.OldPath)
		assert.Equal(t, "notes.txt", *c.OldPath)
		assert.Equal(t, "100644", c.OldProperties["unix:filemode"])
		assert.Equal(t, "100755", c.NewProperties["unix:filemode"])

		require.Len(t, c.Hunks, 1)
		assert.Equal(t, " one\n-two\n+three\n", c.Hunks[0].Corpus)
		assert.Equal(t, 1, c.Hunks[0].DelLines)
		assert.Equal(t, 1, c.Hunks[0].AddLines)
	})

	t.Run("unchanged lines appear as context", func(t *testing.T) {
		commit := &stack.Commit{
			Node: "bbbb",
			Files: []stack.ChangedFile{{
				Path:     "list.txt",
				OldPath:  "list.txt",
				Kind:     stack.KindModify,
				OldLines: []string{"alpha", "beta", "gamma"},
				NewLines: []string{"alpha", "beta", "inserted", "gamma"},
				OldMode:  "100644",
				NewMode:  "100644",
			}},
		}

		changes := Convert(commit)
		require.Len(t, changes, 1)
		require.Len(t, changes[0].Hunks, 1)

		hunk := changes[0].Hunks[0]
		assert.Equal(t, " alpha\n beta\n+inserted\n gamma\n", hunk.Corpus)
		assert.Equal(t, 1, hunk.OldOffset)
		assert.Equal(t, 3, hunk.OldLength)
		assert.Equal(t, 1, hunk.NewOffset)
		assert.Equal(t, 4, hunk.NewLength)
		assert.Equal(t, 1, hunk.AddLines)
		assert.Equal(t, 0, hunk.DelLines)
	})

	t.Run("deleted file", func(t *testing.T) {
		commit := &stack.Commit{
			Node: "cccc",
			Files: []stack.ChangedFile{{
				Path:         "gone.txt",
				Kind:         stack.KindDelete,
				OldLines:     []string{"bye"},
				OldNoNewline: true,
				OldMode:      "100644",
			}},
		}

		changes := Convert(commit)
		require.Len(t, changes, 1)

		c := changes[0]
		assert.Equal(t, ChangeDelete, c.Type)
		require.NotNil(t, c.OldPath)
		assert.Equal(t, "gone.txt", *c.OldPath)
		require.Len(t, c.Hunks, 1)
		assert.Equal(t, 0, c.Hunks[0].NewOffset)
		assert.True(t, c.Hunks[0].IsMissingOldNewline)
	})

	t.Run("rename expands into a move pair", func(t *testing.T) {
		commit := &stack.Commit{
			Node: "dddd",
			Files: []stack.ChangedFile{{
				Path:     "after.txt",
				OldPath:  "before.txt",
				Kind:     stack.KindRename,
				OldLines: []string{"same"},
				NewLines: []string{"same"},
				OldMode:  "100644",
				NewMode:  "100644",
			}},
		}

		changes := Convert(commit)
		require.Len(t, changes, 2)

		away := changes[0]
		assert.Equal(t, ChangeMoveAway, away.Type)
		assert.Equal(t, "before.txt", away.CurrentPath)
		assert.Equal(t, []string{"after.txt"}, away.AwayPaths)
		assert.Empty(t, away.Hunks)

		here := changes[1]
		assert.Equal(t, ChangeMoveHere, here.Type)
		assert.Equal(t, "after.txt", here.CurrentPath)
		require.NotNil(t, here.OldPath)
		assert.Equal(t, "before.txt", *here.OldPath)
	})

	t.Run("binary file carries raw payloads and no hunks", func(t *testing.T) {
		payload := []byte{0x00, 0x01, 0x02, 0xff}
		commit := &stack.Commit{
			Node: "eeee",
			Files: []stack.ChangedFile{{
				Path:       "blob.bin",
				Kind:       stack.KindAdd,
				Binary:     true,
				NewContent: payload,
				NewMode:    "100644",
			}},
		}

		changes := Convert(commit)
		require.Len(t, changes, 1)

		c := changes[0]
		assert.Equal(t, FileBinary, c.FileType)
		assert.Empty(t, c.Hunks)
		assert.Equal(t, payload, c.NewData)
	})

	t.Run("png detected as image", func(t *testing.T) {
		png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)
		commit := &stack.Commit{
			Node: "ffff",
			Files: []stack.ChangedFile{{
				Path:       "logo.png",
				Kind:       stack.KindAdd,
				Binary:     true,
				NewContent: png,
			}},
		}

		changes := Convert(commit)
		require.Len(t, changes, 1)
		assert.Equal(t, FileImage, changes[0].FileType)
	})
}

func TestContentHash(t *testing.T) {
	t.Run("stable for identical content", func(t *testing.T) {
		a := ContentHash(Convert(textCommit()))
		b := ContentHash(Convert(textCommit()))
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("ignores the commit node", func(t *testing.T) {
		first := textCommit()
		second := textCommit()
		second.Node = "1111111111111111111111111111111111111111"

		assert.Equal(t, ContentHash(Convert(first)), ContentHash(Convert(second)))
	})

	t.Run("changes when content changes", func(t *testing.T) {
		base := textCommit()
		edited := textCommit()
		edited.Files[0].NewLines = append(edited.Files[0].NewLines, "var Y = 2")

		assert.NotEqual(t, ContentHash(Convert(base)), ContentHash(Convert(edited)))
	})

	t.Run("changes when mode changes", func(t *testing.T) {
		base := textCommit()
		exec := textCommit()
		exec.Files[0].NewMode = "100755"

		assert.NotEqual(t, ContentHash(Convert(base)), ContentHash(Convert(exec)))
	})
}
