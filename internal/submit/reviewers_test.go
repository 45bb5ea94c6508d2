package submit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMorphBlockingReviewers(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"single blocking shorthand", "Fix parsing r!alice", "Fix parsing r=alice!"},
		{"list of blocking reviewers", "Fix parsing r!alice,bob", "Fix parsing r=alice!,bob!"},
		{"already suffixed nick keeps one bang", "Fix parsing r!alice!", "Fix parsing r=alice!"},
		{"plain reviewers untouched", "Fix parsing r=alice,bob", "Fix parsing r=alice,bob"},
		{"no reviewers", "Fix parsing", "Fix parsing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MorphBlockingReviewers(tt.title))
		})
	}
}

func TestParseReviewers(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  []string
	}{
		{"granted", "Bug 7 - fix r=alice", []string{"alice"}},
		{"requested", "fix r?bob", []string{"bob"}},
		{"list with blocking suffix", "fix r=alice,bob!", []string{"alice", "bob!"}},
		{"multiple groups", "fix r=alice r?bob", []string{"alice", "bob"}},
		{"none", "fix the thing", nil},
		{"word ending in r is not a specifier", "refactor=maybe", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseReviewers(tt.title))
		})
	}
}

func TestMakeBlocking(t *testing.T) {
	assert.Equal(t, []string{"alice!", "bob!"}, MakeBlocking([]string{"alice", "bob!"}))
	assert.Empty(t, MakeBlocking(nil))
}

func TestRemoveDuplicates(t *testing.T) {
	t.Run("case insensitive", func(t *testing.T) {
		assert.Equal(t, []string{"alice", "bob"}, RemoveDuplicates([]string{"alice", "Alice", "bob"}))
	})

	t.Run("blocking form wins", func(t *testing.T) {
		assert.Equal(t, []string{"alice!"}, RemoveDuplicates([]string{"alice", "alice!"}))
		assert.Equal(t, []string{"alice!"}, RemoveDuplicates([]string{"alice!", "alice"}))
	})
}

func TestParseBugID(t *testing.T) {
	assert.Equal(t, "12345", ParseBugID("Bug 12345 - fix the thing"))
	assert.Equal(t, "99", ParseBugID("b=99 something"))
	assert.Empty(t, ParseBugID("fix the thing"))
}

func TestIsWIPTitle(t *testing.T) {
	assert.True(t, IsWIPTitle("WIP: fix the thing"))
	assert.True(t, IsWIPTitle("wip fix the thing"))
	assert.True(t, IsWIPTitle("WIP"))
	assert.False(t, IsWIPTitle("Unwip the thing"))
	assert.False(t, IsWIPTitle("fix WIP handling"))
}
