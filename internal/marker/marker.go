// Package marker parses and rewrites the revision identity marker embedded
// in commit messages. The marker is a single line of the form
//
//	Differential Revision: https://phab.example.com/D12345
//
// Keeping the pattern in one place lets it change without touching the
// reconciler.
package marker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var markerRe = regexp.MustCompile(`(?m)^\s*Differential Revision:\s*(https?://\S+)/D(\d+)\s*$`)

// Parse extracts the revision ID from a commit message body. It returns
// ok=false when no marker is present. When a body carries more than one
// marker line the last one wins, matching the behavior of amended messages.
func Parse(body string) (rev int, ok bool) {
	matches := markerRe.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return 0, false
	}
	rev, err := strconv.Atoi(matches[len(matches)-1][2])
	if err != nil || rev == 0 {
		return 0, false
	}
	return rev, true
}

// ParseURL extracts the full revision URL from a commit message body.
func ParseURL(body string) (string, bool) {
	matches := markerRe.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return "", false
	}
	m := matches[len(matches)-1]
	return fmt.Sprintf("%s/D%s", m[1], m[2]), true
}

// Strip removes all marker lines from a commit message body.
func Strip(body string) string {
	return strings.TrimRight(markerRe.ReplaceAllString(body, ""), "\n")
}

// Amend appends or replaces the revision URL in a commit message body.
func Amend(body, revisionURL string) string {
	body = Strip(body)
	if body != "" {
		body += "\n"
	}
	return body + "\nDifferential Revision: " + revisionURL
}

// URL formats the revision URL for a revision ID on the given Phabricator
// instance.
func URL(baseURL string, rev int) string {
	return fmt.Sprintf("%s/D%d", strings.TrimRight(baseURL, "/"), rev)
}
