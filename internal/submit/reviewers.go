package submit

import (
	"regexp"
	"strings"
)

const nickChars = `a-zA-Z0-9._\-!`

var (
	// "r!nick" is shorthand for a blocking reviewer.
	blockingShorthandRe = regexp.MustCompile(`\b(r!)([` + nickChars + `,]+)`)

	// "r=nick" grants review, "r?nick" requests it; lists are comma separated.
	reviewersRe = regexp.MustCompile(`(^|[\s(.\[;,])r[=?]([#` + nickChars + `]+(?:,[#` + nickChars + `]+)*)`)

	bugIDRe = regexp.MustCompile(`(?i)(?:bug|b=)\s*(\d+)\b`)

	wipTitleRe = regexp.MustCompile(`(?i)^(?:WIP[: ]|WIP$)`)
)

// MorphBlockingReviewers rewrites the "r!nick" shorthand in a commit title
// into "r=nick!" so every blocking reviewer carries the explicit suffix.
func MorphBlockingReviewers(title string) string {
	return blockingShorthandRe.ReplaceAllStringFunc(title, func(match string) string {
		groups := blockingShorthandRe.FindStringSubmatch(match)
		nicks := strings.Split(groups[2], ",")
		for i, nick := range nicks {
			if !strings.HasSuffix(nick, "!") {
				nicks[i] = nick + "!"
			}
		}
		return "r=" + strings.Join(nicks, ",")
	})
}

// ParseReviewers extracts every reviewer named in a commit title, keeping
// blocking suffixes.
func ParseReviewers(title string) []string {
	var reviewers []string
	for _, match := range reviewersRe.FindAllStringSubmatch(title, -1) {
		for _, nick := range strings.Split(match[2], ",") {
			if nick != "" {
				reviewers = append(reviewers, nick)
			}
		}
	}
	return reviewers
}

// MakeBlocking marks every reviewer blocking.
func MakeBlocking(reviewers []string) []string {
	marked := make([]string, 0, len(reviewers))
	for _, reviewer := range reviewers {
		if !strings.HasSuffix(reviewer, "!") {
			reviewer += "!"
		}
		marked = append(marked, reviewer)
	}
	return marked
}

// RemoveDuplicates drops repeated reviewers case-insensitively. When a name
// appears both plain and blocking, the blocking form wins.
func RemoveDuplicates(reviewers []string) []string {
	blocking := make(map[string]bool, len(reviewers))
	order := make([]string, 0, len(reviewers))
	seen := make(map[string]string, len(reviewers))

	for _, reviewer := range reviewers {
		name := strings.TrimSuffix(reviewer, "!")
		key := strings.ToLower(name)
		if _, ok := seen[key]; !ok {
			seen[key] = name
			order = append(order, key)
		}
		if strings.HasSuffix(reviewer, "!") {
			blocking[key] = true
		}
	}

	unique := make([]string, 0, len(order))
	for _, key := range order {
		name := seen[key]
		if blocking[key] {
			name += "!"
		}
		unique = append(unique, name)
	}
	return unique
}

// ParseBugID extracts the first bug number referenced in a commit title.
func ParseBugID(title string) string {
	match := bugIDRe.FindStringSubmatch(title)
	if match == nil {
		return ""
	}
	return match[1]
}

// IsWIPTitle reports whether a commit title marks the commit as work in
// progress.
func IsWIPTitle(title string) bool {
	return wipTitleRe.MatchString(title)
}
