// Copyright (c) 2026, the fetcharr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package jackett

import (
	"regexp"
	"strings"
)

var (
	annotationGroup = regexp.MustCompile(`\[[^\[\]]*\]|\([^()]*\)`)
	separatorRun    = regexp.MustCompile(`[._]+`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

// NormalizeTitle derives the canonical form of a release title used as a
// dedup key: lowercase, bracketed/parenthesized annotations stripped,
// dot/underscore separators folded to spaces, whitespace collapsed. The
// function is deterministic and total; unbalanced brackets are left as-is.
func NormalizeTitle(title string) string {
	s := strings.ToLower(title)
	s = annotationGroup.ReplaceAllString(s, " ")
	s = separatorRun.ReplaceAllString(s, " ")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
