// Package tags cleans the free-text interest and lifestyle tags users
// attach to their profiles, so that set comparisons in scoring are exact.
package tags

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxTagBytes = 64 // max stored size of one tag
	MaxTags     = 32 // max tags kept per list
)

var ErrEmptyTag = errors.New("tags: empty tag")

// Validate checks that a single normalized tag can be stored.
func Validate(tag string) error {
	if tag == "" {
		return ErrEmptyTag
	}
	if len(tag) > MaxTagBytes {
		return fmt.Errorf("tags: %q exceeds %d byte limit", tag, MaxTagBytes)
	}
	if !utf8.ValidString(tag) {
		return fmt.Errorf("tags: %q contains invalid UTF-8", tag)
	}
	return screen(tag)
}

// Normalize lower-cases each tag, trims it, and collapses inner whitespace.
// Empty or invalid tags are dropped and duplicates keep their first
// position. At most MaxTags tags are returned.
func Normalize(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		tag := normalizeOne(r)
		if Validate(tag) != nil {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}

func normalizeOne(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.ToLower(strings.Join(words, " "))
}
