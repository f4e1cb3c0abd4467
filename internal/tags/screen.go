package tags

import (
	"errors"
	"regexp"
)

var (
	// ErrContactInfo is returned for tags that carry a URL or phone number.
	ErrContactInfo = errors.New("tags: contact details are not allowed in tags")

	// ErrFlood is returned for tags made of a repeated character run.
	ErrFlood = errors.New("tags: character flooding")
)

// Compiled once and safe for concurrent use.
var (
	// urlPattern matches http/https URLs, www. URLs and bare domains with a
	// path. The trailing "/" requirement keeps "v2.0" or "3.14" clean.
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

	// phonePattern matches +1-555-123-4567, (555) 123-4567, 555.123.4567.
	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

// screen rejects tags used to smuggle contact details or noise into a
// profile. The first failing check wins.
func screen(tag string) error {
	switch {
	case urlPattern.MatchString(tag), phonePattern.MatchString(tag):
		return ErrContactInfo
	case hasCharFlood(tag):
		return ErrFlood
	}
	return nil
}

// hasCharFlood reports whether tag contains 5 or more consecutive identical
// characters. RE2 has no backreferences, hence the scan.
func hasCharFlood(tag string) bool {
	const threshold = 5

	count := 1
	prev := rune(-1)
	for _, r := range tag {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}
