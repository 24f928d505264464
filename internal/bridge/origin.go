package bridge

import "regexp"

// originRe implements spec §4.F's Origin allow-list: empty or a localhost
// URL, optionally with a port.
var originRe = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1)(:\d+)?$`)

func originAllowed(origin string) bool {
	return origin == "" || originRe.MatchString(origin)
}
