// Package youtube talks to YouTube: it resolves video identifiers from
// user-supplied URLs, lists and downloads caption tracks through the
// Innertube player endpoint, and looks up video metadata.
package youtube

import "regexp"

// idPatterns are tried in order; the first match wins.
var idPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/)([A-Za-z0-9_-]{11})(?:[?&#]|$)`),
	regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{11})`),
}

// ExtractVideoID returns the 11 character video identifier embedded in
// rawURL. It accepts watch URLs, short youtu.be links and path forms such as
// /embed/, /shorts/ and /live/.
func ExtractVideoID(rawURL string) (string, bool) {
	for _, re := range idPatterns {
		if m := re.FindStringSubmatch(rawURL); len(m) == 2 {
			return m[1], true
		}
	}
	return "", false
}

// WatchURL builds the canonical watch URL for id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
