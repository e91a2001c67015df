package comick

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// detectChallenge reports whether body looks like a bot-protection
// interstitial rather than an API response, and which marker matched.
func detectChallenge(body []byte) (string, bool) {
	if bytes.Contains(body, []byte("cf-chl")) {
		return "cf-chl marker", true
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if strings.HasPrefix(strings.ToLower(title), "just a moment") {
		return "challenge page title", true
	}

	if doc.Find(`script[src*="challenge-platform"], #challenge-form, #challenge-running`).Length() > 0 {
		return "challenge platform script", true
	}

	return "", false
}

func preview(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "..."
	}
	return s
}
