package sources

import (
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/ObiAU/newssearch/internal/models"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func newFeedParser(timeout time.Duration) *gofeed.Parser {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: timeout}
	return parser
}

func itemCandidate(item *gofeed.Item, source string) models.Candidate {
	candidate := models.Candidate{
		URL:     strings.TrimSpace(item.Link),
		Title:   strings.TrimSpace(item.Title),
		Snippet: stripTags(item.Description),
		Source:  source,
	}
	switch {
	case item.PublishedParsed != nil:
		candidate.PublishedAt = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		candidate.PublishedAt = item.UpdatedParsed.UTC()
	}
	if item.Image != nil {
		candidate.ImageURL = item.Image.URL
	}
	return candidate
}

// queryTerms splits a phrase into lowercase terms worth matching on.
func queryTerms(phrase string) []string {
	var terms []string
	for _, word := range strings.Fields(strings.ToLower(phrase)) {
		word = strings.Trim(word, `.,;:!?"'()[]`)
		if len([]rune(word)) > 2 {
			terms = append(terms, word)
		}
	}
	return terms
}

func matchesAny(text string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	text = strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
