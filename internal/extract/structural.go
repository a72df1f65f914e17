package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Structural is the fallback strategy: find the most article-like container
// by markup alone and keep its paragraphs and subheadings.
type Structural struct{}

// minBodyText keeps short paywall and consent notices from passing as text.
const minBodyText = 200

func (Structural) Name() string { return "structural" }

var containerSelectors = []string{
	"article",
	"[itemprop=articleBody]",
	"main",
	`div[class*="content"], div[class*="article"], div[class*="post"]`,
	"body",
}

func (Structural) Extract(doc *goquery.Document) (string, float64) {
	doc.Find(junkSelector).Remove()

	for _, selector := range containerSelectors {
		container := doc.Find(selector).First()
		if container.Length() == 0 {
			continue
		}
		paragraphs := collectParagraphs(container, "p, h2, h3", 11)
		if len(paragraphs) == 0 {
			continue
		}
		text := strings.Join(paragraphs, "\n\n")
		conf := confidence(utf8.RuneCountInString(text), len(paragraphs), linkDensity(container))
		return text, conf * 0.9
	}

	// Last resort: whatever text the body still has.
	body := cleanText(doc.Find("body").Text())
	if utf8.RuneCountInString(body) < minBodyText {
		return "", 0
	}
	return body, confidence(utf8.RuneCountInString(body), 1, 0) * 0.5
}
