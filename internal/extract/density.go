package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	junkSelector   = "script, style, noscript, iframe, nav, footer, header, aside, form, button, svg, figure figcaption, template"
	minParagraph   = 25
	paragraphNodes = "p, h2, h3, blockquote, li"
)

var boilerplatePattern = regexp.MustCompile(`(?i)(^|[-_\s])(nav|navbar|menu|footer|sidebar|comments?|share|social|promo|advert|ads?|cookie|subscribe|newsletter|related|breadcrumbs?|banner|popup|modal|paywall)([-_\s]|$)`)

// Density scores block containers by the amount of paragraph text they hold,
// penalised by link density, and keeps the best one.
type Density struct{}

func (Density) Name() string { return "density" }

func (Density) Extract(doc *goquery.Document) (string, float64) {
	stripBoilerplate(doc)

	scores := make(map[*html.Node]float64)
	var order []*html.Node
	add := func(n *html.Node, v float64) {
		if n == nil || n.Type != html.ElementNode {
			return
		}
		if _, ok := scores[n]; !ok {
			order = append(order, n)
		}
		scores[n] += v
	}

	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		n := utf8.RuneCountInString(cleanText(p.Text()))
		if n < minParagraph {
			return
		}
		parent := p.Nodes[0].Parent
		add(parent, float64(n))
		if parent != nil {
			add(parent.Parent, float64(n)/2)
		}
	})
	if len(order) == 0 {
		return "", 0
	}

	var (
		best      *html.Node
		bestScore float64
	)
	for _, n := range order {
		sel := goquery.NewDocumentFromNode(n).Selection
		score := scores[n] * (1 - linkDensity(sel)) * semanticBonus(sel)
		if best == nil || score > bestScore {
			best, bestScore = n, score
		}
	}

	container := goquery.NewDocumentFromNode(best).Selection
	paragraphs := collectParagraphs(container, paragraphNodes, minParagraph)
	if len(paragraphs) == 0 {
		return "", 0
	}
	text := strings.Join(paragraphs, "\n\n")
	return text, confidence(utf8.RuneCountInString(text), len(paragraphs), linkDensity(container))
}

func stripBoilerplate(doc *goquery.Document) {
	doc.Find(junkSelector).Remove()
	doc.Find("[class], [id]").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "body" || goquery.NodeName(s) == "html" || goquery.NodeName(s) == "article" || goquery.NodeName(s) == "main" {
			return
		}
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		if boilerplatePattern.MatchString(class) || boilerplatePattern.MatchString(id) {
			s.Remove()
		}
	})
	doc.Find("[hidden], [aria-hidden=true]").Remove()
}

func linkDensity(s *goquery.Selection) float64 {
	total := utf8.RuneCountInString(cleanText(s.Text()))
	if total == 0 {
		return 1
	}
	linked := 0
	s.Find("a").Each(func(_ int, a *goquery.Selection) {
		linked += utf8.RuneCountInString(cleanText(a.Text()))
	})
	return float64(linked) / float64(total)
}

func semanticBonus(s *goquery.Selection) float64 {
	switch {
	case s.Is("article, main, [itemprop=articleBody]"):
		return 1.5
	case s.Find("[itemprop=articleBody]").Length() > 0:
		return 1.2
	default:
		return 1
	}
}

// collectParagraphs returns the cleaned text of matching descendants. Nested
// matches are skipped so a <p> inside a <blockquote> is not counted twice.
func collectParagraphs(s *goquery.Selection, selector string, minLen int) []string {
	var out []string
	s.Find(selector).Each(func(_ int, el *goquery.Selection) {
		if isInside(el, s, selector) {
			return
		}
		text := cleanText(el.Text())
		heading := el.Is("h2, h3")
		if text == "" || (!heading && utf8.RuneCountInString(text) < minLen) {
			return
		}
		out = append(out, text)
	})
	return out
}

// isInside reports whether el has an ancestor matching selector below root.
func isInside(el, root *goquery.Selection, selector string) bool {
	rootNode := root.Nodes[0]
	for n := el.Nodes[0].Parent; n != nil && n != rootNode; n = n.Parent {
		if goquery.NewDocumentFromNode(n).Selection.Is(selector) {
			return true
		}
	}
	return false
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
