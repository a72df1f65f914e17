package extract

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

type metadata struct {
	Title       string
	Author      string
	PublishedAt time.Time
	ImageURL    string
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

func readMetadata(doc *goquery.Document, pageURL string) metadata {
	ld := readJSONLD(doc)

	m := metadata{
		Title: firstNonEmpty(
			metaContent(doc, `meta[property="og:title"]`),
			metaContent(doc, `meta[name="twitter:title"]`),
			ld.Headline,
			cleanText(doc.Find("h1").First().Text()),
			cleanText(doc.Find("title").First().Text()),
		),
		Author: firstNonEmpty(
			metaContent(doc, `meta[name="author"]`),
			nonURL(metaContent(doc, `meta[property="article:author"]`)),
			ld.authorName(),
			cleanText(doc.Find(`[rel="author"]`).First().Text()),
		),
		ImageURL: firstNonEmpty(
			metaContent(doc, `meta[property="og:image"]`),
			metaContent(doc, `meta[name="twitter:image"]`),
			attr(doc.Find("img[src]").First(), "src"),
		),
	}

	for _, raw := range []string{
		metaContent(doc, `meta[property="article:published_time"]`),
		metaContent(doc, `meta[property="og:published_time"]`),
		metaContent(doc, `meta[itemprop="datePublished"]`),
		attr(doc.Find(`[itemprop="datePublished"]`).First(), "datetime"),
		ld.DatePublished,
		attr(doc.Find("time[datetime]").First(), "datetime"),
		metaContent(doc, `meta[name="date"]`),
	} {
		if t, ok := parseDate(raw); ok {
			m.PublishedAt = t
			break
		}
	}

	m.ImageURL = resolveURL(pageURL, m.ImageURL)
	return m
}

type jsonLD struct {
	Type          any               `json:"@type"`
	Headline      string            `json:"headline"`
	DatePublished string            `json:"datePublished"`
	Author        any               `json:"author"`
	Graph         []json.RawMessage `json:"@graph"`
}

func (ld jsonLD) authorName() string {
	switch a := ld.Author.(type) {
	case string:
		return a
	case map[string]any:
		name, _ := a["name"].(string)
		return name
	case []any:
		for _, item := range a {
			if obj, ok := item.(map[string]any); ok {
				if name, _ := obj["name"].(string); name != "" {
					return name
				}
			}
		}
	}
	return ""
}

// readJSONLD returns the first schema.org object on the page that carries a
// publish date, looking through arrays and @graph containers.
func readJSONLD(doc *goquery.Document) jsonLD {
	var found jsonLD
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		var objects []json.RawMessage
		if strings.HasPrefix(raw, "[") {
			if err := json.Unmarshal([]byte(raw), &objects); err != nil {
				return true
			}
		} else {
			objects = []json.RawMessage{json.RawMessage(raw)}
		}
		for len(objects) > 0 {
			var ld jsonLD
			obj := objects[0]
			objects = objects[1:]
			if err := json.Unmarshal(obj, &ld); err != nil {
				continue
			}
			objects = append(objects, ld.Graph...)
			if ld.DatePublished != "" || ld.Headline != "" {
				found = ld
				return false
			}
		}
		return true
	})
	return found
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func metaContent(doc *goquery.Document, selector string) string {
	return attr(doc.Find(selector).First(), "content")
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func nonURL(s string) string {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return ""
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func resolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if refURL.IsAbs() {
		return refURL.String()
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(refURL).String()
}
