// Package extract turns downloaded HTML into article text and metadata.
//
// Extraction runs a chain of strategies. The first strategy whose result
// clears the confidence threshold wins; otherwise the best low-confidence
// result is returned together with an *ExtractionError so the caller can
// decide what to do with it. Pages with no usable text at all (paywalls,
// script-rendered shells) fail with ReasonEmpty.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ObiAU/newssearch/internal/models"
)

type Reason int

const (
	ReasonEmpty Reason = iota
	ReasonLowConfidence
	ReasonParse
)

func (r Reason) String() string {
	switch r {
	case ReasonEmpty:
		return "no usable text"
	case ReasonLowConfidence:
		return "low confidence"
	case ReasonParse:
		return "unparsable html"
	default:
		return "unknown"
	}
}

type ExtractionError struct {
	URL        string
	Reason     Reason
	Strategy   string
	Confidence float64
	Err        error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extract %s: %s", e.URL, e.Reason)
	if e.Reason == ReasonLowConfidence {
		msg += fmt.Sprintf(" (%s, %.2f)", e.Strategy, e.Confidence)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return models.NewError(models.KindExtraction, "extract", e.URL, e.Err)
}

// IsLowConfidence reports whether err carries a usable but weak result.
func IsLowConfidence(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee) && ee.Reason == ReasonLowConfidence
}

// IsEmpty reports whether err is a hard "nothing found" failure.
func IsEmpty(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee) && ee.Reason == ReasonEmpty
}

// Strategy isolates the main text of a parsed document. It may mutate doc.
type Strategy interface {
	Name() string
	Extract(doc *goquery.Document) (text string, confidence float64)
}

type Extractor struct {
	strategies    []Strategy
	minConfidence float64
}

// New builds an extractor. With no strategies given it uses the density
// heuristic followed by the structural fallback.
func New(minConfidence float64, strategies ...Strategy) *Extractor {
	if len(strategies) == 0 {
		strategies = []Strategy{Density{}, Structural{}}
	}
	return &Extractor{strategies: strategies, minConfidence: minConfidence}
}

// Extract runs the strategy chain over html fetched from pageURL. On
// ReasonLowConfidence the returned Article is populated and usable.
func (e *Extractor) Extract(html, pageURL string) (models.Article, error) {
	if strings.TrimSpace(html) == "" {
		return models.Article{}, &ExtractionError{URL: pageURL, Reason: ReasonEmpty}
	}

	metaDoc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.Article{}, &ExtractionError{URL: pageURL, Reason: ReasonParse, Err: err}
	}
	meta := readMetadata(metaDoc, pageURL)

	var (
		bestText     string
		bestConf     float64
		bestStrategy string
	)
	for _, strategy := range e.strategies {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return models.Article{}, &ExtractionError{URL: pageURL, Reason: ReasonParse, Err: err}
		}

		text, conf := strategy.Extract(doc)
		if text == "" {
			continue
		}
		if conf >= e.minConfidence {
			return buildArticle(pageURL, text, conf, strategy.Name(), meta), nil
		}
		if bestText == "" || conf > bestConf {
			bestText, bestConf, bestStrategy = text, conf, strategy.Name()
		}
	}

	if bestText == "" {
		return models.Article{}, &ExtractionError{URL: pageURL, Reason: ReasonEmpty}
	}
	article := buildArticle(pageURL, bestText, bestConf, bestStrategy, meta)
	return article, &ExtractionError{
		URL:        pageURL,
		Reason:     ReasonLowConfidence,
		Strategy:   bestStrategy,
		Confidence: bestConf,
	}
}

func buildArticle(pageURL, text string, conf float64, strategy string, meta metadata) models.Article {
	return models.Article{
		ID:          models.ArticleID(pageURL, text),
		URL:         pageURL,
		Title:       meta.Title,
		Text:        text,
		Author:      meta.Author,
		PublishedAt: meta.PublishedAt,
		Domain:      models.DomainOf(pageURL),
		ImageURL:    meta.ImageURL,
		Confidence:  conf,
		Strategy:    strategy,
	}
}

// confidence scores extracted text: long, multi-paragraph, link-light text
// scores close to 1.
func confidence(chars, paragraphs int, linkDensity float64) float64 {
	lengthScore := min(1, float64(chars)/1500)
	paraScore := min(1, float64(paragraphs)/5)
	linkScore := 1 - min(1, max(0, linkDensity))
	return 0.5*lengthScore + 0.3*paraScore + 0.2*linkScore
}
