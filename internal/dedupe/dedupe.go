// Package dedupe collapses articles that report the same story.
package dedupe

import (
	"sort"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/ObiAU/newssearch/internal/models"
)

const shingleSize = 3

// Dedupe groups near-duplicate articles and keeps one per group. Two articles
// are duplicates when they share an identity, when their normalized titles
// match on the same domain, or when the Jaccard similarity of their word
// shingles reaches threshold. Grouping is transitive. The result is sorted by
// FetchIndex and does not depend on the input order.
func Dedupe(articles []models.Article, threshold float64) (kept []models.Article, dropped int) {
	n := len(articles)
	if n < 2 {
		return append([]models.Article(nil), articles...), 0
	}

	titles := make([]string, n)
	shingles := make([]map[uint64]struct{}, n)
	for i, a := range articles {
		titles[i] = NormalizeTitle(a.Title)
		shingles[i] = Shingles(a.Text)
	}

	sets := newUnionFind(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if sets.find(i) == sets.find(j) {
				continue
			}
			a, b := articles[i], articles[j]
			switch {
			case a.ID != "" && a.ID == b.ID:
			case titles[i] != "" && titles[i] == titles[j] && a.Domain == b.Domain:
			case Jaccard(shingles[i], shingles[j]) >= threshold:
			default:
				continue
			}
			sets.union(i, j)
		}
	}

	winners := make(map[int]int, n)
	for i := range articles {
		root := sets.find(i)
		w, ok := winners[root]
		if !ok || better(articles[i], articles[w]) {
			winners[root] = i
		}
	}

	kept = make([]models.Article, 0, len(winners))
	for _, i := range winners {
		kept = append(kept, articles[i])
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].FetchIndex != kept[j].FetchIndex {
			return kept[i].FetchIndex < kept[j].FetchIndex
		}
		return kept[i].ID < kept[j].ID
	})
	return kept, n - len(kept)
}

// better reports whether a should represent its cluster instead of b.
func better(a, b models.Article) bool {
	if a.PublishedAt.IsZero() != b.PublishedAt.IsZero() {
		return !a.PublishedAt.IsZero()
	}
	if la, lb := len(a.Text), len(b.Text); la != lb {
		return la > lb
	}
	if a.FetchIndex != b.FetchIndex {
		return a.FetchIndex < b.FetchIndex
	}
	return a.ID < b.ID
}

// NormalizeTitle lowercases a title, folds punctuation to spaces and
// collapses whitespace.
func NormalizeTitle(title string) string {
	return strings.Join(words(title), " ")
}

// Shingles hashes every run of three consecutive words in text. Texts
// shorter than three words yield a single shingle of all their words.
func Shingles(text string) map[uint64]struct{} {
	w := words(text)
	out := make(map[uint64]struct{})
	if len(w) == 0 {
		return out
	}
	if len(w) < shingleSize {
		out[xxhash.Sum64String(strings.Join(w, " "))] = struct{}{}
		return out
	}
	for i := 0; i+shingleSize <= len(w); i++ {
		out[xxhash.Sum64String(strings.Join(w[i:i+shingleSize], " "))] = struct{}{}
	}
	return out
}

// Jaccard returns |a ∩ b| / |a ∪ b|, or 0 when either set is empty.
func Jaccard(a, b map[uint64]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	shared := 0
	for h := range a {
		if _, ok := b[h]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	default:
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
}
