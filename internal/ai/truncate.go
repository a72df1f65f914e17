package ai

import (
	"unicode"
)

const (
	charsPerToken  = 4
	truncateMarker = "\n[…]\n"
)

// Truncate fits text into roughly budget tokens. It keeps the first two
// thirds and the last third of the allowance around a marker, cutting on
// rune boundaries and preferring whitespace. The result is deterministic.
func Truncate(text string, budget int) string {
	limit := budget * charsPerToken
	runes := []rune(text)
	if budget <= 0 || len(runes) <= limit {
		return text
	}

	room := limit - len([]rune(truncateMarker))
	if room <= 0 {
		return string(runes[:limit])
	}
	headLen := room * 2 / 3
	tailLen := room - headLen

	head := runes[:headLen]
	if cut := lastSpace(head); cut > headLen/2 {
		head = head[:cut]
	}

	tail := runes[len(runes)-tailLen:]
	if cut := firstSpace(tail); cut >= 0 && cut < tailLen/2 {
		tail = tail[cut+1:]
	}

	return string(head) + truncateMarker + string(tail)
}

func lastSpace(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if unicode.IsSpace(rs[i]) {
			return i
		}
	}
	return -1
}

func firstSpace(rs []rune) int {
	for i, r := range rs {
		if unicode.IsSpace(r) {
			return i
		}
	}
	return -1
}
