package models

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"yclid":   true,
	"mc_cid":  true,
	"mc_eid":  true,
	"igshid":  true,
	"ref_src": true,
}

func generateHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", hash)
}

// CanonicalURL normalizes a URL so that the same article reached through
// different links maps to one string. Returns "" for unparsable input.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme == "" || u.Scheme == "http" {
		u.Scheme = "https"
	}
	u.Host = NormalizeHost(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	query := u.Query()
	keys := make([]string, 0, len(query))
	for key := range query {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") || trackingParams[lower] {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var qs []string
	for _, key := range keys {
		values := query[key]
		sort.Strings(values)
		for _, v := range values {
			qs = append(qs, url.QueryEscape(key)+"="+url.QueryEscape(v))
		}
	}
	u.RawQuery = strings.Join(qs, "&")

	path := strings.TrimRight(u.EscapedPath(), "/")
	return u.Scheme + "://" + u.Host + path + queryPart(u.RawQuery)
}

func queryPart(raw string) string {
	if raw == "" {
		return ""
	}
	return "?" + raw
}

// NormalizeHost lowercases a host, drops default ports and a leading "www.".
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ":443")
	host = strings.TrimSuffix(host, ":80")
	return strings.TrimPrefix(host, "www.")
}

// DomainOf returns the normalized host of raw, or "" when it has none.
func DomainOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return NormalizeHost(u.Host)
}

// ArticleID derives the article identity: the hash of the canonical URL, or
// of the extracted text when no usable URL exists.
func ArticleID(rawURL, text string) string {
	if canonical := CanonicalURL(rawURL); canonical != "" {
		return generateHash(canonical)
	}
	return generateHash(text)
}

func hasDomainSuffix(domain, parent string) bool {
	return parent != "" && strings.HasSuffix(domain, "."+parent)
}
