package metadata

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"launchpad-indexer/internal/domain"
)

// Field limits applied before a document is cached.
const (
	MaxNameLength        = 64
	MaxSymbolLength      = 16
	MaxDescriptionLength = 1000
	MaxURLLength         = 2048
)

var (
	scriptBlock  = regexp.MustCompile(`(?is)<\s*(script|style|iframe|object|embed)\b.*?(<\s*/\s*(script|style|iframe|object|embed)\s*>|$)`)
	htmlTag      = regexp.MustCompile(`(?s)<[^>]*>`)
	angles       = strings.NewReplacer("<", "", ">", "")
	jsScheme     = regexp.MustCompile(`(?i)(javascript|vbscript|data)\s*:`)
	eventHandler = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
)

// document is the loosely shaped JSON a token creator uploads.
type document struct {
	Name        string            `json:"name"`
	Symbol      string            `json:"symbol"`
	Description string            `json:"description"`
	Image       string            `json:"image"`
	Website     string            `json:"website"`
	Twitter     string            `json:"twitter"`
	Telegram    string            `json:"telegram"`
	Discord     string            `json:"discord"`
	Links       map[string]string `json:"links"`
	Socials     map[string]string `json:"socials"`
}

// CleanText strips markup and script vectors from s and truncates it to
// max runes.
func CleanText(s string, max int) string {
	s = scriptBlock.ReplaceAllString(s, "")
	s = angles.Replace(htmlTag.ReplaceAllString(s, ""))
	// Repeat until stable so split payloads like "javajavascript:script:" collapse.
	for {
		next := eventHandler.ReplaceAllString(jsScheme.ReplaceAllString(s, ""), "")
		if next == s {
			break
		}
		s = next
	}
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > max {
		s = string([]rune(s)[:max])
	}
	return s
}

// CleanURL keeps http(s) and ipfs URLs and drops everything else.
func CleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > MaxURLLength {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ipfs":
	default:
		return ""
	}
	if strings.ContainsAny(raw, "<>\"'` ") {
		return ""
	}
	return raw
}

// sanitize converts a raw document into TokenMetadata.
func sanitize(doc document) domain.TokenMetadata {
	link := func(key, top string) string {
		if top != "" {
			return CleanURL(top)
		}
		if v := doc.Links[key]; v != "" {
			return CleanURL(v)
		}
		return CleanURL(doc.Socials[key])
	}

	return domain.TokenMetadata{
		Name:        CleanText(doc.Name, MaxNameLength),
		Symbol:      CleanText(doc.Symbol, MaxSymbolLength),
		Description: CleanText(doc.Description, MaxDescriptionLength),
		Image:       cleanImage(doc.Image),
		Links: domain.SocialLinks{
			Website:  link("website", doc.Website),
			Twitter:  link("twitter", doc.Twitter),
			Telegram: link("telegram", doc.Telegram),
			Discord:  link("discord", doc.Discord),
		},
	}
}

// cleanImage accepts URLs and bare content hashes.
func cleanImage(raw string) string {
	if u := CleanURL(raw); u != "" {
		return u
	}
	if h, err := NormalizeHash(raw); err == nil {
		return h
	}
	return ""
}
