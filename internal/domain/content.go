package domain

import (
	"encoding/json"
	"time"
)

// TokenMetadata is the sanitized off-chain metadata document.
type TokenMetadata struct {
	Name        string      `json:"name,omitempty"`
	Symbol      string      `json:"symbol,omitempty"`
	Description string      `json:"description,omitempty"`
	Image       string      `json:"image,omitempty"`
	ImageURL    string      `json:"imageUrl,omitempty"` // gateway-backed display URL
	Links       SocialLinks `json:"links"`
}

// ContentEntry is a cached content document keyed by content hash.
// Corresponds to content_cache table in PostgreSQL.
type ContentEntry struct {
	Hash           string
	ContentType    string
	Payload        json.RawMessage
	ResolvedURL    string
	Pinned         bool
	LastAccessedAt time.Time
	CreatedAt      time.Time
}
