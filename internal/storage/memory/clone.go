package memory

import "launchpad-indexer/internal/domain"

func cloneToken(t *domain.Token) *domain.Token {
	c := *t
	if t.Metadata != nil {
		m := *t.Metadata
		c.Metadata = &m
	}
	if t.Metrics.UpdatedAt != nil {
		at := *t.Metrics.UpdatedAt
		c.Metrics.UpdatedAt = &at
	}
	return &c
}

func cloneEntry(e *domain.ContentEntry) *domain.ContentEntry {
	c := *e
	if e.Payload != nil {
		c.Payload = append([]byte(nil), e.Payload...)
	}
	return &c
}
