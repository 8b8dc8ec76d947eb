package ingest

import (
	"context"
	"time"
)

// Fetcher retrieves a document for a locator or fails with a *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (Document, error)
}

// ListingParser extracts work items from a results listing page.
type ListingParser interface {
	ParseListing(doc Document) ([]WorkItem, error)
}

// MatchParser extracts the match record family from a match page.
type MatchParser interface {
	ParseMatch(doc Document, item WorkItem) (MatchBundle, error)
}

// MapStatsParser extracts player stats and round outcomes for one map.
type MapStatsParser interface {
	ParseMapStats(doc Document, ref MapRef) (MapStats, error)
}

// EconomyParser extracts per-round economy snapshots for one map.
type EconomyParser interface {
	ParseEconomy(doc Document, ref MapRef) ([]EconomySnapshot, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// QuarantineStore persists rejected candidates.
type QuarantineStore interface {
	Quarantine(ctx context.Context, entry QuarantineEntry) error
}
