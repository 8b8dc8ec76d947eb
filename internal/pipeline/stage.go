// Package pipeline drives work units through fetch, parse, validate and
// persist using the fetch-first batch strategy: every document of a batch is
// fetched before any unit of it is processed.
package pipeline

import (
	"context"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

// Unit is one piece of work: the documents to fetch and the payload the stage
// needs to process them.
type Unit struct {
	Key      string
	Locators []string
	Payload  any
}

// Outcome is what processing a unit produced.
type Outcome struct {
	Parsed      int
	Quarantined int
}

// Stage adapts one record family to the orchestrator.
type Stage interface {
	Name() string
	// Pending snapshots the units to work on.
	Pending(ctx context.Context, sel ingest.Selection) ([]Unit, error)
	// Process parses, validates and persists a unit from its fetched documents,
	// in Locators order.
	Process(ctx context.Context, unit Unit, docs []ingest.Document) (Outcome, error)
	// Fail records a terminal failure of the unit.
	Fail(ctx context.Context, unit Unit, cause error) error
}
