// Package validate checks candidate records against per-kind schemas and
// diverts rejects to quarantine without aborting the surrounding batch.
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
	"github.com/w1tte/hltv-scraper-sub000/internal/metrics"
)

// Rule inspects a candidate and returns a diagnostic, or "" when it passes.
type Rule[T any] func(T) string

// Schema is the rule set for one record family. Rules reject; Warnings only log.
type Schema[T any] struct {
	Kind     ingest.EntityKind
	Parent   func(T) string
	Rules    []Rule[T]
	Warnings []Rule[T]
}

// Check runs the rejecting rules and returns every diagnostic.
func (s Schema[T]) Check(candidate T) []string {
	return run(s.Rules, candidate)
}

func run[T any](rules []Rule[T], candidate T) []string {
	var out []string
	for _, rule := range rules {
		if msg := rule(candidate); msg != "" {
			out = append(out, msg)
		}
	}
	return out
}

// Validator owns the quarantine side effects of validation.
type Validator struct {
	sink   ingest.QuarantineStore
	hasher ingest.Hasher
	clock  ingest.Clock
	logger *zap.Logger
}

// New builds a Validator.
func New(sink ingest.QuarantineStore, hasher ingest.Hasher, clock ingest.Clock, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{sink: sink, hasher: hasher, clock: clock, logger: logger.Named("validate")}
}

// Validate returns the candidate and true when it passes, or quarantines it
// and returns false. An error means the quarantine write itself failed.
func Validate[T any](ctx context.Context, v *Validator, s Schema[T], candidate T) (T, bool, error) {
	parent := ""
	if s.Parent != nil {
		parent = s.Parent(candidate)
	}
	for _, warning := range run(s.Warnings, candidate) {
		v.logger.Warn("suspicious record",
			zap.String("kind", string(s.Kind)),
			zap.String("parent_id", parent),
			zap.String("detail", warning),
		)
	}

	problems := s.Check(candidate)
	if len(problems) == 0 {
		return candidate, true, nil
	}
	if err := v.quarantine(ctx, s.Kind, parent, candidate, strings.Join(problems, "; ")); err != nil {
		var zero T
		return zero, false, err
	}
	return candidate, false, nil
}

// Batch validates every candidate and returns the survivors in order plus the
// number quarantined.
func Batch[T any](ctx context.Context, v *Validator, s Schema[T], candidates []T) ([]T, int, error) {
	valid := make([]T, 0, len(candidates))
	quarantined := 0
	for _, c := range candidates {
		rec, ok, err := Validate(ctx, v, s, c)
		if err != nil {
			return nil, quarantined, err
		}
		if !ok {
			quarantined++
			continue
		}
		valid = append(valid, rec)
	}
	return valid, quarantined, nil
}

func (v *Validator) quarantine(ctx context.Context, kind ingest.EntityKind, parent string, candidate any, detail string) error {
	payload, err := json.Marshal(candidate)
	if err != nil {
		return fmt.Errorf("encode %s candidate: %w", kind, err)
	}
	fingerprint, err := v.hasher.Hash([]byte(strings.Join([]string{string(kind), parent, string(payload), detail}, "\x1f")))
	if err != nil {
		return fmt.Errorf("fingerprint %s candidate: %w", kind, err)
	}
	entry := ingest.QuarantineEntry{
		Kind:        kind,
		ParentID:    parent,
		Payload:     string(payload),
		Detail:      detail,
		Fingerprint: fingerprint,
		CreatedAt:   v.clock.Now().UTC(),
	}
	if err := v.sink.Quarantine(ctx, entry); err != nil {
		return fmt.Errorf("quarantine %s: %w", kind, err)
	}
	metrics.AddQuarantined(string(kind), 1)
	v.logger.Warn("record quarantined",
		zap.String("kind", string(kind)),
		zap.String("parent_id", parent),
		zap.String("detail", detail),
	)
	return nil
}
