package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
	"github.com/w1tte/hltv-scraper-sub000/internal/validate"
)

// Stage names, also used as run stage labels.
const (
	StageMatches = "matches"
	StageMaps    = "maps"
)

// MatchStore is the persistence the match stage needs.
type MatchStore interface {
	PendingItems(ctx context.Context, sel ingest.Selection) ([]ingest.WorkItem, error)
	PersistMatch(ctx context.Context, b ingest.MatchBundle) error
	MarkItem(ctx context.Context, id string, status ingest.Status, reason string) error
}

// MatchStage turns work items into match, map, veto and roster records.
type MatchStage struct {
	store     MatchStore
	parser    ingest.MatchParser
	validator *validate.Validator
	logger    *zap.Logger
}

// NewMatchStage builds the match stage.
func NewMatchStage(store MatchStore, parser ingest.MatchParser, validator *validate.Validator, logger *zap.Logger) *MatchStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchStage{store: store, parser: parser, validator: validator, logger: logger.Named(StageMatches)}
}

// Name implements Stage.
func (s *MatchStage) Name() string { return StageMatches }

// Pending implements Stage.
func (s *MatchStage) Pending(ctx context.Context, sel ingest.Selection) ([]Unit, error) {
	items, err := s.store.PendingItems(ctx, sel)
	if err != nil {
		return nil, err
	}
	units := make([]Unit, 0, len(items))
	for _, it := range items {
		units = append(units, Unit{Key: it.ExternalID, Locators: []string{it.Locator}, Payload: it})
	}
	return units, nil
}

// Process implements Stage. The match fails when its header record is
// rejected, or when a non-forfeit match keeps no valid map.
func (s *MatchStage) Process(ctx context.Context, u Unit, docs []ingest.Document) (Outcome, error) {
	var out Outcome
	item, ok := u.Payload.(ingest.WorkItem)
	if !ok || len(docs) != 1 {
		return out, fmt.Errorf("match unit %s: unexpected payload", u.Key)
	}
	bundle, err := s.parser.ParseMatch(docs[0], item)
	if err != nil {
		return out, fmt.Errorf("parse match: %w", err)
	}

	match, ok, err := validate.Validate(ctx, s.validator, validate.MatchSchema, bundle.Match)
	if err != nil {
		return out, err
	}
	if !ok {
		out.Quarantined++
		return out, &ingest.ValidationError{Kind: ingest.KindMatch, Detail: "match record quarantined"}
	}
	maps, n, err := validate.Batch(ctx, s.validator, validate.MapSchema, bundle.Maps)
	out.Quarantined += n
	if err != nil {
		return out, err
	}
	if len(maps) == 0 && !item.Variant {
		return out, &ingest.ValidationError{Kind: ingest.KindMap, Detail: "no valid maps for a played match"}
	}
	vetoes, n, err := validate.Batch(ctx, s.validator, validate.VetoSchema, bundle.Vetoes)
	out.Quarantined += n
	if err != nil {
		return out, err
	}
	roster, n, err := validate.Batch(ctx, s.validator, validate.RosterSchema, bundle.Roster)
	out.Quarantined += n
	if err != nil {
		return out, err
	}

	bundle.Item = item
	bundle.Match, bundle.Maps, bundle.Vetoes, bundle.Roster = match, maps, vetoes, roster
	if err := s.store.PersistMatch(ctx, bundle); err != nil {
		return out, err
	}
	out.Parsed = 1 + len(maps) + len(vetoes) + len(roster)
	s.logger.Debug("match persisted",
		zap.String("match_id", u.Key),
		zap.Int("maps", len(maps)),
		zap.Int("quarantined", out.Quarantined),
	)
	return out, nil
}

// Fail implements Stage.
func (s *MatchStage) Fail(ctx context.Context, u Unit, cause error) error {
	return s.store.MarkItem(ctx, u.Key, ingest.StatusFailed, cause.Error())
}

// MapStatsStore is the persistence the map stats stage needs.
type MapStatsStore interface {
	PendingMaps(ctx context.Context, sel ingest.Selection) ([]ingest.MapRef, error)
	PersistMapStats(ctx context.Context, b ingest.MapStatsBundle) (ingest.MapStatsResult, error)
	MarkMap(ctx context.Context, matchID string, seq int, status ingest.Status, reason string) error
}

// MapStatsStage turns stored maps into player stats, round outcomes and
// economy snapshots.
type MapStatsStage struct {
	store     MapStatsStore
	stats     ingest.MapStatsParser
	economy   ingest.EconomyParser
	validator *validate.Validator
	logger    *zap.Logger
}

// NewMapStatsStage builds the map stats stage.
func NewMapStatsStage(store MapStatsStore, stats ingest.MapStatsParser, economy ingest.EconomyParser, validator *validate.Validator, logger *zap.Logger) *MapStatsStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MapStatsStage{store: store, stats: stats, economy: economy, validator: validator, logger: logger.Named(StageMaps)}
}

// Name implements Stage.
func (s *MapStatsStage) Name() string { return StageMaps }

// Pending implements Stage. The economy page is fetched only when the map has one.
func (s *MapStatsStage) Pending(ctx context.Context, sel ingest.Selection) ([]Unit, error) {
	refs, err := s.store.PendingMaps(ctx, sel)
	if err != nil {
		return nil, err
	}
	units := make([]Unit, 0, len(refs))
	for _, ref := range refs {
		locators := []string{ref.StatsLocator}
		if ref.EconomyLocator != "" {
			locators = append(locators, ref.EconomyLocator)
		}
		units = append(units, Unit{Key: ref.MatchID + "/" + strconv.Itoa(ref.Seq), Locators: locators, Payload: ref})
	}
	return units, nil
}

// Process implements Stage. The map fails when no player stat or no round
// outcome survives validation.
func (s *MapStatsStage) Process(ctx context.Context, u Unit, docs []ingest.Document) (Outcome, error) {
	var out Outcome
	ref, ok := u.Payload.(ingest.MapRef)
	if !ok || len(docs) == 0 {
		return out, fmt.Errorf("map unit %s: unexpected payload", u.Key)
	}
	parsed, err := s.stats.ParseMapStats(docs[0], ref)
	if err != nil {
		return out, fmt.Errorf("parse map stats: %w", err)
	}
	var economy []ingest.EconomySnapshot
	if len(docs) > 1 {
		if economy, err = s.economy.ParseEconomy(docs[1], ref); err != nil {
			return out, fmt.Errorf("parse economy: %w", err)
		}
	}

	players, n, err := validate.Batch(ctx, s.validator, validate.PlayerStatSchema, parsed.Players)
	out.Quarantined += n
	if err != nil {
		return out, err
	}
	rounds, n, err := validate.Batch(ctx, s.validator, validate.RoundSchema, parsed.Rounds)
	out.Quarantined += n
	if err != nil {
		return out, err
	}
	economy, n, err = validate.Batch(ctx, s.validator, validate.EconomySchema, economy)
	out.Quarantined += n
	if err != nil {
		return out, err
	}
	if len(players) == 0 {
		return out, &ingest.ValidationError{Kind: ingest.KindPlayerStat, Detail: "no valid player stats"}
	}
	if len(rounds) == 0 {
		return out, &ingest.ValidationError{Kind: ingest.KindRound, Detail: "no valid round outcomes"}
	}
	for _, w := range validate.MapStatsWarnings(ref, players, rounds, economy) {
		s.logger.Warn("map stats irregularity", zap.String("map", u.Key), zap.String("detail", w))
	}

	// Snapshots of quarantined rounds have no parent to hang from.
	known := validate.RoundSet(rounds)
	kept := economy[:0]
	for _, e := range economy {
		if known[e.Round] {
			kept = append(kept, e)
		}
	}

	res, err := s.store.PersistMapStats(ctx, ingest.MapStatsBundle{Map: ref, Players: players, Rounds: rounds, Economy: kept})
	if err != nil {
		return out, err
	}
	out.Parsed = res.Players + res.Rounds + res.Economy
	s.logger.Debug("map stats persisted",
		zap.String("map", u.Key),
		zap.Int("players", res.Players),
		zap.Int("rounds", res.Rounds),
		zap.Int("economy", res.Economy),
		zap.Int("economy_skipped", res.EconomySkipped),
	)
	return out, nil
}

// Fail implements Stage.
func (s *MapStatsStage) Fail(ctx context.Context, u Unit, cause error) error {
	ref, ok := u.Payload.(ingest.MapRef)
	if !ok {
		return fmt.Errorf("map unit %s: unexpected payload", u.Key)
	}
	return s.store.MarkMap(ctx, ref.MatchID, ref.Seq, ingest.StatusFailed, cause.Error())
}
