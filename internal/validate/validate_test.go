package validate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/w1tte/hltv-scraper-sub000/internal/clock/system"
	"github.com/w1tte/hltv-scraper-sub000/internal/hash/sha256"
	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

type memorySink struct {
	mu      sync.Mutex
	entries map[string]ingest.QuarantineEntry
	err     error
}

func newMemorySink() *memorySink {
	return &memorySink{entries: map[string]ingest.QuarantineEntry{}}
}

func (s *memorySink) Quarantine(_ context.Context, e ingest.QuarantineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries[e.Fingerprint] = e
	return nil
}

func newValidator(sink *memorySink) *Validator {
	return New(sink, sha256.New(), system.NewManual(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)), zap.NewNop())
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func goodStat() ingest.PlayerStat {
	return ingest.PlayerStat{
		MatchID: "2371234", MapSeq: 1, PlayerID: 7001, PlayerName: "apex", TeamSlot: 1,
		Kills: intp(24), Deaths: intp(15), Assists: intp(3), KDDiff: intp(9),
		ADR: floatp(92.4), KAST: floatp(76), HeadshotPct: floatp(25), Rating: floatp(1.38),
	}
}

func economyRounds(n int) []ingest.EconomySnapshot {
	out := make([]ingest.EconomySnapshot, 0, n)
	for r := 1; r <= n; r++ {
		out = append(out, ingest.EconomySnapshot{
			MatchID: "2371234", MapSeq: 1, Round: r, TeamSlot: 1, EquipmentValue: 20000, BuyType: ingest.BuyFull,
		})
	}
	return out
}

func TestBatchQuarantinesOnlyInvalidRecords(t *testing.T) {
	t.Parallel()

	sink := newMemorySink()
	v := newValidator(sink)
	candidates := economyRounds(24)
	candidates[10].BuyType = "pistol"

	valid, quarantined, err := Batch(context.Background(), v, EconomySchema, candidates)
	require.NoError(t, err)
	assert.Len(t, valid, 23)
	assert.Equal(t, 1, quarantined)
	require.Len(t, sink.entries, 1)

	for _, e := range sink.entries {
		assert.Equal(t, ingest.KindEconomy, e.Kind)
		assert.Equal(t, "2371234/1", e.ParentID)
		assert.Contains(t, e.Detail, `buy_type "pistol"`)
		assert.Contains(t, e.Payload, `"round":11`)
		assert.Len(t, e.Fingerprint, 64)
		assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), e.CreatedAt)
	}
	for _, e := range valid {
		assert.NotEqual(t, 11, e.Round)
	}
}

func TestRequarantiningIsIdempotent(t *testing.T) {
	t.Parallel()

	sink := newMemorySink()
	v := newValidator(sink)
	bad := ingest.RoundOutcome{MatchID: "1", MapSeq: 1, Round: 3, WinnerSlot: 1, WinnerSide: "spectator", Outcome: ingest.OutcomeDefusal}

	for i := 0; i < 2; i++ {
		_, ok, err := Validate(context.Background(), v, RoundSchema, bad)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Len(t, sink.entries, 1)
}

func TestValidateSurfacesSinkFailure(t *testing.T) {
	t.Parallel()

	sink := newMemorySink()
	sink.err = errors.New("disk full")
	v := newValidator(sink)

	_, _, err := Batch(context.Background(), v, EconomySchema, []ingest.EconomySnapshot{{MatchID: "1", MapSeq: 1, Round: 1, TeamSlot: 3}})
	require.ErrorContains(t, err, "disk full")
}

func TestPlayerStatRules(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		mut  func(*ingest.PlayerStat)
		want string
	}{
		{"valid", func(*ingest.PlayerStat) {}, ""},
		{"missing player", func(p *ingest.PlayerStat) { p.PlayerID = 0 }, "player_id"},
		{"kd diff mismatch", func(p *ingest.PlayerStat) { p.KDDiff = intp(4) }, "kd_diff 4"},
		{"kd diff absent", func(p *ingest.PlayerStat) { p.KDDiff = nil }, ""},
		{"kast over 100", func(p *ingest.PlayerStat) { p.KAST = floatp(101) }, "kast"},
		{"negative adr", func(p *ingest.PlayerStat) { p.ADR = floatp(-1) }, "adr"},
		{"negative rating", func(p *ingest.PlayerStat) { p.Rating = floatp(-0.1) }, "rating"},
		{"headshots over 100", func(p *ingest.PlayerStat) { p.HeadshotPct = floatp(150) }, "headshot_pct"},
		{"bad slot", func(p *ingest.PlayerStat) { p.TeamSlot = 0 }, "team_slot"},
		{"high rating only warns", func(p *ingest.PlayerStat) { p.Rating = floatp(3.4) }, ""},
		{"high adr only warns", func(p *ingest.PlayerStat) { p.ADR = floatp(240) }, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := goodStat()
			tc.mut(&p)
			problems := PlayerStatSchema.Check(p)
			if tc.want == "" {
				assert.Empty(t, problems)
				return
			}
			require.NotEmpty(t, problems)
			assert.Contains(t, problems[0], tc.want)
		})
	}
}

func TestEnumerations(t *testing.T) {
	t.Parallel()

	round := ingest.RoundOutcome{MatchID: "1", MapSeq: 1, Round: 1, WinnerSlot: 2, WinnerSide: ingest.SideT, Outcome: ingest.OutcomeDetonation}
	assert.Empty(t, RoundSchema.Check(round))
	round.Outcome = "surrender"
	assert.NotEmpty(t, RoundSchema.Check(round))

	veto := ingest.VetoStep{MatchID: "1", Step: 7, Action: ingest.VetoLeftover, MapName: "Inferno"}
	assert.Empty(t, VetoSchema.Check(veto))
	veto.Action = ingest.VetoPick
	assert.Contains(t, VetoSchema.Check(veto)[0], "team_name")
	veto.Action = "swap"
	veto.TeamName = "Alpha"
	assert.NotEmpty(t, VetoSchema.Check(veto))
}

func TestMatchAndMapRules(t *testing.T) {
	t.Parallel()

	m := ingest.Match{MatchID: "1", Team1Name: "Alpha", Team2Name: "Bravo", BestOf: 3}
	assert.Empty(t, MatchSchema.Check(m))
	m.Team2Name = ""
	m.BestOf = 0
	assert.Len(t, MatchSchema.Check(m), 2)

	mp := ingest.MapResult{MatchID: "1", Seq: 1, Name: "Mirage", Team1Rounds: 13, Team2Rounds: 11}
	assert.Empty(t, MapSchema.Check(mp))
	mp.Team1Rounds, mp.Team2Rounds = 0, 0
	assert.Contains(t, MapSchema.Check(mp)[0], "rounds")

	r := ingest.RosterEntry{MatchID: "1", PlayerID: 7001, PlayerName: "apex", TeamSlot: 2}
	assert.Empty(t, RosterSchema.Check(r))
}

func TestMapStatsWarnings(t *testing.T) {
	t.Parallel()

	ref := ingest.MapRef{MatchID: "1", Seq: 1, Team1Rounds: 13, Team2Rounds: 11}
	var players []ingest.PlayerStat
	for i := 0; i < 10; i++ {
		players = append(players, ingest.PlayerStat{TeamSlot: 1 + i%2})
	}
	var rounds []ingest.RoundOutcome
	for r := 1; r <= 24; r++ {
		rounds = append(rounds, ingest.RoundOutcome{Round: r})
	}
	assert.Empty(t, MapStatsWarnings(ref, players, rounds, economyRounds(24)))

	warnings := MapStatsWarnings(ref, players[:9], rounds[:23], economyRounds(24))
	require.Len(t, warnings, 4)
	assert.Contains(t, warnings[0], "9 player stats")
	assert.Contains(t, warnings[1], "team 2 has 4")
	assert.Contains(t, warnings[2], "23 round outcomes")
	assert.Contains(t, warnings[3], "[24]")
}
