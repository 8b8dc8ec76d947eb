package sqlstore

import (
	"context"
	"fmt"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

// Quarantine stores a rejected candidate. Re-quarantining an identical
// candidate (same fingerprint) is a no-op.
func (s *Store) Quarantine(ctx context.Context, e ingest.QuarantineEntry) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO quarantine
		(entity_kind, parent_id, payload, error_detail, fingerprint, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO NOTHING`),
		string(e.Kind), e.ParentID, e.Payload, e.Detail, e.Fingerprint, false, created.UTC())
	if err != nil {
		return fmt.Errorf("insert quarantine entry (%s %s): %w", e.Kind, e.ParentID, err)
	}
	return nil
}

// ListQuarantine returns the newest entries first; resolved entries only
// when includeResolved is set. A limit <= 0 returns everything.
func (s *Store) ListQuarantine(ctx context.Context, includeResolved bool, limit int) ([]ingest.QuarantineEntry, error) {
	query := `SELECT id, entity_kind, parent_id, payload, error_detail, fingerprint, resolved, created_at FROM quarantine`
	var args []any
	if !includeResolved {
		query += ` WHERE resolved = ?`
		args = append(args, false)
	}
	query, args = withLimit(query+` ORDER BY id DESC`, args, limit)

	var rows []struct {
		ID          int64  `db:"id"`
		Kind        string `db:"entity_kind"`
		ParentID    string `db:"parent_id"`
		Payload     string `db:"payload"`
		Detail      string `db:"error_detail"`
		Fingerprint string `db:"fingerprint"`
		Resolved    bool   `db:"resolved"`
		CreatedAt   dbTime `db:"created_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list quarantine: %w", err)
	}
	out := make([]ingest.QuarantineEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, ingest.QuarantineEntry{
			ID:          r.ID,
			Kind:        ingest.EntityKind(r.Kind),
			ParentID:    r.ParentID,
			Payload:     r.Payload,
			Detail:      r.Detail,
			Fingerprint: r.Fingerprint,
			Resolved:    r.Resolved,
			CreatedAt:   r.CreatedAt.Time,
		})
	}
	return out, nil
}

// ResolveQuarantine flags an entry as reviewed.
func (s *Store) ResolveQuarantine(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE quarantine SET resolved = ? WHERE id = ?`), true, id)
	if err != nil {
		return fmt.Errorf("resolve quarantine %d: %w", id, err)
	}
	return requireRow(res, fmt.Sprintf("quarantine entry %d", id))
}
