package store

import (
	"context"
	"os"
)

// Stats holds store statistics.
type Stats struct {
	DBPath           string         `json:"db_path"`
	DBSizeBytes      int64          `json:"db_size_bytes"`
	TotalRecords     int            `json:"total_records"`
	PendingEmbedding int            `json:"pending_embedding"`
	Tiers            map[string]int `json:"tiers"`
	Sources          []SourceStats  `json:"sources"`
}

// SourceStats holds per-source counts.
type SourceStats struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// Stats returns record counts per tier and source plus the embedding
// backlog, which is the orchestrator's eventual-consistency gauge.
func (s *TieredStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.dbPath, Tiers: map[string]int{}}

	if info, err := os.Stat(s.dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&st.TotalRecords)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE embedded = 0`).Scan(&st.PendingEmbedding)

	rows, err := s.db.QueryContext(ctx, `SELECT tier, COUNT(*) FROM records GROUP BY tier`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tier string
		var count int
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, err
		}
		st.Tiers[tier] = count
	}

	srcRows, err := s.db.QueryContext(ctx,
		`SELECT source, COUNT(*) FROM records GROUP BY source ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, err
	}
	defer srcRows.Close()
	for srcRows.Next() {
		var ss SourceStats
		if err := srcRows.Scan(&ss.Source, &ss.Count); err != nil {
			return nil, err
		}
		st.Sources = append(st.Sources, ss)
	}

	return st, nil
}
