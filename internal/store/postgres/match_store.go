package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lmercier/dotatracker/internal/domain"
)

// MatchStore implements domain.MatchStore using PostgreSQL.
type MatchStore struct {
	pool *pgxpool.Pool
}

// NewMatchStore creates a new MatchStore backed by the given connection pool.
func NewMatchStore(pool *pgxpool.Pool) *MatchStore {
	return &MatchStore{pool: pool}
}

// Upsert inserts or replaces a historical match record. The whole row is
// rewritten from the given snapshot; there is no field-level patching.
func (s *MatchStore) Upsert(ctx context.Context, m domain.MatchRecord) error {
	const query = `
		INSERT INTO historical_matches (
			match_id, series_id, league_id,
			radiant_team_id, radiant_name, dire_team_id, dire_name,
			radiant_roster, dire_roster,
			radiant_score, dire_score, total_kills, duration,
			radiant_networth, dire_networth,
			game_number, status, winner, observed_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9,
			$10, $11, $12, $13,
			$14, $15,
			$16, $17, $18, $19, NOW()
		)
		ON CONFLICT (match_id) DO UPDATE SET
			series_id        = EXCLUDED.series_id,
			league_id        = EXCLUDED.league_id,
			radiant_team_id  = EXCLUDED.radiant_team_id,
			radiant_name     = EXCLUDED.radiant_name,
			dire_team_id     = EXCLUDED.dire_team_id,
			dire_name        = EXCLUDED.dire_name,
			radiant_roster   = EXCLUDED.radiant_roster,
			dire_roster      = EXCLUDED.dire_roster,
			radiant_score    = EXCLUDED.radiant_score,
			dire_score       = EXCLUDED.dire_score,
			total_kills      = EXCLUDED.total_kills,
			duration         = EXCLUDED.duration,
			radiant_networth = EXCLUDED.radiant_networth,
			dire_networth    = EXCLUDED.dire_networth,
			game_number      = EXCLUDED.game_number,
			status           = EXCLUDED.status,
			winner           = EXCLUDED.winner,
			observed_at      = EXCLUDED.observed_at,
			updated_at       = NOW()`

	var winner *string
	if m.Winner != nil {
		w := string(*m.Winner)
		winner = &w
	}

	_, err := s.pool.Exec(ctx, query,
		m.MatchID, m.SeriesID, m.LeagueID,
		m.Radiant.TeamID, m.Radiant.Name, m.Dire.TeamID, m.Dire.Name,
		m.RadiantRoster, m.DireRoster,
		m.RadiantScore, m.DireScore, m.TotalKills, m.Duration,
		m.RadiantNetWorth, m.DireNetWorth,
		m.GameNumber, string(m.Status), winner, m.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert match %s: %w", m.MatchID, err)
	}
	return nil
}

const matchCols = `match_id, series_id, league_id,
	radiant_team_id, radiant_name, dire_team_id, dire_name,
	radiant_roster, dire_roster,
	radiant_score, dire_score, total_kills, duration,
	radiant_networth, dire_networth,
	game_number, status, winner, observed_at, updated_at`

// scanMatch scans a single row into a domain.MatchRecord.
func scanMatch(row pgx.Row) (domain.MatchRecord, error) {
	var m domain.MatchRecord
	var status string
	var winner *string
	err := row.Scan(
		&m.MatchID, &m.SeriesID, &m.LeagueID,
		&m.Radiant.TeamID, &m.Radiant.Name, &m.Dire.TeamID, &m.Dire.Name,
		&m.RadiantRoster, &m.DireRoster,
		&m.RadiantScore, &m.DireScore, &m.TotalKills, &m.Duration,
		&m.RadiantNetWorth, &m.DireNetWorth,
		&m.GameNumber, &status, &winner, &m.ObservedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.MatchRecord{}, err
	}
	m.Status = domain.MatchStatus(status)
	if winner != nil {
		side := domain.Side(*winner)
		m.Winner = &side
	}
	return m, nil
}

// GetByID retrieves a historical match by its primary key.
func (s *MatchStore) GetByID(ctx context.Context, matchID string) (domain.MatchRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+matchCols+` FROM historical_matches WHERE match_id = $1`, matchID)
	m, err := scanMatch(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.MatchRecord{}, domain.ErrNotFound
		}
		return domain.MatchRecord{}, fmt.Errorf("postgres: get match %s: %w", matchID, err)
	}
	return m, nil
}

// ListBySeries returns the historical matches of a series ordered by game
// number.
func (s *MatchStore) ListBySeries(ctx context.Context, seriesID string) ([]domain.MatchRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+matchCols+` FROM historical_matches
		 WHERE series_id = $1 ORDER BY game_number ASC`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list matches of series %s: %w", seriesID, err)
	}
	defer rows.Close()
	return collectMatches(rows)
}

// ListBefore returns matches last updated strictly before the cutoff.
func (s *MatchStore) ListBefore(ctx context.Context, before time.Time) ([]domain.MatchRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+matchCols+` FROM historical_matches
		 WHERE updated_at < $1 ORDER BY updated_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list matches before %v: %w", before, err)
	}
	defer rows.Close()
	return collectMatches(rows)
}

// DeleteBefore removes matches last updated strictly before the cutoff.
func (s *MatchStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM historical_matches WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete matches before %v: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of historical matches.
func (s *MatchStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM historical_matches").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count matches: %w", err)
	}
	return count, nil
}

func collectMatches(rows pgx.Rows) ([]domain.MatchRecord, error) {
	var out []domain.MatchRecord
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan match: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: match rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.MatchStore = (*MatchStore)(nil)
