package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lmercier/dotatracker/internal/domain"
)

// SeriesStore implements domain.SeriesStore using PostgreSQL.
type SeriesStore struct {
	pool *pgxpool.Pool
}

// NewSeriesStore creates a new SeriesStore backed by the given connection pool.
func NewSeriesStore(pool *pgxpool.Pool) *SeriesStore {
	return &SeriesStore{pool: pool}
}

// Upsert inserts or replaces a historical series record.
func (s *SeriesStore) Upsert(ctx context.Context, ser domain.Series) error {
	const query = `
		INSERT INTO historical_series (
			series_id, league_id,
			team_one_id, team_one_name, team_two_id, team_two_name,
			match_ids, wins_one, wins_two, format,
			created_at, updated_at
		) VALUES (
			$1, $2,
			$3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, NOW()
		)
		ON CONFLICT (series_id) DO UPDATE SET
			league_id     = EXCLUDED.league_id,
			team_one_id   = EXCLUDED.team_one_id,
			team_one_name = EXCLUDED.team_one_name,
			team_two_id   = EXCLUDED.team_two_id,
			team_two_name = EXCLUDED.team_two_name,
			match_ids     = EXCLUDED.match_ids,
			wins_one      = EXCLUDED.wins_one,
			wins_two      = EXCLUDED.wins_two,
			format        = EXCLUDED.format,
			updated_at    = NOW()`

	_, err := s.pool.Exec(ctx, query,
		ser.SeriesID, ser.LeagueID,
		ser.TeamOne.TeamID, ser.TeamOne.Name, ser.TeamTwo.TeamID, ser.TeamTwo.Name,
		ser.MatchIDs, ser.WinsOne, ser.WinsTwo, int(ser.Format),
		ser.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert series %s: %w", ser.SeriesID, err)
	}
	return nil
}

const seriesCols = `series_id, league_id,
	team_one_id, team_one_name, team_two_id, team_two_name,
	match_ids, wins_one, wins_two, format,
	created_at, updated_at`

func scanSeries(row pgx.Row) (domain.Series, error) {
	var ser domain.Series
	var format int
	err := row.Scan(
		&ser.SeriesID, &ser.LeagueID,
		&ser.TeamOne.TeamID, &ser.TeamOne.Name, &ser.TeamTwo.TeamID, &ser.TeamTwo.Name,
		&ser.MatchIDs, &ser.WinsOne, &ser.WinsTwo, &format,
		&ser.CreatedAt, &ser.UpdatedAt,
	)
	if err != nil {
		return domain.Series{}, err
	}
	ser.Format = domain.SeriesFormat(format)
	return ser, nil
}

// GetByID retrieves a historical series by its primary key.
func (s *SeriesStore) GetByID(ctx context.Context, seriesID string) (domain.Series, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+seriesCols+` FROM historical_series WHERE series_id = $1`, seriesID)
	ser, err := scanSeries(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Series{}, domain.ErrNotFound
		}
		return domain.Series{}, fmt.Errorf("postgres: get series %s: %w", seriesID, err)
	}
	return ser, nil
}

// ListConcluded returns series where either team has reached the win count
// for its format, newest first.
func (s *SeriesStore) ListConcluded(ctx context.Context, opts domain.ListOpts) ([]domain.Series, error) {
	query := `SELECT ` + seriesCols + ` FROM historical_series
		WHERE (format = 0 AND (wins_one >= 1 OR wins_two >= 1))
		   OR (format = 2 AND (wins_one >= 3 OR wins_two >= 3))
		   OR (format NOT IN (0, 2) AND (wins_one >= 2 OR wins_two >= 2))`
	args := []any{}
	i := 1
	if opts.Since != nil {
		query += fmt.Sprintf(" AND updated_at >= $%d", i)
		args = append(args, *opts.Since)
		i++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND updated_at < $%d", i)
		args = append(args, *opts.Until)
		i++
	}
	query += " ORDER BY updated_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", i)
		args = append(args, opts.Limit)
		i++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", i)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list concluded series: %w", err)
	}
	defer rows.Close()
	return collectSeries(rows)
}

// ListBefore returns series last updated strictly before the cutoff.
func (s *SeriesStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Series, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+seriesCols+` FROM historical_series
		 WHERE updated_at < $1 ORDER BY updated_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list series before %v: %w", before, err)
	}
	defer rows.Close()
	return collectSeries(rows)
}

// DeleteBefore removes series last updated strictly before the cutoff.
func (s *SeriesStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM historical_series WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete series before %v: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

func collectSeries(rows pgx.Rows) ([]domain.Series, error) {
	var out []domain.Series
	for rows.Next() {
		ser, err := scanSeries(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan series: %w", err)
		}
		out = append(out, ser)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: series rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.SeriesStore = (*SeriesStore)(nil)
