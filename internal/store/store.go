// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/tuidrum/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrDuplicateRun is returned when a run id was already saved.
var ErrDuplicateRun = errors.New("run already saved")

// Store wraps SQLite access for session data.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL UNIQUE,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			chart_title TEXT NOT NULL,
			chart_path TEXT NOT NULL,
			loop_count INTEGER NOT NULL,
			tempo_scale REAL NOT NULL,
			degraded INTEGER NOT NULL,
			accuracy REAL NOT NULL,
			mean_abs_ms REAL NOT NULL,
			bias_ms REAL NOT NULL,
			streak INTEGER NOT NULL,
			on_time INTEGER NOT NULL,
			early INTEGER NOT NULL,
			late INTEGER NOT NULL,
			missed INTEGER NOT NULL,
			extra INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS session_instrument_stats (
			session_id INTEGER NOT NULL,
			instrument TEXT NOT NULL,
			on_time INTEGER NOT NULL,
			early INTEGER NOT NULL,
			late INTEGER NOT NULL,
			missed INTEGER NOT NULL,
			extra INTEGER NOT NULL,
			abs_err_sum_ms REAL NOT NULL,
			err_sum_ms REAL NOT NULL,
			matched INTEGER NOT NULL,
			PRIMARY KEY (session_id, instrument)
		);`,
		`CREATE TABLE IF NOT EXISTS judgments (
			session_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			pass INTEGER NOT NULL,
			expectation_index INTEGER,
			hit_index INTEGER,
			category TEXT NOT NULL,
			error_ms REAL,
			velocity INTEGER,
			velocity_hint INTEGER NOT NULL,
			instrument TEXT NOT NULL,
			time_ms REAL NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_ended_at ON sessions(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_session_instrument_stats_instrument ON session_instrument_stats(instrument);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertSession stores a completed run with its per-instrument stats and
// frozen judgment list. Saving the same run id twice fails with ErrDuplicateRun.
func (s *Store) InsertSession(ctx context.Context, rec model.SessionRecord, insts []model.InstrumentAggregate, js []model.Judgment) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE run_id = ?`, rec.RunID).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists > 0 {
		err = fmt.Errorf("%w: %s", ErrDuplicateRun, rec.RunID)
		return 0, err
	}

	sum := rec.Summary
	res, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (run_id, started_at, ended_at, chart_title, chart_path, loop_count, tempo_scale, degraded,
			accuracy, mean_abs_ms, bias_ms, streak, on_time, early, late, missed, extra)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.StartedAt.Format(time.RFC3339Nano),
		rec.EndedAt.Format(time.RFC3339Nano),
		rec.ChartTitle,
		rec.ChartPath,
		rec.LoopCount,
		rec.TempoScale,
		rec.Degraded,
		sum.Accuracy,
		sum.MeanAbsErrorMs,
		sum.BiasMs,
		sum.LongestStreak,
		sum.Counts.OnTime,
		sum.Counts.Early,
		sum.Counts.Late,
		sum.Counts.Missed,
		sum.Counts.Extra,
	)
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err = insertInstrumentStats(ctx, tx, id, insts); err != nil {
		return 0, err
	}
	if err = insertJudgments(ctx, tx, id, js); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func insertInstrumentStats(ctx context.Context, tx *sql.Tx, id int64, insts []model.InstrumentAggregate) error {
	if len(insts) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO session_instrument_stats (session_id, instrument, on_time, early, late, missed, extra, abs_err_sum_ms, err_sum_ms, matched)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			// Best-effort statement close.
			_ = cerr
		}
	}()
	for _, a := range insts {
		if _, err := stmt.ExecContext(ctx, id, a.Instrument.String(), a.OnTime, a.Early, a.Late, a.Missed, a.Extra, a.AbsErrSumMs, a.ErrSumMs, a.Matched); err != nil {
			return err
		}
	}
	return nil
}

func insertJudgments(ctx context.Context, tx *sql.Tx, id int64, js []model.Judgment) error {
	if len(js) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO judgments (session_id, seq, pass, expectation_index, hit_index, category, error_ms, velocity, velocity_hint, instrument, time_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			// Best-effort statement close.
			_ = cerr
		}
	}()
	for seq, j := range js {
		var velocity any
		if j.Velocity != nil {
			velocity = int(*j.Velocity)
		}
		if _, err := stmt.ExecContext(ctx, id, seq, j.Pass, nullInt(j.ExpectationIndex), nullInt(j.HitIndex),
			j.Category.String(), nullFloat(j.ErrorMs), velocity, int(j.VelocityHint), j.Instrument.String(), j.TimeMs); err != nil {
			return err
		}
	}
	return nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// GetWeakInstruments aggregates instrument stats over the most recent sessions.
func (s *Store) GetWeakInstruments(ctx context.Context, window int) ([]model.InstrumentAggregate, error) {
	if window <= 0 {
		return nil, nil
	}
	query := `WITH recent_sessions AS (
		SELECT id FROM sessions
		ORDER BY ended_at DESC
		LIMIT ?
	)
	SELECT st.instrument, SUM(st.on_time), SUM(st.early), SUM(st.late), SUM(st.missed), SUM(st.extra),
		SUM(st.abs_err_sum_ms), SUM(st.err_sum_ms), SUM(st.matched)
	FROM session_instrument_stats st
	JOIN recent_sessions r ON r.id = st.session_id
	GROUP BY st.instrument`

	rows, err := s.db.QueryContext(ctx, query, window)
	if err != nil {
		return nil, err
	}
	return scanAggregates(rows)
}

// ListSessions returns session aggregates filtered by stats config.
func (s *Store) ListSessions(ctx context.Context, cfg model.StatsConfig) ([]model.SessionAggregate, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Chart != "" {
		clauses = append(clauses, "chart_title = ?")
		args = append(args, cfg.Chart)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "ended_at >= ?")
		args = append(args, cfg.Since.Format(time.RFC3339Nano))
	}
	query := fmt.Sprintf(`SELECT id, run_id, chart_title, started_at, ended_at, accuracy, mean_abs_ms, bias_ms, streak,
			on_time + early + late + missed, extra, tempo_scale
		FROM sessions
		WHERE %s
		ORDER BY ended_at ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var sessions []model.SessionAggregate
	for rows.Next() {
		var agg model.SessionAggregate
		var startedAt, endedAt string
		if err := rows.Scan(&agg.SessionID, &agg.RunID, &agg.ChartTitle, &startedAt, &endedAt, &agg.Accuracy,
			&agg.MeanAbsMs, &agg.BiasMs, &agg.Streak, &agg.Expected, &agg.Extra, &agg.TempoScale); err != nil {
			return nil, err
		}
		if agg.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, err
		}
		if agg.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListInstrumentAggregatesForSessions aggregates per-instrument stats across sessions.
func (s *Store) ListInstrumentAggregatesForSessions(ctx context.Context, sessionIDs []int64) ([]model.InstrumentAggregate, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	placeholders, args := idArgs(sessionIDs)
	query := fmt.Sprintf(`SELECT instrument, SUM(on_time), SUM(early), SUM(late), SUM(missed), SUM(extra),
		SUM(abs_err_sum_ms), SUM(err_sum_ms), SUM(matched)
		FROM session_instrument_stats
		WHERE session_id IN (%s)
		GROUP BY instrument`, placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAggregates(rows)
}

// ListInstrumentStatsBySession returns per-session instrument stats.
func (s *Store) ListInstrumentStatsBySession(ctx context.Context, sessionIDs []int64) (map[int64]map[model.Instrument]model.InstrumentAggregate, error) {
	result := map[int64]map[model.Instrument]model.InstrumentAggregate{}
	if len(sessionIDs) == 0 {
		return result, nil
	}
	placeholders, args := idArgs(sessionIDs)
	query := fmt.Sprintf(`SELECT session_id, instrument, on_time, early, late, missed, extra, abs_err_sum_ms, err_sum_ms, matched
		FROM session_instrument_stats
		WHERE session_id IN (%s)`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	for rows.Next() {
		var sessionID int64
		var name string
		var agg model.InstrumentAggregate
		if err := rows.Scan(&sessionID, &name, &agg.OnTime, &agg.Early, &agg.Late, &agg.Missed, &agg.Extra,
			&agg.AbsErrSumMs, &agg.ErrSumMs, &agg.Matched); err != nil {
			return nil, err
		}
		if err := agg.Instrument.UnmarshalText([]byte(name)); err != nil {
			return nil, err
		}
		if _, ok := result[sessionID]; !ok {
			result[sessionID] = map[model.Instrument]model.InstrumentAggregate{}
		}
		result[sessionID][agg.Instrument] = agg
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListJudgments returns the frozen judgment list of a stored run in saved order.
func (s *Store) ListJudgments(ctx context.Context, runID string) ([]model.Judgment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT j.pass, j.expectation_index, j.hit_index, j.category, j.error_ms,
			j.velocity, j.velocity_hint, j.instrument, j.time_ms
		FROM judgments j
		JOIN sessions s ON s.id = j.session_id
		WHERE s.run_id = ?
		ORDER BY j.seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var out []model.Judgment
	for rows.Next() {
		var (
			j        model.Judgment
			expIdx   sql.NullInt64
			hitIdx   sql.NullInt64
			category string
			errMs    sql.NullFloat64
			velocity sql.NullInt64
			hint     int
			inst     string
		)
		if err := rows.Scan(&j.Pass, &expIdx, &hitIdx, &category, &errMs, &velocity, &hint, &inst, &j.TimeMs); err != nil {
			return nil, err
		}
		if expIdx.Valid {
			v := int(expIdx.Int64)
			j.ExpectationIndex = &v
		}
		if hitIdx.Valid {
			v := int(hitIdx.Int64)
			j.HitIndex = &v
		}
		if errMs.Valid {
			v := errMs.Float64
			j.ErrorMs = &v
		}
		if velocity.Valid {
			v := uint8(velocity.Int64)
			j.Velocity = &v
		}
		j.VelocityHint = uint8(hint)
		if j.Category, err = model.ParseCategory(category); err != nil {
			return nil, err
		}
		if err := j.Instrument.UnmarshalText([]byte(inst)); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func idArgs(ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

func scanAggregates(rows *sql.Rows) ([]model.InstrumentAggregate, error) {
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.InstrumentAggregate
	for rows.Next() {
		var name string
		var agg model.InstrumentAggregate
		if err := rows.Scan(&name, &agg.OnTime, &agg.Early, &agg.Late, &agg.Missed, &agg.Extra,
			&agg.AbsErrSumMs, &agg.ErrSumMs, &agg.Matched); err != nil {
			return nil, err
		}
		if err := agg.Instrument.UnmarshalText([]byte(name)); err != nil {
			return nil, err
		}
		result = append(result, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
