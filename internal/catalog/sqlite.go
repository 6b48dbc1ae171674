package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/plansync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS providers (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	name_key   TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS plans (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	provider_id INTEGER NOT NULL REFERENCES providers(id),
	plan_name   TEXT NOT NULL,
	plan_key    TEXT NOT NULL,
	rate_500    REAL NOT NULL DEFAULT 0,
	rate_1000   REAL NOT NULL DEFAULT 0,
	rate_2000   REAL NOT NULL DEFAULT 0,
	active      INTEGER NOT NULL DEFAULT 1,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (provider_id, plan_key)
);

CREATE INDEX IF NOT EXISTS idx_plans_active ON plans(active);

CREATE TABLE IF NOT EXISTS sync_sessions (
	id                TEXT PRIMARY KEY,
	mode              TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'running',
	started_at        DATETIME NOT NULL,
	completed_at      DATETIME,
	regions_processed TEXT NOT NULL DEFAULT '[]',
	total_plans_found INTEGER NOT NULL DEFAULT 0,
	unique_plans      INTEGER NOT NULL DEFAULT 0,
	new_count         INTEGER NOT NULL DEFAULT 0,
	updated_count     INTEGER NOT NULL DEFAULT 0,
	removed_count     INTEGER NOT NULL DEFAULT 0,
	warnings          TEXT NOT NULL DEFAULT '[]',
	errors            TEXT NOT NULL DEFAULT '[]',
	provenance        TEXT NOT NULL DEFAULT 'none',
	error             TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_sessions_started ON sync_sessions(started_at);

CREATE TABLE IF NOT EXISTS sync_changes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL REFERENCES sync_sessions(id),
	seq           INTEGER NOT NULL,
	kind          TEXT NOT NULL,
	entry_id      INTEGER,
	provider_name TEXT NOT NULL,
	plan_name     TEXT NOT NULL,
	old_rate      REAL,
	new_rate      REAL,
	note          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sync_changes_session ON sync_changes(session_id, seq);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteEntryColumns = `p.id, p.provider_id, pr.name, p.plan_name, p.rate_500, p.rate_1000, p.rate_2000, p.active, p.updated_at`

func (s *SQLiteStore) ReadActiveEntries(ctx context.Context) ([]model.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteEntryColumns+`
		 FROM plans p JOIN providers pr ON pr.id = p.provider_id
		 WHERE p.active = 1
		 ORDER BY pr.name, p.plan_name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read active entries")
	}
	return scanEntries(rows)
}

func (s *SQLiteStore) ListEntries(ctx context.Context, filter EntryFilter) ([]model.CatalogEntry, error) {
	query := `SELECT ` + sqliteEntryColumns + `
		 FROM plans p JOIN providers pr ON pr.id = p.provider_id
		 WHERE 1=1`
	var args []any

	if filter.Active != nil {
		query += ` AND p.active = ?`
		args = append(args, *filter.Active)
	}
	if filter.Provider != "" {
		query += ` AND pr.name_key = ?`
		args = append(args, NormalizeName(filter.Provider))
	}
	query += ` ORDER BY pr.name, p.plan_name LIMIT ?`
	args = append(args, limitOr(filter.Limit, 500))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entries")
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]model.CatalogEntry, error) {
	defer rows.Close() //nolint:errcheck

	var entries []model.CatalogEntry
	for rows.Next() {
		var e model.CatalogEntry
		if err := rows.Scan(&e.ID, &e.ProviderID, &e.ProviderName, &e.PlanName,
			&e.Rates.Rate500, &e.Rates.Rate1000, &e.Rates.Rate2000, &e.Active, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate entries")
}

func (s *SQLiteStore) CountEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM plans`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count entries")
	}
	return n, nil
}

func (s *SQLiteStore) Deactivate(ctx context.Context, entryID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE plans SET active = 0 WHERE id = ?`, entryID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: deactivate entry %d", entryID)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteStore) PatchRate(ctx context.Context, entryID int64, tier model.Tier, rate float64, at time.Time) error {
	query := fmt.Sprintf(`UPDATE plans SET %s = ?, updated_at = ? WHERE id = ?`, rateColumn(tier))
	res, err := s.db.ExecContext(ctx, query, rate, at.UTC(), entryID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: patch rate for entry %d", entryID)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteStore) AddEntry(ctx context.Context, providerID int64, planName string, rates model.Rates) (int64, error) {
	planName = strings.TrimSpace(planName)
	if planName == "" {
		return 0, eris.New("sqlite: plan name is required")
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO plans (provider_id, plan_name, plan_key, rate_500, rate_1000, rate_2000, active, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		 ON CONFLICT (provider_id, plan_key) DO UPDATE
		 SET rate_500 = excluded.rate_500, rate_1000 = excluded.rate_1000, rate_2000 = excluded.rate_2000,
		     active = 1, updated_at = excluded.updated_at
		 RETURNING id`,
		providerID, planName, NormalizeName(planName), rates.Rate500, rates.Rate1000, rates.Rate2000, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: add entry %q", planName)
	}
	return id, nil
}

func (s *SQLiteStore) ResolveProviderID(ctx context.Context, providerName string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM providers WHERE name_key = ?`, NormalizeName(providerName),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: resolve provider %q", providerName)
	}
	return id, nil
}

func (s *SQLiteStore) UpsertProvider(ctx context.Context, providerName string) (int64, error) {
	providerName = strings.TrimSpace(providerName)
	if providerName == "" {
		return 0, eris.New("sqlite: provider name is required")
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO providers (name, name_key) VALUES (?, ?)
		 ON CONFLICT (name_key) DO UPDATE SET name = excluded.name
		 RETURNING id`,
		providerName, NormalizeName(providerName),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: upsert provider %q", providerName)
	}
	return id, nil
}

func (s *SQLiteStore) StartSession(ctx context.Context, sess *model.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_sessions (id, mode, status, started_at) VALUES (?, ?, ?, ?)`,
		sess.ID, string(sess.Mode), string(sess.Status), sess.StartedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: start session %s", sess.ID)
	}
	return nil
}

func (s *SQLiteStore) FinishSession(ctx context.Context, sess *model.Session) error {
	regions, err := marshalStrings(sess.RegionsProcessed)
	if err != nil {
		return err
	}
	warnings, err := marshalStrings(sess.Warnings)
	if err != nil {
		return err
	}
	errs, err := marshalStrings(sess.Errors)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin finish session")
	}
	defer tx.Rollback() //nolint:errcheck

	var completed any
	if sess.CompletedAt != nil {
		completed = sess.CompletedAt.UTC()
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE sync_sessions
		 SET status = ?, completed_at = ?, regions_processed = ?, total_plans_found = ?, unique_plans = ?,
		     new_count = ?, updated_count = ?, removed_count = ?, warnings = ?, errors = ?,
		     provenance = ?, error = ?
		 WHERE id = ?`,
		string(sess.Status), completed, string(regions), sess.TotalPlansFound, sess.UniquePlans,
		len(sess.NewPlans), len(sess.UpdatedPlans), len(sess.RemovedPlans), string(warnings), string(errs),
		string(sess.Provenance), nullString(sess.Error), sess.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish session %s", sess.ID)
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}

	for i, c := range sess.Changes().All() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sync_changes (session_id, seq, kind, entry_id, provider_name, plan_name, old_rate, new_rate, note)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, i, string(c.Kind), nullID(c.EntryID), c.ProviderName, c.PlanName, c.OldRate, c.NewRate, c.Note,
		); err != nil {
			return eris.Wrapf(err, "sqlite: record change %d for session %s", i, sess.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit finish session")
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var (
		sess                    model.Session
		mode, status, prov      string
		regions, warnings, errs string
		completed               sql.NullTime
		errMsg                  sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, mode, status, started_at, completed_at, regions_processed, total_plans_found, unique_plans,
		        warnings, errors, provenance, error
		 FROM sync_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &mode, &status, &sess.StartedAt, &completed, &regions,
		&sess.TotalPlansFound, &sess.UniquePlans, &warnings, &errs, &prov, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}
	sess.Mode = model.SessionMode(mode)
	sess.Status = model.SessionStatus(status)
	sess.Provenance = model.Provenance(prov)
	sess.Error = errMsg.String
	if completed.Valid {
		t := completed.Time
		sess.CompletedAt = &t
	}
	if sess.RegionsProcessed, err = unmarshalStrings([]byte(regions)); err != nil {
		return nil, err
	}
	if sess.Warnings, err = unmarshalStrings([]byte(warnings)); err != nil {
		return nil, err
	}
	if sess.Errors, err = unmarshalStrings([]byte(errs)); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, entry_id, provider_name, plan_name, old_rate, new_rate, note
		 FROM sync_changes WHERE session_id = ? ORDER BY seq`, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get changes for session %s", id)
	}
	defer rows.Close() //nolint:errcheck

	var changes []model.ChangeRecord
	for rows.Next() {
		var c model.ChangeRecord
		var kind string
		var entryID sql.NullInt64
		var oldRate, newRate sql.NullFloat64
		if err := rows.Scan(&kind, &entryID, &c.ProviderName, &c.PlanName, &oldRate, &newRate, &c.Note); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan change")
		}
		c.Kind = model.ChangeKind(kind)
		c.EntryID = entryID.Int64
		if oldRate.Valid {
			c.OldRate = &oldRate.Float64
		}
		if newRate.Valid {
			c.NewRate = &newRate.Float64
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate changes")
	}
	attachChanges(&sess, changes)
	return &sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]SessionSummary, error) {
	query := `SELECT id, mode, status, started_at, completed_at, provenance, new_count, updated_count, removed_count, error
		 FROM sync_sessions WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limitOr(filter.Limit, 20))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close() //nolint:errcheck

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var mode, status, prov string
		var completed sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&sum.ID, &mode, &status, &sum.StartedAt, &completed, &prov,
			&sum.NewCount, &sum.UpdatedCount, &sum.RemovedCount, &errMsg); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		sum.Mode = model.SessionMode(mode)
		sum.Status = model.SessionStatus(status)
		sum.Provenance = model.Provenance(prov)
		sum.Error = errMsg.String
		if completed.Valid {
			t := completed.Time
			sum.CompletedAt = &t
		}
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate sessions")
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
