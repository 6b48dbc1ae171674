package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/plansync/internal/db"
	"github.com/sells-group/plansync/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller owns the pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const entryColumns = `p.id, p.provider_id, pr.name, p.plan_name, p.rate_500, p.rate_1000, p.rate_2000, p.active, p.updated_at`

func (s *PostgresStore) ReadActiveEntries(ctx context.Context) ([]model.CatalogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+`
		 FROM plansync.plans p JOIN plansync.providers pr ON pr.id = p.provider_id
		 WHERE p.active
		 ORDER BY pr.name, p.plan_name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read active entries")
	}
	return collectEntries(rows)
}

func (s *PostgresStore) ListEntries(ctx context.Context, filter EntryFilter) ([]model.CatalogEntry, error) {
	query := `SELECT ` + entryColumns + `
		 FROM plansync.plans p JOIN plansync.providers pr ON pr.id = p.provider_id
		 WHERE 1=1`
	var args []any

	if filter.Active != nil {
		args = append(args, *filter.Active)
		query += fmt.Sprintf(" AND p.active = $%d", len(args))
	}
	if filter.Provider != "" {
		args = append(args, NormalizeName(filter.Provider))
		query += fmt.Sprintf(" AND pr.name_key = $%d", len(args))
	}
	args = append(args, limitOr(filter.Limit, 500))
	query += fmt.Sprintf(" ORDER BY pr.name, p.plan_name LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entries")
	}
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]model.CatalogEntry, error) {
	defer rows.Close()

	var entries []model.CatalogEntry
	for rows.Next() {
		var e model.CatalogEntry
		if err := rows.Scan(&e.ID, &e.ProviderID, &e.ProviderName, &e.PlanName,
			&e.Rates.Rate500, &e.Rates.Rate1000, &e.Rates.Rate2000, &e.Active, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate entries")
}

func (s *PostgresStore) CountEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM plansync.plans`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count entries")
	}
	return n, nil
}

func (s *PostgresStore) Deactivate(ctx context.Context, entryID int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE plansync.plans SET active = false WHERE id = $1`, entryID)
	if err != nil {
		return eris.Wrapf(err, "postgres: deactivate entry %d", entryID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) PatchRate(ctx context.Context, entryID int64, tier model.Tier, rate float64, at time.Time) error {
	query := fmt.Sprintf(`UPDATE plansync.plans SET %s = $1, updated_at = $2 WHERE id = $3`, rateColumn(tier))
	tag, err := s.pool.Exec(ctx, query, rate, at, entryID)
	if err != nil {
		return eris.Wrapf(err, "postgres: patch rate for entry %d", entryID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddEntry(ctx context.Context, providerID int64, planName string, rates model.Rates) (int64, error) {
	planName = strings.TrimSpace(planName)
	if planName == "" {
		return 0, eris.New("postgres: plan name is required")
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO plansync.plans (provider_id, plan_name, plan_key, rate_500, rate_1000, rate_2000, active, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, true, now())
		 ON CONFLICT (provider_id, plan_key) DO UPDATE
		 SET rate_500 = EXCLUDED.rate_500, rate_1000 = EXCLUDED.rate_1000, rate_2000 = EXCLUDED.rate_2000,
		     active = true, updated_at = now()
		 RETURNING id`,
		providerID, planName, NormalizeName(planName), rates.Rate500, rates.Rate1000, rates.Rate2000,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: add entry %q", planName)
	}
	return id, nil
}

func (s *PostgresStore) ResolveProviderID(ctx context.Context, providerName string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM plansync.providers WHERE name_key = $1`,
		NormalizeName(providerName),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: resolve provider %q", providerName)
	}
	return id, nil
}

func (s *PostgresStore) UpsertProvider(ctx context.Context, providerName string) (int64, error) {
	providerName = strings.TrimSpace(providerName)
	if providerName == "" {
		return 0, eris.New("postgres: provider name is required")
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO plansync.providers (name, name_key) VALUES ($1, $2)
		 ON CONFLICT (name_key) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		providerName, NormalizeName(providerName),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert provider %q", providerName)
	}
	return id, nil
}

func (s *PostgresStore) StartSession(ctx context.Context, sess *model.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO plansync.sync_sessions (id, mode, status, started_at) VALUES ($1, $2, $3, $4)`,
		sess.ID, string(sess.Mode), string(sess.Status), sess.StartedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: start session %s", sess.ID)
	}
	return nil
}

var changeColumns = []string{"session_id", "seq", "kind", "entry_id", "provider_name", "plan_name", "old_rate", "new_rate", "note"}

func (s *PostgresStore) FinishSession(ctx context.Context, sess *model.Session) error {
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

	tag, err := s.pool.Exec(ctx,
		`UPDATE plansync.sync_sessions
		 SET status = $1, completed_at = $2, regions_processed = $3, total_plans_found = $4, unique_plans = $5,
		     new_count = $6, updated_count = $7, removed_count = $8, warnings = $9, errors = $10,
		     provenance = $11, error = $12
		 WHERE id = $13`,
		string(sess.Status), sess.CompletedAt, regions, sess.TotalPlansFound, sess.UniquePlans,
		len(sess.NewPlans), len(sess.UpdatedPlans), len(sess.RemovedPlans), warnings, errs,
		string(sess.Provenance), nullString(sess.Error), sess.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish session %s", sess.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	changes := sess.Changes().All()
	rows := make([][]any, 0, len(changes))
	for i, c := range changes {
		rows = append(rows, []any{sess.ID, i, string(c.Kind), nullID(c.EntryID), c.ProviderName, c.PlanName, c.OldRate, c.NewRate, c.Note})
	}
	if _, err := db.CopyFromSchema(ctx, s.pool, "plansync", "sync_changes", changeColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: record changes for session %s", sess.ID)
	}
	return nil
}

const sessionColumns = `id, mode, status, started_at, completed_at, regions_processed, total_plans_found, unique_plans,
	warnings, errors, provenance, error`

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var (
		sess                    model.Session
		mode, status, prov      string
		regions, warnings, errs []byte
		errMsg                  *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM plansync.sync_sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &mode, &status, &sess.StartedAt, &sess.CompletedAt, &regions,
		&sess.TotalPlansFound, &sess.UniquePlans, &warnings, &errs, &prov, &errMsg)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}
	sess.Mode = model.SessionMode(mode)
	sess.Status = model.SessionStatus(status)
	sess.Provenance = model.Provenance(prov)
	if errMsg != nil {
		sess.Error = *errMsg
	}
	if sess.RegionsProcessed, err = unmarshalStrings(regions); err != nil {
		return nil, err
	}
	if sess.Warnings, err = unmarshalStrings(warnings); err != nil {
		return nil, err
	}
	if sess.Errors, err = unmarshalStrings(errs); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT kind, entry_id, provider_name, plan_name, old_rate, new_rate, note
		 FROM plansync.sync_changes WHERE session_id = $1 ORDER BY seq`, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get changes for session %s", id)
	}
	defer rows.Close()

	var changes []model.ChangeRecord
	for rows.Next() {
		var c model.ChangeRecord
		var kind string
		var entryID *int64
		if err := rows.Scan(&kind, &entryID, &c.ProviderName, &c.PlanName, &c.OldRate, &c.NewRate, &c.Note); err != nil {
			return nil, eris.Wrap(err, "postgres: scan change")
		}
		c.Kind = model.ChangeKind(kind)
		if entryID != nil {
			c.EntryID = *entryID
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate changes")
	}
	attachChanges(&sess, changes)
	return &sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]SessionSummary, error) {
	query := `SELECT id, mode, status, started_at, completed_at, provenance, new_count, updated_count, removed_count, error
		 FROM plansync.sync_sessions WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limitOr(filter.Limit, 20))
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var mode, status, prov string
		var errMsg *string
		if err := rows.Scan(&sum.ID, &mode, &status, &sum.StartedAt, &sum.CompletedAt, &prov,
			&sum.NewCount, &sum.UpdatedCount, &sum.RemovedCount, &errMsg); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		sum.Mode = model.SessionMode(mode)
		sum.Status = model.SessionStatus(status)
		sum.Provenance = model.Provenance(prov)
		if errMsg != nil {
			sum.Error = *errMsg
		}
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sessions")
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
