// Package postgres loads handler mapping definitions from PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/R3E-Network/dispatch_layer/internal/config"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// mappingRow is one row of the mapping table. A NULL parameter marks the
// default handler of the mode.
type mappingRow struct {
	Mode      string         `db:"mode"`
	Parameter sql.NullString `db:"parameter"`
	Handler   string         `db:"handler"`
}

// Store reads mapping rows from a table.
type Store struct {
	db    *sqlx.DB
	table string
}

// Open connects to PostgreSQL.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// New creates a Store using the provided database handle.
func New(db *sqlx.DB, table string) (*Store, error) {
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("invalid mapping table name %q", table)
	}
	return &Store{db: db, table: table}, nil
}

// EnsureSchema creates the mapping table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			mode       TEXT NOT NULL,
			parameter  TEXT,
			handler    TEXT NOT NULL,
			UNIQUE (mode, parameter)
		)`)
	if err != nil {
		return fmt.Errorf("ensure schema %s: %w", s.table, err)
	}
	return nil
}

// LoadSource reads every row into a config.Source. Duplicate keys are
// left for the mapping builder to report.
func (s *Store) LoadSource(ctx context.Context) (config.Source, error) {
	var rows []mappingRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT mode, parameter, handler FROM `+s.table+` ORDER BY mode, parameter NULLS FIRST`)
	if err != nil {
		return config.Source{}, fmt.Errorf("load mappings from %s: %w", s.table, err)
	}

	src := config.Source{
		Name:       "postgres:" + s.table,
		Parameters: make(map[string]map[string]string),
		Defaults:   make(map[string]string),
	}
	for _, row := range rows {
		mode := strings.TrimSpace(row.Mode)
		handlerName := strings.TrimSpace(row.Handler)
		if mode == "" || handlerName == "" {
			return config.Source{}, fmt.Errorf("table %s: mode and handler are required (mode=%q handler=%q)", s.table, row.Mode, row.Handler)
		}
		if !row.Parameter.Valid {
			if existing, ok := src.Defaults[mode]; ok {
				return config.Source{}, fmt.Errorf("table %s: mode %q has two defaults (%s, %s)", s.table, mode, existing, handlerName)
			}
			src.Defaults[mode] = handlerName
			continue
		}
		params := src.Parameters[mode]
		if params == nil {
			params = make(map[string]string)
			src.Parameters[mode] = params
		}
		if existing, ok := params[row.Parameter.String]; ok {
			return config.Source{}, fmt.Errorf("table %s: mode %q parameter %q has two handlers (%s, %s)",
				s.table, mode, row.Parameter.String, existing, handlerName)
		}
		params[row.Parameter.String] = handlerName
	}
	return src, nil
}
