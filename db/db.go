// Package db is the local embedded table store. It keeps one table per
// dataset in a SQLite file (or a PostgreSQL database) and reads and writes
// whole tables in their raw string form.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/vainnor/painel/models"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var ErrNoTables = errors.New("database file holds no data tables")

// Schemas are the tables created on Open.
var Schemas = []models.Schema{models.FlightSchema, models.LogisticsSchema}

type Store struct {
	DB     *sql.DB
	driver string
}

// Open connects to the store and creates the dataset tables if needed.
func Open(driver, dsn string) (*Store, error) {
	s, err := open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := s.createTables(context.Background()); err != nil {
		s.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}
	return s, nil
}

func open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create dirs: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}
	if driver == DriverSQLite {
		// One writer at a time; concurrent sessions wait instead of failing.
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}
	return &Store{DB: conn, driver: driver}, nil
}

func (s *Store) Driver() string { return s.driver }

func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func (s *Store) createTables(ctx context.Context) error {
	for _, schema := range Schemas {
		if _, err := s.DB.ExecContext(ctx, createStatement(schema)); err != nil {
			return err
		}
	}
	return nil
}

func createStatement(schema models.Schema) string {
	cols := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		typ := "TEXT"
		if c.Integer {
			typ = "INTEGER"
		}
		cols[i] = quote(c.Name) + " " + typ
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(schema.Table), strings.Join(cols, ", "))
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *Store) placeholder(i int) string {
	if s.driver == DriverPostgres {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

// ReadTable returns every row of the dataset table. All stored columns are
// returned, including ones the schema no longer names.
func (s *Store) ReadTable(ctx context.Context, schema models.Schema) (models.Table, error) {
	return s.ReadAll(ctx, schema.Table)
}

// ReadAll returns every row of an arbitrary table as strings.
func (s *Store) ReadAll(ctx context.Context, table string) (models.Table, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT * FROM "+quote(table))
	if err != nil {
		return models.Table{}, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return models.Table{}, fmt.Errorf("columns %s: %w", table, err)
	}
	out := models.Table{Columns: cols}
	cells := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return models.Table{}, fmt.Errorf("scan %s: %w", table, err)
		}
		row := make([]string, len(cols))
		for i, c := range cells {
			row[i] = c.String
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return models.Table{}, fmt.Errorf("read %s: %w", table, err)
	}
	return out, nil
}

// ReplaceTable drops and recreates the dataset table with the given rows.
func (s *Store) ReplaceTable(ctx context.Context, schema models.Schema, t models.Table) (retErr error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(schema.Table)); err != nil {
		return fmt.Errorf("drop %s: %w", schema.Table, err)
	}
	if _, err := tx.ExecContext(ctx, createStatement(schema)); err != nil {
		return fmt.Errorf("create %s: %w", schema.Table, err)
	}
	if err := s.insert(ctx, tx, schema, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AppendRows inserts rows into the dataset table.
func (s *Store) AppendRows(ctx context.Context, schema models.Schema, t models.Table) (retErr error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, createStatement(schema)); err != nil {
		return fmt.Errorf("create %s: %w", schema.Table, err)
	}
	if err := s.insert(ctx, tx, schema, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, schema models.Schema, t models.Table) error {
	if len(t.Rows) == 0 {
		return nil
	}
	names := make([]string, len(schema.Columns))
	marks := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		names[i] = quote(c.Name)
		marks[i] = s.placeholder(i + 1)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(schema.Table), strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", schema.Table, err)
	}
	defer stmt.Close()

	index := make([]int, len(schema.Columns))
	for i, c := range schema.Columns {
		index[i] = t.Index(c.Name)
	}
	args := make([]any, len(schema.Columns))
	for _, row := range t.Rows {
		for i, c := range schema.Columns {
			var v string
			if j := index[i]; j >= 0 && j < len(row) {
				v = row[j]
			}
			if c.Integer {
				n, _ := strconv.Atoi(v)
				args[i] = int64(n)
			} else {
				args[i] = v
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s: %w", schema.Table, err)
		}
	}
	return nil
}

// ListTables returns the user tables of the database.
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	query := `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	if s.driver == DriverPostgres {
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name`
	}
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
