package db

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vainnor/painel/models"
)

// ReadFile opens an uploaded SQLite file and returns the table named
// preferred (case-insensitive), or the first user table when none matches.
// The name of the table read is returned alongside it.
func ReadFile(ctx context.Context, data []byte, preferred string) (models.Table, string, error) {
	path, cleanup, err := tempFile(data)
	if err != nil {
		return models.Table{}, "", err
	}
	defer cleanup()

	s, err := open(DriverSQLite, path)
	if err != nil {
		return models.Table{}, "", err
	}
	defer s.Close()

	tables, err := s.ListTables(ctx)
	if err != nil {
		return models.Table{}, "", err
	}
	if len(tables) == 0 {
		return models.Table{}, "", ErrNoTables
	}
	target := tables[0]
	for _, name := range tables {
		if strings.EqualFold(name, preferred) {
			target = name
			break
		}
	}

	t, err := s.ReadAll(ctx, target)
	if err != nil {
		return models.Table{}, "", err
	}
	return t, target, nil
}

// SnapshotFile builds a standalone SQLite file holding the given table.
func SnapshotFile(ctx context.Context, schema models.Schema, t models.Table) ([]byte, error) {
	path, cleanup, err := tempFile(nil)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	s, err := Open(DriverSQLite, path)
	if err != nil {
		return nil, err
	}
	if err := s.ReplaceTable(ctx, schema, t); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.Close(); err != nil {
		return nil, fmt.Errorf("close snapshot: %w", err)
	}
	return os.ReadFile(path)
}

func tempFile(data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "painel-*.db")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	return f.Name(), cleanup, nil
}
