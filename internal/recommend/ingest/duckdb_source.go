// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // DuckDB driver
)

// DuckDBSource reads order rows with DuckDB's CSV reader. Unparseable
// lines are collected through DuckDB's reject tables and reported as
// malformed rows with their line numbers.
//
// DuckDB does not expose source line numbers for accepted rows. Their Line
// is 0, and a row rejected later for a missing field carries no line.
type DuckDBSource struct {
	db   *sql.DB
	path string
}

// NewDuckDBSource opens an in-memory DuckDB connection for reading path.
func NewDuckDBSource(path string) (*DuckDBSource, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &DuckDBSource{db: db, path: path}, nil
}

// Name implements Source.
func (s *DuckDBSource) Name() string { return "duckdb:" + s.path }

// Close releases the DuckDB connection.
func (s *DuckDBSource) Close() error {
	return s.db.Close()
}

// sqlString quotes v as a SQL string literal.
func sqlString(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// Rows implements Source.
func (s *DuckDBSource) Rows(ctx context.Context, fn func(RawRow) error) error {
	query := fmt.Sprintf(`
		SELECT CAST(%s AS VARCHAR), CAST(%s AS VARCHAR)
		FROM read_csv(%s,
			header = true,
			all_varchar = true,
			quote = '"',
			escape = '\',
			store_rejects = true)`,
		ColumnOrderID, ColumnItemName, sqlString(s.path))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query %s: %w", s.path, err)
	}

	for rows.Next() {
		var orderID, item sql.NullString
		if err := rows.Scan(&orderID, &item); err != nil {
			rows.Close() //nolint:errcheck,sqlclosecheck // closing early on scan error
			return fmt.Errorf("scan %s: %w", s.path, err)
		}
		if err := fn(RawRow{
			OrderID:  orderID.String,
			ItemName: item.String,
			Record:   []string{orderID.String, item.String},
		}); err != nil {
			rows.Close() //nolint:errcheck,sqlclosecheck // caller stopped the scan
			return err
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck,sqlclosecheck // closing after iteration error
		return fmt.Errorf("iterate %s: %w", s.path, err)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close rows: %w", err)
	}

	return s.rejects(ctx, fn)
}

// rejects reports the lines DuckDB could not parse.
func (s *DuckDBSource) rejects(ctx context.Context, fn func(RawRow) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line, COALESCE(csv_line, ''), COALESCE(error_message, '')
		FROM reject_errors
		ORDER BY line`)
	if err != nil {
		return fmt.Errorf("query rejects: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	for rows.Next() {
		var (
			line    int64
			raw     string
			message string
		)
		if err := rows.Scan(&line, &raw, &message); err != nil {
			return fmt.Errorf("scan reject: %w", err)
		}
		if err := fn(RawRow{
			Line:   int(line),
			Record: []string{raw},
			Err:    errors.New(message),
		}); err != nil {
			return err
		}
	}
	return rows.Err()
}
