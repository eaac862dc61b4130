package persistence

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// sqliteHeader is the 16-byte magic at the start of every SQLite database
// file. Restore refuses sources that don't carry it.
var sqliteHeader = []byte("SQLite format 3\x00")

// Backup writes an online-consistent copy of the database to destPath using
// VACUUM INTO, which produces a complete snapshot without blocking writers.
// An existing destination is refused rather than overwritten.
func (s *Store) Backup(ctx context.Context, destPath string) error {
	if destPath == "" {
		return fmt.Errorf("backup destination path required")
	}
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("backup destination already exists: %s", destPath)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?;`, destPath); err != nil {
		return fmt.Errorf("backup (VACUUM INTO): %w", err)
	}
	return nil
}

// Restore replaces the database file at dbPath with the contents of srcPath.
// The live Store must be Closed before calling this and reopened after; a
// swap under an open WAL connection would corrupt the database. Stale -wal
// and -shm siblings from the old file are removed so the restored snapshot
// is opened cleanly.
func Restore(dbPath, srcPath string) error {
	src, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read restore source: %w", err)
	}
	if len(src) < len(sqliteHeader) || !bytes.HasPrefix(src, sqliteHeader) {
		return fmt.Errorf("restore source %s is not a SQLite database", srcPath)
	}

	if err := os.WriteFile(dbPath, src, 0o644); err != nil {
		return fmt.Errorf("write restored database: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale %s file: %w", suffix, err)
		}
	}
	return nil
}

// exportableTables is the allow-list for ExportCSV. The table name reaches
// the query text directly, so it is never taken from the caller verbatim.
var exportableTables = map[string]bool{
	"plans": true,
	"tasks": true,
}

// ExportCSV writes every row of the named table to destPath as CSV: one
// header row with the column names, then the rows in natural storage order.
// NULLs become empty fields.
func (s *Store) ExportCSV(ctx context.Context, table, destPath string) error {
	if !exportableTables[table] {
		return fmt.Errorf("table %q is not exportable", table)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT * FROM `+table+` ORDER BY rowid ASC;`)
	if err != nil {
		return fmt.Errorf("query %s for export: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("read %s columns: %w", table, err)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	record := make([]string, len(columns))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan %s row: %w", table, err)
		}
		for i, v := range values {
			record[i] = formatCSVValue(v)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%s export rows: %w", table, err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	return nil
}

func formatCSVValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
