package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ExportRecord is one asset export attempt.
type ExportRecord struct {
	ID         int64
	BatchID    int64
	ObjectPath string
	Class      string
	HashMain   string
	HashFull   string
	Outcome    string
	ZipPath    string
	Uploaded   bool
	Error      string
	Duration   time.Duration
	CreatedAt  time.Time
}

// ImportRecord is one archive import.
type ImportRecord struct {
	ID        int64
	Source    string
	ZipPath   string
	Mode      string
	Imported  int
	Skipped   int
	Error     string
	CreatedAt time.Time
}

// RecordExport appends an export attempt to the ledger.
func (s *Storage) RecordExport(ctx context.Context, rec ExportRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exports (batch_id, object_path, class, hash_main, hash_full, outcome, zip_path, uploaded, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.BatchID, rec.ObjectPath, nullString(rec.Class), nullString(rec.HashMain), nullString(rec.HashFull),
		rec.Outcome, nullString(rec.ZipPath), rec.Uploaded, nullString(rec.Error), rec.Duration.Milliseconds(), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record export; %w", err)
	}
	return nil
}

// ListExports returns the most recent export records, newest first. A
// non-empty objectPath restricts the result to that asset.
func (s *Storage) ListExports(ctx context.Context, objectPath string, limit int) ([]ExportRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, batch_id, object_path, class, hash_main, hash_full, outcome, zip_path, uploaded, error, duration_ms, created_at
		FROM exports`
	args := []any{}
	if objectPath != "" {
		query += " WHERE object_path = ?"
		args = append(args, objectPath)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exports; %w", err)
	}
	defer rows.Close()

	var records []ExportRecord
	for rows.Next() {
		var (
			rec                                      ExportRecord
			class, hashMain, hashFull, zipPath, errS sql.NullString
			durationMS                               int64
		)
		if err := rows.Scan(&rec.ID, &rec.BatchID, &rec.ObjectPath, &class, &hashMain, &hashFull,
			&rec.Outcome, &zipPath, &rec.Uploaded, &errS, &durationMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan export; %w", err)
		}
		rec.Class = class.String
		rec.HashMain = hashMain.String
		rec.HashFull = hashFull.String
		rec.ZipPath = zipPath.String
		rec.Error = errS.String
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate exports; %w", err)
	}

	return records, nil
}

// LastBatchID returns the highest batch id recorded, or 0 for an empty ledger.
func (s *Storage) LastBatchID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(batch_id), 0) FROM exports").Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read last batch id; %w", err)
	}
	return id, nil
}

// RecordImport appends an import to the ledger.
func (s *Storage) RecordImport(ctx context.Context, rec ImportRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO imports (source, zip_path, mode, imported, skipped, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Source, rec.ZipPath, rec.Mode, rec.Imported, rec.Skipped, nullString(rec.Error), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record import; %w", err)
	}
	return nil
}

// ListImports returns the most recent imports, newest first.
func (s *Storage) ListImports(ctx context.Context, limit int) ([]ImportRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, zip_path, mode, imported, skipped, error, created_at
		 FROM imports ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query imports; %w", err)
	}
	defer rows.Close()

	var records []ImportRecord
	for rows.Next() {
		var (
			rec  ImportRecord
			errS sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.ZipPath, &rec.Mode, &rec.Imported, &rec.Skipped, &errS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import; %w", err)
		}
		rec.Error = errS.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate imports; %w", err)
	}

	return records, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
