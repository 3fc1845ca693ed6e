package visit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/onnwee/plaques/internal/tracing"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const visitsTable = "visits"

// PostgresLedger implements Ledger on the visits table.
type PostgresLedger struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresLedger creates a new PostgresLedger.
func NewPostgresLedger(db *sql.DB, logger *slog.Logger) *PostgresLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLedger{
		db:     db,
		logger: logger,
	}
}

// SelectAll returns every visit ordered by visit date, newest first.
// Rows with the same date are returned in insertion order.
func (l *PostgresLedger) SelectAll(ctx context.Context) (records []Record, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, visitsTable, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT id, plaque_id, image_url, image_path, uploaded_by, visit_date, notes
		FROM visits
		ORDER BY visit_date DESC, id ASC
	`
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query visits: %w", err)
	}
	defer rows.Close()

	records = make([]Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate visits: %w", err)
	}

	return records, nil
}

// SelectOne returns the visit for a plaque, or ErrNotFound.
func (l *PostgresLedger) SelectOne(ctx context.Context, plaqueID int) (record *Record, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, visitsTable, tracing.DBOperationQuery, tracing.PlaqueID(plaqueID))
	defer func() {
		if errors.Is(err, ErrNotFound) {
			endSpan(nil)
			return
		}
		endSpan(err)
	}()

	query := `
		SELECT id, plaque_id, image_url, image_path, uploaded_by, visit_date, notes
		FROM visits
		WHERE plaque_id = $1
		ORDER BY visit_date DESC, id ASC
		LIMIT 1
	`
	record, err = scanRecord(l.db.QueryRowContext(ctx, query, plaqueID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select visit: %w", err)
	}
	return record, nil
}

// Insert stores a new visit and sets record.ID. A zero VisitDate is
// replaced by the database clock.
func (l *PostgresLedger) Insert(ctx context.Context, record *Record) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, visitsTable, tracing.DBOperationInsert, tracing.PlaqueID(record.PlaqueID))
	defer func() { endSpan(err) }()

	var visitDate any
	if !record.VisitDate.IsZero() {
		visitDate = record.VisitDate
	}

	query := `
		INSERT INTO visits (plaque_id, image_url, image_path, uploaded_by, visit_date, notes)
		VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, NOW()), $6)
		RETURNING id, visit_date
	`
	err = l.db.QueryRowContext(ctx, query,
		record.PlaqueID,
		nullString(record.ImageURL),
		record.ImagePath,
		record.UploadedBy,
		visitDate,
		nullString(record.Notes),
	).Scan(&record.ID, &record.VisitDate)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrDuplicateVisit
		}
		l.logger.ErrorContext(ctx, "failed to insert visit",
			slog.Int("plaque_id", record.PlaqueID),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to insert visit: %w", err)
	}

	l.logger.DebugContext(ctx, "visit inserted",
		slog.Int64("visit_id", record.ID),
		slog.Int("plaque_id", record.PlaqueID))
	return nil
}

// DeleteWhere removes every visit row for a plaque.
func (l *PostgresLedger) DeleteWhere(ctx context.Context, plaqueID int) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, visitsTable, tracing.DBOperationDelete, tracing.PlaqueID(plaqueID))
	defer func() { endSpan(err) }()

	result, err := l.db.ExecContext(ctx, `DELETE FROM visits WHERE plaque_id = $1`, plaqueID)
	if err != nil {
		return fmt.Errorf("failed to delete visit: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		r        Record
		imageURL sql.NullString
		notes    sql.NullString
	)
	if err := row.Scan(&r.ID, &r.PlaqueID, &imageURL, &r.ImagePath, &r.UploadedBy, &r.VisitDate, &notes); err != nil {
		return nil, err
	}
	if imageURL.Valid {
		r.ImageURL = &imageURL.String
	}
	if notes.Valid {
		r.Notes = &notes.String
	}
	return &r, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
