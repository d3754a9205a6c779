package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"kycflow/internal/report"
	"kycflow/pkg/platform/sentinel"
	txcontext "kycflow/pkg/platform/tx"
)

// Schema creates the report archive tables.
const Schema = `
CREATE TABLE IF NOT EXISTS verification_reports (
	verification_id TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	country_code    TEXT NOT NULL DEFAULT '',
	document_type   TEXT NOT NULL DEFAULT '',
	steps           TEXT[] NOT NULL DEFAULT '{}',
	status          TEXT NOT NULL,
	scanner_type    TEXT NOT NULL DEFAULT '',
	report_ts       TEXT NOT NULL,
	archived_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verification_reports_user ON verification_reports (user_id, archived_at);

CREATE TABLE IF NOT EXISTS verification_report_documents (
	verification_id TEXT NOT NULL REFERENCES verification_reports (verification_id) ON DELETE CASCADE,
	document        TEXT NOT NULL,
	present         BOOLEAN NOT NULL,
	PRIMARY KEY (verification_id, document)
);
`

// PostgresArchive stores entries in Postgres. Document flags live in their
// own table so compliance queries can filter on them.
type PostgresArchive struct {
	db *sql.DB
}

func NewPostgresArchive(db *sql.DB) *PostgresArchive {
	return &PostgresArchive{db: db}
}

// Migrate applies Schema.
func (a *PostgresArchive) Migrate(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate report archive: %w", err)
	}
	return nil
}

func (a *PostgresArchive) Save(ctx context.Context, entry Entry) error {
	return txcontext.Run(ctx, a.db, func(ctx context.Context) error {
		exec := txcontext.Exec(ctx, a.db)
		r := entry.Report
		_, err := exec.ExecContext(ctx, `
			INSERT INTO verification_reports (
				verification_id, user_id, country_code, document_type, steps,
				status, scanner_type, report_ts, archived_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (verification_id) DO UPDATE SET
				status = EXCLUDED.status,
				scanner_type = EXCLUDED.scanner_type,
				report_ts = EXCLUDED.report_ts,
				archived_at = EXCLUDED.archived_at
		`,
			r.VerificationID, entry.UserID, entry.CountryCode, entry.DocumentType, pq.Array(entry.Steps),
			r.Status, r.ScannerType, r.Timestamp, entry.ArchivedAt,
		)
		if err != nil {
			return fmt.Errorf("insert report %s: %w", r.VerificationID, err)
		}

		for name, present := range documentFlags(r.Documents) {
			_, err := exec.ExecContext(ctx, `
				INSERT INTO verification_report_documents (verification_id, document, present)
				VALUES ($1, $2, $3)
				ON CONFLICT (verification_id, document) DO UPDATE SET present = EXCLUDED.present
			`, r.VerificationID, name, present)
			if err != nil {
				return fmt.Errorf("insert report document %s: %w", name, err)
			}
		}
		return nil
	})
}

func (a *PostgresArchive) Get(ctx context.Context, verificationID string) (Entry, error) {
	exec := txcontext.Exec(ctx, a.db)
	entry, err := scanEntry(exec.QueryRowContext(ctx, selectEntry+` WHERE verification_id = $1`, verificationID))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("report %s: %w", verificationID, sentinel.ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get report %s: %w", verificationID, err)
	}
	if err := a.loadDocuments(ctx, exec, &entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (a *PostgresArchive) ListByUser(ctx context.Context, userID string) ([]Entry, error) {
	exec := txcontext.Exec(ctx, a.db)
	rows, err := exec.QueryContext(ctx, selectEntry+` WHERE user_id = $1 ORDER BY archived_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	for i := range out {
		if err := a.loadDocuments(ctx, exec, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

const selectEntry = `
	SELECT verification_id, user_id, country_code, document_type, steps,
		status, scanner_type, report_ts, archived_at
	FROM verification_reports`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	err := row.Scan(
		&e.Report.VerificationID, &e.UserID, &e.CountryCode, &e.DocumentType, pq.Array(&e.Steps),
		&e.Report.Status, &e.Report.ScannerType, &e.Report.Timestamp, &e.ArchivedAt,
	)
	return e, err
}

func (a *PostgresArchive) loadDocuments(ctx context.Context, exec txcontext.Executor, entry *Entry) error {
	rows, err := exec.QueryContext(ctx,
		`SELECT document, present FROM verification_report_documents WHERE verification_id = $1`,
		entry.Report.VerificationID)
	if err != nil {
		return fmt.Errorf("load report documents: %w", err)
	}
	defer rows.Close()

	flags := make(map[string]bool)
	for rows.Next() {
		var name string
		var present bool
		if err := rows.Scan(&name, &present); err != nil {
			return fmt.Errorf("scan report document: %w", err)
		}
		flags[name] = present
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate report documents: %w", err)
	}
	entry.Report.Documents = documentsFromFlags(flags)
	return nil
}

// Document flag names stored in verification_report_documents. They match
// the exported JSON field names.
const (
	flagSelfie        = "selfie"
	flagDocumentFront = "documentFront"
	flagDocumentBack  = "documentBack"
	flagMRZScan       = "mrzScan"
)

func documentFlags(d report.Documents) map[string]bool {
	return map[string]bool{
		flagSelfie:        d.Selfie,
		flagDocumentFront: d.DocumentFront,
		flagDocumentBack:  d.DocumentBack,
		flagMRZScan:       d.MRZScan,
	}
}

func documentsFromFlags(flags map[string]bool) report.Documents {
	return report.Documents{
		Selfie:        flags[flagSelfie],
		DocumentFront: flags[flagDocumentFront],
		DocumentBack:  flags[flagDocumentBack],
		MRZScan:       flags[flagMRZScan],
	}
}
