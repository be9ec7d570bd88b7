// Package sqlite implements portal persistence over SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/apacbi/budgetportal/internal/platform/storage/sqlitemigrate"
	"github.com/apacbi/budgetportal/internal/services/portal/domain"
	"github.com/apacbi/budgetportal/internal/services/portal/storage"
	"github.com/apacbi/budgetportal/internal/services/portal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements RecordStore and SessionStore over a single SQLite file, so
// record mutation and session state share transaction and visibility
// boundaries.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a portal SQLite store and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const recordColumns = `
	id, user_id, business_unit,
	sales_region, customer_group, biz_type, vendor_category, product_nature,
	y2019a, y2020a, y2021a, y2022a, y2023a, y2024b,
	y2025b, y2026p, y2027p, y2028p, y2029p, sales_remark,
	version, is_submitted, submitted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.BudgetRecord, error) {
	var record domain.BudgetRecord
	var y2019a, y2020a, y2021a, y2022a, y2023a, y2024b sql.NullFloat64
	var y2025b, y2026p, y2027p, y2028p, y2029p sql.NullFloat64
	var salesRemark sql.NullString
	var isSubmitted int64
	var submittedAt sql.NullInt64
	var createdAt, updatedAt int64

	if err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.BusinessUnit,
		&record.SalesRegion,
		&record.CustomerGroup,
		&record.BizType,
		&record.VendorCategory,
		&record.ProductNature,
		&y2019a, &y2020a, &y2021a, &y2022a, &y2023a, &y2024b,
		&y2025b, &y2026p, &y2027p, &y2028p, &y2029p,
		&salesRemark,
		&record.Version,
		&isSubmitted,
		&submittedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.BudgetRecord{}, err
	}

	record.Y2019A = nullableFloat(y2019a)
	record.Y2020A = nullableFloat(y2020a)
	record.Y2021A = nullableFloat(y2021a)
	record.Y2022A = nullableFloat(y2022a)
	record.Y2023A = nullableFloat(y2023a)
	record.Y2024B = nullableFloat(y2024b)
	record.Y2025B = nullableFloat(y2025b)
	record.Y2026P = nullableFloat(y2026p)
	record.Y2027P = nullableFloat(y2027p)
	record.Y2028P = nullableFloat(y2028p)
	record.Y2029P = nullableFloat(y2029p)
	if salesRemark.Valid {
		record.SalesRemark = &salesRemark.String
	}
	record.IsSubmitted = isSubmitted != 0
	if submittedAt.Valid {
		value := fromMillis(submittedAt.Int64)
		record.SubmittedAt = &value
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func nullableFloat(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}

func floatArg(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func stringArg(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

// FetchPartition returns all records for a partition. Empty partitions return
// an empty slice, not an error.
func (s *Store) FetchPartition(ctx context.Context, p domain.Partition) ([]domain.BudgetRecord, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM budget_records
WHERE user_id = ? AND business_unit = ?
ORDER BY id
`, p.UserID, p.BusinessUnit)
	if err != nil {
		return nil, fmt.Errorf("fetch partition %s: %w", p, err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// FetchAll returns every record. Debug surface only.
func (s *Store) FetchAll(ctx context.Context) ([]domain.BudgetRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM budget_records
ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("fetch all records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]domain.BudgetRecord, error) {
	records := []domain.BudgetRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// ApplyFieldUpdates applies patches to draft records in one transaction.
//
// A patch is skipped, not failed, when it has no record id, no editable
// fields, names a record outside the partition, or targets a submitted
// record. Patches naming the same record are merged in order before writing,
// so a record's version bumps at most once per call. Any storage failure
// rolls back every patch in the call.
func (s *Store) ApplyFieldUpdates(ctx context.Context, p domain.Partition, patches []domain.FieldPatch) ([]int64, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	updated := []int64{}
	now := time.Now().UTC()
	for _, patch := range mergePatches(patches) {
		row := tx.QueryRowContext(ctx, `
SELECT `+recordColumns+`
FROM budget_records
WHERE id = ? AND user_id = ? AND business_unit = ? AND is_submitted = 0
`, patch.RecordID, p.UserID, p.BusinessUnit)
		record, err := scanRecord(row)
		if err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return nil, fmt.Errorf("load record %d: %w", patch.RecordID, err)
		}

		patch.Apply(&record)

		if _, err := tx.ExecContext(ctx, `
UPDATE budget_records
SET y2025b = ?, y2026p = ?, y2027p = ?, y2028p = ?, y2029p = ?,
    sales_remark = ?,
    version = version + 1,
    updated_at = ?
WHERE id = ? AND is_submitted = 0
`,
			floatArg(record.Y2025B),
			floatArg(record.Y2026P),
			floatArg(record.Y2027P),
			floatArg(record.Y2028P),
			floatArg(record.Y2029P),
			stringArg(record.SalesRemark),
			toMillis(now),
			record.ID,
		); err != nil {
			return nil, fmt.Errorf("update record %d: %w", record.ID, err)
		}

		updated = append(updated, record.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update transaction: %w", err)
	}
	return updated, nil
}

// mergePatches drops unusable patches and folds duplicates of the same record
// id into one patch, keeping first-seen order and later fields winning.
func mergePatches(patches []domain.FieldPatch) []domain.FieldPatch {
	merged := []domain.FieldPatch{}
	index := make(map[int64]int, len(patches))
	for _, patch := range patches {
		if patch.RecordID == 0 || !patch.HasEdits() {
			continue
		}
		if at, ok := index[patch.RecordID]; ok {
			merged[at].Merge(patch)
			continue
		}
		index[patch.RecordID] = len(merged)
		merged = append(merged, patch)
	}
	return merged
}

// MarkSubmitted flips every draft record in the partition to submitted and
// returns the post-state snapshot batch. Version is never touched by submit.
func (s *Store) MarkSubmitted(ctx context.Context, p domain.Partition) (domain.SubmissionBatch, error) {
	if err := p.Validate(); err != nil {
		return domain.SubmissionBatch{}, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SubmissionBatch{}, fmt.Errorf("begin submit transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	submissionTime := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
UPDATE budget_records
SET is_submitted = 1, submitted_at = ?, updated_at = ?
WHERE user_id = ? AND business_unit = ? AND is_submitted = 0
`, toMillis(submissionTime), toMillis(submissionTime), p.UserID, p.BusinessUnit)
	if err != nil {
		return domain.SubmissionBatch{}, fmt.Errorf("mark submitted %s: %w", p, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.SubmissionBatch{}, fmt.Errorf("submit rows affected: %w", err)
	}
	if affected == 0 {
		return domain.SubmissionBatch{}, storage.ErrNothingToSubmit
	}

	rows, err := tx.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM budget_records
WHERE user_id = ? AND business_unit = ? AND submitted_at = ?
ORDER BY id
`, p.UserID, p.BusinessUnit, toMillis(submissionTime))
	if err != nil {
		return domain.SubmissionBatch{}, fmt.Errorf("snapshot submitted records: %w", err)
	}
	records, err := collectRecords(rows)
	rows.Close()
	if err != nil {
		return domain.SubmissionBatch{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.SubmissionBatch{}, fmt.Errorf("commit submit transaction: %w", err)
	}
	return domain.NewSubmissionBatch(p, submissionTime, records), nil
}

// CountPartition returns the number of records in a partition.
func (s *Store) CountPartition(ctx context.Context, p domain.Partition) (int64, error) {
	return s.countWhere(ctx, p, "")
}

// CountSubmitted returns the number of submitted records in a partition.
func (s *Store) CountSubmitted(ctx context.Context, p domain.Partition) (int64, error) {
	return s.countWhere(ctx, p, " AND is_submitted = 1")
}

func (s *Store) countWhere(ctx context.Context, p domain.Partition, extra string) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	var count int64
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*) FROM budget_records
WHERE user_id = ? AND business_unit = ?`+extra, p.UserID, p.BusinessUnit)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count partition %s: %w", p, err)
	}
	return count, nil
}

// LatestSubmission returns the most recent submitted_at in the partition.
func (s *Store) LatestSubmission(ctx context.Context, p domain.Partition) (*time.Time, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var latest sql.NullInt64
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT MAX(submitted_at) FROM budget_records
WHERE user_id = ? AND business_unit = ? AND is_submitted = 1
`, p.UserID, p.BusinessUnit)
	if err := row.Scan(&latest); err != nil {
		return nil, fmt.Errorf("latest submission %s: %w", p, err)
	}
	if !latest.Valid {
		return nil, nil
	}
	value := fromMillis(latest.Int64)
	return &value, nil
}

// InsertRecords seeds a partition with hydration rows. New records start as
// drafts at version 1.
func (s *Store) InsertRecords(ctx context.Context, p domain.Partition, rows []domain.HydrationRow) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := toMillis(time.Now().UTC())
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO budget_records (
	user_id, business_unit,
	sales_region, customer_group, biz_type, vendor_category, product_nature,
	y2019a, y2020a, y2021a, y2022a, y2023a, y2024b,
	y2025b, y2026p, y2027p, y2028p, y2029p, sales_remark,
	version, is_submitted, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?, ?)
`,
			p.UserID, p.BusinessUnit,
			row.SalesRegion, row.CustomerGroup, row.BizType, row.VendorCategory, row.ProductNature,
			floatArg(row.Y2019A), floatArg(row.Y2020A), floatArg(row.Y2021A),
			floatArg(row.Y2022A), floatArg(row.Y2023A), floatArg(row.Y2024B),
			floatArg(row.Y2025B), floatArg(row.Y2026P), floatArg(row.Y2027P),
			floatArg(row.Y2028P), floatArg(row.Y2029P), stringArg(row.SalesRemark),
			now, now,
		); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert transaction: %w", err)
	}
	return nil
}

// GetSession returns the session row for a user.
func (s *Store) GetSession(ctx context.Context, userID string) (storage.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.Session{}, fmt.Errorf("user id is required")
	}
	var session storage.Session
	var createdAt, expiresAt int64
	var isActive int64
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT user_id, business_unit, session_token, created_at, expires_at, is_active
FROM sessions
WHERE user_id = ?
`, userID)
	if err := row.Scan(
		&session.UserID,
		&session.BusinessUnit,
		&session.Token,
		&createdAt,
		&expiresAt,
		&isActive,
	); err != nil {
		if err == sql.ErrNoRows {
			return storage.Session{}, storage.ErrNotFound
		}
		return storage.Session{}, fmt.Errorf("get session %s: %w", userID, err)
	}
	session.CreatedAt = fromMillis(createdAt)
	session.ExpiresAt = fromMillis(expiresAt)
	session.IsActive = isActive != 0
	return session, nil
}

// UpsertSession replaces the user's session row, keeping one active session
// per user.
func (s *Store) UpsertSession(ctx context.Context, session storage.Session) error {
	session.UserID = strings.TrimSpace(session.UserID)
	if session.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	active := 0
	if session.IsActive {
		active = 1
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO sessions (user_id, business_unit, session_token, created_at, expires_at, is_active)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
	business_unit = excluded.business_unit,
	session_token = excluded.session_token,
	expires_at = excluded.expires_at,
	is_active = excluded.is_active
`,
		session.UserID,
		session.BusinessUnit,
		session.Token,
		toMillis(session.CreatedAt),
		toMillis(session.ExpiresAt),
		active,
	); err != nil {
		return fmt.Errorf("upsert session %s: %w", session.UserID, err)
	}
	return nil
}

var _ storage.RecordStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
