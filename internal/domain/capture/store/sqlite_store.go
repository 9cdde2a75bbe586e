package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/domain/capture/ports"
	"github.com/ManuGH/dashcam/internal/persistence/sqlite"
)

var migrations = []sqlite.Migration{
	{Version: 1, Statements: []string{
		`CREATE TABLE IF NOT EXISTS videos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			file_name TEXT NOT NULL UNIQUE,
			duration INTEGER NOT NULL,
			submitted INTEGER NOT NULL DEFAULT 0,
			address TEXT,
			latitude REAL,
			longitude REAL,
			created_at_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_videos_submitted ON videos(submitted)`,
	}},
	{Version: 2, Statements: []string{
		`CREATE INDEX IF NOT EXISTS idx_videos_address_null ON videos(id) WHERE address IS NULL`,
	}},
}

// SqliteStore implements ports.RecordStore using SQLite.
type SqliteStore struct {
	DB *sql.DB
}

var _ ports.RecordStore = (*SqliteStore)(nil)

// NewSqliteStore opens the database at dbPath and migrates it.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(db, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("record store: migration failed: %w", err)
	}
	return &SqliteStore{DB: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

// Verify checks the database file for structural damage. The full check
// reads every page and can take a while on large libraries.
func (s *SqliteStore) Verify(ctx context.Context, full bool) error {
	return sqlite.Check(ctx, s.DB, full)
}

func (s *SqliteStore) Insert(ctx context.Context, rec model.VideoRecord) (int64, error) {
	var lat, lng sql.NullFloat64
	if rec.Coordinates != nil {
		lat = sql.NullFloat64{Float64: rec.Coordinates.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: rec.Coordinates.Lng, Valid: true}
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO videos (title, file_name, duration, submitted, address, latitude, longitude, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Title, rec.FileName, rec.DurationSeconds, boolToInt(rec.Submitted), nullString(rec.Address), lat, lng, createdAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("%w: insert: %v", model.ErrPersistence, err)
	}
	if err := checkResult("insert", res, 1); err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: insert id: %v", model.ErrPersistence, err)
	}
	return id, nil
}

func (s *SqliteStore) UpdateTitle(ctx context.Context, id int64, title string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE videos SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("%w: update title: %v", model.ErrPersistence, err)
	}
	return checkResult("update_title", res, 1)
}

func (s *SqliteStore) UpdateAddress(ctx context.Context, id int64, address string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE videos SET address = ? WHERE id = ?`, address, id)
	if err != nil {
		return fmt.Errorf("%w: update address: %v", model.ErrPersistence, err)
	}
	return checkResult("update_address", res, 1)
}

func (s *SqliteStore) UpdateCoordinates(ctx context.Context, id int64, at model.LatLng) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE videos SET latitude = ?, longitude = ? WHERE id = ?`, at.Lat, at.Lng, id)
	if err != nil {
		return fmt.Errorf("%w: update coordinates: %v", model.ErrPersistence, err)
	}
	return checkResult("update_coordinates", res, 1)
}

// MarkSubmitted sets the flag on every id. Already-submitted rows still
// count as affected, so the flag only ever moves from false to true.
func (s *SqliteStore) MarkSubmitted(ctx context.Context, ids []int64) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	query, args := inClause(`UPDATE videos SET submitted = 1 WHERE id IN `, ids)
	return s.execBatch(ctx, "mark_submitted", query, args, int64(len(ids)))
}

func (s *SqliteStore) Delete(ctx context.Context, ids []int64) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	query, args := inClause(`DELETE FROM videos WHERE id IN `, ids)
	return s.execBatch(ctx, "delete", query, args, int64(len(ids)))
}

// execBatch runs a multi-row mutation and rolls back on a row-count mismatch.
func (s *SqliteStore) execBatch(ctx context.Context, op, query string, args []any, expected int64) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %s begin: %v", model.ErrPersistence, op, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", model.ErrPersistence, op, err)
	}
	if err := checkResult(op, res, expected); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %s commit: %v", model.ErrPersistence, op, err)
	}
	return nil
}

const selectColumns = `SELECT id, title, file_name, duration, submitted, address, latitude, longitude, created_at_ms FROM videos`

func (s *SqliteStore) Get(ctx context.Context, id int64) (model.VideoRecord, error) {
	row := s.DB.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.VideoRecord{}, fmt.Errorf("%w: %d", model.ErrNotFound, id)
	}
	if err != nil {
		return model.VideoRecord{}, fmt.Errorf("%w: get: %v", model.ErrPersistence, err)
	}
	return rec, nil
}

func (s *SqliteStore) Query(ctx context.Context, page, pageSize int, submittedOnly bool) ([]model.VideoRecord, error) {
	if page < 0 || pageSize <= 0 {
		return nil, fmt.Errorf("invalid page %d/%d", page, pageSize)
	}
	q := selectColumns
	if submittedOnly {
		q += ` WHERE submitted = 1`
	}
	q += ` ORDER BY id ASC LIMIT ? OFFSET ?`
	return s.queryRecords(ctx, q, pageSize, page*pageSize)
}

func (s *SqliteStore) PendingAddress(ctx context.Context) ([]model.VideoRecord, error) {
	return s.queryRecords(ctx, selectColumns+` WHERE address IS NULL ORDER BY id ASC`)
}

func (s *SqliteStore) queryRecords(ctx context.Context, q string, args ...any) ([]model.VideoRecord, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", model.ErrPersistence, err)
	}
	defer rows.Close()

	out := []model.VideoRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %v", model.ErrPersistence, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", model.ErrPersistence, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (model.VideoRecord, error) {
	var (
		rec       model.VideoRecord
		submitted int
		address   sql.NullString
		lat, lng  sql.NullFloat64
		createdMs int64
	)
	if err := sc.Scan(&rec.ID, &rec.Title, &rec.FileName, &rec.DurationSeconds, &submitted, &address, &lat, &lng, &createdMs); err != nil {
		return model.VideoRecord{}, err
	}
	rec.Submitted = submitted != 0
	if address.Valid {
		a := address.String
		rec.Address = &a
	}
	if lat.Valid && lng.Valid {
		rec.Coordinates = &model.LatLng{Lat: lat.Float64, Lng: lng.Float64}
	}
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return rec, nil
}

func checkResult(op string, res sql.Result, expected int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %s rows affected: %v", model.ErrPersistence, op, err)
	}
	return model.CheckAffected(op, expected, n)
}

func inClause(prefix string, ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return prefix + "(" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")", args
}

func uniqueIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
