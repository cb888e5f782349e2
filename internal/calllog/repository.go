package calllog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatcall/pkg/utils"
)

// Dialect selects DDL for the configured database/sql driver.
// Queries themselves are shared; both drivers accept $N placeholders.
type Dialect string

const (
	DialectPostgres Dialect = "pgx"
	DialectSQLite   Dialect = "sqlite"
)

// Timestamps are stored as unix milliseconds so both drivers scan them the same way.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS call_logs (
	id BIGSERIAL PRIMARY KEY,
	room_id BIGINT NOT NULL,
	caller_id BIGINT NOT NULL,
	receiver_id BIGINT NOT NULL,
	status TEXT NOT NULL DEFAULT 'missed',
	call_type TEXT NOT NULL DEFAULT 'audio',
	started_at BIGINT NULL,
	ended_at BIGINT NULL,
	duration INTEGER NULL,
	recording_path TEXT NOT NULL DEFAULT '',
	recording_processing BOOLEAN NOT NULL DEFAULT FALSE,
	recording_chunks INTEGER NOT NULL DEFAULT 0,
	recording_size BIGINT NULL,
	recording_mime_type TEXT NOT NULL DEFAULT '',
	has_recording BOOLEAN NOT NULL DEFAULT FALSE,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS call_logs_caller_idx ON call_logs (caller_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS call_logs_receiver_idx ON call_logs (receiver_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS call_logs_room_idx ON call_logs (room_id, created_at)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS call_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id INTEGER NOT NULL,
	caller_id INTEGER NOT NULL,
	receiver_id INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'missed',
	call_type TEXT NOT NULL DEFAULT 'audio',
	started_at INTEGER NULL,
	ended_at INTEGER NULL,
	duration INTEGER NULL,
	recording_path TEXT NOT NULL DEFAULT '',
	recording_processing INTEGER NOT NULL DEFAULT 0,
	recording_chunks INTEGER NOT NULL DEFAULT 0,
	recording_size INTEGER NULL,
	recording_mime_type TEXT NOT NULL DEFAULT '',
	has_recording INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS call_logs_caller_idx ON call_logs (caller_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS call_logs_receiver_idx ON call_logs (receiver_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS call_logs_room_idx ON call_logs (room_id, created_at)`,
}

const selectColumns = `
SELECT id, room_id, caller_id, receiver_id, status, call_type,
	started_at, ended_at, duration,
	recording_path, recording_processing, recording_chunks, recording_size, recording_mime_type, has_recording,
	created_at, updated_at
FROM call_logs`

// SQLStore is the database/sql Store used with pgx (Postgres) or modernc sqlite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	clock   func() time.Time
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, clock: time.Now}
}

// Migrate creates the call_logs table and indexes if missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if s.dialect == DialectSQLite {
		stmts = sqliteSchema
	}
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("calllog migrate: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLStore) Create(ctx context.Context, in NewCall) (CallLog, error) {
	if in.CallerID <= 0 || in.ReceiverID <= 0 {
		return CallLog{}, ErrInvalidArgument
	}
	const q = `
INSERT INTO call_logs (room_id, caller_id, receiver_id, status, call_type,
	recording_processing, has_recording, recording_chunks, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $8)
RETURNING id
`
	now := s.clock()
	c := CallLog{
		RoomID:     in.RoomID,
		CallerID:   in.CallerID,
		ReceiverID: in.ReceiverID,
		Status:     StatusMissed,
		CallType:   ParseCallType(string(in.CallType)),
		CreatedAt:  fromMillis(toMillis(now)),
		UpdatedAt:  fromMillis(toMillis(now)),
	}
	if err := s.db.QueryRowContext(ctx, q,
		c.RoomID,
		c.CallerID,
		c.ReceiverID,
		string(c.Status),
		string(c.CallType),
		false,
		false,
		toMillis(now),
	).Scan(&c.ID); err != nil {
		return CallLog{}, fmt.Errorf("calllog create: %w", err)
	}
	return c, nil
}

func (s *SQLStore) Get(ctx context.Context, id int64) (CallLog, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id)
	c, err := scanCallLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallLog{}, ErrNotFound
		}
		return CallLog{}, err
	}
	return c, nil
}

func (s *SQLStore) MarkAnswered(ctx context.Context, id int64, at time.Time) error {
	const q = `
UPDATE call_logs SET status = $2, started_at = $3, updated_at = $4
WHERE id = $1
`
	return s.exec(ctx, q, id, string(StatusAnswered), toMillis(at), toMillis(s.clock()))
}

func (s *SQLStore) MarkEnded(ctx context.Context, id int64, status Status, at time.Time) error {
	if !status.Terminal() {
		return ErrInvalidArgument
	}
	const q = `
UPDATE call_logs SET status = $2, ended_at = $3, duration = 0, updated_at = $4
WHERE id = $1
`
	return s.exec(ctx, q, id, string(status), toMillis(at), toMillis(s.clock()))
}

func (s *SQLStore) Finish(ctx context.Context, id int64, at time.Time) error {
	// Duration is derived in SQL from the stored started_at so it stays a
	// single-statement update.
	const q = `
UPDATE call_logs SET
	ended_at = $2,
	duration = CASE WHEN started_at IS NULL OR $2 < started_at THEN 0 ELSE ($2 - started_at) / 1000 END,
	updated_at = $3
WHERE id = $1
`
	return s.exec(ctx, q, id, toMillis(at), toMillis(s.clock()))
}

func (s *SQLStore) IncrementChunks(ctx context.Context, id int64) (int, error) {
	const q = `
UPDATE call_logs SET recording_chunks = recording_chunks + 1, updated_at = $2
WHERE id = $1
RETURNING recording_chunks
`
	var n int
	if err := s.db.QueryRowContext(ctx, q, id, toMillis(s.clock())).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("calllog increment chunks: %w", err)
	}
	return n, nil
}

func (s *SQLStore) RequestRecording(ctx context.Context, id int64) error {
	const q = `
UPDATE call_logs SET recording_processing = $2, updated_at = $3
WHERE id = $1
`
	return s.exec(ctx, q, id, true, toMillis(s.clock()))
}

func (s *SQLStore) CompleteRecording(ctx context.Context, id int64, rec Recording) error {
	const q = `
UPDATE call_logs SET
	recording_path = $2,
	recording_size = $3,
	recording_mime_type = $4,
	has_recording = $5,
	recording_processing = $6,
	updated_at = $7
WHERE id = $1
`
	return s.exec(ctx, q, id, rec.Path, rec.Size, rec.MimeType, true, false, toMillis(s.clock()))
}

func (s *SQLStore) FailRecording(ctx context.Context, id int64) error {
	const q = `
UPDATE call_logs SET recording_processing = $2, has_recording = $3, updated_at = $4
WHERE id = $1
`
	return s.exec(ctx, q, id, false, false, toMillis(s.clock()))
}

func (s *SQLStore) List(ctx context.Context, f Filter) ([]CallLog, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch {
	case f.MissedOnly && f.UserID > 0:
		where = append(where, "receiver_id = "+arg(f.UserID))
	case f.UserID > 0:
		p := arg(f.UserID)
		where = append(where, "(caller_id = "+p+" OR receiver_id = "+p+")")
	}
	if f.MissedOnly {
		where = append(where, "status = "+arg(string(StatusMissed)))
	}
	if f.RoomID > 0 {
		where = append(where, "room_id = "+arg(f.RoomID))
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= "+arg(toMillis(f.From)))
	}
	if !f.To.IsZero() {
		where = append(where, "created_at < "+arg(toMillis(f.To)))
	}

	q := selectColumns
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	q += "\nORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		q += "\nLIMIT " + arg(f.Limit)
		if f.Offset > 0 {
			q += " OFFSET " + arg(f.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("calllog list: %w", err)
	}
	defer rows.Close()

	out := make([]CallLog, 0)
	for rows.Next() {
		c, err := scanCallLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) exec(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("calllog update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCallLog(row scanner) (CallLog, error) {
	var (
		c                  CallLog
		status, callType   string
		startedAt, endedAt sql.NullInt64
		duration           sql.NullInt64
		recSize            sql.NullInt64
		createdAt          int64
		updatedAt          int64
	)
	if err := row.Scan(
		&c.ID,
		&c.RoomID,
		&c.CallerID,
		&c.ReceiverID,
		&status,
		&callType,
		&startedAt,
		&endedAt,
		&duration,
		&c.RecordingPath,
		&c.RecordingProcessing,
		&c.RecordingChunks,
		&recSize,
		&c.RecordingMimeType,
		&c.HasRecording,
		&createdAt,
		&updatedAt,
	); err != nil {
		return CallLog{}, err
	}
	c.Status = Status(status)
	c.CallType = CallType(callType)
	c.StartedAt = nullMillis(startedAt)
	c.EndedAt = nullMillis(endedAt)
	if duration.Valid {
		d := int(duration.Int64)
		c.Duration = &d
	}
	if recSize.Valid {
		n := recSize.Int64
		c.RecordingSize = &n
	}
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
