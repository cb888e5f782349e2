package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chatcall/pkg/utils"
)

// SQLDirectory reads the chat app's users and chat_room_participants tables.
type SQLDirectory struct {
	db *sql.DB
}

func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

// sqliteSchema mirrors the columns read here so local sqlite runs and tests
// have something to query. Postgres tables belong to the chat app.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY,
	username TEXT NOT NULL DEFAULT '',
	email TEXT NULL,
	"firstName" TEXT NULL,
	"lastName" TEXT NULL
)`,
	`CREATE TABLE IF NOT EXISTS chat_room_participants (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	"chatRoomId" INTEGER NOT NULL,
	"userId" INTEGER NOT NULL,
	"isRemoved" INTEGER NOT NULL DEFAULT 0,
	UNIQUE ("chatRoomId", "userId")
)`,
}

// MigrateSQLite creates the directory tables for a standalone sqlite database.
func (d *SQLDirectory) MigrateSQLite(ctx context.Context) error {
	return utils.WithTx(ctx, d.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, q := range sqliteSchema {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("directory migrate: %w", err)
			}
		}
		return nil
	})
}

func (d *SQLDirectory) DisplayName(ctx context.Context, userID int64) (string, error) {
	const q = `
SELECT id, COALESCE(username, ''), COALESCE(email, ''), COALESCE("firstName", ''), COALESCE("lastName", '')
FROM users
WHERE id = $1
`
	var u User
	if err := d.db.QueryRowContext(ctx, q, userID).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.FirstName,
		&u.LastName,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("directory display name: %w", err)
	}
	return u.DisplayName(), nil
}

func (d *SQLDirectory) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	const q = `
SELECT COUNT(*)
FROM chat_room_participants
WHERE "chatRoomId" = $1 AND "userId" = $2 AND "isRemoved" = $3
`
	var n int
	if err := d.db.QueryRowContext(ctx, q, roomID, userID, false).Scan(&n); err != nil {
		return false, fmt.Errorf("directory membership: %w", err)
	}
	return n > 0, nil
}

func (d *SQLDirectory) Members(ctx context.Context, roomID int64) ([]int64, error) {
	const q = `
SELECT "userId"
FROM chat_room_participants
WHERE "chatRoomId" = $1 AND "isRemoved" = $2
ORDER BY "userId"
`
	rows, err := d.db.QueryContext(ctx, q, roomID, false)
	if err != nil {
		return nil, fmt.Errorf("directory members: %w", err)
	}
	defer rows.Close()

	out := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
