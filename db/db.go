package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

/**
DB tables:
- users:
	- chat ID: bigint - chat to deliver messages to, unique
	- username: text - Telegram username, reminder recipients are resolved by it
	- firstname: text - display name
	- role: text - 'user' or 'admin'

- categories, subjects, teachers: id + name reference data

- videos:
	- category/subject/teacher IDs - browse dimensions, nullable
	- telegram_file_id: text - media handle to resend
	- name: text

- reminders:
	- username: text - recipient, resolved at delivery time
	- remind_at: timestamptz - due instant
	- text: text - message body
	- attempts: smallint - failed delivery attempts so far
	- state: smallint - 0 pending, 1 dead-lettered
*/

var noCtx = context.Background()

// PgxIface is the subset of pgxpool.Pool the store uses; pgxmock provides
// a drop-in implementation for tests.
type PgxIface interface {
	Begin(context.Context) (pgx.Tx, error)
	BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

type Database struct {
	Conn PgxIface
}

func NewDatabase(connStr string) (*Database, error) {
	pool, err := pgxpool.New(noCtx, connStr)
	if err != nil {
		return nil, errors.Wrap(err, "failed creating connection pool")
	}

	if err = pool.Ping(noCtx); err != nil {
		return nil, errors.Wrap(err, "failed pinging database")
	}

	return &Database{Conn: pool}, nil
}

// Migrate creates missing tables.
func (d *Database) Migrate() error {
	_, err := d.Conn.Exec(noCtx, `
CREATE TABLE IF NOT EXISTS users(
	id SERIAL PRIMARY KEY,
	chat_id BIGINT NOT NULL UNIQUE,
	username TEXT NOT NULL,
	firstname TEXT,
	role TEXT NOT NULL);

CREATE TABLE IF NOT EXISTS categories(
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL);

CREATE TABLE IF NOT EXISTS subjects(
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL);

CREATE TABLE IF NOT EXISTS teachers(
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL);

CREATE TABLE IF NOT EXISTS videos(
	id SERIAL PRIMARY KEY,
	category_id INT REFERENCES categories(id),
	subject_id INT REFERENCES subjects(id),
	teacher_id INT REFERENCES teachers(id),
	telegram_file_id TEXT NOT NULL,
	name TEXT NOT NULL);

CREATE TABLE IF NOT EXISTS reminders(
	id SERIAL PRIMARY KEY,
	username TEXT NOT NULL,
	remind_at TIMESTAMPTZ NOT NULL,
	text TEXT NOT NULL,
	attempts SMALLINT NOT NULL DEFAULT 0,
	state SMALLINT NOT NULL DEFAULT 0)`)
	if err != nil {
		return errors.Wrap(err, "failed creating tables")
	}
	return nil
}

// CreateUser inserts a new user or, if the chat is already known, updates
// the username and role (the bot may have been re-added under a new role).
func (d *Database) CreateUser(chatID int64, username, firstname, role string) error {
	tx, err := d.Conn.BeginTx(noCtx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(noCtx)

	var id int
	err = tx.QueryRow(noCtx, `SELECT id FROM users WHERE chat_id=$1`, chatID).Scan(&id)

	switch {
	case err == pgx.ErrNoRows:
		if _, err := tx.Exec(noCtx, `INSERT INTO users(chat_id, username, firstname, role)
VALUES($1, $2, $3, $4)`, chatID, username, firstname, role); err != nil {
			return errors.Wrap(err, "failed inserting user")
		}

	case err != nil:
		return errors.Wrap(err, "failed looking up user")

	default:
		if _, err := tx.Exec(noCtx, `UPDATE users SET username=$1, firstname=$2, role=$3
WHERE chat_id=$4`, username, firstname, role, chatID); err != nil {
			return errors.Wrap(err, "failed updating user")
		}
	}

	if err := tx.Commit(noCtx); err != nil {
		return errors.Wrap(err, "failed adding user")
	}
	return nil
}

// UserByChatID returns the user or nil when the chat is unknown.
func (d *Database) UserByChatID(chatID int64) (*User, error) {
	var u User
	err := d.Conn.QueryRow(noCtx, `SELECT id, chat_id, username, firstname, role
FROM users
WHERE chat_id=$1`, chatID).Scan(&u.ID, &u.ChatID, &u.Username, &u.Firstname, &u.Role)

	switch {
	case err == pgx.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(err, "failed fetching user by chat ID")
	}

	return &u, nil
}

// UserByUsername returns the user or nil when the name doesn't resolve.
func (d *Database) UserByUsername(username string) (*User, error) {
	var u User
	err := d.Conn.QueryRow(noCtx, `SELECT id, chat_id, username, firstname, role
FROM users
WHERE username=$1`, username).Scan(&u.ID, &u.ChatID, &u.Username, &u.Firstname, &u.Role)

	switch {
	case err == pgx.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(err, "failed fetching user by username")
	}

	return &u, nil
}

func (d *Database) ChangeRole(chatID int64, role string) error {
	if _, err := d.Conn.Exec(noCtx, `UPDATE users SET role=$1 WHERE chat_id=$2`, role, chatID); err != nil {
		return errors.Wrap(err, "failed changing role")
	}
	return nil
}

// GetUsersInfo returns per-role counts and the list of admin usernames.
func (d *Database) GetUsersInfo() (*UsersInfo, error) {
	var info UsersInfo
	err := d.Conn.QueryRow(noCtx, `SELECT count(*),
count(*) FILTER (WHERE role=$1),
count(*) FILTER (WHERE role=$2),
COALESCE(array_agg(username) FILTER (WHERE role=$1), '{}')
FROM users`, RoleAdmin, RoleUser).Scan(&info.Total, &info.Admins, &info.Users, &info.AdminNames)
	if err != nil {
		return nil, errors.Wrap(err, "failed fetching users info")
	}
	return &info, nil
}
