// Package postgresdb provides the PostgreSQL-based implementation of the
// storage interface for persisting users and short links. It owns the
// uniqueness and expiration truth for link records.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/undefined7887/shortlink/internal/link"
	"github.com/undefined7887/shortlink/internal/models"
	"github.com/undefined7887/shortlink/internal/user"
)

// PostgresDB is a PostgreSQL-backed implementation of the link and user storage.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type initOptions struct {
	DBPreReset bool
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset enables dropping every table before running migrations.
// It is intended for test setups.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// New establishes a connection to the PostgreSQL database,
// runs schema migrations, and returns a configured PostgresDB instance.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil, fmt.Errorf("error while `result.resetDB()` calling: %w", err)
		}
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("error while `goose.SetDialect()` calling: %w", err)
	}

	if err := goose.Up(result.database, migrationsDir); err != nil {
		return nil, fmt.Errorf("error while `goose.Up()` calling: %w", err)
	}

	return result, nil
}

// CreateUser inserts a new user record and returns the generated identifier.
// A duplicate nickname yields models.ErrConflict.
func (db *PostgresDB) CreateUser(ctx context.Context, nickname, passwordHash string) (string, error) {
	row := db.database.QueryRowContext(
		ctx,
		`INSERT INTO users (nickname, password_hash) VALUES ($1, $2) RETURNING id`,
		nickname,
		passwordHash,
	)

	var userID string
	if err := row.Scan(&userID); err != nil {
		if isUniqueViolation(err) {
			return "", models.ErrConflict
		}
		return "", err
	}

	return userID, nil
}

// FindUserByNickname fetches a user by the unique nickname.
// Returns models.ErrNotFound when no such user exists.
func (db *PostgresDB) FindUserByNickname(ctx context.Context, nickname string) (*user.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT id, nickname, password_hash FROM users WHERE nickname = $1`,
		nickname,
	)

	usr := &user.User{}
	if err := row.Scan(&usr.ID, &usr.Nickname, &usr.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	return usr, nil
}

// CreateLink inserts a new link record. The store enforces identifier
// uniqueness: inserting an existing id yields models.ErrConflict.
// On success the record timestamps are filled from the database.
func (db *PostgresDB) CreateLink(ctx context.Context, lnk *link.Link) error {
	row := db.database.QueryRowContext(
		ctx,
		`
			INSERT INTO links (id, owner_id, url, expire_at)
				VALUES ($1, $2, $3, $4)
				RETURNING created_at, updated_at
		`,
		lnk.ID,
		ownerIDOrNull(lnk.OwnerID),
		lnk.URL,
		lnk.ExpireAt,
	)

	if err := row.Scan(&lnk.CreatedAt, &lnk.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return models.ErrConflict
		}
		return err
	}

	return nil
}

// FindResolvableLink returns the link only while it has not expired.
// Missing and expired links are indistinguishable: both yield models.ErrNotFound.
func (db *PostgresDB) FindResolvableLink(ctx context.Context, linkID string) (*link.Link, error) {
	row := db.database.QueryRowContext(
		ctx,
		selectLinkQuery+` WHERE id = $1 AND expire_at > now()`,
		linkID,
	)

	return scanLink(row)
}

// FindOwnedLink returns the link regardless of expiration, but only for its
// owner: an owner may inspect stats of an already expired link.
func (db *PostgresDB) FindOwnedLink(ctx context.Context, linkID, ownerID string) (*link.Link, error) {
	row := db.database.QueryRowContext(
		ctx,
		selectLinkQuery+` WHERE id = $1 AND owner_id = $2`,
		linkID,
		ownerID,
	)

	return scanLink(row)
}

// ListLinksByOwner returns every link owned by the given user.
func (db *PostgresDB) ListLinksByOwner(ctx context.Context, ownerID string) ([]link.Link, error) {
	rows, err := db.database.QueryContext(
		ctx,
		selectLinkQuery+` WHERE owner_id = $1 ORDER BY created_at`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}

	return scanLinks(rows)
}

// SearchLinksByOwner returns the owner's links whose destination URL contains
// the given substring. The match is case-sensitive.
func (db *PostgresDB) SearchLinksByOwner(ctx context.Context, ownerID, substring string) ([]link.Link, error) {
	rows, err := db.database.QueryContext(
		ctx,
		selectLinkQuery+` WHERE owner_id = $1 AND POSITION($2 IN url) > 0 ORDER BY created_at`,
		ownerID,
		substring,
	)
	if err != nil {
		return nil, err
	}

	return scanLinks(rows)
}

// RecordAccess atomically adds count redirects to the link statistics and
// stamps the last access time. A missing row is a no-op: the redirect that
// triggered the update must not fail because the link is already gone.
func (db *PostgresDB) RecordAccess(ctx context.Context, linkID string, count int64, accessedAt time.Time) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			UPDATE links
				SET access_count = access_count + $2,
					last_access_at = $3
				WHERE id = $1
		`,
		linkID,
		count,
		accessedAt,
	)

	return err
}

// UpdateLinkURL replaces the destination URL of the owner's link and
// refreshes updated_at. Returns models.ErrNotFound when the link does not
// exist or belongs to someone else.
func (db *PostgresDB) UpdateLinkURL(ctx context.Context, linkID, ownerID, url string) error {
	result, err := db.database.ExecContext(
		ctx,
		`
			UPDATE links
				SET url = $3,
					updated_at = now()
				WHERE id = $1 AND owner_id = $2
		`,
		linkID,
		ownerID,
		url,
	)
	if err != nil {
		return err
	}

	return requireAffectedRow(result)
}

// DeleteLink removes the owner's link. Returns models.ErrNotFound when the
// link does not exist or belongs to someone else.
func (db *PostgresDB) DeleteLink(ctx context.Context, linkID, ownerID string) error {
	result, err := db.database.ExecContext(
		ctx,
		`DELETE FROM links WHERE id = $1 AND owner_id = $2`,
		linkID,
		ownerID,
	)
	if err != nil {
		return err
	}

	return requireAffectedRow(result)
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection and releases any associated resources.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

const selectLinkQuery = `
	SELECT id, COALESCE(owner_id::text, ''), url, access_count, last_access_at, created_at, updated_at, expire_at
		FROM links
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*link.Link, error) {
	lnk := &link.Link{}
	err := row.Scan(
		&lnk.ID,
		&lnk.OwnerID,
		&lnk.URL,
		&lnk.AccessCount,
		&lnk.LastAccessAt,
		&lnk.CreatedAt,
		&lnk.UpdatedAt,
		&lnk.ExpireAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	return lnk, nil
}

func scanLinks(rows *sql.Rows) ([]link.Link, error) {
	defer rows.Close()

	result := []link.Link{}
	for rows.Next() {
		lnk, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *lnk)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func requireAffectedRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrNotFound
	}

	return nil
}

func ownerIDOrNull(ownerID string) sql.NullString {
	return sql.NullString{
		String: ownerID,
		Valid:  ownerID != "",
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)

	return err
}
