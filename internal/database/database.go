package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"offers-function/internal/models"
)

const (
	maxOpenConnections     = 5
	maxIdleConnections     = 2
	connectionsMaxIdleTime = 2 * time.Minute
	connectionsLifetime    = 30 * time.Minute
	pingTimeout            = 5 * time.Second
)

// Dialect identifies the SQL backend behind a DSN.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// ErrNoDSN is returned when no connection string was configured.
var ErrNoDSN = errors.New("database: DATABASE_URL is not set")

// DB wraps the database handle. Callers obtain a Session per invocation.
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// DetectDialect picks the backend from the DSN scheme.
func DetectDialect(dsn string) (Dialect, error) {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"),
		strings.Contains(lower, "host="):
		return DialectPostgres, nil
	case strings.HasPrefix(lower, "file:"), strings.HasSuffix(lower, ".db"), lower == ":memory:":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("database: unsupported DSN %q", redact(dsn))
	}
}

// NewDB opens the database described by dsn and verifies it is reachable.
func NewDB(ctx context.Context, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}

	dialect, err := DetectDialect(dsn)
	if err != nil {
		return nil, err
	}

	driver := "pgx"
	if dialect == DialectSQLite {
		driver = "sqlite3"
		if !strings.Contains(dsn, "_busy_timeout") {
			dsn += separator(dsn) + "_busy_timeout=5000"
		}
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	configurePool(conn, dialect)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn, dialect: dialect}, nil
}

func configurePool(conn *sql.DB, dialect Dialect) {
	if dialect == DialectSQLite {
		// sqlite allows a single writer; sessions queue for the connection.
		conn.SetMaxOpenConns(1)
		return
	}
	conn.SetMaxOpenConns(maxOpenConnections)
	conn.SetMaxIdleConns(maxIdleConnections)
	conn.SetConnMaxIdleTime(connectionsMaxIdleTime)
	conn.SetConnMaxLifetime(connectionsLifetime)
}

// Dialect reports the backend in use.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Close closes the database handle.
func (db *DB) Close() error {
	return db.conn.Close()
}

// EnsureSchema creates the offers table if it doesn't exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS offers (
		id SERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		reward TEXT NOT NULL,
		telegram_link TEXT NOT NULL,
		views_count INTEGER DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
	if db.dialect == DialectSQLite {
		query = strings.Replace(query, "id SERIAL PRIMARY KEY", "id INTEGER PRIMARY KEY AUTOINCREMENT", 1)
	}

	if _, err := db.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create offers table: %w", err)
	}

	index := `CREATE INDEX IF NOT EXISTS idx_offers_active_created ON offers(is_active, created_at)`
	if _, err := db.conn.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("failed to create offers index: %w", err)
	}

	return nil
}

// Session acquires a dedicated connection for one invocation.
// The caller must Close it on every path.
func (db *DB) Session(ctx context.Context) (*Session, error) {
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Session{conn: conn}, nil
}

// Session runs the offer statements on a single connection.
type Session struct {
	conn *sql.Conn
}

// Close releases the connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

const offerColumns = `id, title, description, reward, telegram_link, views_count, is_active, created_at`

// ListActiveOffers returns active offers, newest first.
func (s *Session) ListActiveOffers(ctx context.Context) ([]models.Offer, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE is_active = true ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active offers: %w", err)
	}
	defer rows.Close()

	offers := []models.Offer{}
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offers: %w", err)
	}

	return offers, nil
}

// InsertOffer inserts an offer with zero views and returns its id.
func (s *Session) InsertOffer(ctx context.Context, offer models.NewOffer) (int64, error) {
	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO offers (title, description, reward, telegram_link, views_count)
			VALUES ($1, $2, $3, $4, 0) RETURNING id`,
			offer.Title, offer.Description, offer.Reward, offer.TelegramLink,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert offer: %w", err)
	}
	return id, nil
}

// IncrementViews adds one view to the offer. It reports the number of rows updated.
func (s *Session) IncrementViews(ctx context.Context, id int64) (int64, error) {
	n, err := s.execTx(ctx, `UPDATE offers SET views_count = COALESCE(views_count, 0) + 1 WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to count view: %w", err)
	}
	return n, nil
}

// DeactivateOffer soft-deletes the offer. Repeated calls are no-ops.
func (s *Session) DeactivateOffer(ctx context.Context, id int64) (int64, error) {
	n, err := s.execTx(ctx, `UPDATE offers SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate offer: %w", err)
	}
	return n, nil
}

func (s *Session) execTx(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var affected int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

func (s *Session) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOffer(row scanner) (models.Offer, error) {
	var (
		offer     models.Offer
		views     sql.NullInt64
		createdAt sql.NullTime
	)

	err := row.Scan(
		&offer.ID,
		&offer.Title,
		&offer.Description,
		&offer.Reward,
		&offer.TelegramLink,
		&views,
		&offer.IsActive,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Offer{}, err
		}
		return models.Offer{}, fmt.Errorf("failed to scan offer: %w", err)
	}

	if views.Valid {
		offer.ViewsCount = &views.Int64
	}
	if createdAt.Valid {
		offer.CreatedAt = &createdAt.Time
	}

	return offer, nil
}

func separator(dsn string) string {
	if strings.Contains(dsn, "?") {
		return "&"
	}
	return "?"
}

func redact(dsn string) string {
	if i := strings.Index(dsn, "@"); i >= 0 {
		return "***" + dsn[i:]
	}
	return dsn
}
