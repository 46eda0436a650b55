package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/rollcall/internal/database"
)

// BackendName is the name the MariaDB/MySQL backend is registered under.
const BackendName = "mysql"

func init() {
	database.RegisterBackend(BackendName, func(opts database.BackendOptions) (database.Backend, error) {
		return Open(context.Background(), opts)
	})
}

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NormalizeDSN forces the driver options the repositories rely on:
// DATETIME columns scanned into time.Time, in UTC.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid MariaDB DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// NewPool creates a new MariaDB connection pool.
func NewPool(dsn string, maxOpen, maxIdle int) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	dsn, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	if maxOpen <= 0 {
		maxOpen = 5
	}
	if maxIdle <= 0 {
		maxIdle = 2
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS enrolled_embeddings (
		id         BIGINT AUTO_INCREMENT PRIMARY KEY,
		identity   VARCHAR(255) NOT NULL,
		model      VARCHAR(64) NOT NULL,
		embedding  LONGTEXT NOT NULL,
		image_ref  VARCHAR(1024) NOT NULL DEFAULT '',
		score      DOUBLE NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_model_identity (model, identity, id)
	) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin`,
	`CREATE TABLE IF NOT EXISTS attendance_sessions (
		id           CHAR(36) PRIMARY KEY,
		class_ref    VARCHAR(255) NOT NULL DEFAULT '',
		session_date DATE NOT NULL,
		start_time   DATETIME(6) NOT NULL,
		end_time     DATETIME(6) NULL,
		active       BOOLEAN NOT NULL DEFAULT TRUE,
		created_at   DATETIME(6) NOT NULL
	) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id         CHAR(36) PRIMARY KEY,
		session_id CHAR(36) NOT NULL,
		identity   VARCHAR(255) NOT NULL,
		status     VARCHAR(16) NOT NULL,
		confidence DOUBLE NOT NULL DEFAULT 0,
		image_ref  VARCHAR(1024) NOT NULL DEFAULT '',
		note       TEXT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_session_identity (session_id, identity),
		FOREIGN KEY (session_id) REFERENCES attendance_sessions(id)
	) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin`,
}

// EnsureSchema creates the tables if they do not exist.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Backend serves embedding and ledger repositories from one pool.
type Backend struct {
	pool *Pool
}

// Open connects to MariaDB and creates the schema.
func Open(ctx context.Context, opts database.BackendOptions) (*Backend, error) {
	pool, err := NewPool(opts.DSN, opts.MaxOpenConns, opts.MaxIdleConns)
	if err != nil {
		return nil, err
	}
	if err := pool.EnsureSchema(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return &Backend{pool: pool}, nil
}

// Embeddings returns the embedding repository scoped to model.
func (b *Backend) Embeddings(model string) (database.EmbeddingStore, error) {
	if model == "" {
		return nil, errors.New("model name is required")
	}
	return &EmbeddingRepository{pool: b.pool, model: model}, nil
}

// Ledger returns the session and record repository.
func (b *Backend) Ledger() (database.LedgerStore, error) {
	return &LedgerRepository{pool: b.pool}, nil
}

// Close closes the pool.
func (b *Backend) Close() error {
	return b.pool.Close()
}
