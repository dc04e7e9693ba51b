// Package postgres implements the store ports over PostgreSQL with
// plain database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
	"github.com/rivalapexmediation/migration-engine/internal/ports"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx,
// so every repository works identically inside and outside ExecTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements ports.Store over one PostgreSQL database.
type Store struct {
	db *sql.DB
	q  querier
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, domain.Transient("ping postgres", err)
	}
	return NewStore(db), nil
}

// NewStore wraps an existing database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// DB exposes the raw handle for schema migration.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Experiments() ports.ExperimentRepository { return &experimentRepository{q: s.q} }
func (s *Store) Mappings() ports.MappingRepository       { return &mappingRepository{q: s.q} }
func (s *Store) Imports() ports.ImportRepository         { return &importRepository{q: s.q} }
func (s *Store) Snapshots() ports.SnapshotRepository     { return &snapshotRepository{q: s.q} }
func (s *Store) Events() ports.EventRepository           { return &eventRepository{q: s.q} }
func (s *Store) Audit() ports.AuditRepository            { return &auditRepository{q: s.q} }

// ExecTx runs fn against a store bound to one transaction. The rollback
// on the error path is unconditional; Commit makes it a no-op.
func (s *Store) ExecTx(ctx context.Context, fn func(tx ports.Store) error) error {
	if s.db == nil {
		return errors.New("postgres: ExecTx on a transaction-scoped store")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Transient("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.Transient("commit tx", err)
	}
	return nil
}
