package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DB wraps a database handle with circuit breaker protection.
// While the breaker is open, calls fail with ErrOpen without reaching the database.
type DB struct {
	cb *CircuitBreaker
	db *sql.DB
}

// DBConfig returns the breaker configuration for a database dependency.
// It trips when half of the last 10 round trips fail or take longer than 2s.
func DBConfig(name string) Config {
	cfg := DefaultConfig(name)
	cfg.SlowCallDurationThreshold = 2 * time.Second
	cfg.WaitDurationInOpenState = 30 * time.Second
	return cfg
}

// NewDB wraps db with a breaker built from cfg.
func NewDB(db *sql.DB, cfg Config) *DB {
	return &DB{cb: New(cfg), db: db}
}

// Breaker exposes the breaker for health and metrics views.
func (d *DB) Breaker() *CircuitBreaker {
	return d.cb
}

// ExecContext runs a statement as one guarded call.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := d.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		res, err = d.db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// PingContext checks the connection as one guarded call.
func (d *DB) PingContext(ctx context.Context) error {
	return d.cb.Execute(ctx, d.db.PingContext)
}

// InTx runs fn inside a transaction as one guarded call.
// The transaction commits when fn returns nil and rolls back otherwise.
func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return d.cb.Execute(ctx, func(ctx context.Context) error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		if err := fn(ctx, tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}
