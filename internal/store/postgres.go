package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

var postgresDialect = dialect{
	name:     "postgres",
	numbered: true,
	// Serializes publishers of one document for the rest of the transaction.
	publishLock: `SELECT pg_advisory_xact_lock(hashtext(?))`,
	isUnique: func(err error) bool {
		var pe *pq.Error
		return errors.As(err, &pe) && pe.Code == pqUniqueViolation
	},
	isBusy: func(err error) bool {
		var pe *pq.Error
		// serialization_failure, deadlock_detected
		return errors.As(err, &pe) && (pe.Code == "40001" || pe.Code == "40P01")
	},
}

// OpenPostgres connects to dsn, falling back to DATABASE_URL.
func OpenPostgres(ctx context.Context, dsn string) (Store, error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, fmt.Errorf("postgres store: database connection required (set storage.dsn or DATABASE_URL)")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres store: failed to connect: %w", err)
	}

	s, err := newSQLStore(ctx, db, postgresDialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
