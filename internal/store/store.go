// Package store journals trade transitions to postgres. The journal is
// optional: an empty DSN disables it and the engine runs in-memory only.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rayfire/sniper/internal/engine"
)

type Store struct {
	db *sql.DB
}

func NewStore(dbDSN string) (*Store, error) {
	db, err := sql.Open("pgx", dbDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(30 * time.Second)
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS trade_transitions (
			id BIGSERIAL PRIMARY KEY,
			mint TEXT NOT NULL,
			pool TEXT NOT NULL,
			source TEXT NOT NULL,
			state TEXT NOT NULL,
			reason TEXT NOT NULL,
			signature TEXT NOT NULL,
			at BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_transitions_mint ON trade_transitions(mint);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_transitions_at ON trade_transitions(at);`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// RecordTransition appends one lifecycle transition. It implements
// engine.Journal.
func (s *Store) RecordTransition(ctx context.Context, u engine.Update) error {
	query := rebindPostgresPlaceholders(
		`INSERT INTO trade_transitions (mint, pool, source, state, reason, signature, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		u.Mint, u.Pool, u.Source, string(u.State), u.Reason, u.Signature, u.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert trade transition: %w", err)
	}
	return nil
}

// TransitionRecord is one journaled row, newest first from
// RecentTransitions.
type TransitionRecord struct {
	Mint      string
	Pool      string
	Source    string
	State     string
	Reason    string
	Signature string
	At        time.Time
}

func (s *Store) RecentTransitions(ctx context.Context, limit int) ([]TransitionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := rebindPostgresPlaceholders(
		`SELECT mint, pool, source, state, reason, signature, at
		 FROM trade_transitions ORDER BY id DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query trade transitions: %w", err)
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var rec TransitionRecord
		var atMillis int64
		if err := rows.Scan(&rec.Mint, &rec.Pool, &rec.Source, &rec.State, &rec.Reason, &rec.Signature, &atMillis); err != nil {
			return nil, fmt.Errorf("scan trade transition: %w", err)
		}
		rec.At = time.UnixMilli(atMillis)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func rebindPostgresPlaceholders(query string) string {
	var out strings.Builder
	out.Grow(len(query) + 16)

	arg := 1
	inSingleQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '\'' {
			out.WriteByte(ch)
			if inSingleQuote {
				// SQL escape: two single quotes inside a string literal.
				if i+1 < len(query) && query[i+1] == '\'' {
					out.WriteByte(query[i+1])
					i++
					continue
				}
				inSingleQuote = false
			} else {
				inSingleQuote = true
			}
			continue
		}

		if ch == '?' && !inSingleQuote {
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(arg))
			arg++
			continue
		}

		out.WriteByte(ch)
	}

	return out.String()
}
