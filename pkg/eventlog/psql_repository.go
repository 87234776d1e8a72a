package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// DB is a DBTX that can open transactions. *pgxpool.Pool, *pgx.Conn and
// pgx.Tx all satisfy it.
type DB interface {
	DBTX
	Begin(context.Context) (pgx.Tx, error)
}

// Schema creates the event table. Sequence is assigned by Append, not by
// the database, so that it stays gap-free.
const Schema = `
CREATE TABLE IF NOT EXISTS pluser_event (
	sequence   BIGINT PRIMARY KEY,
	id         UUID NOT NULL UNIQUE,
	block_time BIGINT NOT NULL,
	emitter    TEXT NOT NULL,
	sender     TEXT NOT NULL,
	name       TEXT NOT NULL,
	args       JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS pluser_event_emitter_idx ON pluser_event (emitter, sequence);
CREATE INDEX IF NOT EXISTS pluser_event_name_idx ON pluser_event (name, sequence);
`

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a new PostgreSQL event repository
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the event table and indexes if they are missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create event schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Append(ctx context.Context, events ...Event) ([]Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serializes concurrent writers so sequences stay contiguous.
	if _, err := tx.Exec(ctx, "LOCK TABLE pluser_event IN EXCLUSIVE MODE"); err != nil {
		return nil, fmt.Errorf("failed to lock event table: %w", err)
	}

	last, err := lastSequence(ctx, tx)
	if err != nil {
		return nil, err
	}

	stored := stamp(events, last, time.Now().UTC())
	for _, e := range stored {
		args, err := json.Marshal(e.Args)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event args: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO pluser_event (sequence, id, block_time, emitter, sender, name, args, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)`,
			int64(e.Sequence), e.ID, int64(e.BlockTime), e.Emitter.Hex(), e.Sender.Hex(), e.Name, string(args), e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert event %s: %w", e.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit events: %w", err)
	}
	slog.Debug("Events appended", "count", len(stored), "last_sequence", stored[len(stored)-1].Sequence)
	return stored, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]Event, error) {
	if filter.AfterSequence > math.MaxInt64 {
		return nil, nil
	}

	var (
		where []string
		args  []interface{}
	)
	args = append(args, int64(filter.AfterSequence))
	where = append(where, fmt.Sprintf("sequence > $%d", len(args)))
	if filter.Emitter != nil {
		args = append(args, filter.Emitter.Hex())
		where = append(where, fmt.Sprintf("emitter = $%d", len(args)))
	}
	if filter.Name != "" {
		args = append(args, filter.Name)
		where = append(where, fmt.Sprintf("name = $%d", len(args)))
	}

	query := `SELECT sequence, id, block_time, emitter, sender, name, args, created_at
		FROM pluser_event WHERE ` + strings.Join(where, " AND ") + ` ORDER BY sequence`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

func (r *PostgresRepository) LastSequence(ctx context.Context) (uint64, error) {
	return lastSequence(ctx, r.db)
}

func lastSequence(ctx context.Context, db DBTX) (uint64, error) {
	var last int64
	if err := db.QueryRow(ctx, "SELECT COALESCE(MAX(sequence), 0) FROM pluser_event").Scan(&last); err != nil {
		return 0, fmt.Errorf("failed to read last sequence: %w", err)
	}
	return uint64(last), nil
}

func scanEvent(row pgx.Row) (Event, error) {
	var (
		e               Event
		sequence, block int64
		id              uuid.UUID
		emitter, sender string
		rawArgs         []byte
	)
	if err := row.Scan(&sequence, &id, &block, &emitter, &sender, &e.Name, &rawArgs, &e.CreatedAt); err != nil {
		return Event{}, fmt.Errorf("failed to scan event: %w", err)
	}
	e.ID = id
	e.Sequence = uint64(sequence)
	e.BlockTime = uint64(block)
	e.Emitter = common.HexToAddress(emitter)
	e.Sender = common.HexToAddress(sender)
	e.CreatedAt = e.CreatedAt.UTC()
	if err := json.Unmarshal(rawArgs, &e.Args); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event args: %w", err)
	}
	return e, nil
}
