package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists history records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_histories (
			id TEXT PRIMARY KEY,
			user_ip TEXT NOT NULL DEFAULT '',
			messages JSONB NOT NULL DEFAULT '[]'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_histories_updated ON chat_histories (updated_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, id, userIP string, messages []Message) (string, error) {
	if messages == nil {
		messages = []Message{}
	}
	body, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("encode messages: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO chat_histories (id, user_ip, messages, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (id) DO UPDATE SET messages = EXCLUDED.messages, updated_at = EXCLUDED.updated_at`,
		id,
		userIP,
		body,
		now,
	)
	if err != nil {
		return "", fmt.Errorf("save history: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	var (
		rec  Record
		body []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_ip, messages, created_at, updated_at FROM chat_histories WHERE id=$1`,
		id,
	).Scan(&rec.ID, &rec.UserIP, &body, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	if err := json.Unmarshal(body, &rec.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
