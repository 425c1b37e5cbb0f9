package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"imagebot/internal/domain"
)

// PostgresStore persists sessions in a single table keyed by chat ID.
// Generation state is stored as JSONB so stage handlers can evolve the
// structure without migrations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the sessions table when it does not exist yet.
func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
CREATE TABLE IF NOT EXISTS sessions (
    chat_id      BIGINT PRIMARY KEY,
    username     TEXT NOT NULL DEFAULT '',
    company      TEXT NOT NULL DEFAULT '',
    assistance   TEXT NOT NULL DEFAULT '',
    stage        TEXT NOT NULL DEFAULT 'idle',
    resume_stage TEXT NOT NULL DEFAULT '',
    image_info   JSONB NOT NULL DEFAULT '{}'::jsonb,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	_, err := r.pool.Exec(ctx, query)
	return err
}

func (r *PostgresStore) Get(ctx context.Context, chatID int64) (*domain.UserSession, error) {
	query := `
SELECT chat_id, username, company, assistance, stage, resume_stage, image_info
FROM sessions
WHERE chat_id = $1;
`
	row := r.pool.QueryRow(ctx, query, chatID)
	var (
		s        domain.UserSession
		infoJSON []byte
	)
	if err := row.Scan(
		&s.ChatID,
		&s.Username,
		&s.Company,
		&s.Assistance,
		&s.Stage,
		&s.ResumeStage,
		&infoJSON,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %d: %w", chatID, domain.ErrNotFound)
		}
		return nil, err
	}
	if len(infoJSON) > 0 {
		if err := json.Unmarshal(infoJSON, &s.ImageInfo); err != nil {
			return nil, fmt.Errorf("decode image_info for %d: %w", chatID, err)
		}
	}
	return &s, nil
}

func (r *PostgresStore) Save(ctx context.Context, s *domain.UserSession) error {
	infoJSON, err := json.Marshal(s.ImageInfo)
	if err != nil {
		return fmt.Errorf("encode image_info for %d: %w", s.ChatID, err)
	}
	query := `
INSERT INTO sessions (chat_id, username, company, assistance, stage, resume_stage, image_info, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
ON CONFLICT (chat_id) DO UPDATE SET
    username     = EXCLUDED.username,
    company      = EXCLUDED.company,
    assistance   = EXCLUDED.assistance,
    stage        = EXCLUDED.stage,
    resume_stage = EXCLUDED.resume_stage,
    image_info   = EXCLUDED.image_info,
    updated_at   = NOW();
`
	_, err = r.pool.Exec(ctx, query,
		s.ChatID,
		s.Username,
		s.Company,
		s.Assistance,
		s.Stage,
		s.ResumeStage,
		infoJSON,
	)
	return err
}

func (r *PostgresStore) Delete(ctx context.Context, chatID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE chat_id = $1;`, chatID)
	return err
}

var _ Store = (*PostgresStore)(nil)
