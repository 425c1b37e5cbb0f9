// Package session persists per-chat conversation state.
package session

import (
	"context"

	"imagebot/internal/domain"
)

// Store loads and saves sessions keyed by chat ID. Get returns
// domain.ErrNotFound for chats that have never talked to the bot.
type Store interface {
	Get(ctx context.Context, chatID int64) (*domain.UserSession, error)
	Save(ctx context.Context, s *domain.UserSession) error
	Delete(ctx context.Context, chatID int64) error
}
