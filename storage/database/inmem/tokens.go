package inmemdb

import (
	"context"
	"sort"

	"github.com/studyhall/backend/core/notification"
)

type tokenRepository struct {
	db *DB
}

func NewTokenRepository(db *DB) notification.Repository {
	return &tokenRepository{db: db}
}

func (repo *tokenRepository) SaveToken(_ context.Context, t notification.Token) (notification.Token, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if existing, ok := repo.db.tokens[t.Token]; ok {
		t.CreatedAt = existing.CreatedAt
	}
	repo.db.tokens[t.Token] = &t
	return t, nil
}

func (repo *tokenRepository) DeleteTokens(_ context.Context, tokens ...string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, t := range tokens {
		delete(repo.db.tokens, t)
	}
	return nil
}

func (repo *tokenRepository) ListTokens(_ context.Context, userID string) ([]notification.Token, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	tokens := make([]notification.Token, 0)
	for _, t := range repo.db.tokens {
		if t.UserID == userID {
			tokens = append(tokens, *t)
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].CreatedAt.Before(tokens[j].CreatedAt) })
	return tokens, nil
}
