package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/studyhall/backend/core/audit"
)

type auditRepository struct {
	db *DB
}

func NewAuditRepository(db *DB) audit.Repository {
	return &auditRepository{db: db}
}

func (repo *auditRepository) CreateEntry(_ context.Context, e audit.Entry) (audit.Entry, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	e.ID = uuid.New().String()
	repo.db.auditLogs = append(repo.db.auditLogs, e)
	return e, nil
}

func (repo *auditRepository) QueryEntries(_ context.Context, filter audit.QueryFilter) ([]audit.Entry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	entries := make([]audit.Entry, 0)
	skipped := 0
	// newest first
	for i := len(repo.db.auditLogs) - 1; i >= 0; i-- {
		e := repo.db.auditLogs[i]
		if filter.ActorID != "" && e.ActorID != filter.ActorID {
			continue
		}
		if filter.Entity != "" && e.Entity != filter.Entity {
			continue
		}
		if filter.EntityID != "" && e.EntityID != filter.EntityID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if !inRange(e.CreatedAt, filter.From, filter.To) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		if filter.Limit > 0 && len(entries) >= filter.Limit {
			break
		}
		entries = append(entries, e)
	}
	return entries, nil
}
