package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/studyhall/backend/core/audit"
)

const auditColumns = `id, actor_id, actor_role, action, entity, entity_id, details, ip, created_at`

type auditRow struct {
	ID        string         `db:"id"`
	ActorID   sql.NullString `db:"actor_id"`
	ActorRole string         `db:"actor_role"`
	Action    string         `db:"action"`
	Entity    string         `db:"entity"`
	EntityID  string         `db:"entity_id"`
	Details   types.JSONText `db:"details"`
	IP        string         `db:"ip"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r auditRow) toEntry() audit.Entry {
	return audit.Entry{
		ID:        r.ID,
		ActorID:   r.ActorID.String,
		ActorRole: r.ActorRole,
		Action:    r.Action,
		Entity:    r.Entity,
		EntityID:  r.EntityID,
		Details:   json.RawMessage(r.Details),
		IP:        r.IP,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type auditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) audit.Repository {
	return &auditRepository{db: db}
}

func (repo *auditRepository) CreateEntry(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	e.ID = uuid.New().String()
	actorID := e.ActorID
	if !isUUID(actorID) {
		actorID = ""
	}
	row := auditRow{
		ID:        e.ID,
		ActorID:   nullString(actorID),
		ActorRole: e.ActorRole,
		Action:    e.Action,
		Entity:    e.Entity,
		EntityID:  e.EntityID,
		Details:   jsonText(e.Details),
		IP:        e.IP,
		CreatedAt: e.CreatedAt,
	}
	q := `INSERT INTO audit_logs (` + auditColumns + `) VALUES (:id, :actor_id, :actor_role, :action, :entity,
		:entity_id, :details, :ip, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return audit.Entry{}, errors.Wrap(err, "inserting audit entry")
	}
	return e, nil
}

func (repo *auditRepository) QueryEntries(ctx context.Context, filter audit.QueryFilter) ([]audit.Entry, error) {
	var w where
	if filter.ActorID != "" {
		if !isUUID(filter.ActorID) {
			return []audit.Entry{}, nil
		}
		w.add("actor_id = ?", filter.ActorID)
	}
	if filter.Entity != "" {
		w.add("entity = ?", filter.Entity)
	}
	if filter.EntityID != "" {
		w.add("entity_id = ?", filter.EntityID)
	}
	if filter.Action != "" {
		w.add("action = ?", filter.Action)
	}
	if !filter.From.IsZero() {
		w.add("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("created_at <= ?", filter.To)
	}

	q := `SELECT ` + auditColumns + ` FROM audit_logs` + w.String() + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		q += " LIMIT " + w.next(filter.Limit)
	}
	if filter.Offset > 0 {
		q += " OFFSET " + w.next(filter.Offset)
	}

	var rows []auditRow
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying audit entries")
	}
	entries := make([]audit.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toEntry())
	}
	return entries, nil
}
