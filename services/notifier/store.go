package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agentdock/pkg/db"
)

// Notice kinds.
const (
	KindSuccess = "success"
)

// Notice is one message shown to a user.
type Notice struct {
	ID        uuid.UUID `json:"id" db:"id"`
	AgentID   uuid.UUID `json:"agent_id" db:"agent_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Kind      string    `json:"kind" db:"kind"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AuditEntry is one row of the audit trail.
type AuditEntry struct {
	Actor   string
	Action  string
	Obj     string
	Details map[string]any
}

// Store persists notices and audit entries.
type Store interface {
	// SaveNotice inserts n; a notice with the same id is kept as is.
	SaveNotice(ctx context.Context, n Notice) error
	InsertAudit(ctx context.Context, e AuditEntry) error
	Notices(ctx context.Context, userID string, limit int) ([]Notice, error)
}

type noticeModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AgentID   uuid.UUID `gorm:"type:uuid;index"`
	UserID    string    `gorm:"type:text"`
	Kind      string    `gorm:"type:text;not null"`
	Message   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (noticeModel) TableName() string { return "notices" }

type pgStore struct {
	pool *pgxpool.Pool
	orm  *gorm.DB
}

// NewStore returns a Store backed by postgres.
func NewStore(pool *pgxpool.Pool, orm *gorm.DB) (Store, error) {
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	if orm == nil {
		return nil, errors.New("orm is required")
	}
	return &pgStore{pool: pool, orm: orm}, nil
}

func (s *pgStore) SaveNotice(ctx context.Context, n Notice) error {
	m := noticeModel{
		ID:        n.ID,
		AgentID:   n.AgentID,
		UserID:    n.UserID,
		Kind:      n.Kind,
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
	}
	err := s.orm.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("save notice: %w", err)
	}
	return nil
}

func (s *pgStore) InsertAudit(ctx context.Context, e AuditEntry) error {
	detailsBytes, err := json.Marshal(e.Details)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, s.pool, `
INSERT INTO audit (actor, action, obj, details)
VALUES ($1, $2, $3, $4::jsonb)
`, e.Actor, e.Action, e.Obj, detailsBytes)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func (s *pgStore) Notices(ctx context.Context, userID string, limit int) ([]Notice, error) {
	items := []Notice{}
	err := db.Select(ctx, s.pool, &items, `
SELECT id, agent_id, user_id, kind, message, created_at
FROM notices
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notices: %w", err)
	}
	return items, nil
}
