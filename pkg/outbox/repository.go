package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// maxStoredError bounds last_error so a verbose gateway message cannot bloat the row.
const maxStoredError = 1024

var errNoTx = errors.New("outbox: transaction required")

// Repository reads and writes outbox_events. Writes run on the caller's
// transaction so a row commits with the state change it records.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CountPending reports the backlog the publisher has yet to drain.
func (r *Repository) CountPending(ctx context.Context) (int64, error) {
	if r.db == nil {
		return 0, errors.New("outbox: database required")
	}
	var n int64
	err := r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("published_at IS NULL AND parked_at IS NULL").
		Count(&n).Error
	return n, err
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(&event).Error
}

// Claim returns up to limit pending rows, oldest first. On postgres the rows
// stay locked until tx ends and rows held by another publisher are skipped.
func (r *Repository) Claim(tx *gorm.DB, limit int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	query := tx.Where("published_at IS NULL AND parked_at IS NULL")
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.OutboxEvent
	err := query.Order("created_at, id").Limit(limit).Find(&rows).Error
	return rows, err
}

// MarkPublished records delivery; the row is never claimed again.
func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	return r.update(tx, id, map[string]any{"published_at": time.Now().UTC()})
}

// RecordFailure bumps the attempt counter and keeps the row pending.
func (r *Repository) RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.update(tx, id, map[string]any{
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"last_error":    clipError(cause),
	})
}

// Park takes a row out of rotation with its payload intact for manual replay.
func (r *Repository) Park(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.update(tx, id, map[string]any{
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"last_error":    clipError(cause),
		"parked_at":     time.Now().UTC(),
	})
}

func (r *Repository) update(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return errNoTx
	}
	res := tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func clipError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxStoredError {
		msg = msg[:maxStoredError]
	}
	return msg
}
