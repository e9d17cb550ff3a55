// Package repo holds the pieces every GORM-backed repository shares.
package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base carries the connection a repository runs on. A Base bound to a
// transaction via WithTx runs every statement inside it.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection scoped to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// WithTx returns a Base bound to tx, or b itself when tx is nil.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// First loads the first row matching query into a new T. A missing row
// surfaces as gorm.ErrRecordNotFound.
func First[T any](ctx context.Context, b Base, query any, args ...any) (*T, error) {
	var row T
	if err := b.DB(ctx).Where(query, args...).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// Exists reports whether any row of T matches query.
func Exists[T any](ctx context.Context, b Base, query any, args ...any) (bool, error) {
	var count int64
	err := b.DB(ctx).Model(new(T)).Where(query, args...).Limit(1).Count(&count).Error
	return count > 0, err
}
