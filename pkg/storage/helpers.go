package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrNoRows is returned by UpdateByField when no row matched.
var ErrNoRows = errors.New("no rows affected")

// GetByField loads the single T whose field equals value. The GORM
// not-found error is replaced by notFoundErr.
func GetByField[T any](tx *gorm.DB, ctx context.Context, field string, value any, notFoundErr error) (*T, error) {
	var result T
	if err := tx.WithContext(ctx).Where(field+" = ?", value).First(&result).Error; err != nil {
		if IsNotFound(err) {
			return nil, notFoundErr
		}
		return nil, err
	}
	return &result, nil
}

// UpdateByField applies updates to the T rows whose field equals value and
// returns ErrNoRows when nothing matched.
func UpdateByField[T any](tx *gorm.DB, ctx context.Context, field string, value any, updates map[string]any) error {
	var zero T
	result := tx.WithContext(ctx).Model(&zero).Where(field+" = ?", value).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNoRows
	}
	return nil
}
