package repository

import (
	"context"

	"gorm.io/gorm"
)

// atomically runs fn as one database transaction. Any error rolls back
// everything fn wrote.
func (r *Repository) atomically(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	r.logger.Debugf("Starting transaction: %s", op)
	err := r.db.WithContext(ctx).Transaction(fn)
	if err != nil {
		r.logger.Debugf("Rolled back transaction %s: %v", op, err)
		return err
	}
	r.logger.Debugf("Committed transaction: %s", op)
	return nil
}
