package repository

import (
	"context"

	"github.com/smallbiznis/reconcile/internal/payment/domain"
	pkgdb "github.com/smallbiznis/reconcile/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertAttempt(ctx context.Context, db *gorm.DB, attempt *domain.PaymentAttempt) (bool, error) {
	if attempt == nil {
		return false, nil
	}
	return insertOnce(ctx, db, attempt)
}

func (r *repo) InsertCreditNote(ctx context.Context, db *gorm.DB, note *domain.CreditNote) (bool, error) {
	if note == nil {
		return false, nil
	}
	return insertOnce(ctx, db, note)
}

// insertOnce inserts a row guarded by its provider_ref unique index and
// reports whether a row was written.
func insertOnce(ctx context.Context, db *gorm.DB, row any) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_ref"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
