package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/reconcile/internal/idempotency/domain"
	pkgdb "github.com/smallbiznis/reconcile/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CheckAndReserve(ctx context.Context, db *gorm.DB, record domain.Record) (domain.Reservation, error) {
	record.NaturalKey = strings.TrimSpace(record.NaturalKey)
	if record.NaturalKey == "" {
		return 0, domain.ErrEmptyNaturalKey
	}

	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "natural_key"}},
			DoNothing: true,
		}).
		Create(&record)
	if res.Error != nil {
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return domain.AlreadySeen, nil
		}
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.AlreadySeen, nil
	}
	return domain.FirstSeen, nil
}

func (r *repo) MarkOutcome(ctx context.Context, db *gorm.DB, naturalKey string, summary string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE idempotency_records SET outcome_summary = ? WHERE natural_key = ?`,
		summary,
		strings.TrimSpace(naturalKey),
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, naturalKey string) (*domain.Record, error) {
	var item domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT natural_key, channel, first_applied_at, outcome_summary
		 FROM idempotency_records
		 WHERE natural_key = ?
		 LIMIT 1`,
		strings.TrimSpace(naturalKey),
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.NaturalKey == "" {
		return nil, nil
	}
	return &item, nil
}
