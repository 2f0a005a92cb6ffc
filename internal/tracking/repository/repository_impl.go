package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reconcile/internal/tracking/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, source domain.Source, trackingID string) (*domain.Recipient, error) {
	table, err := tableFor(source)
	if err != nil {
		return nil, err
	}

	var item domain.Recipient
	err = db.WithContext(ctx).Raw(
		`SELECT id, tracking_id, opened_at, open_count
		 FROM `+table+`
		 WHERE tracking_id = ?
		 LIMIT 1`,
		strings.TrimSpace(trackingID),
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkOpened(ctx context.Context, db *gorm.DB, source domain.Source, id snowflake.ID, openedAt time.Time) (bool, error) {
	table, err := tableFor(source)
	if err != nil {
		return false, err
	}

	res := db.WithContext(ctx).Exec(
		`UPDATE `+table+` SET opened_at = ? WHERE id = ? AND opened_at IS NULL`,
		openedAt,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) IncrementOpenCount(ctx context.Context, db *gorm.DB, source domain.Source, id snowflake.ID) error {
	table, err := tableFor(source)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`UPDATE `+table+` SET open_count = open_count + 1 WHERE id = ?`,
		id,
	).Error
}

// tableFor keeps table names out of caller-controlled input.
func tableFor(source domain.Source) (string, error) {
	switch source {
	case domain.SourceCampaignRecipient, domain.SourceCommunicationLog:
		return string(source), nil
	default:
		return "", domain.ErrUnknownSource
	}
}
