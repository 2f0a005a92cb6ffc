package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reconcile/internal/guestorder/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByOrderNumber(ctx context.Context, db *gorm.DB, orderNumber string) (*domain.GuestOrder, error) {
	var item domain.GuestOrder
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_number, email, user_id, linked_at, created_at
		 FROM guest_orders
		 WHERE order_number = ?
		 LIMIT 1`,
		strings.TrimSpace(orderNumber),
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) BindUser(ctx context.Context, db *gorm.DB, id snowflake.ID, userID string, linkedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE guest_orders
		 SET user_id = ?, linked_at = ?
		 WHERE id = ? AND user_id IS NULL`,
		userID,
		linkedAt,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
