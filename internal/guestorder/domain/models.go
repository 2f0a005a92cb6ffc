package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// GuestOrder is an order placed without an account. UserID moves from nil
// to a fixed value at most once.
type GuestOrder struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	OrderNumber string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_guest_orders_order_number"`
	Email       string       `gorm:"type:varchar(320);not null"`
	UserID      *string      `gorm:"type:varchar(255)"`
	LinkedAt    *time.Time   `gorm:""`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (GuestOrder) TableName() string { return "guest_orders" }

func (o GuestOrder) Linked() bool {
	return o.UserID != nil && *o.UserID != ""
}

type LinkRequest struct {
	OrderNumber string
	Email       string
	UserID      string
}

type Repository interface {
	FindByOrderNumber(ctx context.Context, db *gorm.DB, orderNumber string) (*GuestOrder, error)
	// BindUser sets user_id only while it is still null and reports whether
	// this call performed the binding.
	BindUser(ctx context.Context, db *gorm.DB, id snowflake.ID, userID string, linkedAt time.Time) (bool, error)
}

type Service interface {
	Link(ctx context.Context, req LinkRequest) (GuestOrder, error)
}

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrOrderNotFound      = errors.New("order_not_found")
	ErrEmailMismatch      = errors.New("email_mismatch")
	ErrOrderAlreadyLinked = errors.New("order_already_linked")
)
