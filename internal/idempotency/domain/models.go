// Package domain describes the idempotency ledger: the durable record of
// which natural keys have already produced a domain effect.
package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Record is keyed by the natural key of an inbound delivery.
type Record struct {
	NaturalKey     string    `gorm:"primaryKey;type:varchar(255)"`
	Channel        string    `gorm:"type:varchar(64);not null"`
	FirstAppliedAt time.Time `gorm:"not null"`
	OutcomeSummary string    `gorm:"type:text;not null;default:''"`
}

func (Record) TableName() string { return "idempotency_records" }

type Reservation int

const (
	FirstSeen Reservation = iota + 1
	AlreadySeen
)

func (r Reservation) String() string {
	switch r {
	case FirstSeen:
		return "first_seen"
	case AlreadySeen:
		return "already_seen"
	default:
		return "unknown"
	}
}

type Repository interface {
	// CheckAndReserve inserts the record unless its natural key already
	// exists. It must run inside the transaction that applies the effect so
	// a rollback releases the reservation.
	CheckAndReserve(ctx context.Context, db *gorm.DB, record Record) (Reservation, error)
	MarkOutcome(ctx context.Context, db *gorm.DB, naturalKey string, summary string) error
	Find(ctx context.Context, db *gorm.DB, naturalKey string) (*Record, error)
}

var (
	ErrEmptyNaturalKey = errors.New("empty_natural_key")
	ErrMissingKeyParts = errors.New("missing_natural_key_parts")
)
