package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeSystem    ActorType = "system"
	ActorTypeUser      ActorType = "user"
	ActorTypeProcessor ActorType = "payment_processor"
	ActorTypeAnonymous ActorType = "anonymous"
)

// AuditLog is an append-only record. Rows are never updated or deleted.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	ActorType  string            `gorm:"type:varchar(64);not null"`
	ActorID    *string           `gorm:"type:varchar(255)"`
	Action     string            `gorm:"type:varchar(128);not null;index"`
	TargetType string            `gorm:"type:varchar(64);not null"`
	TargetID   *string           `gorm:"type:varchar(255);index"`
	Metadata   datatypes.JSONMap `gorm:"type:json"`
	IPAddress  *string           `gorm:"type:varchar(64)"`
	UserAgent  *string           `gorm:"type:text"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Entry is the caller-facing shape of an audit record; request metadata is
// filled in from the context.
type Entry struct {
	ActorType  ActorType
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Urgent     bool
	Metadata   map[string]any
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
}

type Service interface {
	AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
	Record(ctx context.Context, entry Entry) error
}

var ErrInvalidAction = errors.New("invalid_action")
