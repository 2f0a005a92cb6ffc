package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Source names the table a tracking id belongs to.
type Source string

const (
	SourceCampaignRecipient Source = "campaign_recipients"
	SourceCommunicationLog  Source = "communications_log"
)

// Sources is the lookup order for a tracking id.
var Sources = []Source{SourceCampaignRecipient, SourceCommunicationLog}

// Recipient is the shared shape of campaign recipients and communication
// log rows. OpenedAt is set at most once; OpenCount counts every open.
type Recipient struct {
	ID         snowflake.ID
	TrackingID string
	OpenedAt   *time.Time
	OpenCount  int64
}

type CampaignRecipient struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	TrackingID string       `gorm:"type:varchar(255);not null;uniqueIndex:ux_campaign_recipients_tracking_id"`
	OpenedAt   *time.Time   `gorm:""`
	OpenCount  int64        `gorm:"not null;default:0"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CampaignRecipient) TableName() string { return string(SourceCampaignRecipient) }

type CommunicationLog struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	TrackingID string       `gorm:"type:varchar(255);not null;uniqueIndex:ux_communications_log_tracking_id"`
	OpenedAt   *time.Time   `gorm:""`
	OpenCount  int64        `gorm:"not null;default:0"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CommunicationLog) TableName() string { return string(SourceCommunicationLog) }

type OpenResult struct {
	Source      Source
	RecipientID snowflake.ID
	FirstOpen   bool
}

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, source Source, trackingID string) (*Recipient, error)
	// MarkOpened sets opened_at only while it is null.
	MarkOpened(ctx context.Context, db *gorm.DB, source Source, id snowflake.ID, openedAt time.Time) (bool, error)
	IncrementOpenCount(ctx context.Context, db *gorm.DB, source Source, id snowflake.ID) error
}

type Service interface {
	RecordOpen(ctx context.Context, trackingID string) (OpenResult, error)
}

var (
	ErrInvalidTrackingID = errors.New("invalid_tracking_id")
	ErrRecipientNotFound = errors.New("recipient_not_found")
	ErrUnknownSource     = errors.New("unknown_source")
)
