package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reconcile/internal/event"
	"gorm.io/gorm"
)

const DefaultProvider = "processor"

type AttemptStatus string

const (
	AttemptStatusFailed    AttemptStatus = "failed"
	AttemptStatusSucceeded AttemptStatus = "succeeded"
)

// PaymentAttempt is created once per failure event and never updated.
type PaymentAttempt struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	InvoiceID   *snowflake.ID `gorm:"index"`
	Status      AttemptStatus `gorm:"type:varchar(32);not null"`
	Amount      int64         `gorm:"not null;default:0"`
	Currency    string        `gorm:"type:varchar(8);not null;default:''"`
	Provider    string        `gorm:"type:varchar(64);not null"`
	ProviderRef string        `gorm:"type:varchar(255);not null;uniqueIndex:ux_payment_attempts_provider_ref"`
	Reason      *string       `gorm:"type:text"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PaymentAttempt) TableName() string { return "payment_attempts" }

// CreditNote is created once per refund event against the invoice owner.
type CreditNote struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	InvoiceID   snowflake.ID `gorm:"not null;index"`
	CustomerID  snowflake.ID `gorm:"not null;index"`
	Amount      int64        `gorm:"not null"`
	Currency    string       `gorm:"type:varchar(8);not null"`
	Reason      string       `gorm:"type:text;not null;default:''"`
	ProviderRef string       `gorm:"type:varchar(255);not null;uniqueIndex:ux_credit_notes_provider_ref"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CreditNote) TableName() string { return "credit_notes" }

// PaymentEvent is a webhook body after decoding. Fields are optional because
// the processor's catalogue varies by event type.
type PaymentEvent struct {
	EventType            string
	EventID              string
	EventTimestamp       *time.Time
	TransactionReference string
	Amount               int64
	Currency             string
	Reason               string
	UserID               string
	InvoiceID            string
	RawPayload           []byte
}

// Kind returns the normalized event kind.
func (e PaymentEvent) Kind() event.Kind {
	return event.NormalizeKind(e.EventType)
}

// ProviderRef identifies the delivery for row-level uniqueness on attempts
// and credit notes.
func (e PaymentEvent) ProviderRef() string {
	if e.EventID != "" {
		return e.EventID
	}
	return string(e.Kind()) + ":" + e.TransactionReference
}

// Result is what a webhook delivery produced.
type Result struct {
	EventID    string
	NaturalKey string
	Kind       event.Kind
	Outcome    event.Outcome
	InvoiceID  *snowflake.ID
}

type Repository interface {
	InsertAttempt(ctx context.Context, db *gorm.DB, attempt *PaymentAttempt) (bool, error)
	InsertCreditNote(ctx context.Context, db *gorm.DB, note *CreditNote) (bool, error)
}

// Service applies a decoded payment event exactly once.
type Service interface {
	ProcessEvent(ctx context.Context, evt *PaymentEvent) (Result, error)
}

// WebhookService authorizes and decodes raw webhook deliveries.
type WebhookService interface {
	IngestWebhook(ctx context.Context, payload []byte, headers http.Header) (Result, error)
}

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrMissingEventType = errors.New("missing_event_type")
)
