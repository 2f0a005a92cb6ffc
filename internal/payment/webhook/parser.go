package webhook

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/reconcile/internal/payment/domain"
)

type webhookPayload struct {
	EventType            string          `json:"eventType"`
	Type                 string          `json:"type"`
	EventID              string          `json:"eventId"`
	ID                   string          `json:"id"`
	EventTimestamp       json.RawMessage `json:"eventTimestamp"`
	TransactionReference string          `json:"transactionReference"`
	Instruction          struct {
		Value struct {
			Amount   json.Number `json:"amount"`
			Currency string      `json:"currency"`
		} `json:"value"`
	} `json:"instruction"`
	Outcome struct {
		Reason string `json:"reason"`
	} `json:"outcome"`
	Metadata map[string]any `json:"metadata"`
}

// Parse decodes a webhook body. It is only called after the signature over
// the same bytes has been verified.
func Parse(payload []byte) (*paymentdomain.PaymentEvent, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, paymentdomain.ErrInvalidPayload
	}

	var body webhookPayload
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&body); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	evt := &paymentdomain.PaymentEvent{
		EventType:            firstNonEmpty(body.EventType, body.Type),
		EventID:              firstNonEmpty(body.EventID, body.ID),
		EventTimestamp:       parseTimestamp(body.EventTimestamp),
		TransactionReference: strings.TrimSpace(body.TransactionReference),
		Amount:               parseAmount(body.Instruction.Value.Amount),
		Currency:             strings.ToUpper(strings.TrimSpace(body.Instruction.Value.Currency)),
		Reason:               strings.TrimSpace(body.Outcome.Reason),
		UserID:               readMetadataValue(body.Metadata, "userId"),
		InvoiceID:            readMetadataValue(body.Metadata, "invoiceId"),
		RawPayload:           payload,
	}
	if strings.TrimSpace(evt.EventType) == "" {
		return nil, paymentdomain.ErrMissingEventType
	}
	return evt, nil
}

const maxEchoedEventID = 255

// EchoEventID pulls the event id out of an unverified body so a rejected
// delivery is acknowledged with the same shape as an ignored one. The value
// is never used for processing.
func EchoEventID(payload []byte) string {
	var body struct {
		EventID string `json:"eventId"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	id := firstNonEmpty(body.EventID, body.ID)
	if len(id) > maxEchoedEventID {
		return ""
	}
	return id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func parseAmount(raw json.Number) int64 {
	if raw == "" {
		return 0
	}
	if v, err := raw.Int64(); err == nil {
		return v
	}
	if f, err := raw.Float64(); err == nil {
		return int64(math.Round(f))
	}
	return 0
}

// parseTimestamp accepts RFC3339 strings and unix seconds or milliseconds.
func parseTimestamp(raw json.RawMessage) *time.Time {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(text)); err == nil {
			utc := ts.UTC()
			return &utc
		}
		trimmed = strings.TrimSpace(text)
	}

	unix, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || unix <= 0 {
		return nil
	}
	var ts time.Time
	if unix > 1e12 {
		ts = time.UnixMilli(unix).UTC()
	} else {
		ts = time.Unix(unix, 0).UTC()
	}
	return &ts
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case json.Number:
		return cast.String()
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	}
	return ""
}
