// Package authgate decides whether an inbound delivery may proceed, based on
// the trust model of the channel it arrived on.
package authgate

import (
	"context"
	"net/http"

	"github.com/smallbiznis/reconcile/internal/event"
)

const (
	ReasonSignatureNotConfigured = "signature_not_configured"
	ReasonSignatureMissing       = "signature_missing"
	ReasonSignatureMalformed     = "signature_malformed"
	ReasonSignatureMismatch      = "signature_mismatch"
	ReasonSignatureExpired       = "signature_expired"
	ReasonTokenMissing           = "token_missing"
	ReasonTokenInvalid           = "token_invalid"
	ReasonTokenExpired           = "token_expired"
	ReasonUnknownChannel         = "unknown_channel"
)

// RequestContext is the transport view the gate needs. Body must be the raw
// bytes as received, before any decoding.
type RequestContext struct {
	Headers http.Header
	Body    []byte
}

type Decision struct {
	Allowed bool
	Reason  string
	// Subject is the stable caller identity, set only for bearer channels.
	Subject string
}

func Allow(subject string) Decision {
	return Decision{Allowed: true, Subject: subject}
}

func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

type Gate struct {
	signatures *SignatureVerifier
	bearer     *BearerVerifier
}

func NewGate(signatures *SignatureVerifier, bearer *BearerVerifier) *Gate {
	return &Gate{signatures: signatures, bearer: bearer}
}

func (g *Gate) Authorize(ctx context.Context, channel event.Channel, req RequestContext) Decision {
	switch channel {
	case event.ChannelPaymentWebhook:
		if g.signatures == nil {
			return Deny(ReasonSignatureNotConfigured)
		}
		return g.signatures.Verify(ctx, req.Headers, req.Body)
	case event.ChannelOrderLink:
		if g.bearer == nil {
			return Deny(ReasonTokenInvalid)
		}
		return g.bearer.Verify(ctx, req.Headers)
	case event.ChannelEmailOpen:
		return Allow("")
	default:
		return Deny(ReasonUnknownChannel)
	}
}
