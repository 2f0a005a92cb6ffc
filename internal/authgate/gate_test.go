package authgate

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/reconcile/internal/clock"
	"github.com/smallbiznis/reconcile/internal/event"
	"github.com/stretchr/testify/require"
)

const (
	testWebhookSecret = "whsec_test"
	testJWTSecret     = "jwt_test_secret"
)

func newTestGate(clk clock.Clock) *Gate {
	signatures := NewSignatureVerifier(testWebhookSecret, "", func() time.Duration { return 5 * time.Minute }, clk)
	bearer := NewBearerVerifier(testJWTSecret, "", "", clk)
	return NewGate(signatures, bearer)
}

func signedHeaders(secret string, at time.Time, body []byte) http.Header {
	h := http.Header{}
	h.Set("X-Payment-Signature", SignatureHeaderValue(secret, at, body))
	return h
}

func TestWebhookSignatureAccepted(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	gate := newTestGate(clock.NewFakeClock(now))
	body := []byte(`{"eventType":"payment.authorized","transactionReference":"TX-1"}`)

	decision := gate.Authorize(context.Background(), event.ChannelPaymentWebhook, RequestContext{
		Headers: signedHeaders(testWebhookSecret, now, body),
		Body:    body,
	})
	require.True(t, decision.Allowed, decision.Reason)
}

func TestWebhookSignatureRejections(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	body := []byte(`{"eventType":"payment.authorized"}`)

	cases := []struct {
		name    string
		headers http.Header
		body    []byte
		reason  string
	}{
		{name: "missing header", headers: http.Header{}, body: body, reason: ReasonSignatureMissing},
		{name: "wrong secret", headers: signedHeaders("other", now, body), body: body, reason: ReasonSignatureMismatch},
		{name: "tampered body", headers: signedHeaders(testWebhookSecret, now, body), body: []byte(`{"eventType":"refund.completed"}`), reason: ReasonSignatureMismatch},
		{name: "stale timestamp", headers: signedHeaders(testWebhookSecret, now.Add(-10*time.Minute), body), body: body, reason: ReasonSignatureExpired},
		{name: "malformed", headers: http.Header{"X-Payment-Signature": []string{"garbage"}}, body: body, reason: ReasonSignatureMalformed},
	}

	gate := newTestGate(clock.NewFakeClock(now))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision := gate.Authorize(context.Background(), event.ChannelPaymentWebhook, RequestContext{
				Headers: tc.headers,
				Body:    tc.body,
			})
			require.False(t, decision.Allowed)
			require.Equal(t, tc.reason, decision.Reason)
		})
	}
}

func TestWebhookSignatureAcceptsRotatedSecret(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	body := []byte(`{"id":"evt_1"}`)
	ts := "1767323045"
	header := "t=" + ts + ",v1=" + Sign([]byte("old_secret"), ts, body) + ",v1=" + Sign([]byte(testWebhookSecret), ts, body)

	gate := newTestGate(clock.NewFakeClock(now))
	decision := gate.Authorize(context.Background(), event.ChannelPaymentWebhook, RequestContext{
		Headers: http.Header{"X-Payment-Signature": []string{header}},
		Body:    body,
	})
	require.True(t, decision.Allowed, decision.Reason)
}

func TestWebhookWithoutSecretIsDenied(t *testing.T) {
	verifier := NewSignatureVerifier("", "", nil, nil)
	gate := NewGate(verifier, nil)
	decision := gate.Authorize(context.Background(), event.ChannelPaymentWebhook, RequestContext{Headers: http.Header{}})
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonSignatureNotConfigured, decision.Reason)
}

func issueToken(t *testing.T, secret string, subject string, expiresAt time.Time) string {
	t.Helper()
	claims := IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(expiresAt.Add(-time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestOrderLinkBearer(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	gate := newTestGate(clock.NewFakeClock(now))

	valid := issueToken(t, testJWTSecret, "user-123", now.Add(time.Hour))
	expired := issueToken(t, testJWTSecret, "user-123", now.Add(-time.Minute))
	forged := issueToken(t, "not-the-secret", "user-123", now.Add(time.Hour))

	cases := []struct {
		name    string
		header  string
		allowed bool
		reason  string
		subject string
	}{
		{name: "valid", header: "Bearer " + valid, allowed: true, subject: "user-123"},
		{name: "lowercase scheme", header: "bearer " + valid, allowed: true, subject: "user-123"},
		{name: "missing", header: "", reason: ReasonTokenMissing},
		{name: "not bearer", header: "Basic abc", reason: ReasonTokenMissing},
		{name: "expired", header: "Bearer " + expired, reason: ReasonTokenExpired},
		{name: "forged", header: "Bearer " + forged, reason: ReasonTokenInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := http.Header{}
			if tc.header != "" {
				headers.Set("Authorization", tc.header)
			}
			decision := gate.Authorize(context.Background(), event.ChannelOrderLink, RequestContext{Headers: headers})
			require.Equal(t, tc.allowed, decision.Allowed)
			require.Equal(t, tc.reason, decision.Reason)
			require.Equal(t, tc.subject, decision.Subject)
		})
	}
}

func TestEmailOpenAlwaysAllowed(t *testing.T) {
	gate := NewGate(nil, nil)
	decision := gate.Authorize(context.Background(), event.ChannelEmailOpen, RequestContext{})
	require.True(t, decision.Allowed)
	require.Empty(t, decision.Subject)
}

func TestUnknownChannelDenied(t *testing.T) {
	gate := newTestGate(nil)
	decision := gate.Authorize(context.Background(), event.Channel("other"), RequestContext{})
	require.False(t, decision.Allowed)
	require.Equal(t, ReasonUnknownChannel, decision.Reason)
}
