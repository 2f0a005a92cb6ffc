package authgate

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/reconcile/internal/clock"
	"github.com/smallbiznis/reconcile/internal/config"
)

// SignatureVerifier checks headers of the form "t=<unix>,v1=<hex>[,v1=<hex>]"
// where each v1 is HMAC-SHA256 over "<t>.<raw body>".
type SignatureVerifier struct {
	secret    []byte
	header    string
	tolerance func() time.Duration
	clock     clock.Clock
}

func NewSignatureVerifier(secret, header string, tolerance func() time.Duration, clk clock.Clock) *SignatureVerifier {
	header = strings.TrimSpace(header)
	if header == "" {
		header = config.DefaultSignatureHeader
	}
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	if tolerance == nil {
		tolerance = func() time.Duration { return 5 * time.Minute }
	}
	return &SignatureVerifier{
		secret:    []byte(strings.TrimSpace(secret)),
		header:    header,
		tolerance: tolerance,
		clock:     clk,
	}
}

// Header returns the name of the header carrying the signature.
func (v *SignatureVerifier) Header() string {
	return v.header
}

func (v *SignatureVerifier) Verify(ctx context.Context, headers http.Header, body []byte) Decision {
	if len(v.secret) == 0 {
		return Deny(ReasonSignatureNotConfigured)
	}

	raw := strings.TrimSpace(headers.Get(v.header))
	if raw == "" {
		return Deny(ReasonSignatureMissing)
	}

	timestamp, signatures, ok := parseSignatureHeader(raw)
	if !ok {
		return Deny(ReasonSignatureMalformed)
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return Deny(ReasonSignatureMalformed)
	}

	expected := Sign(v.secret, timestamp, body)
	matched := false
	for _, signature := range signatures {
		if hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return Deny(ReasonSignatureMismatch)
	}

	if tolerance := v.tolerance(); tolerance > 0 {
		skew := v.clock.Now().Sub(time.Unix(unix, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > tolerance {
			return Deny(ReasonSignatureExpired)
		}
	}

	return Allow("")
}

// Sign computes the hex v1 signature for a timestamp and body.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue builds a header value, used by tests and local tooling.
func SignatureHeaderValue(secret string, at time.Time, body []byte) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + Sign([]byte(secret), ts, body)
}

func parseSignatureHeader(header string) (string, []string, bool) {
	var timestamp string
	signatures := []string{}
	for _, part := range strings.Split(header, ",") {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		key, value, found := strings.Cut(piece, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "t":
			timestamp = value
		case "v1":
			if value != "" {
				signatures = append(signatures, value)
			}
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, false
	}
	return timestamp, signatures, true
}
