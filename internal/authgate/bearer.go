package authgate

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/reconcile/internal/clock"
)

type IdentityClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// BearerVerifier validates HS256 identity tokens issued by the identity provider.
type BearerVerifier struct {
	secret   []byte
	issuer   string
	audience string
	clock    clock.Clock
}

func NewBearerVerifier(secret, issuer, audience string, clk clock.Clock) *BearerVerifier {
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &BearerVerifier{
		secret:   []byte(strings.TrimSpace(secret)),
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
		clock:    clk,
	}
}

func (v *BearerVerifier) Verify(ctx context.Context, headers http.Header) Decision {
	token := BearerToken(headers.Get("Authorization"))
	if token == "" {
		return Deny(ReasonTokenMissing)
	}

	claims, err := v.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Deny(ReasonTokenExpired)
		}
		return Deny(ReasonTokenInvalid)
	}
	return Allow(claims.Subject)
}

func (v *BearerVerifier) Parse(tokenString string) (IdentityClaims, error) {
	if len(v.secret) == 0 {
		return IdentityClaims{}, jwt.ErrTokenUnverifiable
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return IdentityClaims{}, err
	}

	claims, ok := parsed.Claims.(*IdentityClaims)
	if !ok || !parsed.Valid {
		return IdentityClaims{}, jwt.ErrTokenInvalidClaims
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return IdentityClaims{}, jwt.ErrTokenInvalidClaims
	}
	return *claims, nil
}

func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
