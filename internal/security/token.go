package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("sign token invalid")
	ErrTokenExpired = errors.New("sign token expired")
)

// SignClaims are the claims embedded in a signer token. The subject is the
// signing user; SessionRef scopes the token to exactly one session.
type SignClaims struct {
	SessionRef string `json:"session_ref"`
	ProjectID  string `json:"project_id"`
	FileID     string `json:"file_id"`
	MetaCode   string `json:"meta_code,omitempty"`
	jwt.RegisteredClaims
}

func (c *SignClaims) UserID() string {
	return c.Subject
}

// SignTokenCodec issues and validates bearer tokens for signer sessions.
// Validation is a pure function of the token and the signing secret; expiry
// is embedded so no store lookup is needed to reject a stale token.
type SignTokenCodec struct {
	issuer   string
	audience string
	secret   []byte
}

func NewSignTokenCodec(issuer, audience, secret string) *SignTokenCodec {
	return &SignTokenCodec{issuer: issuer, audience: audience, secret: []byte(secret)}
}

func (c *SignTokenCodec) Issue(sessionRef, userID, projectID, fileID, metaCode string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &SignClaims{
		SessionRef: sessionRef,
		ProjectID:  projectID,
		FileID:     fileID,
		MetaCode:   metaCode,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (c *SignTokenCodec) Validate(raw string) (*SignClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenInvalid
	}
	claims := &SignClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid || claims.SessionRef == "" || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
