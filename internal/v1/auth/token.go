// Package auth issues and verifies the signed seat tokens handed out by the
// lobby. A token binds its holder to a seat version: the room code, the
// username, and the createdAt timestamp of the player record that existed
// when the token was minted.
package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/playroom/server/internal/v1/errs"
	"github.com/playroom/server/internal/v1/types"
)

// BearerPrefix is the scheme expected on the Authorization header.
const BearerPrefix = "Bearer "

// Claims is the full claim set carried by a seat token. Iat is the seat
// version: the player's createdAt in milliseconds since epoch, compared
// verbatim against the live player record on connect. It is not a
// registered iat in seconds and is never validated as one.
type Claims struct {
	Iat      uint64         `json:"iat"`
	RoomCode types.RoomCode `json:"room_code"`
	Username types.Username `json:"username"`
}

// The jwt.Claims interface. All registered claims are absent; returning
// nil values disables every built-in temporal check.
func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) { return nil, nil }
func (c Claims) GetIssuedAt() (*jwt.NumericDate, error)       { return nil, nil }
func (c Claims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c Claims) GetIssuer() (string, error)                   { return "", nil }
func (c Claims) GetSubject() (string, error)                  { return "", nil }
func (c Claims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }

// Codec signs and verifies seat tokens with a symmetric secret.
type Codec struct {
	secret []byte
}

// NewCodec creates a Codec from the configured secret.
func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Encode signs a token for the given seat version.
func (c *Codec) Encode(iat uint64, code types.RoomCode, username types.Username) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Iat:      iat,
		RoomCode: code,
		Username: username,
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and deserializes the three claim fields.
// No expiry or registered claim is checked; the seat-version comparison
// happens later, against live lobby state.
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, errs.InvalidToken(err)
	}
	if !token.Valid {
		return nil, errs.InvalidToken(nil)
	}
	return claims, nil
}

// ExtractBearer strips the "Bearer " prefix from an Authorization header
// value. A missing prefix is an InvalidAuthorizationHeader error.
func ExtractBearer(header string) (string, error) {
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", errs.InvalidAuthorizationHeader(BearerPrefix)
	}
	return strings.TrimPrefix(header, BearerPrefix), nil
}
