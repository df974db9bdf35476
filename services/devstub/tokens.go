package devstub

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/uniteams/uniteams/core/auth"
)

var (
	confirmSalt = []byte("uniteams.services.devstub.tokens")
	nowFunc     = time.Now // mockable

	confirmTokenTTL = 3 * 24 * time.Hour

	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// Claims is the access token payload.
type Claims struct {
	jwt.StandardClaims
	Email    string        `json:"email,omitempty"`
	Metadata auth.Metadata `json:"user_metadata,omitempty"`
}

func newClaims(acc account, ttl time.Duration) *Claims {
	now := nowFunc()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    "uniteams-devstub",
			Subject:   acc.ID,
			Audience:  "authenticated",
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email:    acc.Email,
		Metadata: acc.Metadata,
	}
}

// generateToken signs claims with the stub's secret.
func generateToken(claims *Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// parseToken verifies a signed access token and returns its claims.
func parseToken(ss string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(ss, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

// encodeUID base64 encodes an account ID for confirmation links.
func encodeUID(acc account) string {
	return base64.RawURLEncoding.EncodeToString([]byte(acc.ID))
}

func decodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

// makeConfirmToken generates an email confirmation token for an account.
// The token is self-expiring and bound to the account's current state so it
// cannot be replayed once the email is confirmed.
func makeConfirmToken(acc account, secret []byte) (string, error) {
	return makeConfirmTokenWithTimestamp(acc, secret, numDaysSince2001(nowFunc()))
}

// verifyConfirmToken checks an email confirmation token for an account.
func verifyConfirmToken(acc account, secret []byte, token string) error {
	if token == "" {
		return errInvalidToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return errInvalidToken
	}
	data, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(parts[0])
	if err != nil {
		return errInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return errInvalidToken
	}

	// check that the token has not been tampered with
	newToken, err := makeConfirmTokenWithTimestamp(acc, secret, ts)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(newToken), []byte(token)) == 0 {
		return errInvalidToken
	}

	// check that the timestamp is within limit
	if (numDaysSince2001(nowFunc()) - ts) > int(confirmTokenTTL/(24*time.Hour)) {
		return errTokenExpired
	}
	return nil
}

func makeConfirmTokenWithTimestamp(acc account, secret []byte, ts int) (string, error) {
	tsB32 := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(strconv.Itoa(ts)))
	sig, err := sign(confirmHashValue(acc, ts), secret)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", tsB32, sig), nil
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func sign(val, secret []byte) (string, error) {
	key := sha256.Sum256(append(confirmSalt, secret...))
	h := hmac.New(sha256.New, key[:])
	if _, err := h.Write(val); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

func confirmHashValue(acc account, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(acc.ID)
	val.Write(acc.PasswordHash)
	val.WriteString(strconv.FormatBool(acc.EmailConfirmed))
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
