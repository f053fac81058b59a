package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const StageAwaitingTOTP = "awaiting_totp"

var ErrInvalidChallenge = errors.New("invalid challenge")

// ChallengeClaims is carried between the password step and the second factor.
// It proves the password was checked without creating a session yet.
type ChallengeClaims struct {
	AdminID string `json:"aid"`
	Email   string `json:"email"`
	Stage   string `json:"stage"`
	jwt.RegisteredClaims
}

func GenerateChallengeToken(secret string, adminID string, email string, ttl time.Duration, now time.Time) (string, error) {
	claims := ChallengeClaims{
		AdminID: adminID,
		Email:   email,
		Stage:   StageAwaitingTOTP,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   adminID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign challenge: %w", err)
	}
	return signed, nil
}

func ParseChallengeToken(tokenStr string, secret string, now time.Time) (*ChallengeClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &ChallengeClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChallenge, err)
	}
	claims, ok := token.Claims.(*ChallengeClaims)
	if !ok || !token.Valid || claims.Stage != StageAwaitingTOTP {
		return nil, ErrInvalidChallenge
	}
	return claims, nil
}

// GenerateSessionToken returns an opaque bearer token and the hash to store.
func GenerateSessionToken(length int) (string, []byte, error) {
	if length <= 0 {
		length = 32
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate session token: %w", err)
	}

	token := base64.RawURLEncoding.EncodeToString(buf)
	return token, HashSessionToken(token), nil
}

func HashSessionToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}
