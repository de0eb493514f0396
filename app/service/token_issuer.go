package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/app/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer   = "ms-go-accounts"
	tokenNonceLen = 32
)

// TokenClaims is the signed payload of a verification or reset token. The
// nonce is bound into the HMAC and only its hash is stored server side.
type TokenClaims struct {
	Purpose entity.TokenPurpose `json:"pur"`
	Nonce   string              `json:"nonce"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and redeems single-use HS256 tokens. Authenticity and
// expiry are checked without a store lookup; the store is only consulted to
// mark the token consumed.
type TokenIssuer struct {
	secret []byte
	tokens repository.TokenStore
	now    func() time.Time
}

func NewTokenIssuer(secret string, tokens repository.TokenStore, now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{secret: []byte(secret), tokens: tokens, now: now}
}

// WithStore returns a copy of the issuer that records tokens in the given
// store, typically one bound to a transaction.
func (i *TokenIssuer) WithStore(tokens repository.TokenStore) *TokenIssuer {
	clone := *i
	clone.tokens = tokens
	return &clone
}

func (i *TokenIssuer) Issue(ctx context.Context, accountID string, purpose entity.TokenPurpose, ttl time.Duration) (string, error) {
	if !purpose.Valid() {
		return "", fmt.Errorf("unknown token purpose %q", purpose)
	}
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}

	nonce, err := randomHex(tokenNonceLen)
	if err != nil {
		return "", err
	}

	now := i.now()
	record := &entity.AccountToken{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Purpose:   purpose,
		NonceHash: hashSecret(nonce),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err = i.tokens.Create(ctx, record); err != nil {
		return "", err
	}

	claims := &TokenClaims{
		Purpose: purpose,
		Nonce:   nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        record.ID,
			Subject:   accountID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(record.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(record.ExpiresAt),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Redeem validates the token for the given purpose and consumes it. It
// returns the account id the token was issued for.
func (i *TokenIssuer) Redeem(ctx context.Context, tokenString string, purpose entity.TokenPurpose) (string, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}

	if claims.Purpose != purpose || claims.ID == "" || claims.Subject == "" || claims.Nonce == "" {
		return "", ErrInvalidToken
	}

	nonceHash := hashSecret(claims.Nonce)
	consumed, err := i.tokens.Consume(ctx, claims.ID, nonceHash, i.now())
	if err != nil {
		return "", err
	}
	if consumed {
		return claims.Subject, nil
	}

	record, err := i.tokens.FindByID(ctx, claims.ID)
	if err != nil {
		return "", err
	}
	if record == nil || record.AccountID != claims.Subject ||
		subtle.ConstantTimeCompare([]byte(record.NonceHash), []byte(nonceHash)) != 1 {
		return "", ErrInvalidToken
	}

	// Consumed, or lost a race against a concurrent redeemer.
	return "", ErrTokenAlreadyUsed
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashSecret(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
