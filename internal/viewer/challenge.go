// Package viewer implements the email challenge that gates anonymous access
// to a shared proposal, and the short-lived sessions issued once a viewer
// passes it.
package viewer

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"quotely/api/internal/util"
)

var (
	ErrRateLimited      = errors.New("too many code requests")
	ErrInvalidChallenge = errors.New("challenge not found or exhausted")
	ErrInvalidCode      = errors.New("incorrect code")
	ErrExpiredCode      = errors.New("code expired")
)

// Challenge is returned to the caller on creation. Code is only ever handed
// to the email sender; it is never stored in clear.
type Challenge struct {
	ID        string
	Email     string
	Code      string
	ExpiresAt time.Time
	ResendIn  time.Duration
}

// ChallengeStore keeps pending challenges in Redis. A challenge is bound to
// both the share token and the viewer email, so a code requested for one
// proposal cannot unlock another.
type ChallengeStore struct {
	client      *redis.Client
	prefix      string
	codeTTL     time.Duration
	resendAfter time.Duration
	maxAttempts int
}

type challengeRecord struct {
	ID         string    `json:"id"`
	ShareToken string    `json:"share_token"`
	Email      string    `json:"email"`
	CodeHash   string    `json:"code_hash"`
	ExpiresAt  time.Time `json:"expires_at"`
	Attempts   int       `json:"attempts"`
}

// NewChallengeStore connects to Redis at the given URL.
func NewChallengeStore(redisURL string) (*ChallengeStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewChallengeStoreWithClient(client), nil
}

// NewChallengeStoreWithClient creates a store from an existing Redis client.
func NewChallengeStoreWithClient(client *redis.Client) *ChallengeStore {
	return &ChallengeStore{
		client:      client,
		prefix:      "viewer:",
		codeTTL:     5 * time.Minute,
		resendAfter: time.Minute,
		maxAttempts: 5,
	}
}

func (s *ChallengeStore) challengeKey(id string) string {
	return s.prefix + "challenge:" + id
}

func (s *ChallengeStore) resendKey(shareToken, email string) string {
	return s.prefix + "resend:" + shareToken + ":" + email
}

// Create issues a fresh numeric code for the given share token and email.
// Repeat requests within the resend window are rejected.
func (s *ChallengeStore) Create(ctx context.Context, shareToken, email string) (Challenge, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Challenge{}, err
	}
	if strings.TrimSpace(shareToken) == "" {
		return Challenge{}, errors.New("share token is required")
	}

	resendKey := s.resendKey(shareToken, email)
	allowed, err := s.client.SetNX(ctx, resendKey, "1", s.resendAfter).Result()
	if err != nil {
		return Challenge{}, fmt.Errorf("check resend window: %w", err)
	}
	if !allowed {
		return Challenge{}, ErrRateLimited
	}

	code, err := numericCode(6)
	if err != nil {
		_ = s.client.Del(ctx, resendKey).Err()
		return Challenge{}, fmt.Errorf("generate code: %w", err)
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		_ = s.client.Del(ctx, resendKey).Err()
		return Challenge{}, fmt.Errorf("hash code: %w", err)
	}

	rec := challengeRecord{
		ID:         util.NewID("chl"),
		ShareToken: shareToken,
		Email:      email,
		CodeHash:   string(codeHash),
		ExpiresAt:  time.Now().UTC().Add(s.codeTTL),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		_ = s.client.Del(ctx, resendKey).Err()
		return Challenge{}, fmt.Errorf("marshal challenge: %w", err)
	}
	// Persisted slightly past expiry so Verify can tell "expired" from
	// "never existed".
	if err := s.client.Set(ctx, s.challengeKey(rec.ID), raw, s.codeTTL+time.Minute).Err(); err != nil {
		_ = s.client.Del(ctx, resendKey).Err()
		return Challenge{}, fmt.Errorf("store challenge: %w", err)
	}

	return Challenge{
		ID:        rec.ID,
		Email:     email,
		Code:      code,
		ExpiresAt: rec.ExpiresAt,
		ResendIn:  s.resendAfter,
	}, nil
}

// Verify checks the submitted code against a pending challenge. The
// challenge is consumed on success and after too many wrong attempts.
func (s *ChallengeStore) Verify(ctx context.Context, challengeID, shareToken, code string) (string, error) {
	challengeID = strings.TrimSpace(challengeID)
	code = strings.TrimSpace(code)
	if challengeID == "" || code == "" {
		return "", ErrInvalidChallenge
	}

	key := s.challengeKey(challengeID)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidChallenge
	}
	if err != nil {
		return "", fmt.Errorf("load challenge: %w", err)
	}

	var rec challengeRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", fmt.Errorf("unmarshal challenge: %w", err)
	}
	if rec.ID == "" || rec.ShareToken != shareToken {
		return "", ErrInvalidChallenge
	}
	if time.Now().UTC().After(rec.ExpiresAt) {
		_ = s.client.Del(ctx, key).Err()
		return "", ErrExpiredCode
	}
	if rec.Attempts >= s.maxAttempts {
		_ = s.client.Del(ctx, key).Err()
		return "", ErrInvalidChallenge
	}

	if bcrypt.CompareHashAndPassword([]byte(rec.CodeHash), []byte(code)) != nil {
		rec.Attempts++
		if rec.Attempts >= s.maxAttempts {
			_ = s.client.Del(ctx, key).Err()
		} else if updated, marshalErr := json.Marshal(rec); marshalErr == nil {
			if ttl, ttlErr := s.client.TTL(ctx, key).Result(); ttlErr == nil && ttl > 0 {
				_ = s.client.Set(ctx, key, updated, ttl).Err()
			}
		}
		return "", ErrInvalidCode
	}

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return "", fmt.Errorf("consume challenge: %w", err)
	}
	return rec.Email, nil
}

// Close closes the Redis connection.
func (s *ChallengeStore) Close() error {
	return s.client.Close()
}

// NormalizeEmail lowercases, trims, and validates an address.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", errors.New("email format is invalid")
	}
	return email, nil
}

// MaskEmail hides most of the local part for log and UI echo.
func MaskEmail(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return email
	}
	local := parts[0]
	switch len(local) {
	case 0:
		return "***@" + parts[1]
	case 1, 2:
		return local[:1] + "***@" + parts[1]
	default:
		return local[:1] + "***" + local[len(local)-1:] + "@" + parts[1]
	}
}

func numericCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
