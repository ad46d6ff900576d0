package identity

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	codeLength = 6
	codeTTL    = 5 * time.Minute
	codePrefix = "2fa:code:"
)

// ErrNoPendingCode is returned when verification runs without an issued code.
var ErrNoPendingCode = errors.New("identity: no pending two-factor code")

// CodeVerifier checks a one-time two-factor code for a user.
type CodeVerifier interface {
	Verify(ctx context.Context, userID, code string) (bool, error)
}

// CodeService issues and verifies one-time codes backed by Redis. Codes are
// single use: verification consumes them whether or not they match.
type CodeService struct {
	cache *redis.Client
}

// NewCodeService builds a Redis-backed code service.
func NewCodeService(cache *redis.Client) *CodeService {
	return &CodeService{cache: cache}
}

// Issue generates a fresh numeric code for the user, replacing any pending
// one. The caller is responsible for delivering it.
func (s *CodeService) Issue(ctx context.Context, userID string) (string, error) {
	code, err := randomCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	if err := s.cache.Set(ctx, codePrefix+userID, code, codeTTL).Err(); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}
	return code, nil
}

// Verify consumes the pending code and reports whether it matched.
func (s *CodeService) Verify(ctx context.Context, userID, code string) (bool, error) {
	stored, err := s.cache.GetDel(ctx, codePrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, ErrNoPendingCode
	}
	if err != nil {
		return false, fmt.Errorf("load code: %w", err)
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1, nil
}

func randomCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeLength, n), nil
}
