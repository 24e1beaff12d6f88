package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

// OperatorStore abstracts the operators table for testability.
type OperatorStore interface {
	OperatorByPrefix(ctx context.Context, prefix string) (*model.Operator, error)
}

// SharedOperatorName is the identity of the configured shared token.
const SharedOperatorName = "operator"

// OperatorAuthenticator verifies bearer tokens against a configured bcrypt
// hash and the operators table. Verified tokens are cached with
// stale-while-revalidate.
type OperatorAuthenticator struct {
	store      OperatorStore // optional
	sharedHash []byte        // optional
	cache      *tokenCache
	logger     *zap.Logger
}

// OperatorAuthConfig configures the OperatorAuthenticator.
type OperatorAuthConfig struct {
	Store      OperatorStore
	SharedHash string        // bcrypt hash accepted for any operator
	CacheTTL   time.Duration // Default: 30s
	CacheSize  int           // Default: 1024 tokens
	Logger     *zap.Logger
}

// NewOperatorAuthenticator creates an authenticator. At least one of Store
// and SharedHash must be set; SharedHash must be a bcrypt hash.
func NewOperatorAuthenticator(cfg OperatorAuthConfig) (*OperatorAuthenticator, error) {
	if cfg.Store == nil && cfg.SharedHash == "" {
		return nil, errors.New("NewOperatorAuthenticator: no credential source configured")
	}
	if cfg.SharedHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.SharedHash)); err != nil {
			return nil, fmt.Errorf("NewOperatorAuthenticator: shared hash: %w", err)
		}
	}
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &OperatorAuthenticator{
		store:  cfg.Store,
		cache:  newTokenCache(ttl, cfg.CacheSize),
		logger: logger,
	}
	if cfg.SharedHash != "" {
		a.sharedHash = []byte(cfg.SharedHash)
	}
	return a, nil
}

// Authenticate validates the bearer token in the Authorization header.
//
// Flow:
//  1. Extract the token
//  2. Cache lookup (stale-while-revalidate):
//     - Fresh hit: return immediately
//     - Stale hit: return the cached identity, refresh in the background
//     - Miss: shared hash, then operators table, synchronously
func (a *OperatorAuthenticator) Authenticate(ctx context.Context, authorization string) (*Identity, error) {
	token, err := BearerToken(authorization)
	if err != nil {
		return nil, err
	}

	if cached, refresh := a.cache.lookup(token); cached != nil {
		if refresh {
			go a.backgroundRefresh(token)
		}
		return cached, nil
	}

	identity, err := a.lookupAndVerify(ctx, token)
	if err != nil {
		return nil, a.handleLookupError(err)
	}
	a.cache.store(token, identity)
	return identity, nil
}

// backgroundRefresh re-verifies a stale token. A failure evicts it so the
// next request verifies synchronously.
func (a *OperatorAuthenticator) backgroundRefresh(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	identity, err := a.lookupAndVerify(ctx, token)
	if err != nil {
		a.logger.Warn("background token refresh failed", zap.Error(err))
		a.cache.forget(token)
		return
	}
	a.cache.store(token, identity)
}

func (a *OperatorAuthenticator) lookupAndVerify(ctx context.Context, token string) (*Identity, error) {
	if a.sharedHash != nil && bcrypt.CompareHashAndPassword(a.sharedHash, []byte(token)) == nil {
		return &Identity{Name: SharedOperatorName}, nil
	}

	if a.store == nil || len(token) < lookupPrefixLen || !strings.HasPrefix(token, TokenPrefix) {
		return nil, ErrInvalidToken
	}

	op, err := a.store.OperatorByPrefix(ctx, token[:lookupPrefixLen])
	if err != nil {
		return nil, fmt.Errorf("lookupAndVerify: %w", err)
	}
	if op == nil {
		return nil, ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.TokenHash), []byte(token)); err != nil {
		return nil, ErrInvalidToken
	}
	return &Identity{OperatorID: op.ID, Name: op.Name}, nil
}

func (a *OperatorAuthenticator) handleLookupError(lookupErr error) error {
	if errors.Is(lookupErr, ErrInvalidToken) {
		return ErrInvalidToken
	}
	a.logger.Warn("operator store unreachable", zap.Error(lookupErr))
	return fmt.Errorf("%w: %v", ErrAuthUnavailable, lookupErr)
}
