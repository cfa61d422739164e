// Package auth resolves the logged-in operator, online or offline.
//
// Online, the identity provider is the source of truth and every successful
// resolution refreshes the cached operator record. Offline, the session token
// is verified locally with the shared secret and the operator is served from
// the cache, so the clinic keeps working through an outage with the identity
// established at the last online login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/dentops/chairside/internal/clinic"
	"github.com/dentops/chairside/internal/remote"
	"github.com/dentops/chairside/internal/store"
)

// ErrNoCachedOperator is returned when the identity provider is unreachable
// and no operator record was ever cached for the session. The only recovery
// is logging in again once connectivity returns.
var ErrNoCachedOperator = errors.New("auth: operator not cached, login required once online")

// Resolver authenticates operators with identity-provider fallback.
type Resolver struct {
	local    *store.Store
	provider remote.IdentityProvider
	online   func() bool
	secret   string
	logger   *log.Logger
}

// NewResolver creates a resolver. online reports current canonical-store
// reachability; secret is the shared token-signing secret.
func NewResolver(local *store.Store, provider remote.IdentityProvider, online func() bool, secret string, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(os.Stderr, "[auth] ", log.LstdFlags)
	}
	return &Resolver{
		local:    local,
		provider: provider,
		online:   online,
		secret:   secret,
		logger:   logger,
	}
}

// Login authenticates against the identity provider and caches the operator
// for later offline resolution. Login always requires connectivity.
func (r *Resolver) Login(ctx context.Context, email, password string) (string, *clinic.Operator, error) {
	token, op, err := r.provider.Login(ctx, email, password)
	if err != nil {
		return "", nil, err
	}
	if perr := r.local.PutOperator(ctx, op); perr != nil {
		r.logger.Printf("WARNING: failed to cache operator %s: %v", op.ID, perr)
	}
	return token, op, nil
}

// CurrentOperator resolves the operator behind a session token.
//
// Online it asks the identity provider and refreshes the cache. Offline (or
// when the provider errors transiently) it verifies the token signature
// locally and serves the cached operator record.
func (r *Resolver) CurrentOperator(ctx context.Context, token string) (*clinic.Operator, error) {
	if r.online() {
		op, err := r.provider.OperatorForSession(ctx, token)
		if err == nil {
			if perr := r.local.PutOperator(ctx, op); perr != nil {
				r.logger.Printf("WARNING: failed to cache operator %s: %v", op.ID, perr)
			}
			return op, nil
		}
		if errors.Is(err, remote.ErrNotFound) || errors.Is(err, remote.ErrInvalidCredentials) {
			return nil, err
		}
		r.logger.Printf("WARNING: identity provider unreachable, falling back to cached session: %v", err)
	}

	claims, err := ParseSessionToken(r.secret, token)
	if err != nil {
		return nil, err
	}

	op, err := r.local.GetOperator(ctx, claims.OperatorID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("operator %s: %w", claims.OperatorID, ErrNoCachedOperator)
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}
