// Package token validates bearer tokens against an OpenID Connect issuer
// and tracks revoked tokens.
//
// Validation is ordered so every failure reports the most specific cause:
// parse errors before issuer checks, issuer checks before signature
// verification, then expiry, audience and finally revocation. Expiry is
// checked with zero clock skew tolerance.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// ValidatorConfig holds token validator configuration
type ValidatorConfig struct {
	// IssuerURL is the OpenID Connect issuer whose tokens are accepted.
	IssuerURL string
	// Audience, when non-empty, must appear in the token's aud claim.
	Audience string
	// KeySetTTL bounds how long discovered issuer metadata is reused.
	KeySetTTL time.Duration
	// Revocations, when non-nil, is consulted for the token's jti.
	Revocations RevocationChecker
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Validator verifies bearer tokens. Issuer metadata and the remote key set
// are cached for KeySetTTL; concurrent refreshes are collapsed into a
// single discovery request.
type Validator struct {
	issuerURL   string
	audience    string
	keySetTTL   time.Duration
	revocations RevocationChecker
	now         func() time.Time

	mu        sync.RWMutex
	keySet    oidc.KeySet
	fetchedAt time.Time

	group singleflight.Group
}

// NewValidator creates a token validator
func NewValidator(cfg ValidatorConfig) *Validator {
	ttl := cfg.KeySetTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Validator{
		issuerURL:   cfg.IssuerURL,
		audience:    cfg.Audience,
		keySetTTL:   ttl,
		revocations: cfg.Revocations,
		now:         now,
	}
}

// Validate verifies a raw token and returns its claims. Failures are
// *ValidationError values whose Kind identifies the first check that failed.
func (v *Validator) Validate(ctx context.Context, rawToken string) (*Claims, error) {
	if rawToken == "" {
		return nil, newError(KindMalformed, "token is empty", nil)
	}

	// Parse without verification first so issuer mismatches are reported as
	// such instead of as signature failures.
	parser := jwt.NewParser()
	unverified, _, err := parser.ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, newError(KindMalformed, "token is not a valid JWT", err)
	}

	issuer, err := unverified.Claims.GetIssuer()
	if err != nil || issuer == "" {
		return nil, newError(KindMalformed, "token has no iss claim", err)
	}
	if issuer != v.issuerURL {
		return nil, newError(KindInvalidIssuer,
			fmt.Sprintf("token issued by %q, expected %q", issuer, v.issuerURL), nil)
	}

	keySet, err := v.keys(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := keySet.VerifySignature(ctx, rawToken)
	if err != nil {
		return nil, newError(KindInvalidSignature, "signature verification failed", err)
	}

	var parsed struct {
		Subject  string   `json:"sub"`
		Issuer   string   `json:"iss"`
		Audience audience `json:"aud"`
		Expiry   int64    `json:"exp"`
		IssuedAt int64    `json:"iat"`
		JTI      string   `json:"jti"`
		ClientID string   `json:"azp"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, newError(KindMalformed, "failed to decode claims", err)
	}

	if parsed.Expiry == 0 {
		return nil, newError(KindMalformed, "token has no exp claim", nil)
	}
	expiresAt := time.Unix(parsed.Expiry, 0)
	if !v.now().Before(expiresAt) {
		return nil, newError(KindExpired,
			fmt.Sprintf("token expired at %s", expiresAt.UTC().Format(time.RFC3339)), nil)
	}

	if v.audience != "" && !parsed.Audience.contains(v.audience) {
		return nil, newError(KindInvalidAudience,
			fmt.Sprintf("token audience %v does not include %q", []string(parsed.Audience), v.audience), nil)
	}

	if v.revocations != nil && parsed.JTI != "" {
		revoked, err := v.revocations.IsRevoked(ctx, parsed.JTI)
		if err != nil {
			return nil, fmt.Errorf("revocation check failed: %w", err)
		}
		if revoked {
			return nil, newError(KindRevoked, "token has been revoked", nil)
		}
	}

	claims := &Claims{
		Subject:   parsed.Subject,
		Issuer:    parsed.Issuer,
		Audience:  parsed.Audience,
		JTI:       parsed.JTI,
		ClientID:  parsed.ClientID,
		ExpiresAt: expiresAt,
	}
	if parsed.IssuedAt > 0 {
		claims.IssuedAt = time.Unix(parsed.IssuedAt, 0)
	}

	return claims, nil
}

// keys returns the cached remote key set, refreshing issuer metadata when
// the TTL has elapsed
func (v *Validator) keys(ctx context.Context) (oidc.KeySet, error) {
	v.mu.RLock()
	if v.keySet != nil && v.now().Sub(v.fetchedAt) < v.keySetTTL {
		keySet := v.keySet
		v.mu.RUnlock()
		return keySet, nil
	}
	v.mu.RUnlock()

	result, err, _ := v.group.Do("keyset", func() (interface{}, error) {
		v.mu.RLock()
		if v.keySet != nil && v.now().Sub(v.fetchedAt) < v.keySetTTL {
			keySet := v.keySet
			v.mu.RUnlock()
			return keySet, nil
		}
		v.mu.RUnlock()

		provider, err := oidc.NewProvider(ctx, v.issuerURL)
		if err != nil {
			return nil, newError(KindConfiguration, "failed to discover issuer metadata", err)
		}

		var meta struct {
			JWKSURI string `json:"jwks_uri"`
		}
		if err := provider.Claims(&meta); err != nil || meta.JWKSURI == "" {
			return nil, newError(KindConfiguration, "issuer metadata has no jwks_uri", err)
		}

		// The key set outlives the triggering request's context.
		keySet := oidc.NewRemoteKeySet(context.Background(), meta.JWKSURI)

		v.mu.Lock()
		v.keySet = keySet
		v.fetchedAt = v.now()
		v.mu.Unlock()

		return keySet, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(oidc.KeySet), nil
}

// audience accepts both the string and array forms of the aud claim
type audience []string

func (a *audience) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = audience{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*a = audience(many)
	return nil
}

func (a audience) contains(value string) bool {
	for _, item := range a {
		if item == value {
			return true
		}
	}
	return false
}
