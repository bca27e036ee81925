// Package auth validates bearer tokens on the caller-facing endpoints.
// The contact-center platform authenticates with JWTs signed either with
// a shared HMAC secret or an RSA key pair; validation covers signature,
// expiry, an issuer allow-list and an optional audience.
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Validation failure sentinels.
var (
	ErrMissingToken    = errors.New("auth: missing bearer token")
	ErrInvalidToken    = errors.New("auth: invalid token")
	ErrUntrustedIssuer = errors.New("auth: untrusted issuer")
)

// Config for a Validator. Exactly one of HMACSecret or RSAPublicKeyFile
// must be set.
type Config struct {
	HMACSecret       string
	RSAPublicKeyFile string

	// Issuers is the allow-list of accepted iss claims. Empty accepts any.
	Issuers []string

	// Audience, when set, must appear in the token's aud claim.
	Audience string

	Logger *slog.Logger
}

// Validator checks bearer tokens.
type Validator struct {
	hmacSecret []byte
	rsaKey     *rsa.PublicKey
	issuers    []string
	audience   string
	log        *slog.Logger
}

// New builds a Validator from cfg, loading the RSA public key when
// configured.
func New(cfg Config) (*Validator, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	v := &Validator{issuers: cfg.Issuers, audience: cfg.Audience, log: cfg.Logger}
	switch {
	case cfg.HMACSecret != "":
		v.hmacSecret = []byte(cfg.HMACSecret)
	case cfg.RSAPublicKeyFile != "":
		pemBytes, err := os.ReadFile(cfg.RSAPublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("auth: read public key: %w", err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("auth: parse public key: %w", err)
		}
		v.rsaKey = key
	default:
		return nil, errors.New("auth: no signing key configured")
	}
	return v, nil
}

// Validate parses and verifies a raw token string and returns its claims.
func (v *Validator) Validate(raw string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	if v.hmacSecret != nil {
		opts = append(opts, jwt.WithValidMethods([]string{"HS256"}))
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{"RS256"}))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, v.keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if len(v.issuers) > 0 {
		iss, err := claims.GetIssuer()
		if err != nil || !slices.Contains(v.issuers, iss) {
			return nil, fmt.Errorf("%w: %q", ErrUntrustedIssuer, iss)
		}
	}
	return claims, nil
}

func (v *Validator) keyFunc(token *jwt.Token) (any, error) {
	if v.hmacSecret != nil {
		return v.hmacSecret, nil
	}
	return v.rsaKey, nil
}

// FromRequest extracts and validates the bearer token of an HTTP request.
func (v *Validator) FromRequest(r *http.Request) (jwt.MapClaims, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, ErrMissingToken
	}
	return v.Validate(raw)
}

// Middleware rejects requests without a valid bearer token. A nil
// Validator disables authentication and passes every request through.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	if v == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := v.FromRequest(r); err != nil {
			v.log.Warn("rejected request", "path", r.URL.Path, "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
