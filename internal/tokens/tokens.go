// Package tokens signs and verifies access tokens and mints the opaque
// refresh secrets. It never touches the database: access-token validity
// is purely cryptographic and time based, refresh secrets are persisted
// by the caller as digests only.
package tokens

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/rs/zerolog/log"
)

var (
	logger = log.With().Str("component", "tokens").Logger()

	ErrInvalidToken = errors.New("invalid access token")
)

const TypeAccess = "access"

type Config struct {
	// PrivateKeyPEM is RSA private key in PEM format.
	PrivateKeyPEM string `yaml:"private_key_pem"`

	// Issuer is put in the "iss" claim of every access token.
	Issuer string `yaml:"issuer"`

	AccessTokenTTLMinutes int `yaml:"access_token_ttl_minutes"`
	RefreshTokenTTLDays   int `yaml:"refresh_token_ttl_days"`
}

func (c *Config) Validate() {
	if c.PrivateKeyPEM == "" {
		logger.Fatal().Msg("tokens.Config: PrivateKeyPEM is missing")
	}
	if c.Issuer == "" {
		logger.Fatal().Msg("tokens.Config: Issuer is missing")
	}
	if c.AccessTokenTTLMinutes <= 0 {
		logger.Fatal().Msg("tokens.Config: AccessTokenTTLMinutes is missing")
	}
	if c.RefreshTokenTTLDays <= 0 {
		logger.Fatal().Msg("tokens.Config: RefreshTokenTTLDays is missing")
	}
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLDays) * 24 * time.Hour
}

// Codec holds the parsed signing material. Construct it once at startup
// and pass it to whatever needs to mint or verify tokens.
type Codec struct {
	config *Config

	privateKey jwk.Key
	publicKey  jwk.Key
}

func NewCodec(config *Config) *Codec {
	priv, err := jwk.ParseKey([]byte(config.PrivateKeyPEM), jwk.WithPEM(true))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to parse private key")
	}

	pub, err := priv.PublicKey()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to generate public key")
	}

	return &Codec{
		config:     config,
		privateKey: priv,
		publicKey:  pub,
	}
}

// RefreshTokenTTL exposes the configured refresh lifetime so the auth
// service can stamp expiry on new chain records.
func (c *Codec) RefreshTokenTTL() time.Duration {
	return c.config.RefreshTokenTTL()
}

// AccessClaims is the verified payload of an access token.
type AccessClaims struct {
	UserID    string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (c *Codec) IssueAccessToken(userID string) (string, error) {
	now := time.Now()
	token, err := jwt.NewBuilder().
		Issuer(c.config.Issuer).
		IssuedAt(now).
		Expiration(now.Add(c.config.AccessTokenTTL())).
		Subject(userID).
		JwtID(uuid.New().String()).
		Claim("type", TypeAccess).
		Build()

	if err != nil {
		return "", fmt.Errorf("failed to build access token claims: %v", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), c.privateKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %v", err)
	}

	return string(signed), nil
}

// VerifyAccessToken checks signature, expiry and the "type" claim. A
// refresh secret presented where an access token is expected never gets
// past this: refresh secrets are not JWTs at all, and no other token
// type carries type=access.
func (c *Codec) VerifyAccessToken(signed string) (*AccessClaims, error) {
	// jwt.Parse validates exp/iat as well as the signature.
	verified, err := jwt.Parse([]byte(signed), jwt.WithKey(jwa.RS256(), c.publicKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var typ string
	if err := verified.Get("type", &typ); err != nil || typ != TypeAccess {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}

	sub, ok := verified.Subject()
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	claims := &AccessClaims{UserID: sub}
	if jti, ok := verified.JwtID(); ok {
		claims.TokenID = jti
	}
	if iat, ok := verified.IssuedAt(); ok {
		claims.IssuedAt = iat
	}
	if exp, ok := verified.Expiration(); ok {
		claims.ExpiresAt = exp
	}

	return claims, nil
}

// MintRefreshSecret returns a fresh bearer secret and its digest. The raw
// value goes to the client, the digest is the database lookup key.
func MintRefreshSecret() (raw string, digest string) {
	raw = uuid.New().String()
	return raw, HashRefreshSecret(raw)
}

func HashRefreshSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
