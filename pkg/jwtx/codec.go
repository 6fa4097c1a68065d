package jwtx

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/keyhouse/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken wraps every signature, expiry or claim failure in Decode.
	ErrInvalidToken = errors.New("jwtx: invalid token")

	ErrUnsupportedAlg = errors.New("jwtx: unsupported algorithm")
	ErrMissingSecret  = errors.New("jwtx: missing signing secret")
)

// DefaultAlgorithm is used when CodecConfig.Algorithm is empty.
const DefaultAlgorithm = "HS256"

var hmacMethods = map[string]*jwt.SigningMethodHMAC{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// CodecConfig holds the fixed signing configuration of a Codec.
type CodecConfig struct {
	Secret    []byte
	Algorithm string // HS256, HS384 or HS512
	AccessTTL time.Duration
	Issuer    string // optional; enforced on Decode when set
	Leeway    time.Duration
}

// Codec creates and verifies HMAC signed access tokens and mints opaque tokens.
type Codec struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	ttl    time.Duration
	issuer string
	parser *jwt.Parser
	now    func() time.Time
}

// NewCodec validates cfg and builds a Codec.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrMissingSecret
	}

	alg := strings.ToUpper(cfg.Algorithm)
	if alg == "" {
		alg = DefaultAlgorithm
	}
	method, ok := hmacMethods[alg]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlg, cfg.Algorithm)
	}

	ttl := cfg.AccessTTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &Codec{
		secret: cfg.Secret,
		method: method,
		ttl:    ttl,
		issuer: cfg.Issuer,
		parser: jwt.NewParser(opts...),
		now:    time.Now,
	}, nil
}

// AccessTTL is the lifetime given to every access token.
func (c *Codec) AccessTTL() time.Duration { return c.ttl }

// CreateAccessToken signs a token for subject. The caller's claims are merged
// at the top level; registered claim names in claims are ignored.
func (c *Codec) CreateAccessToken(subject string, claims map[string]any) (string, error) {
	now := c.now().UTC()

	mc := make(jwt.MapClaims, len(claims)+5)
	for k, v := range claims {
		if _, reserved := registered[k]; reserved {
			continue
		}
		mc[k] = v
	}
	mc["sub"] = subject
	mc["iat"] = jwt.NewNumericDate(now)
	mc["exp"] = jwt.NewNumericDate(now.Add(c.ttl))
	mc["jti"] = NewJTI()
	if c.issuer != "" {
		mc["iss"] = c.issuer
	}

	return jwt.NewWithClaims(c.method, mc).SignedString(c.secret)
}

// Decode verifies the signature and expiry of token and returns its payload.
func (c *Codec) Decode(token string) (Payload, error) {
	mc := jwt.MapClaims{}
	parsed, err := c.parser.ParseWithClaims(token, mc, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Payload{}, ErrInvalidToken
	}

	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return Payload{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	p := Payload{
		Subject: sub,
		Claims:  make(map[string]any, len(mc)),
	}
	if exp, _ := mc.GetExpirationTime(); exp != nil {
		p.ExpiresAt = exp.Time
	}
	if iat, _ := mc.GetIssuedAt(); iat != nil {
		p.IssuedAt = iat.Time
	}
	for k, v := range mc {
		if _, reserved := registered[k]; !reserved {
			p.Claims[k] = v
		}
	}
	return p, nil
}

// CreateOpaqueToken returns a random 128-bit token rendered as base64url text.
// Opaque tokens carry no structure and are only ever compared for equality.
func (c *Codec) CreateOpaqueToken() (string, error) {
	return cryptox.GenerateToken(cryptox.TokenSize128)
}

// LoadOrGenerateSecret reads the signing secret at path, creating a 512-bit
// secret there on first start.
func LoadOrGenerateSecret(path string) ([]byte, error) {
	key, err := cryptox.LoadOrGenerateKeyFile(path, cryptox.TokenSize512)
	if err != nil {
		return nil, err
	}
	return []byte(key), nil
}
