package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	// TokenTTL is how long a request token stays valid.
	TokenTTL = 120 * time.Second

	tokenIssuer = "cdp"
)

// Claims are the JWT claims bound to one request. The issuer is always
// "cdp", the value Coinbase verifies; the key name goes in sub and kid.
type Claims struct {
	jwt.RegisteredClaims
	// URI is "METHOD host/path", the binding Coinbase verifies.
	URI string `json:"uri"`
}

// JWTSigner implements the CDP bearer token scheme.
type JWTSigner struct {
	keyName string

	// mu guards key: Token holds the read lock while signing, Close the
	// write lock while zeroing.
	mu    sync.RWMutex
	key   *ecdsa.PrivateKey
	creds *ECCredentials
	nonce func() string
}

// NewJWTSigner parses the private key once. A key that does not parse, or is
// not on P-256, is rejected here and never at sign time.
func NewJWTSigner(creds *ECCredentials) (*JWTSigner, error) {
	if creds == nil || creds.KeyName == "" || len(creds.pem) == 0 {
		return nil, &SignError{Kind: KindMissingCredentials, Scheme: SchemeJWT}
	}

	key, err := jwt.ParseECPrivateKeyFromPEM(creds.pem)
	if err != nil {
		return nil, &SignError{Kind: KindKeyRejected, Scheme: SchemeJWT, Err: err}
	}
	if key.Curve != elliptic.P256() {
		return nil, &SignError{
			Kind:   KindKeyRejected,
			Scheme: SchemeJWT,
			Err:    fmt.Errorf("curve %s is not P-256", key.Curve.Params().Name),
		}
	}

	return &JWTSigner{
		keyName: creds.KeyName,
		key:     key,
		creds:   creds,
		nonce:   randomNonce,
	}, nil
}

func (s *JWTSigner) Scheme() Scheme { return SchemeJWT }

// Sign issues a fresh token per call with its own nonce and expiry.
func (s *JWTSigner) Sign(req Request) (Headers, error) {
	token, err := s.Token(req)
	observeSign(SchemeJWT, err)
	if err != nil {
		return nil, err
	}
	return Headers{HeaderAuthorization: "Bearer " + token}, nil
}

// Token returns the compact serialized token for req.
func (s *JWTSigner) Token(req Request) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return "", &SignError{Kind: KindMissingCredentials, Scheme: SchemeJWT, Err: errors.New("signer closed")}
	}

	now := req.Time
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   s.keyName,
			Audience:  jwt.ClaimStrings{req.Host},
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
		URI: fmt.Sprintf("%s %s%s", strings.ToUpper(req.Method), req.Host, req.Path),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = s.keyName
	token.Header["nonce"] = s.nonce()

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", &SignError{Kind: KindSign, Scheme: SchemeJWT, Err: err}
	}
	return signed, nil
}

// Close zeroes the private scalar and the PEM copy.
func (s *JWTSigner) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil && s.key.D != nil {
		words := s.key.D.Bits()
		for i := range words {
			words[i] = 0
		}
		s.key.D.SetInt64(0)
	}
	s.key = nil
	s.creds.Destroy()
}

func (s *JWTSigner) signer() {}

func randomNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
