package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

// HMACSigner implements the CB-ACCESS-* scheme.
type HMACSigner struct {
	creds *HMACCredentials
}

// NewHMACSigner validates that the credentials are present. The secret is
// decoded on every Sign call so a bad secret surfaces as ErrInvalidSecret
// there and the decoded key never outlives one signature.
func NewHMACSigner(creds *HMACCredentials) (*HMACSigner, error) {
	if creds == nil || creds.APIKey == "" {
		return nil, &SignError{Kind: KindMissingCredentials, Scheme: SchemeHMAC}
	}
	return &HMACSigner{creds: creds}, nil
}

func (s *HMACSigner) Scheme() Scheme { return SchemeHMAC }

// Sign computes base64(HMAC-SHA256(secret, timestamp+METHOD+path?query+body)).
func (s *HMACSigner) Sign(req Request) (Headers, error) {
	headers, err := s.sign(req)
	observeSign(SchemeHMAC, err)
	return headers, err
}

func (s *HMACSigner) sign(req Request) (Headers, error) {
	timestamp := strconv.FormatInt(req.Time.Unix(), 10)
	prehash := Prehash(timestamp, req.Method, req.RequestPath(), req.Body)

	var signature string
	err := s.creds.withSecret(func(secret []byte) error {
		if len(secret) == 0 {
			return &SignError{Kind: KindInvalidSecret, Scheme: SchemeHMAC, Err: errors.New("empty secret")}
		}

		key := make([]byte, base64.StdEncoding.DecodedLen(len(secret)))
		defer wipe(key)
		n, err := base64.StdEncoding.Decode(key, secret)
		if err != nil {
			return &SignError{Kind: KindInvalidSecret, Scheme: SchemeHMAC, Err: err}
		}

		mac := hmac.New(sha256.New, key[:n])
		mac.Write([]byte(prehash))
		signature = base64.StdEncoding.EncodeToString(mac.Sum(nil))
		return nil
	})
	if errors.Is(err, errDestroyed) {
		return nil, &SignError{Kind: KindMissingCredentials, Scheme: SchemeHMAC, Err: err}
	}
	if err != nil {
		return nil, err
	}

	return Headers{
		HeaderAccessKey:        s.creds.APIKey,
		HeaderAccessSign:       signature,
		HeaderAccessTimestamp:  timestamp,
		HeaderAccessPassphrase: s.creds.Passphrase,
	}, nil
}

// Close wipes the credentials backing this signer. It waits for signatures
// in progress; later calls to Sign fail with ErrMissingCredentials.
func (s *HMACSigner) Close() {
	s.creds.Destroy()
}

func (s *HMACSigner) signer() {}

// Prehash is the string the HMAC scheme signs.
func Prehash(timestamp, method, requestPath string, body []byte) string {
	var b strings.Builder
	b.Grow(len(timestamp) + len(method) + len(requestPath) + len(body))
	b.WriteString(timestamp)
	b.WriteString(strings.ToUpper(method))
	b.WriteString(requestPath)
	b.Write(body)
	return b.String()
}
