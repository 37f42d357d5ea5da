package session

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// MinHMACKeyLength is the shortest accepted HS256 secret in bytes
const MinHMACKeyLength = 32

// ErrInvalidKey is returned when key material cannot be used for signing
var ErrInvalidKey = errors.New("invalid signing key")

// Key is signing material together with the algorithm it implies
type Key struct {
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
}

// Alg returns the JWT algorithm name
func (k Key) Alg() string {
	if k.method == nil {
		return ""
	}
	return k.method.Alg()
}

// NewHMACKey returns an HS256 key for secret
func NewHMACKey(secret []byte) (Key, error) {
	if len(secret) < MinHMACKeyLength {
		return Key{}, fmt.Errorf("%w: HMAC secret must be at least %d bytes", ErrInvalidKey, MinHMACKeyLength)
	}
	return Key{method: jwt.SigningMethodHS256, signKey: secret, verifyKey: secret}, nil
}

// NewSignerKey returns an RS256 or ES256 key depending on the signer's key type
func NewSignerKey(signer crypto.Signer) (Key, error) {
	switch pub := signer.Public().(type) {
	case *rsa.PublicKey:
		return Key{method: jwt.SigningMethodRS256, signKey: signer, verifyKey: pub}, nil
	case *ecdsa.PublicKey:
		if pub.Curve != elliptic.P256() {
			return Key{}, fmt.Errorf("%w: ES256 requires a P-256 key", ErrInvalidKey)
		}
		return Key{method: jwt.SigningMethodES256, signKey: signer, verifyKey: pub}, nil
	default:
		return Key{}, fmt.Errorf("%w: unsupported key type %T", ErrInvalidKey, pub)
	}
}

// LoadPEM returns s when it is inline PEM, otherwise reads the file at path s
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(s), nil
	}
	return os.ReadFile(s)
}

// ParsePrivateKey parses a PEM private key (PKCS#1, PKCS#8 or SEC1) given inline or as a path
func ParsePrivateKey(s string) (Key, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return Key{}, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return Key{}, ErrInvalidKey
	}

	var signer crypto.Signer
	switch block.Type {
	case "RSA PRIVATE KEY":
		signer, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		signer, err = x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		var key interface{}
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		if err == nil {
			var ok bool
			if signer, ok = key.(crypto.Signer); !ok {
				return Key{}, ErrInvalidKey
			}
		}
	default:
		return Key{}, fmt.Errorf("%w: unsupported PEM block %q", ErrInvalidKey, block.Type)
	}
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewSignerKey(signer)
}
