// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sessions signs and verifies the service's own session tokens. Identity is
// established once at login; afterwards only these tokens are checked.
type Sessions struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// ttl of issued tokens; zero means tokens carry no exp claim.
	ttl time.Duration
}

// ParseTokenExpireTime reads a TOKEN_EXPIRE_TIME value. "never", "0" and ""
// all disable expiry.
func ParseTokenExpireTime(value string) (time.Duration, error) {
	if value == "never" || value == "0" || value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	return d, nil
}

// NewSessions generates a fresh ed25519 key pair. Tokens do not survive a
// restart with generated keys.
func NewSessions(ttl time.Duration) (*Sessions, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Sessions{privateKey: privateKey, publicKey: publicKey, ttl: ttl}, nil
}

// LoadSessions reads raw ed25519 private/public keys from file.
func LoadSessions(privatePath, publicPath string, ttl time.Duration) (*Sessions, error) {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("key files are not raw ed25519 keys")
	}
	return &Sessions{
		privateKey: ed25519.PrivateKey(privateKeyData),
		publicKey:  ed25519.PublicKey(publicKeyData),
		ttl:        ttl,
	}, nil
}

func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// CreateJWT creates a signed token with "sub" = userID.
func (s *Sessions) CreateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": time.Now().Unix(),
	}
	if s.ttl > 0 {
		claims["exp"] = time.Now().Add(s.ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.privateKey)
}

// AuthenticateJWT verifies a token and returns its "sub".
func (s *Sessions) AuthenticateJWT(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return userID, nil
}
