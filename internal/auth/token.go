package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/ridehail/internal/models"
)

// TokenManager issues signed JWTs for connected wallets. The token is a
// session handle for the browser client, not an access-control mechanism;
// the wallet handshake itself is mocked.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Generate issues a signed JWT string for the provided user.
func (t *TokenManager) Generate(u *models.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":    t.issuer,
		"sub":    u.ID,
		"wallet": u.WalletAddress,
		"role":   string(u.Role),
		"iat":    now.Unix(),
		"nbf":    now.Unix(),
		"exp":    now.Add(t.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}
