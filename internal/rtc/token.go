package rtc

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/onboardly/onboardly/internal/interview"
)

// GenerateAccessToken mints a LiveKit-compatible room token: an HS256 JWT
// whose video grant names the room. The API key becomes the issuer and the
// secret signs the token.
func GenerateAccessToken(apiKey, apiSecret, room, identity string, ttl time.Duration) (string, error) {
	if apiKey == "" || apiSecret == "" {
		return "", fmt.Errorf("livekit api key/secret required: %w", interview.ErrBadCredential)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jti: %w", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"jti":   hex.EncodeToString(b),
		"iss":   apiKey,
		"nbf":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
		"sub":   identity,
		"name":  identity,
		"video": map[string]interface{}{"room": room, "roomJoin": true},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(apiSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
