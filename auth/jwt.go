package auth

import (
	"context"
	"errors"
	"time"

	"filmware-sync/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	redisLib "github.com/redis/go-redis/v9"
)

// Auth issues and verifies the REST surface's bearer tokens. A token is
// only honored while its copy is present in redis, so logout can revoke it
// before expiry.
type Auth struct {
	secret []byte
	redis  *redisLib.Client
	ttl    time.Duration
}

func New(cfg *config.Config, redisClient *redisLib.Client) *Auth {
	return &Auth{
		secret: []byte(cfg.JWTSecret),
		redis:  redisClient,
		ttl:    cfg.SessionTTL,
	}
}

// GenerateJWT creates a signed token for an account
func (a *Auth) GenerateJWT(account uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"account": account.String(),
		"exp":     time.Now().Add(a.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// VerifyJWT parses a token string and returns the account it names
func (a *Auth) VerifyJWT(tokenString string) (uuid.UUID, error) {
	jwtToken, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	if !jwtToken.Valid {
		return uuid.Nil, errors.New("token invalid")
	}

	claims, ok := jwtToken.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errors.New("unexpected claims")
	}
	accountStr, ok := claims["account"].(string)
	if !ok {
		return uuid.Nil, errors.New("missing account claim")
	}
	return uuid.Parse(accountStr)
}

// StoreToken registers a freshly issued token in redis for its lifetime
func (a *Auth) StoreToken(ctx context.Context, token string) error {
	return a.redis.Set(ctx, token, "1", a.ttl).Err()
}

// RevokeToken removes a token from redis, invalidating it immediately
func (a *Auth) RevokeToken(ctx context.Context, token string) error {
	return a.redis.Del(ctx, token).Err()
}

// tokenKnown checks the token is still registered
func (a *Auth) tokenKnown(ctx context.Context, token string) (bool, error) {
	exists, err := a.redis.Exists(ctx, token).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
