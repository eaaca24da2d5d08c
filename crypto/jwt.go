package crypto

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Nebulaz7/veil/domain"
)

// Identity is the set of claims carried by a Veil bearer token.
type Identity struct {
	Id        string
	Email     string
	Name      string
	Picture   string
	CreatedAt time.Time
}

// jwtCustomClaims is an unexported struct used for claims.
// Fields must be exported for JSON serialization.
type jwtCustomClaims struct {
	Id        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Picture   string `json:"picture,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	secretKey []byte
	maxAge    time.Duration
}

func NewJWTManager(secretKey string, maxAge time.Duration) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secretKey),
		maxAge:    maxAge,
	}
}

func (m *JWTManager) Generate(identity Identity, now time.Time) (string, error) {
	claims := jwtCustomClaims{
		Id:        identity.Id,
		Email:     identity.Email,
		Name:      identity.Name,
		Picture:   identity.Picture,
		CreatedAt: identity.CreatedAt.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(m.secretKey)

	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.UnexpectedTokenGenerationError, err)
	}

	return signedToken, nil
}

func (m *JWTManager) Verify(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtCustomClaims{}, func(token *jwt.Token) (any, error) {
		// Validate the signing method is what we expect (HMAC)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidSigningAlg
		}
		return m.secretKey, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSigningAlg):
			return Identity{}, err
		case errors.Is(err, jwt.ErrTokenExpired):
			return Identity{}, domain.ErrExpiredToken
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return Identity{}, domain.ErrInvalidTokenSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Identity{}, domain.ErrCorruptedToken
		default:
			return Identity{}, fmt.Errorf("%w: %w", domain.UnexpectedTokenVerificationError, err)
		}
	}

	if claims, ok := token.Claims.(*jwtCustomClaims); ok && token.Valid {
		return Identity{
			Id:        claims.Id,
			Email:     claims.Email,
			Name:      claims.Name,
			Picture:   claims.Picture,
			CreatedAt: time.Unix(claims.CreatedAt, 0),
		}, nil
	}

	return Identity{}, domain.ErrCorruptedToken
}
