package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/examind/examind-backend/internal/config"
	"github.com/examind/examind-backend/internal/model"
)

// Claims extends JWT standard claims with the session identity. The token is
// issued on a successful join and is the only credential a student carries
// for the rest of the attempt, reconnects included.
type Claims struct {
	jwt.RegisteredClaims
	ExamID      string `json:"exam_id"`
	StudentName string `json:"student_name"`
	ClassName   string `json:"class_name"`
}

// SessionKey reconstructs the typed session identity from the claims.
func (c *Claims) SessionKey() (model.SessionKey, error) {
	examID, err := uuid.Parse(c.ExamID)
	if err != nil {
		return model.SessionKey{}, fmt.Errorf("parse exam id: %w", err)
	}
	return model.SessionKey{
		ExamID:      examID,
		StudentName: c.StudentName,
		ClassName:   c.ClassName,
	}, nil
}

// TokenService issues and validates session tokens.
type TokenService struct {
	cfg *config.Config
}

// NewTokenService creates a new TokenService.
func NewTokenService(cfg *config.Config) *TokenService {
	return &TokenService{cfg: cfg}
}

// GenerateSessionToken creates a JWT bound to one session identity.
func (s *TokenService) GenerateSessionToken(key model.SessionKey) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   key.StudentName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.SessionTokenExpiry)),
		},
		ExamID:      key.ExamID.String(),
		StudentName: key.StudentName,
		ClassName:   key.ClassName,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *TokenService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
