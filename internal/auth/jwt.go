package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in tokens. Patient tokens are scoped to one patient's intake
// routes; staff tokens gate summaries and the dashboard feed.
const (
	RolePatient = "patient"
	RoleStaff   = "staff"
)

// Claims represents the claims in our JWT token.
type Claims struct {
	PatientID string `json:"patient_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService signs and validates tokens with an injected secret.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a token service. The secret comes from config, never
// from a hardcoded default.
func NewTokenService(secret string) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// GeneratePatientToken issues a 24-hour token scoped to one patient.
func (s *TokenService) GeneratePatientToken(patientID string) (string, error) {
	claims := &Claims{
		PatientID: patientID,
		Role:      RolePatient,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// GenerateStaffToken issues a 7-day token for clinic staff.
func (s *TokenService) GenerateStaffToken(userID string) (string, error) {
	claims := &Claims{
		UserID: userID,
		Role:   RoleStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(7 * 24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken validates a JWT token and returns the claims.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrInvalidKey
}
