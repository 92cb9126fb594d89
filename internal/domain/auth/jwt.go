// Package auth validates the device tokens POS terminals authenticate with.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"khmerpos/internal/core/actor"
	"khmerpos/internal/core/id"
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

// DefaultJWTConfig returns default JWT configuration.
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:         secret,
		Issuer:         "khmerpos",
		AccessTokenTTL: 12 * time.Hour,
	}
}

// Claims represents JWT claims. A terminal token binds the employee to one
// tenant and branch for the whole shift.
type Claims struct {
	jwt.RegisteredClaims
	TenantID   string `json:"tid"`
	BranchID   string `json:"bid"`
	EmployeeID string `json:"eid"`
	Role       string `json:"role"`
}

// JWTService handles JWT operations.
type JWTService struct {
	config JWTConfig
}

// NewJWTService creates a new JWT service.
func NewJWTService(config JWTConfig) *JWTService {
	return &JWTService{config: config}
}

// GenerateToken issues a terminal token for an employee shift.
func (s *JWTService) GenerateToken(tenantID, branchID, employeeID id.ID, role string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.AccessTokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   employeeID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TenantID:   tenantID.String(),
		BranchID:   branchID.String(),
		EmployeeID: employeeID.String(),
		Role:       role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a token and returns the actor it represents.
func (s *JWTService) ValidateToken(tokenString string) (actor.Context, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return actor.Context{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return actor.Context{}, fmt.Errorf("invalid token claims")
	}

	tenantID, err := id.Parse(claims.TenantID)
	if err != nil {
		return actor.Context{}, fmt.Errorf("invalid tenant id claim: %w", err)
	}
	branchID, err := id.Parse(claims.BranchID)
	if err != nil {
		return actor.Context{}, fmt.Errorf("invalid branch id claim: %w", err)
	}
	employeeID, err := id.Parse(claims.EmployeeID)
	if err != nil {
		return actor.Context{}, fmt.Errorf("invalid employee id claim: %w", err)
	}

	return actor.Context{
		TenantID:   tenantID,
		BranchID:   branchID,
		EmployeeID: employeeID,
		Role:       claims.Role,
	}, nil
}
