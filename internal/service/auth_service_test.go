package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exstem-cbt/internal/config"
)

func newTestAuth(secret string, now time.Time) *AuthService {
	s := NewAuthService(&config.Config{JWTSecret: secret, JWTExpiry: time.Hour})
	s.now = func() time.Time { return now }
	return s
}

func TestAuthServiceRoundTrip(t *testing.T) {
	auth := newTestAuth("s3cret", time.Now())

	tok, err := auth.GenerateAdminToken(4, "Proktor", []string{"reports:read"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := auth.ValidateToken(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.TokenType != TokenTypeAdmin || claims.UserID != 4 || claims.Name != "Proktor" {
		t.Errorf("claims = %+v", claims)
	}
	if !claims.HasPermission("reports:read") || claims.HasPermission("monitor:read") {
		t.Errorf("permissions = %v", claims.Permissions)
	}
	if claims.Subject != "4" {
		t.Errorf("subject = %q", claims.Subject)
	}
}

func TestAuthServiceRejects(t *testing.T) {
	now := time.Now()
	auth := newTestAuth("s3cret", now)

	expired, _ := newTestAuth("s3cret", now.Add(-2*time.Hour)).GenerateStudentToken(1, "Siswa")
	otherKey, _ := newTestAuth("different", now).GenerateStudentToken(1, "Siswa")
	noUser, _ := auth.sign(Claims{TokenType: TokenTypeStudent})
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{TokenType: TokenTypeStudent, UserID: 1}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong secret", otherKey},
		{"no user", noUser},
		{"alg none", unsigned},
		{"garbage", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := auth.ValidateToken(tt.token); err == nil {
				t.Fatal("expected rejection")
			}
		})
	}
}
