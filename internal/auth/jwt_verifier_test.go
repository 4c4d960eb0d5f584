package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hemantsingh443/allchat-sub000/internal/domain"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
)

func TestVerifyToken(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	verifier := NewVerifierWithKeyfunc(func(*jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sign := func(method jwt.SigningMethod, signingKey interface{}, claims models.AuthClaims) string {
		t.Helper()
		token, err := jwt.NewWithClaims(method, claims).SignedString(signingKey)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return token
	}
	claimsFor := func(sub, role string, exp time.Time) models.AuthClaims {
		return models.AuthClaims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: sub, ExpiresAt: jwt.NewNumericDate(exp)},
			Role:             role,
		}
	}
	later := time.Now().Add(time.Hour)

	tests := []struct {
		name    string
		token   string
		wantSub string
	}{
		{"valid", sign(jwt.SigningMethodES256, key, claimsFor("alice", "authenticated", later)), "alice"},
		{"expired", sign(jwt.SigningMethodES256, key, claimsFor("alice", "authenticated", time.Now().Add(-time.Hour))), ""},
		{"anonymous role", sign(jwt.SigningMethodES256, key, claimsFor("alice", "anon", later)), ""},
		{"missing subject", sign(jwt.SigningMethodES256, key, claimsFor("", "authenticated", later)), ""},
		{"hmac algorithm", sign(jwt.SigningMethodHS256, []byte("secret"), claimsFor("alice", "authenticated", later)), ""},
		{"garbage", "not.a.jwt", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := verifier.VerifyToken(tt.token)
			if tt.wantSub == "" {
				if !errors.Is(err, domain.ErrUnauthorized) {
					t.Errorf("err = %v, want ErrUnauthorized", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if claims.GetUserID() != tt.wantSub {
				t.Errorf("subject = %q, want %q", claims.GetUserID(), tt.wantSub)
			}
		})
	}
}
