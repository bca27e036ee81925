package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func newValidator(t *testing.T, issuers []string, audience string) *Validator {
	t.Helper()
	v, err := New(Config{
		HMACSecret: testSecret,
		Issuers:    issuers,
		Audience:   audience,
		Logger:     slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestValidateAcceptsGoodToken(t *testing.T) {
	v := newValidator(t, []string{"https://idbroker.example.com"}, "")
	raw := signToken(t, jwt.MapClaims{
		"iss": "https://idbroker.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	claims, err := v.Validate(raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if iss, _ := claims.GetIssuer(); iss != "https://idbroker.example.com" {
		t.Errorf("iss = %q", iss)
	}
}

func TestValidateRejections(t *testing.T) {
	v := newValidator(t, []string{"https://idbroker.example.com"}, "byova")
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   error
	}{
		{
			name: "expired",
			claims: jwt.MapClaims{
				"iss": "https://idbroker.example.com",
				"aud": "byova",
				"exp": time.Now().Add(-time.Hour).Unix(),
			},
			want: ErrInvalidToken,
		},
		{
			name: "missing expiry",
			claims: jwt.MapClaims{
				"iss": "https://idbroker.example.com",
				"aud": "byova",
			},
			want: ErrInvalidToken,
		},
		{
			name: "untrusted issuer",
			claims: jwt.MapClaims{
				"iss": "https://evil.example.com",
				"aud": "byova",
				"exp": time.Now().Add(time.Hour).Unix(),
			},
			want: ErrUntrustedIssuer,
		},
		{
			name: "wrong audience",
			claims: jwt.MapClaims{
				"iss": "https://idbroker.example.com",
				"aud": "other-service",
				"exp": time.Now().Add(time.Hour).Unix(),
			},
			want: ErrInvalidToken,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(signToken(t, tt.claims))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateRejectsWrongKey(t *testing.T) {
	v := newValidator(t, nil, "")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	raw, err := token.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Validate(raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestNewRequiresAKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("validator built without any key")
	}
}

func TestMiddleware(t *testing.T) {
	v := newValidator(t, nil, "")
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stream", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("nil validator passes through", func(t *testing.T) {
		var disabled *Validator
		h := disabled.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stream", nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d", rec.Code)
		}
	})
}
