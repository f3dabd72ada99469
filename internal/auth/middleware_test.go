package auth

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-testing"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestMiddleware() *AuthMiddleware {
	return NewAuthMiddleware(testSecret, time.Hour)
}

func TestGenerateToken(t *testing.T) {
	am := newTestMiddleware()

	tests := []struct {
		name   string
		userID string
		role   string
	}{
		{name: "student", userID: "user123", role: "student"},
		{name: "teacher", userID: "t1", role: "teacher"},
		{name: "empty role", userID: "user123", role: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := am.GenerateToken(tt.userID, tt.role)
			if err != nil {
				t.Fatalf("GenerateToken() unexpected error: %v", err)
			}
			if token == "" {
				t.Fatalf("GenerateToken() returned empty token")
			}

			parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
				return []byte(testSecret), nil
			})
			if err != nil || !parsed.Valid {
				t.Fatalf("Generated token cannot be parsed: %v", err)
			}

			claims := parsed.Claims.(jwt.MapClaims)
			if claims["user_id"] != tt.userID {
				t.Errorf("Expected user_id '%s', got '%v'", tt.userID, claims["user_id"])
			}
			if claims["role"] != tt.role {
				t.Errorf("Expected role '%s', got '%v'", tt.role, claims["role"])
			}

			exp, ok := claims["exp"].(float64)
			if !ok || exp <= float64(time.Now().Unix()) {
				t.Errorf("Token should not be expired immediately after generation")
			}
		})
	}
}

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestValidateToken(t *testing.T) {
	am := newTestMiddleware()

	validToken, err := am.GenerateToken("u1", "teacher")
	if err != nil {
		t.Fatalf("Failed to generate test token: %v", err)
	}

	tests := []struct {
		name     string
		token    string
		wantErr  bool
		wantUser string
		wantRole string
	}{
		{name: "valid token", token: validToken, wantUser: "u1", wantRole: "teacher"},
		{
			name: "expired token",
			token: signed(t, testSecret, jwt.MapClaims{
				"user_id": "u1",
				"exp":     time.Now().Add(-time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{name: "invalid token format", token: "invalid.token.format", wantErr: true},
		{name: "empty token", token: "", wantErr: true},
		{
			name: "token with wrong secret",
			token: signed(t, "wrong-secret", jwt.MapClaims{
				"user_id": "u1",
				"exp":     time.Now().Add(time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name: "token without user id",
			token: signed(t, testSecret, jwt.MapClaims{
				"role": "student",
				"exp":  time.Now().Add(time.Hour).Unix(),
			}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := am.ValidateToken(tt.token)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ValidateToken() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateToken() unexpected error: %v", err)
			}
			if id.UserID != tt.wantUser || id.Role != tt.wantRole {
				t.Errorf("ValidateToken() = %+v, want %s/%s", id, tt.wantUser, tt.wantRole)
			}
		})
	}
}

func TestValidateToken_NoSecret(t *testing.T) {
	am := NewAuthMiddleware("", time.Hour)
	token, _ := am.GenerateToken("u1", "student")

	if _, err := am.ValidateToken(token); err == nil {
		t.Errorf("ValidateToken() must fail when no secret is configured")
	}
}

func TestAuthenticate_TokenSources(t *testing.T) {
	am := newTestMiddleware()
	token, _ := am.GenerateToken("u9", "student")

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{name: "cookie", setup: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "token", Value: token}) }},
		{name: "bearer header", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }},
		{name: "query parameter", setup: func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", token)
			r.URL.RawQuery = q.Encode()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ws", nil)
			tt.setup(req)

			id, err := am.Authenticate(req)
			if err != nil {
				t.Fatalf("Authenticate() unexpected error: %v", err)
			}
			if id.UserID != "u9" {
				t.Errorf("Expected user_id 'u9', got '%s'", id.UserID)
			}
		})
	}
}

func TestAuthMiddleware_RequireAuth(t *testing.T) {
	am := newTestMiddleware()
	validToken, _ := am.GenerateToken("123", "teacher")

	tests := []struct {
		name           string
		setupRequest   func(req *http.Request)
		expectedStatus int
	}{
		{
			name: "valid token in cookie",
			setupRequest: func(req *http.Request) {
				req.AddCookie(&http.Cookie{Name: "token", Value: validToken})
			},
			expectedStatus: 200,
		},
		{
			name:           "missing token",
			setupRequest:   func(req *http.Request) {},
			expectedStatus: 401,
		},
		{
			name: "invalid token in cookie",
			setupRequest: func(req *http.Request) {
				req.AddCookie(&http.Cookie{Name: "token", Value: "invalid-token"})
			},
			expectedStatus: 401,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			var gotUser, gotRole string
			router.GET("/protected", am.RequireAuth(), func(c *gin.Context) {
				id, _ := IdentityFromContext(c)
				gotUser, gotRole = id.UserID, id.Role
				c.Status(200)
			})

			req := httptest.NewRequest("GET", "/protected", nil)
			tt.setupRequest(req)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus == 200 && (gotUser != "123" || gotRole != "teacher") {
				t.Errorf("Expected identity 123/teacher in context, got %s/%s", gotUser, gotRole)
			}
		})
	}
}

func TestAuthMiddleware_OptionalAuth(t *testing.T) {
	am := newTestMiddleware()
	validToken, _ := am.GenerateToken("s1", "student")

	router := gin.New()
	router.GET("/ws", am.OptionalAuth(), func(c *gin.Context) {
		if id, ok := IdentityFromContext(c); ok {
			c.String(200, id.UserID)
			return
		}
		c.String(200, "anonymous")
	})

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantBody   string
	}{
		{name: "no token", query: "", wantStatus: 200, wantBody: "anonymous"},
		{name: "valid token", query: "?token=" + validToken, wantStatus: 200, wantBody: "s1"},
		{name: "bad token", query: "?token=garbage", wantStatus: 401},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("GET", "/ws"+tt.query, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("Expected body %q, got %q", tt.wantBody, w.Body.String())
			}
		})
	}
}
