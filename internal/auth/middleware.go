package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context keys set by the middlewares.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

const (
	tokenCookie = "token"
	tokenQuery  = "token"
)

var (
	ErrMissingToken = errors.New("token is missing")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is what the authentication layer asserts about a caller.
type Identity struct {
	UserID string
	Role   string
}

type AuthMiddleware struct {
	secret []byte
	ttl    time.Duration
}

func NewAuthMiddleware(secret string, ttl time.Duration) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

func (am *AuthMiddleware) GenerateToken(userID, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     now.Add(am.ttl).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(am.secret)
}

func (am *AuthMiddleware) ValidateToken(tokenString string) (*Identity, error) {
	if len(am.secret) == 0 {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return am.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	role, _ := claims["role"].(string)

	return &Identity{UserID: userID, Role: role}, nil
}

// tokenFromRequest looks in the cookie, then the bearer header, then the
// query string. Browsers cannot set headers on a WebSocket handshake, hence
// the query fallback.
func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(tokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get(tokenQuery)
}

// Authenticate resolves the caller identity of r.
func (am *AuthMiddleware) Authenticate(r *http.Request) (*Identity, error) {
	token := tokenFromRequest(r)
	if token == "" {
		return nil, ErrMissingToken
	}
	id, err := am.ValidateToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return id, nil
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := am.Authenticate(c.Request)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, ErrMissingToken) {
				msg = "Token is missing"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(ContextUserID, id.UserID)
		c.Set(ContextRole, id.Role)
		c.Next()
	}
}

// OptionalAuth sets the identity when a valid token is present and lets the
// request through either way. A present but invalid token is still rejected.
func (am *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := am.Authenticate(c.Request)
		switch {
		case errors.Is(err, ErrMissingToken):
		case err != nil:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		default:
			c.Set(ContextUserID, id.UserID)
			c.Set(ContextRole, id.Role)
		}
		c.Next()
	}
}

// IdentityFromContext returns the identity set by RequireAuth or
// OptionalAuth, if any.
func IdentityFromContext(c *gin.Context) (Identity, bool) {
	userID := c.GetString(ContextUserID)
	if userID == "" {
		return Identity{}, false
	}
	return Identity{UserID: userID, Role: c.GetString(ContextRole)}, true
}
