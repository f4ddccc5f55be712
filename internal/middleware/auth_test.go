package middleware_test // 测试包

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gamebuddies-server/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// signToken 用指定 secret 签发一个携带 participant_id 的测试 token。
func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// newAuthRouter 搭一个只挂 Auth 中间件的测试路由，
// 终端 handler 把上下文里的 participant_id 回显出来。
func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", middleware.Auth(testSecret), func(c *gin.Context) {
		id := c.MustGet("participant_id").(uint)
		c.JSON(http.StatusOK, gin.H{"participant_id": id})
	})
	return r
}

func TestAuth_ValidToken(t *testing.T) {
	// Arrange
	r := newAuthRouter()
	token := signToken(t, testSecret, jwt.MapClaims{
		"participant_id": 7,
		"exp":            time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	// Act
	r.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"participant_id":7`)
}

func TestAuth_MissingHeader(t *testing.T) {
	// Arrange
	r := newAuthRouter()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)

	// Act
	r.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Authorization header is required")
}

func TestAuth_MalformedHeader(t *testing.T) {
	// Arrange
	r := newAuthRouter()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Token abc.def.ghi") // 不是 Bearer 格式

	// Act
	r.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid token format")
}

func TestAuth_WrongSignature(t *testing.T) {
	// Arrange: 用别的 secret 签发的 token
	r := newAuthRouter()
	token := signToken(t, "some-other-secret", jwt.MapClaims{
		"participant_id": 7,
		"exp":            time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	// Act
	r.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid or expired token")
}

func TestAuth_ExpiredToken(t *testing.T) {
	// Arrange
	r := newAuthRouter()
	token := signToken(t, testSecret, jwt.MapClaims{
		"participant_id": 7,
		"exp":            time.Now().Add(-time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	// Act
	r.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_MissingParticipantClaim(t *testing.T) {
	// Arrange: 签名合法但没有 participant_id claim
	r := newAuthRouter()
	token := signToken(t, testSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	// Act
	r.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
