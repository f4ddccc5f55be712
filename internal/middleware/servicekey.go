package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gamebuddies-server/internal/service"
)

// serviceKeyHeader 是外部游戏进程携带服务凭证的请求头。
// 凭证只从请求头读取，绝不从请求体读取。
const serviceKeyHeader = "X-Service-Key"

// ServiceKey 返回一个 Gin 中间件，用于验证外部服务凭证。
// validator 把凭证解析为授权范围并放入上下文，供 Status 处理器使用。
func ServiceKey(validator service.CredentialValidator) gin.HandlerFunc {
	if validator == nil {
		panic("CredentialValidator cannot be nil for ServiceKey middleware")
	}

	return func(c *gin.Context) {
		key := c.GetHeader(serviceKeyHeader)
		if key == "" {
			logrus.Warn("ServiceKey middleware: Missing X-Service-Key header")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "X-Service-Key header is required"})
			c.Abort()
			return
		}

		scope, err := validator.Validate(key)
		if err != nil {
			// 不回显凭证内容，只记录失败事实
			logrus.WithError(err).Warn("ServiceKey middleware: Invalid service key")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid service key"})
			c.Abort()
			return
		}

		c.Set("service_scope", scope)
		logrus.WithField("service", scope.ServiceName).Debug("ServiceKey middleware: Service authenticated")

		c.Next()
	}
}
