package middleware

import (
	"strings"

	"leasehub/internal/services"
	"leasehub/pkg/jwt"
	"leasehub/pkg/response"

	"github.com/gin-gonic/gin"
)

const scopeKey = "caller_scope"

// AuthMiddleware 认证中间件，调用方身份与物业范围来自JWT声明
type AuthMiddleware struct {
	jwtManager *jwt.JWTManager
}

func NewAuthMiddleware(jwtManager *jwt.JWTManager) *AuthMiddleware {
	if jwtManager == nil {
		jwtManager = jwt.GetJWTManager()
	}
	return &AuthMiddleware{jwtManager: jwtManager}
}

// RequireLogin 校验 Bearer token 并把调用方范围写入上下文
func (m *AuthMiddleware) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Unauthorized(c, "认证头格式错误")
			c.Abort()
			return
		}

		claims, err := m.jwtManager.VerifyToken(authHeader[7:])
		if err != nil {
			response.Unauthorized(c, "Token无效或已过期")
			c.Abort()
			return
		}

		SetScope(c, claims)
		c.Next()
	}
}

// RequireRole 要求任一角色
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, ok := GetScope(c)
		if !ok {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}

		for _, role := range roles {
			if scope.Role == role {
				c.Next()
				return
			}
		}

		response.Forbidden(c, "权限不足：需要 "+strings.Join(roles, "/")+" 角色")
		c.Abort()
	}
}

// RequireAdmin 要求平台管理员
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return m.RequireRole(jwt.RoleAdmin)
}

// SetScope 把JWT声明转换为调用方范围
func SetScope(c *gin.Context, claims *jwt.JWTClaims) {
	c.Set("user_id", claims.UserID)
	c.Set("username", claims.Username)
	c.Set("claims", claims)
	c.Set(scopeKey, services.CallerScope{
		UserID:     claims.UserID,
		Username:   claims.Username,
		Role:       claims.Role,
		PropertyID: claims.PropertyID,
	})
}

// GetScope 读取当前调用方范围
func GetScope(c *gin.Context) (services.CallerScope, bool) {
	value, exists := c.Get(scopeKey)
	if !exists {
		return services.CallerScope{}, false
	}
	scope, ok := value.(services.CallerScope)
	return scope, ok
}
