package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"leasehub/internal/middleware"
	"leasehub/internal/services"
	"leasehub/pkg/jwt"
	"leasehub/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 300 * time.Second
	pingPeriod   = 60 * time.Second
)

// EventStreamHandler 通过WebSocket推送租约事件
type EventStreamHandler struct {
	upgrader   websocket.Upgrader
	hub        *services.EventHub
	jwtManager *jwt.JWTManager
	log        *logrus.Logger
}

func NewEventStreamHandler(hub *services.EventHub, jwtManager *jwt.JWTManager, allowedOrigins []string) *EventStreamHandler {
	if jwtManager == nil {
		jwtManager = jwt.GetJWTManager()
	}
	return &EventStreamHandler{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if allowed == "*" || matchOrigin(origin, allowed) {
						return true
					}
				}
				logger.GetLogger().Warnf("WebSocket连接被拒绝，非法Origin: %s", origin)
				return false
			},
			ReadBufferSize:  1024 * 4,
			WriteBufferSize: 1024 * 32,
		},
		hub:        hub,
		jwtManager: jwtManager,
		log:        logger.GetLogger(),
	}
}

// Stream 浏览器无法自定义header，token 可通过查询参数传入
func (h *EventStreamHandler) Stream(c *gin.Context) {
	scope, ok := middleware.GetScope(c)
	if !ok {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "缺少认证令牌"})
			return
		}
		claims, err := h.jwtManager.VerifyToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的令牌"})
			return
		}
		middleware.SetScope(c, claims)
		scope, _ = middleware.GetScope(c)
	}

	var propertyID uint
	if !scope.IsPrivileged() {
		if scope.PropertyID == 0 {
			c.JSON(http.StatusForbidden, gin.H{"error": "当前账号未绑定物业"})
			return
		}
		propertyID = scope.PropertyID
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(propertyID)
	defer h.hub.Unsubscribe(sub)

	h.log.WithFields(logrus.Fields{
		"user_id":     scope.UserID,
		"property_id": propertyID,
	}).Info("Lease event stream connected")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go h.readPump(conn, cancel)

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case event, open := <-sub.C:
			if !open {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.log.WithError(err).Warn("Failed to push lease event")
				return
			}
		}
	}
}

// readPump 只处理 pong 与关闭帧
func (h *EventStreamHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).Warn("WebSocket unexpected close")
			}
			return
		}
	}
}

// matchOrigin 支持精确匹配和通配符匹配（如 *.example.com）
func matchOrigin(origin, allowed string) bool {
	if origin == allowed {
		return true
	}
	if !strings.HasPrefix(allowed, "*.") {
		return false
	}

	domain := allowed[2:]
	host := origin
	if idx := strings.Index(host, "://"); idx != -1 {
		host = host[idx+3:]
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}
