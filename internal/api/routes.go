package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/segstream/internal/auth"
	"github.com/satriahrh/segstream/internal/websocket"
)

// FramePath is where clients stream frames
const FramePath = "/ws/process-frame"

// InitRoutes initializes all API routes. A non-empty jwtSecret requires a
// bearer token on the frame endpoint.
func InitRoutes(e *echo.Echo, hub *websocket.Hub, jwtSecret []byte, logger *zap.Logger) {
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"message": "Segmentation inference service is running",
		})
	})

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:          "healthy",
			ModelLoaded:     hub.ModelLoaded(),
			Connections:     hub.ClientCount(),
			FramesProcessed: hub.FramesProcessed(),
		})
	})

	e.GET(FramePath, func(c echo.Context) error {
		if len(jwtSecret) == 0 {
			return websocket.HandleWebSocket(hub, c, "", logger)
		}
		return websocketWithAuth(hub, c, jwtSecret, logger)
	})
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(hub *websocket.Hub, c echo.Context, secret []byte, logger *zap.Logger) error {
	// Extract JWT token from Authorization header only
	token := auth.BearerToken(c.Request().Header.Get("Authorization"))
	if token == "" {
		logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header",
		})
	}

	claims, err := auth.ValidateToken(secret, token)
	if err != nil {
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	if claims.Role != auth.RoleStream {
		logger.Warn("WebSocket connection rejected: invalid role",
			zap.String("role", claims.Role))
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only stream tokens are allowed for WebSocket connections",
		})
	}

	logger.Info("WebSocket connection authenticated",
		zap.String("subject", claims.Subject),
		zap.String("role", claims.Role))

	return websocket.HandleWebSocket(hub, c, claims.Subject, logger)
}
